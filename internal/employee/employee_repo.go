package employee

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

//go:generate mockgen -source=employee_repo.go -destination=mock/employee_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository
	Create(ctx context.Context, empl *Employee) error
	FindByID(ctx context.Context, id uint) (*Employee, error)
	Exists(ctx context.Context, id uint) (bool, error)
	FindAllByDepartment(ctx context.Context, departmentID uint) ([]Employee, error)
	ReassignAll(ctx context.Context, fromDepartmentID, toDepartmentID uint) (int64, error)
	Delete(ctx context.Context, id uint) (bool, error)
	DepartmentExists(ctx context.Context, departmentID uint) (bool, error)
}

type repository struct {
	gdb *gorm.DB
	db  *sql.DB
	tx  *sql.Tx
}

func NewRepository(gdb *gorm.DB, db *sql.DB) Repository {
	return &repository{gdb: gdb, db: db}
}

func (r *repository) WithTx(tx *sql.Tx) Repository {
	return &repository{gdb: r.gdb, db: r.db, tx: tx}
}

type sqlConn interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func (r *repository) conn() sqlConn {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *repository) Create(ctx context.Context, empl *Employee) error {
	query := `
INSERT INTO employees (department_id, full_name, position, hired_at)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at
`
	return r.conn().
		QueryRowContext(ctx, query, empl.DepartmentID, empl.FullName, empl.Position, empl.HiredAt).
		Scan(&empl.ID, &empl.CreatedAt)
}

func (r *repository) FindByID(ctx context.Context, id uint) (*Employee, error) {
	var empl Employee
	err := r.gdb.WithContext(ctx).First(&empl, id).Error
	if err != nil {
		return nil, err
	}
	return &empl, nil
}

func (r *repository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := r.gdb.WithContext(ctx).
		Model(&Employee{}).
		Where("id = ?", id).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FindAllByDepartment(ctx context.Context, departmentID uint) ([]Employee, error) {
	var empls []Employee
	err := r.gdb.WithContext(ctx).
		Where("department_id = ?", departmentID).
		Order("id ASC").
		Find(&empls).Error
	return empls, err
}

// ReassignAll moves every employee of one department to another in a single
// statement, so the whole matching set changes atomically within the
// enclosing transaction.
func (r *repository) ReassignAll(ctx context.Context, fromDepartmentID, toDepartmentID uint) (int64, error) {
	res, err := r.conn().ExecContext(ctx,
		`UPDATE employees SET department_id = $1 WHERE department_id = $2`,
		toDepartmentID, fromDepartmentID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repository) Delete(ctx context.Context, id uint) (bool, error) {
	res, err := r.conn().ExecContext(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DepartmentExists probes the departments table directly; referential
// validation belongs to the service layer, not the store.
func (r *repository) DepartmentExists(ctx context.Context, departmentID uint) (bool, error) {
	var count int64
	err := r.gdb.WithContext(ctx).
		Table("departments").
		Where("id = ?", departmentID).
		Count(&count).Error
	return count > 0, err
}
