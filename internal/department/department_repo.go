package department

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// maxTraversalDepth bounds the recursive descendant query so it terminates
// even if the stored data already contains a corrupted cycle.
const maxTraversalDepth = 100

//go:generate mockgen -source=department_repo.go -destination=mock/department_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository
	Create(ctx context.Context, dept *Department) error
	FindByID(ctx context.Context, id uint) (*Department, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*Department, error)
	FindChildren(ctx context.Context, id uint) ([]Department, error)
	Exists(ctx context.Context, id uint) (bool, error)
	DescendantIDs(ctx context.Context, id uint) ([]uint, error)
	HasCycle(ctx context.Context, id *uint, newParentID *uint) (bool, error)
	UpdateFields(ctx context.Context, id uint, updates map[string]any) error
	ReparentChildren(ctx context.Context, id uint, newParentID *uint) error
	DeleteWithCascade(ctx context.Context, id uint) (bool, error)
	DeleteWithoutCascade(ctx context.Context, id uint) (bool, error)
}

// repository serves plain reads through gorm and everything that must run
// inside the caller's transaction through raw SQL on the attached *sql.Tx.
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
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func (r *repository) conn() sqlConn {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *repository) Create(ctx context.Context, dept *Department) error {
	query := `INSERT INTO departments (name, parent_id) VALUES ($1, $2) RETURNING id, created_at`
	return r.conn().
		QueryRowContext(ctx, query, dept.Name, dept.ParentID).
		Scan(&dept.ID, &dept.CreatedAt)
}

func (r *repository) FindByID(ctx context.Context, id uint) (*Department, error) {
	var dept Department
	err := r.gdb.WithContext(ctx).First(&dept, id).Error
	if err != nil {
		return nil, err
	}
	return &dept, nil
}

// FindByIDForUpdate locks the department row for the rest of the enclosing
// transaction. The cycle check and the parent write must see the same row
// state, otherwise two concurrent moves can install a cycle.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uint) (*Department, error) {
	query := `SELECT id, name, parent_id, created_at FROM departments WHERE id = $1 FOR UPDATE`
	var dept Department
	err := r.conn().
		QueryRowContext(ctx, query, id).
		Scan(&dept.ID, &dept.Name, &dept.ParentID, &dept.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &dept, nil
}

func (r *repository) FindChildren(ctx context.Context, id uint) ([]Department, error) {
	var children []Department
	err := r.gdb.WithContext(ctx).
		Where("parent_id = ?", id).
		Order("id ASC").
		Find(&children).Error
	return children, err
}

func (r *repository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := r.gdb.WithContext(ctx).
		Model(&Department{}).
		Where("id = ?", id).
		Count(&count).Error
	return count > 0, err
}

// DescendantIDs returns every id transitively below the given department,
// excluding the department itself.
func (r *repository) DescendantIDs(ctx context.Context, id uint) ([]uint, error) {
	query := `
WITH RECURSIVE subtree AS (
	SELECT id, parent_id, 1 AS depth
	FROM departments
	WHERE parent_id = $1
	UNION ALL
	SELECT d.id, d.parent_id, s.depth + 1
	FROM departments d
	JOIN subtree s ON d.parent_id = s.id
	WHERE s.depth < $2
)
SELECT id FROM subtree
`
	rows, err := r.conn().QueryContext(ctx, query, id, maxTraversalDepth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint
	for rows.Next() {
		var descID uint
		if err := rows.Scan(&descID); err != nil {
			return nil, err
		}
		ids = append(ids, descID)
	}
	return ids, rows.Err()
}

// HasCycle reports whether re-parenting id under newParentID would close a
// loop. A new department (id nil) or a move to the root (newParentID nil)
// can never cycle; everything else cycles iff the new parent is the
// department itself or one of its descendants.
func (r *repository) HasCycle(ctx context.Context, id *uint, newParentID *uint) (bool, error) {
	if id == nil || newParentID == nil {
		return false, nil
	}
	if *id == *newParentID {
		return true, nil
	}

	descendants, err := r.DescendantIDs(ctx, *id)
	if err != nil {
		return false, err
	}
	for _, descID := range descendants {
		if descID == *newParentID {
			return true, nil
		}
	}
	return false, nil
}

// UpdateFields writes only the given columns; callers pass the fields that
// actually changed so unchanged values never touch the row.
func (r *repository) UpdateFields(ctx context.Context, id uint, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	set := make([]string, 0, len(updates))
	args := make([]any, 0, len(updates)+1)
	for _, col := range []string{"name", "parent_id"} {
		if v, ok := updates[col]; ok {
			args = append(args, v)
			set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE departments SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	res, err := r.conn().ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReparentChildren moves every direct child of id under newParentID.
func (r *repository) ReparentChildren(ctx context.Context, id uint, newParentID *uint) error {
	query := `UPDATE departments SET parent_id = $1 WHERE parent_id = $2`
	_, err := r.conn().ExecContext(ctx, query, newParentID, id)
	return err
}

// DeleteWithCascade removes the department, its entire subtree and every
// employee assigned anywhere in that subtree. Returns false when the
// department does not exist.
func (r *repository) DeleteWithCascade(ctx context.Context, id uint) (bool, error) {
	descendants, err := r.DescendantIDs(ctx, id)
	if err != nil {
		return false, err
	}
	all := append([]uint{id}, descendants...)

	placeholders := make([]string, len(all))
	args := make([]any, len(all))
	for i, deptID := range all {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = deptID
	}
	in := strings.Join(placeholders, ", ")

	if _, err := r.conn().ExecContext(ctx,
		fmt.Sprintf("DELETE FROM employees WHERE department_id IN (%s)", in), args...); err != nil {
		return false, err
	}

	res, err := r.conn().ExecContext(ctx,
		fmt.Sprintf("DELETE FROM departments WHERE id IN (%s)", in), args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteWithoutCascade removes only the named department. Employees still
// pointing at it are detached (department_id nulled) rather than left
// dangling; callers reassign them beforehand when they should be kept.
func (r *repository) DeleteWithoutCascade(ctx context.Context, id uint) (bool, error) {
	if _, err := r.conn().ExecContext(ctx,
		`UPDATE employees SET department_id = NULL WHERE department_id = $1`, id); err != nil {
		return false, err
	}

	res, err := r.conn().ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
