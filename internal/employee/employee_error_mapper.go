package employee

import (
	"database/sql"
	"errors"

	employeeerrors "go-orgtree/internal/employee/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, sql.ErrNoRows) {
		return employeeerrors.ErrEmployeeNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23503" {
			// The department disappeared between the existence check and
			// the insert.
			return employeeerrors.ErrDepartmentNotFound
		}
	}

	return err
}
