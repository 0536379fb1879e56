package department

import (
	"database/sql"
	"errors"
	"net/http"

	departmenterrors "go-orgtree/internal/department/errors"
	"go-orgtree/internal/shared/apperror"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, sql.ErrNoRows) {
		return departmenterrors.ErrDepartmentNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			// The referenced parent vanished between validation and insert.
			return departmenterrors.ErrParentNotFound
		case "23505":
			return apperror.New(
				apperror.CodeConflict,
				"Department with the same unique attributes already exists",
				http.StatusConflict,
			)
		}
	}

	return err
}
