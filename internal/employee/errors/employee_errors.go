package employeeerrors

import (
	"net/http"

	"go-orgtree/internal/shared/apperror"
)

var (
	ErrEmployeeNotFound = apperror.New(
		apperror.CodeNotFound,
		"Employee not found",
		http.StatusNotFound,
	)
	ErrDepartmentNotFound = apperror.New(
		apperror.CodeNotFound,
		"Department not found",
		http.StatusNotFound,
	)
	ErrNameLength = apperror.New(
		apperror.CodeInvalidInput,
		"Full name must be between 1 and 250 characters",
		http.StatusBadRequest,
	)
	ErrPositionLength = apperror.New(
		apperror.CodeInvalidInput,
		"Position must be between 1 and 250 characters",
		http.StatusBadRequest,
	)
	ErrInvalidHiredAt = apperror.New(
		apperror.CodeInvalidInput,
		"Invalid hired_at format, expected YYYY-MM-DD",
		http.StatusBadRequest,
	)
)
