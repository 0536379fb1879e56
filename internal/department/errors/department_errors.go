package departmenterrors

import (
	"net/http"

	"go-orgtree/internal/shared/apperror"
)

var (
	ErrDepartmentNotFound = apperror.New(
		apperror.CodeNotFound,
		"Department not found",
		http.StatusNotFound,
	)
	ErrParentNotFound = apperror.New(
		apperror.CodeNotFound,
		"Parent department not found",
		http.StatusNotFound,
	)
	ErrDepartmentCycle = apperror.New(
		apperror.CodeCycleDetected,
		"Moving the department under the requested parent would create a cycle",
		http.StatusBadRequest,
	)
	ErrNameLength = apperror.New(
		apperror.CodeInvalidInput,
		"Name must be between 1 and 250 characters",
		http.StatusBadRequest,
	)
	ErrReassignTargetRequired = apperror.New(
		apperror.CodeInvalidInput,
		"reassign_to_department_id is required when mode=reassign",
		http.StatusBadRequest,
	)
	ErrReassignTargetNotAllowed = apperror.New(
		apperror.CodeInvalidInput,
		"reassign_to_department_id is not allowed when mode=cascade",
		http.StatusBadRequest,
	)
	ErrInvalidDeleteMode = apperror.New(
		apperror.CodeInvalidInput,
		"mode must be one of: cascade, reassign",
		http.StatusBadRequest,
	)
)
