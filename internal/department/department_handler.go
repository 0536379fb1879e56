package department

import (
	"net/http"
	"strconv"

	departmenterrors "go-orgtree/internal/department/errors"
	"go-orgtree/internal/shared/apperror"
	"go-orgtree/internal/shared/contextutil"
	"go-orgtree/internal/shared/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger ...*zap.Logger) *Handler {
	l := zap.L().Named("department.handler")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("department.handler")
	}
	return &Handler{service: service, logger: l}
}

func (h *Handler) writeServiceError(c *gin.Context, err error) {
	httpErr := apperror.ToHTTP(err)
	contextutil.GetLogger(c.Request.Context(), h.logger).Warn("department request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", httpErr.Status),
		zap.String("code", httpErr.Code),
		zap.String("message", httpErr.Message),
	)
	response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, httpErr.Details)
}

// Create handles POST /departments.
func (h *Handler) Create(c *gin.Context) {
	var req CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("http create department validation failed", zap.Error(err))
		h.writeServiceError(c, apperror.MapValidationError(err))
		return
	}

	resp, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, resp)
}

// GetSubtree handles GET /departments/:id. Query params: depth (default 0)
// and include_employees (default false). Unparseable values fall back to the
// defaults rather than failing the request.
func (h *Handler) GetSubtree(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, apperror.CodeInvalidInput, "Invalid department id", nil)
		return
	}

	opts := GetSubtreeOptions{}
	if raw := c.Query("depth"); raw != "" {
		if depth, err := strconv.Atoi(raw); err == nil {
			opts.Depth = depth
		}
	}
	if raw := c.Query("include_employees"); raw != "" {
		if include, err := strconv.ParseBool(raw); err == nil {
			opts.IncludeEmployees = include
		}
	}

	resp, err := h.service.GetSubtree(c.Request.Context(), id, opts)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, resp)
}

// Update handles PATCH /departments/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, apperror.CodeInvalidInput, "Invalid department id", nil)
		return
	}

	var req UpdateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("http update department validation failed", zap.Error(err))
		h.writeServiceError(c, apperror.MapValidationError(err))
		return
	}

	resp, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, resp)
}

// Delete handles DELETE /departments/:id. Query params: mode (required,
// cascade or reassign) and reassign_to_department_id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, apperror.CodeInvalidInput, "Invalid department id", nil)
		return
	}

	mode := DeleteMode(c.Query("mode"))
	if mode != DeleteModeCascade && mode != DeleteModeReassign {
		h.writeServiceError(c, departmenterrors.ErrInvalidDeleteMode)
		return
	}

	var reassignTo *uint
	if raw := c.Query("reassign_to_department_id"); raw != "" {
		target, err := parseID(raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, apperror.CodeInvalidInput, "Invalid reassign_to_department_id", nil)
			return
		}
		reassignTo = &target
	}

	if err := h.service.Delete(c.Request.Context(), id, mode, reassignTo); err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
