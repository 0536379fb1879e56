package employee

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	r.POST("/departments/:id/employees", h.Create)

	employees := r.Group("/employees")
	{
		employees.GET("/:id", h.GetByID)
		employees.DELETE("/:id", h.Delete)
	}
}
