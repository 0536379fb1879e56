package department

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	departments := r.Group("/departments")
	{
		departments.POST("", h.Create)
		departments.GET("/:id", h.GetSubtree)
		departments.PATCH("/:id", h.Update)
		departments.DELETE("/:id", h.Delete)
	}
}
