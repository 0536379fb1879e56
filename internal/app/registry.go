package app

import (
	"database/sql"
	"net/http"

	"go-orgtree/internal/department"
	"go-orgtree/internal/employee"
	"go-orgtree/internal/messaging/kafka"
	"go-orgtree/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

func registerModules(
	router *gin.Engine,
	db *sql.DB,
	gormDB *gorm.DB,
	rdb *redis.Client,
) error {
	// --- Repositories ---
	departmentRepo := department.NewRepository(gormDB, db)
	employeeRepo := employee.NewRepository(gormDB, db)
	outboxRepo := kafka.NewOutboxRepository(db)

	// --- Services ---
	departmentService := department.NewServiceWithOutbox(db, departmentRepo, employeeRepo, outboxRepo, rdb)
	employeeService := employee.NewServiceWithOutbox(db, employeeRepo, outboxRepo, rdb)

	// --- Handlers ---
	departmentHandler := department.NewHandler(departmentService)
	employeeHandler := employee.NewHandler(employeeService)

	// --- Routes Registration ---
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("")
	api.Use(middleware.RequestID())
	api.Use(middleware.RateLimitByIP(rate.Limit(50), 100))
	{
		department.RegisterRoutes(api, departmentHandler)
		employee.RegisterRoutes(api, employeeHandler)
	}

	return nil
}
