package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/api/handler"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/api/middleware"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/config"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/logger"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/repository"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	uploads *service.UploadService,
	db *gorm.DB,
	serverCfg *config.ServerConfig,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch serverCfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(serverCfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(db, repository.NewJobRepository(db))
	uploadHandler := handler.NewUploadHandler(uploads)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Upload jobs
		v1.POST("/uploads", uploadHandler.Submit)
		v1.GET("/uploads", uploadHandler.List)
		v1.GET("/uploads/:id", uploadHandler.Status)
		v1.GET("/uploads/:id/chunks", uploadHandler.Chunks)
		v1.GET("/uploads/:id/errors", uploadHandler.Errors)
		v1.GET("/uploads/:id/stream", uploadHandler.Stream)
		v1.POST("/uploads/:id/cancel", uploadHandler.Cancel)
	}

	return r
}
