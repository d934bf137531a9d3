package handler

import (
	"net/http"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/repository"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db   *gorm.DB
	jobs *repository.JobRepository
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *gorm.DB, jobs *repository.JobRepository) *HealthHandler {
	return &HealthHandler{db: db, jobs: jobs}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  "database unreachable",
			})
			return
		}
	}

	resp := gin.H{"status": "ok"}
	if h.jobs != nil {
		if active, err := h.jobs.CountByStatus(c.Request.Context(), domain.JobStatusProcessing); err == nil {
			resp["active_jobs"] = active
		}
	}
	c.JSON(http.StatusOK, resp)
}
