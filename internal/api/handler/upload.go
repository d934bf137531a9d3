package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/api/middleware"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/schema"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/service"
)

// UploadHandler handles bulk-upload endpoints.
type UploadHandler struct {
	uploads *service.UploadService
}

// NewUploadHandler creates a new upload handler.
// Parameters:
//   - uploads: upload service instance.
// Returns:
//   - *UploadHandler: initialized handler.
func NewUploadHandler(uploads *service.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// Submit handles POST /api/v1/uploads. The CSV goes in the multipart
// "file" part; per-job tuning comes from optional form fields.
func (h *UploadHandler) Submit(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Multipart field 'file' is required",
		})
		return
	}

	opts, err := h.parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid options: " + err.Error(),
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Cannot read uploaded file: " + err.Error(),
		})
		return
	}
	defer f.Close()

	job, err := h.uploads.Submit(c.Request.Context(), fileHeader.Filename, f, opts)
	if err != nil {
		if errors.Is(err, service.ErrInvalidJob) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload: " + err.Error()})
			return
		}
		if errors.Is(err, service.ErrShuttingDown) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service is shutting down"})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("Upload submission failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Upload submission failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// parseOptions reads per-job tuning from the multipart form. Absent
// fields keep the configured defaults; the optional "rules" field takes
// a JSON rule set that is merged over the default schema rules.
func (h *UploadHandler) parseOptions(c *gin.Context) (service.JobOptions, error) {
	opts := h.uploads.Defaults()

	if v := c.PostForm("chunk_size"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return opts, errors.New("chunk_size must be a positive integer")
		}
		opts.ChunkSize = n
	}
	if v := c.PostForm("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, errors.New("batch_size must be a positive integer")
		}
		opts.BatchSize = n
	}
	if v := c.PostForm("workers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, errors.New("workers must be a positive integer")
		}
		opts.Workers = n
	}
	if v := c.PostForm("error_rate_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			return opts, errors.New("error_rate_threshold must be in (0, 1]")
		}
		opts.ErrorRateThreshold = f
	}
	if v := c.PostForm("dedup_policy"); v != "" {
		policy, err := service.ParseDedupPolicy(v)
		if err != nil {
			return opts, err
		}
		opts.DedupPolicy = policy
	}
	if v := c.PostForm("rules"); v != "" {
		var rules schema.RuleSet
		if err := json.Unmarshal([]byte(v), &rules); err != nil {
			return opts, errors.New("rules must be a JSON rule set")
		}
		opts.Rules = schema.DefaultRuleSet().Merge(rules)
	}

	return opts, nil
}

// List handles GET /api/v1/uploads.
func (h *UploadHandler) List(c *gin.Context) {
	limit, offset := pagination(c, 50)

	jobs, err := h.uploads.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"limit":  limit,
		"offset": offset,
	})
}

// Status handles GET /api/v1/uploads/:id.
func (h *UploadHandler) Status(c *gin.Context) {
	job, err := h.uploads.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Chunks handles GET /api/v1/uploads/:id/chunks.
func (h *UploadHandler) Chunks(c *gin.Context) {
	chunks, err := h.uploads.Chunks(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

// Errors handles GET /api/v1/uploads/:id/errors.
func (h *UploadHandler) Errors(c *gin.Context) {
	limit, offset := pagination(c, 100)

	rowErrors, total, err := h.uploads.Errors(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		h.renderJobError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"errors": rowErrors,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Cancel handles POST /api/v1/uploads/:id/cancel.
func (h *UploadHandler) Cancel(c *gin.Context) {
	err := h.uploads.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

// Stream handles GET /api/v1/uploads/:id/stream with Server-Sent
// Events. Each snapshot goes out as a "progress" event; the stream ends
// after the terminal snapshot or when the client disconnects.
func (h *UploadHandler) Stream(c *gin.Context) {
	ch, cancel, err := h.uploads.Subscribe(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("progress", snap)
			return !snap.Terminal
		case <-clientGone:
			return false
		}
	})
}

// renderJobError maps service errors to HTTP statuses.
func (h *UploadHandler) renderJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, service.ErrJobFinished):
		c.JSON(http.StatusConflict, gin.H{"error": "Job already finished"})
	default:
		middleware.GetLogger(c).WithError(err).Error("Upload request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// pagination reads limit/offset query parameters with bounds.
func pagination(c *gin.Context, defaultLimit int) (int, int) {
	limit := defaultLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
