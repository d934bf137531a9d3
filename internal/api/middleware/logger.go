package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/logger"
)

// LoggerMiddleware returns a Gin middleware that injects a request-scoped logger.
// Parameters:
//   - log: base logger to enrich with request fields.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// Inject tracing fields into context (using standard field constants)
		ctx := c.Request.Context()
		ctx = log.WithContext(ctx)
		ctx = logger.WithFields(ctx, logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "api",
		})
		c.Request = c.Request.WithContext(ctx)

		// Also store logger in Gin's context for convenience
		c.Set("logger", logger.FromContext(ctx))

		c.Header("X-Request-ID", requestID)

		logger.CtxInfo(ctx, "Request started: method=%s, path=%s, client_ip=%s",
			c.Request.Method, path, c.ClientIP())

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}

		logger.With(logger.Fields{
			logger.FieldStatus:     status,
			logger.FieldDurationMs: latency.Milliseconds(),
			"size":                 c.Writer.Size(),
		}).Info(ctx, "Request completed: method=%s, path=%s", c.Request.Method, fullPath)
	}
}

// GetLogger extracts logger from Gin context or request context.
// Parameters:
//   - c: Gin request context.
// Returns:
//   - *logger.Logger: request-scoped logger or default logger.
func GetLogger(c *gin.Context) *logger.Logger {
	if l, exists := c.Get("logger"); exists {
		if log, ok := l.(*logger.Logger); ok {
			return log
		}
	}
	return logger.FromContext(c.Request.Context())
}
