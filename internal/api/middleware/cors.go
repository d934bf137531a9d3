package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/config"
)

// CORS returns a middleware that handles Cross-Origin Resource Sharing
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		var allowedOrigin string
		if cfg.AllowAllOrigins {
			allowedOrigin = "*"
			// When using *, credentials must be false
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "false")
		} else {
			allowed := false
			for _, item := range cfg.AllowedOrigins {
				if origin == item || item == "*" {
					allowed = true
					allowedOrigin = origin
					break
				}
			}

			if !allowed && len(cfg.AllowedOrigins) > 0 {
				c.Next()
				return
			}

			if allowedOrigin == "" {
				allowedOrigin = origin
			}
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")

		// Handle preflight requests
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
