package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/gatekeeper/internal/logging"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request with its status and latency.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	std := logging.NewFromZap(logger)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		std.LogAPIRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start).Milliseconds(), UserID(c))
	}
}
