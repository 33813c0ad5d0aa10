package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/liveview/logger"
)

var quietPaths = map[string]bool{
	"/healthz": true,
	"/version": true,
}

// RequestLogger logs each finished request at a level chosen by status.
// Health and version probes are skipped.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if quietPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		fields := logger.Fields(
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			logger.FieldDuration, latency.Milliseconds(),
			logger.FieldRequestID, GetRequestID(c),
		)
		if len(c.Errors) > 0 {
			fields[logger.FieldError] = c.Errors.String()
		}

		switch {
		case status >= 500:
			log.Error("request completed", fields)
		case status >= 400:
			log.Warn("request completed", fields)
		default:
			log.Debug("request completed", fields)
		}
	}
}
