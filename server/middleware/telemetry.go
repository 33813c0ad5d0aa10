package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/liveview/observability"
)

// Telemetry wraps each request in a server span and records the request
// counter and latency histogram. It must run after RequestID.
func Telemetry() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, rc := observability.StartRequest(c.Request.Context(), GetRequestID(c), c.Request.Method, route)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		var err error
		if last := c.Errors.Last(); last != nil {
			err = last.Err
		}
		rc.End(ctx, c.Writer.Status(), err)
	}
}
