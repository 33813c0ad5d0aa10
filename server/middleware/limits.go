package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/resilience"
)

// BodySizeLimit caps request bodies at n bytes. n <= 0 disables the cap.
func BodySizeLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// RateLimit refuses requests with 429 when limiter has no token.
func RateLimit(limiter *resilience.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			appErr := errors.RateLimited("control")
			c.AbortWithStatusJSON(appErr.Status(), appErr.ToResponse())
			return
		}
		c.Next()
	}
}

// Bulkhead holds a slot of b for the whole request and refuses with 503
// when none is free. Used on long-lived streams.
func Bulkhead(b *resilience.Bulkhead) gin.HandlerFunc {
	return func(c *gin.Context) {
		release, err := b.Acquire(c.Request.Context())
		if err != nil {
			appErr := errors.Unavailable("event stream slot").WithCause(err)
			c.AbortWithStatusJSON(appErr.Status(), appErr.ToResponse())
			return
		}
		defer release()
		c.Next()
	}
}
