// Package redistest runs an in-memory Redis for tests.
package redistest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/liveview/redis"
)

// Start runs miniredis for the life of t and returns it with an enabled
// Config pointing at it.
func Start(t testing.TB) (*miniredis.Miniredis, redis.Config) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := redis.Config{Enabled: true, Addr: mr.Addr()}
	cfg.ApplyDefaults()
	return mr, cfg
}
