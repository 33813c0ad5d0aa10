package resilience

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by Execute when no token is available.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiterConfig configures a token bucket.
type RateLimiterConfig struct {
	Name string `yaml:"name" mapstructure:"name" json:"name"`
	// Rate is tokens per second; 0 means 10.
	Rate float64 `yaml:"rate" mapstructure:"rate" json:"rate" validate:"gte=0"`
	// Burst is the bucket size; 0 means Rate rounded down, at least 1.
	Burst int `yaml:"burst" mapstructure:"burst" json:"burst" validate:"gte=0"`
	// OnLimit observes every refusal by Allow.
	OnLimit func(name string) `yaml:"-" mapstructure:"-" json:"-"`
}

// RateLimiter is a named x/time/rate limiter. The market paces its ticks
// with Wait and the control routes refuse bursts with Allow.
type RateLimiter struct {
	name    string
	onLimit func(string)
	lim     *rate.Limiter
	now     func() time.Time
}

// NewRateLimiter returns a full bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.Rate))
	}
	return &RateLimiter{
		name:    cfg.Name,
		onLimit: cfg.OnLimit,
		lim:     rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		now:     time.Now,
	}
}

// Allow takes one token if one is available.
func (rl *RateLimiter) Allow() bool { return rl.AllowN(1) }

// AllowN takes n tokens if all are available.
func (rl *RateLimiter) AllowN(n int) bool {
	if rl.lim.AllowN(rl.now(), n) {
		return true
	}
	if rl.onLimit != nil {
		rl.onLimit(rl.name)
	}
	return false
}

// Wait blocks for a token. It fails early when ctx would expire first.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.lim.Wait(ctx)
}

// Execute runs fn only if a token is available.
func (rl *RateLimiter) Execute(fn func() error) error {
	if !rl.Allow() {
		return ErrRateLimited
	}
	return fn()
}

// Tokens is the current bucket level.
func (rl *RateLimiter) Tokens() float64 { return rl.lim.TokensAt(rl.now()) }

func (rl *RateLimiter) Rate() float64 { return float64(rl.lim.Limit()) }

func (rl *RateLimiter) Burst() int { return rl.lim.Burst() }
