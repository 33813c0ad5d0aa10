package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	ErrBulkheadFull    = errors.New("bulkhead is full")
	ErrBulkheadTimeout = errors.New("bulkhead wait timeout")
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	Name string `yaml:"name" mapstructure:"name" json:"name"`
	// MaxConcurrent is the slot count; 0 means 10.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent" json:"max_concurrent" validate:"gte=0"`
	// MaxWait bounds how long Acquire queues for a slot; 0 fails at once.
	MaxWait time.Duration `yaml:"max_wait" mapstructure:"max_wait" json:"max_wait"`
	// OnReject observes every refused Acquire.
	OnReject func(name string) `yaml:"-" mapstructure:"-" json:"-"`
}

// Bulkhead caps concurrent holders of a weighted semaphore. The server
// holds one slot per open event stream.
type Bulkhead struct {
	cfg   BulkheadConfig
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

func NewBulkhead(cfg BulkheadConfig) *Bulkhead {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	return &Bulkhead{cfg: cfg, sem: semaphore.NewWeighted(int64(cfg.MaxConcurrent))}
}

// Acquire takes a slot. release must be called exactly once.
func (b *Bulkhead) Acquire(ctx context.Context) (release func(), err error) {
	if err := b.take(ctx); err != nil {
		if b.cfg.OnReject != nil {
			b.cfg.OnReject(b.cfg.Name)
		}
		return nil, err
	}
	b.inUse.Add(1)
	return func() {
		b.inUse.Add(-1)
		b.sem.Release(1)
	}, nil
}

func (b *Bulkhead) take(ctx context.Context) error {
	if b.sem.TryAcquire(1) {
		return nil
	}
	if b.cfg.MaxWait <= 0 {
		return ErrBulkheadFull
	}
	wctx, cancel := context.WithTimeout(ctx, b.cfg.MaxWait)
	defer cancel()
	if err := b.sem.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBulkheadTimeout
	}
	return nil
}

// Execute runs fn while holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	release, err := b.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// InUse is the number of slots held.
func (b *Bulkhead) InUse() int { return int(b.inUse.Load()) }

// Available is the number of free slots.
func (b *Bulkhead) Available() int { return b.cfg.MaxConcurrent - b.InUse() }
