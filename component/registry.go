package component

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/liveview/logger"
)

const defaultStopTimeout = 10 * time.Second

type slot struct {
	c       Component
	started bool
}

// Registry starts components in registration order and stops them in
// reverse, so dependencies (a collection, a view) outlive their readers.
type Registry struct {
	mu          sync.RWMutex
	slots       []*slot
	stopTimeout time.Duration
	log         *logger.Logger
}

func NewRegistry() *Registry {
	return &Registry{stopTimeout: defaultStopTimeout, log: logger.Get("registry")}
}

// SetStopTimeout bounds each component's Stop.
func (r *Registry) SetStopTimeout(d time.Duration) {
	r.mu.Lock()
	r.stopTimeout = d
	r.mu.Unlock()
}

// Register appends c; names must be unique.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.find(c.Name()) != nil {
		return fmt.Errorf("component %s already registered", c.Name())
	}
	r.slots = append(r.slots, &slot{c: c})
	r.log.Debug("component registered", logger.Fields(logger.FieldComponent, c.Name()))
	return nil
}

func (r *Registry) find(name string) *slot {
	i := slices.IndexFunc(r.slots, func(s *slot) bool { return s.c.Name() == name })
	if i < 0 {
		return nil
	}
	return r.slots[i]
}

// StartAll starts whatever is not yet running and stops at the first
// failure, leaving earlier components running for StopAll.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Info("starting components", logger.Fields(logger.FieldCount, len(r.slots)))
	for _, s := range r.slots {
		if s.started {
			continue
		}
		fields := logger.Fields(logger.FieldComponent, s.c.Name())
		if err := s.c.Start(ctx); err != nil {
			r.log.Error("component start failed", logger.MergeWithError(fields, err))
			return fmt.Errorf("start %s: %w", s.c.Name(), err)
		}
		s.started = true
		if d, ok := s.c.(Describable); ok {
			desc := d.Describe()
			fields["type"], fields["details"] = desc.Type, desc.Details
		}
		r.log.Info("component started", fields)
	}
	return nil
}

// StopAll stops running components newest first. Every one is attempted,
// each under its own timeout; failures are joined.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, s := range slices.Backward(r.slots) {
		if !s.started {
			continue
		}
		s.started = false
		fields := logger.Fields(logger.FieldComponent, s.c.Name())
		if err := r.stopOne(ctx, s.c); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", s.c.Name(), err))
			r.log.Error("component stop failed", logger.MergeWithError(fields, err))
			continue
		}
		r.log.Info("component stopped", fields)
	}
	return errors.Join(errs...)
}

func (r *Registry) stopOne(ctx context.Context, c Component) error {
	ctx, cancel := context.WithTimeout(ctx, r.stopTimeout)
	defer cancel()
	return c.Stop(ctx)
}

// HealthAll asks every component concurrently and reports in registration
// order. A redis ping does not hold up the in-memory stages.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	all := r.All()
	out := make([]Health, len(all))
	var g errgroup.Group
	for i, c := range all {
		g.Go(func() error {
			out[i] = c.Health(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Get returns the component registered as name, or nil.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.find(name); s != nil {
		return s.c
	}
	return nil
}

// All lists components in registration order.
func (r *Registry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Component, len(r.slots))
	for i, s := range r.slots {
		out[i] = s.c
	}
	return out
}
