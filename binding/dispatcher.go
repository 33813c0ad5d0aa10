package binding

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
)

// Dispatcher runs functions on one consumption context, in submission order.
// Dispatch returns an error once the dispatcher has stopped; the caller is
// then responsible for running fn itself.
type Dispatcher interface {
	Dispatch(fn func()) error
}

// Immediate runs every function inline on the caller's goroutine.
type Immediate struct{}

// Dispatch runs fn.
func (Immediate) Dispatch(fn func()) error {
	fn()
	return nil
}

// SerialDispatcher runs functions on a single dedicated goroutine. The queue
// is unbounded so the producer never blocks on a slow consumer.
type SerialDispatcher struct {
	name    string
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	exited  chan struct{}
	started bool
	stopped bool
	ran     uint64
	log     *logger.Logger
}

var _ component.Component = (*SerialDispatcher)(nil)

// NewSerialDispatcher creates a stopped dispatcher; tasks queue until Start.
func NewSerialDispatcher(name string) *SerialDispatcher {
	return &SerialDispatcher{
		name:   name,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		log:    logger.Get("dispatcher").WithFields(logger.Fields("dispatcher", name)),
	}
}

// Name implements component.Component.
func (d *SerialDispatcher) Name() string { return d.name }

// Start launches the consumer goroutine.
func (d *SerialDispatcher) Start(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return errors.TornDown()
	}
	if d.started {
		return nil
	}
	d.started = true
	go d.run()
	return nil
}

// Dispatch queues fn.
func (d *SerialDispatcher) Dispatch(fn func()) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return errors.TornDown()
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

func (d *SerialDispatcher) run() {
	defer close(d.exited)
	for {
		d.drain()
		select {
		case <-d.wake:
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *SerialDispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, fn := range batch {
			d.runOne(fn)
		}
	}
}

func (d *SerialDispatcher) runOne(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatched function panicked", logger.Fields(logger.FieldError, fmt.Sprint(r)))
		}
		d.mu.Lock()
		d.ran++
		d.mu.Unlock()
	}()
	fn()
}

// Stop refuses new work, runs what is already queued and waits for the
// consumer goroutine to exit or ctx to end.
func (d *SerialDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	started := d.started
	close(d.done)
	d.mu.Unlock()

	if !started {
		d.drain()
		return nil
	}
	select {
	case <-d.exited:
		return nil
	case <-ctx.Done():
		return errors.Timeout("dispatcher stop").WithCause(ctx.Err())
	}
}

// Pending returns the number of queued functions.
func (d *SerialDispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Health implements component.Component.
func (d *SerialDispatcher) Health(context.Context) component.Health {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := component.Health{
		Name:   d.name,
		Status: component.StatusHealthy,
		Details: map[string]string{
			"pending": strconv.Itoa(len(d.queue)),
			"ran":     strconv.FormatUint(d.ran, 10),
		},
	}
	if d.stopped {
		h.Status = component.StatusUnhealthy
		h.Message = "stopped"
	}
	return h
}

// Describe implements component.Describable.
func (d *SerialDispatcher) Describe() component.Description {
	return component.Description{Type: "dispatcher", Details: "serial goroutine"}
}
