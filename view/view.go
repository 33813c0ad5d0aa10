package view

import (
	"cmp"
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/liveview/binding"
	"github.com/kbukum/liveview/changeset"
	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/filter"
	"github.com/kbukum/liveview/gate"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/observability"
	"github.com/kbukum/liveview/paging"
	"github.com/kbukum/liveview/sorting"
	"github.com/kbukum/liveview/source"
	"github.com/kbukum/liveview/transform"
)

// Source is anything a view can subscribe to; source.Collection is one.
type Source[K comparable, V any] interface {
	Connect(fn func(changeset.ChangeSet[K, V])) *source.Subscription
}

type lifecycle int

const (
	stateIdle lifecycle = iota
	stateRunning
	stateClosed
)

// View is the owner of one pipeline. All stage state is touched only by the
// view goroutine; the exported methods are safe for concurrent use.
type View[K cmp.Ordered, V, R any] struct {
	id      string
	name    string
	src     Source[K, V]
	opts    options[V, R]
	log     *logger.Logger
	metrics *observability.PipelineMetrics

	gate      *gate.Gate[K, V]
	filter    *filter.Stage[K, V]
	transform *transform.Stage[K, V, R]
	sort      *sorting.Stage[K, *transform.Ref[R]]
	page      *paging.Stage[K, *transform.Ref[R]]
	binder    *binding.Binder[K, R]
	serial    *binding.SerialDispatcher

	mu     sync.Mutex
	queue  []event[K, V, R]
	warned bool
	state  lifecycle
	sub    *source.Subscription
	resp   paging.Response
	wake   chan struct{}
	exited chan struct{}

	gen     atomic.Uint64
	resyncs atomic.Uint64
	dropped atomic.Uint64
	paused  atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	eventCtx context.Context
	fault    error
}

var (
	_ component.Component   = (*View[string, int, int])(nil)
	_ component.Describable = (*View[string, int, int])(nil)
)

// New builds a stopped view over src projecting items with project.
func New[K cmp.Ordered, V, R any](src Source[K, V], project transform.Projector[V, R], opts ...Option[V, R]) (*View[K, V, R], error) {
	o := options[V, R]{name: "view", page: paging.DefaultRequest, predicate: filter.All[V]()}
	o.cfg.ApplyDefaults()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := o.page.Validate(); err != nil {
		return nil, err
	}
	if o.predicate == nil {
		o.predicate = filter.All[V]()
	}
	if o.log == nil {
		o.log = logger.Get("view")
	}

	v := &View[K, V, R]{
		id:      uuid.NewString(),
		name:    o.name,
		src:     src,
		opts:    o,
		metrics: observability.Metrics(),
		wake:    make(chan struct{}, 1),
		exited:  make(chan struct{}),
	}
	v.log = o.log.WithFields(logger.Fields(logger.FieldViewID, v.id, "view", o.name))
	v.ctx, v.cancel = context.WithCancel(context.Background())
	v.eventCtx = v.ctx

	dispatcher := o.dispatcher
	if dispatcher == nil {
		v.serial = binding.NewSerialDispatcher(o.name + "-binder")
		dispatcher = v.serial
	}
	v.binder = binding.New[K, R](dispatcher, v.log, binding.WithFaultHandler[K, R](func(err error) {
		v.enqueue(event[K, V, R]{kind: eventFault, gen: v.gen.Load(), err: err})
	}))
	v.page = paging.New(o.page, func(cs changeset.ChangeSet[K, *transform.Ref[R]]) {
		v.check(v.binder.Push(cs))
	},
		paging.WithResponseHandler[K, *transform.Ref[R]](v.onResponse),
		paging.WithLogger[K, *transform.Ref[R]](v.log))
	v.sort = sorting.New(byProjection(o.comparator), func(cs changeset.ChangeSet[K, *transform.Ref[R]]) {
		v.check(v.page.Push(cs))
	}, v.log)
	v.transform = transform.New[K, V, R](project, func(cs changeset.ChangeSet[K, *transform.Ref[R]]) {
		v.check(v.sort.Push(cs))
	},
		transform.WithWorkers[R](o.cfg.Workers),
		transform.WithRelease(o.release),
		transform.WithRetry[R](o.retry),
		transform.WithLogger[R](v.log))
	v.filter = filter.New(o.predicate, func(cs changeset.ChangeSet[K, V]) {
		v.check(v.transform.Push(v.eventCtx, cs))
	}, v.log)
	v.gate = gate.New(func(cs changeset.ChangeSet[K, V]) {
		v.check(v.filter.Push(cs))
	}, v.log)
	v.gate.SetPaused(o.paused)
	v.paused.Store(o.paused)
	v.resp = v.page.Response()
	return v, nil
}

func byProjection[R any](c sorting.Comparator[R]) sorting.Comparator[*transform.Ref[R]] {
	if c.Compare == nil {
		return sorting.Unordered[*transform.Ref[R]]()
	}
	return sorting.Project(c, (*transform.Ref[R]).Value)
}

// Name implements component.Component.
func (v *View[K, V, R]) Name() string { return v.name }

// ID returns the view instance id used in logs and spans.
func (v *View[K, V, R]) ID() string { return v.id }

// Start subscribes to the source and starts the view goroutine. ctx only
// bounds startup.
func (v *View[K, V, R]) Start(ctx context.Context) error {
	v.mu.Lock()
	switch v.state {
	case stateClosed:
		v.mu.Unlock()
		return errors.TornDown()
	case stateRunning:
		v.mu.Unlock()
		return nil
	}
	v.state = stateRunning
	v.mu.Unlock()

	if v.serial != nil {
		if err := v.serial.Start(ctx); err != nil {
			return err
		}
	}
	v.connect()
	go v.run()
	v.log.Info("view started", logger.Fields(
		"workers", v.opts.cfg.Workers,
		"page", v.opts.page.String(),
		"strict", v.opts.cfg.StrictInvariants))
	return nil
}

// connect subscribes under the current generation. Change sets from older
// subscriptions are dropped by the view goroutine.
func (v *View[K, V, R]) connect() {
	gen := v.gen.Load()
	sub := v.src.Connect(func(cs changeset.ChangeSet[K, V]) {
		v.enqueue(event[K, V, R]{kind: eventChanges, gen: gen, cs: cs})
	})

	v.mu.Lock()
	if v.state == stateClosed {
		v.mu.Unlock()
		sub.Close()
		return
	}
	v.sub = sub
	v.mu.Unlock()
	v.log.Debug("connected to source", logger.Fields("subscription", sub.ID(), "generation", gen))
}

func (v *View[K, V, R]) enqueue(ev event[K, V, R]) bool {
	v.mu.Lock()
	if v.state == stateClosed {
		v.mu.Unlock()
		if ev.kind == eventChanges {
			v.dropped.Add(1)
		}
		return false
	}
	v.queue = append(v.queue, ev)
	depth := len(v.queue)
	warn := depth > v.opts.cfg.QueueWarnThreshold && !v.warned
	if warn {
		v.warned = true
	} else if depth <= v.opts.cfg.QueueWarnThreshold {
		v.warned = false
	}
	v.mu.Unlock()

	if warn {
		v.log.Warn("event queue is backing up", logger.Fields(logger.FieldCount, depth))
	}
	select {
	case v.wake <- struct{}{}:
	default:
	}
	return true
}

func (v *View[K, V, R]) next() (event[K, V, R], bool) {
	for {
		v.mu.Lock()
		if v.state == stateClosed {
			v.mu.Unlock()
			return event[K, V, R]{}, false
		}
		if len(v.queue) > 0 {
			ev := v.queue[0]
			v.queue[0] = event[K, V, R]{}
			v.queue = v.queue[1:]
			v.mu.Unlock()
			return ev, true
		}
		v.mu.Unlock()

		select {
		case <-v.wake:
		case <-v.ctx.Done():
		}
	}
}

func (v *View[K, V, R]) run() {
	defer close(v.exited)
	for {
		ev, ok := v.next()
		if !ok {
			break
		}
		v.handle(ev)
	}
	v.teardown()
}

func (v *View[K, V, R]) handle(ev event[K, V, R]) {
	ctx, span := observability.StartSpan(v.ctx, observability.SpanViewEvent, trace.WithAttributes(
		attribute.String(observability.AttrViewID, v.id),
		attribute.String(observability.AttrEventKind, ev.kind.String()),
		attribute.Int(observability.AttrChanges, len(ev.cs)),
		attribute.Int64(observability.AttrGeneration, int64(ev.gen)),
	))
	v.eventCtx = ctx
	defer func() { v.eventCtx = v.ctx }()

	switch ev.kind {
	case eventChanges:
		if ev.gen != v.gen.Load() {
			v.dropped.Add(1)
			v.log.Debug("dropping change set from stale subscription", logger.Fields(
				logger.FieldCount, len(ev.cs), "generation", ev.gen))
			break
		}
		v.gate.Push(ev.cs)
	case eventPredicate:
		v.filter.SetPredicate(ev.predicate)
	case eventComparator:
		v.sort.SetComparator(byProjection(ev.comparator))
	case eventPage:
		v.check(v.page.SetPageRequest(ev.request))
	case eventPause:
		v.gate.SetPaused(ev.paused)
		v.paused.Store(ev.paused)
	case eventBarrier:
		done := ev.done
		v.binder.Barrier(func() { close(done) })
	case eventFault:
		// A resync since the fault already rebuilt the binder.
		if ev.gen == v.gen.Load() {
			v.check(ev.err)
		}
	}

	err := v.fault
	v.fault = nil
	if err != nil {
		v.onFault(ctx, err)
	}
	observability.EndSpan(span, err)
}

// check records the first error raised while one event flows through the
// stages; the stage callbacks have no error return of their own.
func (v *View[K, V, R]) check(err error) {
	if err != nil && v.fault == nil {
		v.fault = err
	}
}

func (v *View[K, V, R]) onFault(ctx context.Context, err error) {
	switch {
	case errors.HasCode(err, errors.ErrCodeInvariantViolation):
		if v.opts.cfg.StrictInvariants {
			panic(err)
		}
		v.log.Warn("pipeline invariant violated, resyncing", logger.MergeWithError(nil, err))
		v.resync(ctx)
	case errors.HasCode(err, errors.ErrCodeTornDown):
		v.log.Debug("event interrupted by teardown", logger.MergeWithError(nil, err))
	default:
		v.log.Error("event failed", logger.MergeWithError(nil, err))
	}
}

// resync rebuilds every stage from a fresh source snapshot.
func (v *View[K, V, R]) resync(ctx context.Context) {
	ctx, span := observability.StartSpan(ctx, observability.SpanResync)
	defer observability.EndSpan(span, nil)

	v.resyncs.Add(1)
	v.metrics.RecordResync(ctx, v.name)
	v.gen.Add(1)

	v.mu.Lock()
	sub := v.sub
	v.sub = nil
	v.mu.Unlock()
	if sub != nil {
		sub.Close()
	}

	v.gate.Reset()
	v.filter.Reset()
	v.transform.Reset()
	v.sort.Reset()
	v.page.Reset()
	v.binder.Reset()
	v.connect()
}

func (v *View[K, V, R]) teardown() {
	v.transform.Close()
	v.binder.Close()
	v.gate.Reset()
	v.filter.Reset()
	v.sort.Reset()
	v.page.Reset()
	if v.serial != nil {
		if err := v.serial.Stop(context.Background()); err != nil {
			v.log.Warn("dispatcher did not stop cleanly", logger.MergeWithError(nil, err))
		}
	}
	v.log.Info("view torn down", logger.Fields("dropped", v.dropped.Load(), "resyncs", v.resyncs.Load()))
}

func (v *View[K, V, R]) onResponse(resp paging.Response) {
	v.mu.Lock()
	v.resp = resp
	v.mu.Unlock()
	if v.opts.respond != nil {
		v.opts.respond(resp)
	}
}

// Close tears the pipeline down once: it unsubscribes, cancels in-flight
// projections and releases every projection held by any stage. It does not
// wait; use Stop for that.
func (v *View[K, V, R]) Close() {
	v.mu.Lock()
	prev := v.state
	if prev == stateClosed {
		v.mu.Unlock()
		return
	}
	v.state = stateClosed
	sub := v.sub
	v.sub = nil
	v.queue = nil
	v.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	v.cancel()
	if prev == stateIdle {
		v.teardown()
		close(v.exited)
	}
}

// Stop closes the view and waits for teardown to finish or ctx to end.
func (v *View[K, V, R]) Stop(ctx context.Context) error {
	v.Close()
	select {
	case <-v.exited:
		return nil
	case <-ctx.Done():
		return errors.Timeout("view stop").WithCause(ctx.Err())
	}
}

// Done is closed once teardown has finished.
func (v *View[K, V, R]) Done() <-chan struct{} { return v.exited }

func (v *View[K, V, R]) post(ev event[K, V, R]) error {
	if !v.enqueue(ev) {
		return errors.TornDown()
	}
	return nil
}

// SetPredicate replaces the filter predicate. A nil predicate matches all.
func (v *View[K, V, R]) SetPredicate(p filter.Predicate[V]) error {
	if p == nil {
		p = filter.All[V]()
	}
	return v.post(event[K, V, R]{kind: eventPredicate, predicate: p})
}

// SetComparator replaces the sort order.
func (v *View[K, V, R]) SetComparator(c sorting.Comparator[R]) error {
	return v.post(event[K, V, R]{kind: eventComparator, comparator: c})
}

// SetPageRequest moves the page window. Invalid requests are rejected here.
func (v *View[K, V, R]) SetPageRequest(req paging.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return v.post(event[K, V, R]{kind: eventPage, request: req})
}

// SetPaused pauses or resumes the gate.
func (v *View[K, V, R]) SetPaused(paused bool) error {
	return v.post(event[K, V, R]{kind: eventPause, paused: paused})
}

// Sync waits until every event enqueued before the call has been processed
// and its output applied on the dispatcher. A resync triggered by one of
// those events queues its fresh snapshot behind the barrier.
func (v *View[K, V, R]) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := v.post(event[K, V, R]{kind: eventBarrier, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-v.exited:
		return errors.TornDown()
	case <-ctx.Done():
		return errors.Timeout("view sync").WithCause(ctx.Err())
	}
}

// Items returns the bound projections in order.
func (v *View[K, V, R]) Items() []R { return v.binder.Items() }

// Keys returns the bound keys in order.
func (v *View[K, V, R]) Keys() []K { return v.binder.Keys() }

// Subscribe observes every change applied to the bound sequence.
func (v *View[K, V, R]) Subscribe(fn func([]binding.Notification[K])) func() {
	return v.binder.Subscribe(fn)
}

// Response returns the last page response.
func (v *View[K, V, R]) Response() paging.Response {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resp
}

// Paused reports the pause state as last processed.
func (v *View[K, V, R]) Paused() bool { return v.paused.Load() }

// Resyncs returns how many times the view rebuilt itself.
func (v *View[K, V, R]) Resyncs() uint64 { return v.resyncs.Load() }

// Health implements component.Component.
func (v *View[K, V, R]) Health(context.Context) component.Health {
	v.mu.Lock()
	state, queued, resp := v.state, len(v.queue), v.resp
	v.mu.Unlock()

	h := component.Health{
		Name:   v.name,
		Status: component.StatusHealthy,
		Details: map[string]string{
			"id":         v.id,
			"generation": strconv.FormatUint(v.gen.Load(), 10),
			"resyncs":    strconv.FormatUint(v.resyncs.Load(), 10),
			"dropped":    strconv.FormatUint(v.dropped.Load(), 10),
			"queued":     strconv.Itoa(queued),
			"bound":      strconv.Itoa(v.binder.Len()),
			"total":      strconv.Itoa(resp.TotalSize),
			"page":       strconv.Itoa(resp.Page),
			"paused":     strconv.FormatBool(v.paused.Load()),
		},
	}
	switch {
	case state == stateClosed:
		h.Status = component.StatusUnhealthy
		h.Message = "closed"
	case state == stateIdle:
		h.Status = component.StatusDegraded
		h.Message = "not started"
	case queued > v.opts.cfg.QueueWarnThreshold:
		h.Status = component.StatusDegraded
		h.Message = "event queue backing up"
	}
	return h
}

// Describe implements component.Describable.
func (v *View[K, V, R]) Describe() component.Description {
	return component.Description{
		Type:    "view",
		Details: "workers=" + strconv.Itoa(v.opts.cfg.Workers) + " page=" + v.opts.page.String(),
	}
}
