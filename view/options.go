package view

import (
	"github.com/kbukum/liveview/binding"
	"github.com/kbukum/liveview/filter"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/paging"
	"github.com/kbukum/liveview/resilience"
	"github.com/kbukum/liveview/sorting"
)

type options[V, R any] struct {
	name       string
	cfg        Config
	page       paging.Request
	predicate  filter.Predicate[V]
	comparator sorting.Comparator[R]
	dispatcher binding.Dispatcher
	respond    func(paging.Response)
	release    func(R)
	retry      resilience.RetryConfig
	paused     bool
	log        *logger.Logger
}

// Option configures a View.
type Option[V, R any] func(*options[V, R])

// WithName names the view in logs, spans and health reports.
func WithName[V, R any](name string) Option[V, R] {
	return func(o *options[V, R]) { o.name = name }
}

// WithConfig applies cfg and starts on its first page. Zero fields keep
// their defaults.
func WithConfig[V, R any](cfg Config) Option[V, R] {
	return func(o *options[V, R]) {
		cfg.ApplyDefaults()
		o.cfg = cfg
		o.page = paging.Request{Page: 1, Size: cfg.PageSize}
	}
}

// WithWorkers bounds projection parallelism.
func WithWorkers[V, R any](n int) Option[V, R] {
	return func(o *options[V, R]) { o.cfg.Workers = n }
}

// WithPageRequest sets the initial page.
func WithPageRequest[V, R any](req paging.Request) Option[V, R] {
	return func(o *options[V, R]) { o.page = req }
}

// WithPredicate sets the initial predicate. The default matches everything.
func WithPredicate[V, R any](p filter.Predicate[V]) Option[V, R] {
	return func(o *options[V, R]) { o.predicate = p }
}

// WithComparator sets the initial order. The default orders by key.
func WithComparator[V, R any](c sorting.Comparator[R]) Option[V, R] {
	return func(o *options[V, R]) { o.comparator = c }
}

// WithDispatcher sets the consumption context of the bound sequence. The
// caller owns d; without this option the view runs its own serial dispatcher.
func WithDispatcher[V, R any](d binding.Dispatcher) Option[V, R] {
	return func(o *options[V, R]) { o.dispatcher = d }
}

// WithResponseHandler receives every page response, on the view goroutine.
func WithResponseHandler[V, R any](fn func(paging.Response)) Option[V, R] {
	return func(o *options[V, R]) { o.respond = fn }
}

// WithRelease sets the function run once a projection leaves the pipeline.
func WithRelease[V, R any](fn func(R)) Option[V, R] {
	return func(o *options[V, R]) { o.release = fn }
}

// WithRetry retries failed projections.
func WithRetry[V, R any](cfg resilience.RetryConfig) Option[V, R] {
	return func(o *options[V, R]) { o.retry = cfg }
}

// WithStrictInvariants makes an invariant violation panic instead of
// triggering a resync.
func WithStrictInvariants[V, R any](strict bool) Option[V, R] {
	return func(o *options[V, R]) { o.cfg.StrictInvariants = strict }
}

// WithPaused starts the view paused.
func WithPaused[V, R any](paused bool) Option[V, R] {
	return func(o *options[V, R]) { o.paused = paused }
}

// WithLogger sets the logger.
func WithLogger[V, R any](l *logger.Logger) Option[V, R] {
	return func(o *options[V, R]) { o.log = l }
}
