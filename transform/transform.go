// Package transform projects upstream items into derived values on a
// bounded worker pool, keeping output order equal to input order.
package transform

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/kbukum/liveview/changeset"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/observability"
	"github.com/kbukum/liveview/resilience"
)

const (
	stageName = "transform"
	// DefaultWorkers is the projection parallelism when none is configured.
	DefaultWorkers = 5
)

// Projector derives R from V. It may be called concurrently for distinct items.
type Projector[V, R any] func(ctx context.Context, v V) (R, error)

// Stage owns one reference to the projection of every upstream key that
// projected successfully. It is not safe for concurrent use.
type Stage[K comparable, V, R any] struct {
	project Projector[V, R]
	out     func(changeset.ChangeSet[K, *Ref[R]])
	opts    options[R]
	known   map[K]struct{}
	refs    map[K]*Ref[R]
	closed  bool
	log     *logger.Logger
	metrics *observability.PipelineMetrics
}

type options[R any] struct {
	workers int
	release func(R)
	retry   resilience.RetryConfig
	log     *logger.Logger
}

// Option configures a Stage.
type Option[R any] func(*options[R])

// WithWorkers bounds the number of concurrent projections.
func WithWorkers[R any](n int) Option[R] {
	return func(o *options[R]) { o.workers = n }
}

// WithRelease sets the function run when a projection is no longer held.
func WithRelease[R any](fn func(R)) Option[R] {
	return func(o *options[R]) { o.release = fn }
}

// WithRetry retries failed projections before excluding the item.
func WithRetry[R any](cfg resilience.RetryConfig) Option[R] {
	return func(o *options[R]) { o.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger[R any](l *logger.Logger) Option[R] {
	return func(o *options[R]) { o.log = l }
}

// New creates a stage emitting projected change sets to out.
func New[K comparable, V, R any](project Projector[V, R], out func(changeset.ChangeSet[K, *Ref[R]]), opts ...Option[R]) *Stage[K, V, R] {
	o := options[R]{workers: DefaultWorkers}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = DefaultWorkers
	}
	if o.log == nil {
		o.log = logger.Get(stageName)
	}
	return &Stage[K, V, R]{
		project: project,
		out:     out,
		opts:    o,
		known:   make(map[K]struct{}),
		refs:    make(map[K]*Ref[R]),
		log:     o.log.WithFields(logger.Fields(logger.FieldStage, stageName)),
		metrics: observability.Metrics(),
	}
}

type result[R any] struct {
	ref *Ref[R]
	err error
}

// Push projects every Add, Update and unprojected Refresh of cs in parallel,
// waits for all of them, then emits one change set in input order.
//
// If ctx is cancelled before the batch completes, the projections already
// made are released, the stage is left unchanged and nothing is emitted.
func (s *Stage[K, V, R]) Push(ctx context.Context, cs changeset.ChangeSet[K, V]) error {
	if s.closed {
		return errors.TornDown()
	}
	if err := s.check(cs); err != nil {
		return err
	}

	results, err := s.projectAll(ctx, cs)
	if err != nil {
		for _, r := range results {
			if r.ref != nil {
				r.ref.Release()
			}
		}
		s.log.Debug("projection batch aborted", logger.MergeWithError(logger.Fields(logger.FieldCount, len(cs)), err))
		return errors.TornDown().WithCause(err)
	}

	out := make(changeset.ChangeSet[K, *Ref[R]], 0, len(cs))
	var dropped []*Ref[R]
	for i, ch := range cs {
		old, had := s.refs[ch.Key]
		switch ch.Reason {
		case changeset.Remove:
			delete(s.known, ch.Key)
			if had {
				delete(s.refs, ch.Key)
				out = append(out, changeset.NewRemove(ch.Key, old))
				dropped = append(dropped, old)
			}
		case changeset.Refresh:
			if had {
				out = append(out, changeset.NewRefresh(ch.Key, old))
				continue
			}
			fallthrough
		case changeset.Add, changeset.Update:
			s.known[ch.Key] = struct{}{}
			r := results[i]
			if r.err != nil {
				s.projectionFailed(ctx, ch.Key, r.err)
				if had {
					delete(s.refs, ch.Key)
					out = append(out, changeset.NewRemove(ch.Key, old))
					dropped = append(dropped, old)
				}
				continue
			}
			s.refs[ch.Key] = r.ref
			if had {
				out = append(out, changeset.NewUpdate(ch.Key, r.ref, old))
				dropped = append(dropped, old)
			} else {
				out = append(out, changeset.NewAdd(ch.Key, r.ref))
			}
		}
	}

	if len(out) > 0 {
		s.metrics.RecordChangeSet(ctx, stageName, out.Counts())
		s.out(out)
	}
	// downstream has retained what it keeps by now
	for _, ref := range dropped {
		ref.Release()
	}
	return nil
}

func (s *Stage[K, V, R]) check(cs changeset.ChangeSet[K, V]) error {
	if err := cs.Validate(); err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	for _, ch := range cs {
		_, present := s.known[ch.Key]
		if ch.Reason == changeset.Add && present {
			return errors.InvariantViolation(stageName, fmt.Sprintf("add of present key %v", ch.Key))
		}
		if ch.Reason != changeset.Add && !present {
			return errors.InvariantViolation(stageName, fmt.Sprintf("%s of absent key %v", ch.Reason, ch.Key))
		}
	}
	return nil
}

func (s *Stage[K, V, R]) needsProjection(ch changeset.Change[K, V]) bool {
	switch ch.Reason {
	case changeset.Add, changeset.Update:
		return true
	case changeset.Refresh:
		_, had := s.refs[ch.Key]
		return !had
	}
	return false
}

// projectAll runs the projections with at most workers in flight and joins
// them before returning. results[i] belongs to cs[i].
func (s *Stage[K, V, R]) projectAll(ctx context.Context, cs changeset.ChangeSet[K, V]) ([]result[R], error) {
	results := make([]result[R], len(cs))
	n := 0
	for _, ch := range cs {
		if s.needsProjection(ch) {
			n++
		}
	}
	if n == 0 {
		return results, ctx.Err()
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanProjection)
	span.SetAttributes(attribute.Int(observability.AttrChanges, n))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.workers)
	for i, ch := range cs {
		if !s.needsProjection(ch) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := s.projectOne(gctx, ch.Current)
			if err != nil {
				results[i] = result[R]{err: err}
				return nil
			}
			results[i] = result[R]{ref: NewRef(v, s.opts.release)}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	s.metrics.RecordProjectionBatch(ctx, n, time.Since(start))
	observability.EndSpan(span, err)
	return results, err
}

func (s *Stage[K, V, R]) projectOne(ctx context.Context, v V) (R, error) {
	if !s.opts.retry.Enabled() {
		return s.safeProject(ctx, v)
	}
	return resilience.Retry(ctx, s.opts.retry, func() (R, error) {
		return s.safeProject(ctx, v)
	})
}

func (s *Stage[K, V, R]) safeProject(ctx context.Context, v V) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Recovered(p)
		}
	}()
	return s.project(ctx, v)
}

func (s *Stage[K, V, R]) projectionFailed(ctx context.Context, key K, cause error) {
	err := errors.ProjectionFailed(key, cause)
	s.log.Warn("projection failed, excluding item", logger.MergeWithError(
		logger.Fields(logger.FieldKey, fmt.Sprint(key), logger.FieldReason, string(errors.ErrCodeProjectionFailed)), err))
	s.metrics.RecordProjectionError(ctx)
}

// Lookup returns the projection held for key.
func (s *Stage[K, V, R]) Lookup(key K) (*Ref[R], bool) {
	r, ok := s.refs[key]
	return r, ok
}

// Len returns the number of projected keys.
func (s *Stage[K, V, R]) Len() int { return len(s.refs) }

// Reset releases every held projection and forgets all keys, without emitting.
func (s *Stage[K, V, R]) Reset() {
	for k, r := range s.refs {
		r.Release()
		delete(s.refs, k)
	}
	s.known = make(map[K]struct{})
}

// Close releases every held projection. Later pushes return TORN_DOWN.
// It is idempotent.
func (s *Stage[K, V, R]) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.Reset()
}
