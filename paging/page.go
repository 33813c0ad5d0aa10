// Package paging cuts a bounded window out of an indexed, ordered change
// stream and reports page metadata on a side channel.
package paging

import (
	"context"
	"fmt"
	"slices"

	"github.com/kbukum/liveview/changeset"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/observability"
	"github.com/kbukum/liveview/sorting"
)

const stageName = "page"

// Stage mirrors the full ordered sequence and the window currently shown
// downstream. Every push or request change recuts the window from the mirror
// and emits the diff. It is not safe for concurrent use.
type Stage[K comparable, V any] struct {
	req     Request
	resp    Response
	mirror  []changeset.Entry[K, V]
	window  []changeset.Entry[K, V]
	out     func(changeset.ChangeSet[K, V])
	respond func(Response)
	log     *logger.Logger
	metrics *observability.PipelineMetrics
}

// Option configures a Stage.
type Option[K comparable, V any] func(*Stage[K, V])

// WithResponseHandler receives a Response after every push and request change.
func WithResponseHandler[K comparable, V any](fn func(Response)) Option[K, V] {
	return func(s *Stage[K, V]) { s.respond = fn }
}

// WithLogger sets the stage logger.
func WithLogger[K comparable, V any](log *logger.Logger) Option[K, V] {
	return func(s *Stage[K, V]) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a stage showing req. An invalid req falls back to DefaultRequest.
func New[K comparable, V any](req Request, out func(changeset.ChangeSet[K, V]), opts ...Option[K, V]) *Stage[K, V] {
	s := &Stage[K, V]{
		req:     req,
		out:     out,
		respond: func(Response) {},
		log:     logger.Get(stageName),
		metrics: observability.Metrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := req.Validate(); err != nil {
		s.log.Warn("invalid initial page request, using default", logger.MergeWithError(logger.Fields("request", req.String()), err))
		s.req = DefaultRequest
	}
	s.log = s.log.WithFields(logger.Fields(logger.FieldStage, stageName))
	s.resp = resolve(s.req, 0)
	return s
}

// Push applies an indexed change set to the mirror and emits the window diff.
// The mirror is left untouched when cs does not fit it.
func (s *Stage[K, V]) Push(cs changeset.ChangeSet[K, V]) error {
	if err := cs.Validate(); err != nil {
		return fmt.Errorf("page: %w", err)
	}
	next, err := changeset.ApplyIndexed(slices.Clone(s.mirror), cs)
	if err != nil {
		return errors.InvariantViolation(stageName, err.Error()).WithCause(err)
	}
	s.mirror = next

	changed := make(map[K]changeset.Reason)
	for _, ch := range cs {
		if ch.Reason == changeset.Update || ch.Reason == changeset.Refresh {
			changed[ch.Key] = ch.Reason
		}
	}
	s.recut(changed)
	return nil
}

// SetPageRequest moves the window. An invalid request is returned as an
// error and ignored.
func (s *Stage[K, V]) SetPageRequest(req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req == s.req {
		return nil
	}
	s.req = req
	s.recut(nil)
	return nil
}

// Request returns the last accepted request; it is kept when clamped so the
// window returns once the collection grows back.
func (s *Stage[K, V]) Request() Request { return s.req }

// Response returns the current page metadata.
func (s *Stage[K, V]) Response() Response { return s.resp }

// Window returns the entries shown downstream. The slice must not be modified.
func (s *Stage[K, V]) Window() []changeset.Entry[K, V] { return s.window }

// Len returns the size of the full mirrored sequence.
func (s *Stage[K, V]) Len() int { return len(s.mirror) }

// Reset forgets the mirror and window without emitting.
func (s *Stage[K, V]) Reset() {
	s.mirror = nil
	s.window = nil
	s.resp = resolve(s.req, 0)
}

func (s *Stage[K, V]) recut(changed map[K]changeset.Reason) {
	resp := resolve(s.req, len(s.mirror))
	if resp.Clamped && !s.resp.Clamped {
		s.metrics.RecordPageClamp(context.Background())
		s.log.Debug("page out of range, clamped", logger.Fields(
			"requested", s.req.Page, "page", resp.Page, "pages", resp.Pages))
	}
	start, end := resp.bounds()
	next := slices.Clone(s.mirror[start:end])

	cs := diff(s.window, next, changed)
	s.window = next
	s.resp = resp
	if len(cs) > 0 {
		s.metrics.RecordChangeSet(context.Background(), stageName, cs.Counts())
		s.out(cs)
	}
	s.respond(resp)
}

// diff returns the indexed change set turning prev into next: Removes in
// descending index, Moves among survivors, Adds in ascending index, then
// Update or Refresh for survivors changed upstream. A survivor that both
// moved and was updated gets a single Update carrying both indices.
func diff[K comparable, V any](prev, next []changeset.Entry[K, V], changed map[K]changeset.Reason) changeset.ChangeSet[K, V] {
	inNext := make(map[K]struct{}, len(next))
	for _, e := range next {
		inNext[e.Key] = struct{}{}
	}
	held := make(map[K]V, len(prev))
	for _, e := range prev {
		held[e.Key] = e.Value
	}

	var cs changeset.ChangeSet[K, V]
	survivors := make([]changeset.Entry[K, V], 0, len(prev))
	for i := len(prev) - 1; i >= 0; i-- {
		if _, ok := inNext[prev[i].Key]; !ok {
			cs = append(cs, changeset.NewRemove(prev[i].Key, prev[i].Value).At(i, changeset.Unindexed))
		}
	}
	for _, e := range prev {
		if _, ok := inNext[e.Key]; ok {
			survivors = append(survivors, e)
		}
	}

	target := make([]changeset.Entry[K, V], 0, len(survivors))
	for _, e := range next {
		if _, ok := held[e.Key]; ok {
			target = append(target, e)
		}
	}
	moved := make(map[K]struct{})
	for _, m := range sorting.Reorder(survivors, target) {
		moved[m.Key] = struct{}{}
		if changed[m.Key] == changeset.Update {
			m = changeset.NewUpdate(m.Key, m.Current, held[m.Key]).At(m.CurrentIndex, m.PreviousIndex)
		}
		cs = append(cs, m)
	}

	for j, e := range next {
		if _, ok := held[e.Key]; !ok {
			cs = append(cs, changeset.NewAdd(e.Key, e.Value).At(j, changeset.Unindexed))
		}
	}
	for j, e := range next {
		reason, ok := changed[e.Key]
		if !ok {
			continue
		}
		if _, survived := held[e.Key]; !survived {
			continue
		}
		if _, done := moved[e.Key]; done {
			continue
		}
		if reason == changeset.Update {
			cs = append(cs, changeset.NewUpdate(e.Key, e.Value, held[e.Key]).At(j, j))
		} else {
			cs = append(cs, changeset.NewRefresh(e.Key, e.Value).At(j, j))
		}
	}
	return cs
}
