// Package filter maintains the subset of upstream items that satisfy a
// replaceable predicate and emits membership diffs.
package filter

import (
	"context"
	"fmt"

	"github.com/kbukum/liveview/changeset"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/observability"
)

const stageName = "filter"

// Stage caches every upstream item together with its membership.
// It is not safe for concurrent use.
type Stage[K comparable, V any] struct {
	out     func(changeset.ChangeSet[K, V])
	pred    Predicate[V]
	items   *changeset.Cache[K, V]
	members map[K]struct{}
	log     *logger.Logger
	metrics *observability.PipelineMetrics
}

// New creates a stage. A nil predicate matches everything.
func New[K comparable, V any](pred Predicate[V], out func(changeset.ChangeSet[K, V]), log *logger.Logger) *Stage[K, V] {
	if pred == nil {
		pred = All[V]()
	}
	if log == nil {
		log = logger.Get(stageName)
	}
	return &Stage[K, V]{
		out:     out,
		pred:    pred,
		items:   changeset.NewCache[K, V](),
		members: make(map[K]struct{}),
		log:     log.WithFields(logger.Fields(logger.FieldStage, stageName)),
		metrics: observability.Metrics(),
	}
}

// Push applies an upstream change set. It returns an INVARIANT_VIOLATION
// error, leaving the stage untouched, when cs contradicts the cache.
func (s *Stage[K, V]) Push(cs changeset.ChangeSet[K, V]) error {
	if err := s.items.Check(cs); err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	out := make(changeset.ChangeSet[K, V], 0, len(cs))
	for _, ch := range cs {
		old, _ := s.items.Lookup(ch.Key)
		_, was := s.members[ch.Key]

		if ch.Reason == changeset.Remove {
			s.items.Remove(ch.Key)
			if was {
				delete(s.members, ch.Key)
				out = append(out, changeset.NewRemove(ch.Key, old))
			}
			continue
		}
		if ch.Reason == changeset.Move {
			continue
		}

		s.items.Set(ch.Key, ch.Current)
		in := s.test(ch.Key, ch.Current)
		switch {
		case in && !was:
			s.members[ch.Key] = struct{}{}
			out = append(out, changeset.NewAdd(ch.Key, ch.Current))
		case !in && was:
			delete(s.members, ch.Key)
			out = append(out, changeset.NewRemove(ch.Key, old))
		case in && ch.Reason == changeset.Refresh:
			out = append(out, changeset.NewRefresh(ch.Key, ch.Current))
		case in:
			out = append(out, changeset.NewUpdate(ch.Key, ch.Current, old))
		}
	}
	s.emit(out)
	return nil
}

// SetPredicate replaces the predicate and emits the membership diff of
// every cached item as one change set, in cache order.
func (s *Stage[K, V]) SetPredicate(pred Predicate[V]) {
	if pred == nil {
		pred = All[V]()
	}
	s.pred = pred

	var out changeset.ChangeSet[K, V]
	s.items.Range(func(k K, v V) bool {
		_, was := s.members[k]
		in := s.test(k, v)
		switch {
		case in && !was:
			s.members[k] = struct{}{}
			out = append(out, changeset.NewAdd(k, v))
		case !in && was:
			delete(s.members, k)
			out = append(out, changeset.NewRemove(k, v))
		}
		return true
	})
	s.log.Debug("predicate replaced", logger.Fields(logger.FieldCount, len(out)))
	s.emit(out)
}

// test runs the predicate, absorbing errors and panics as non-matches.
func (s *Stage[K, V]) test(key K, v V) (in bool) {
	defer func() {
		if r := recover(); r != nil {
			in = false
			s.predicateFailed(key, errors.Recovered(r))
		}
	}()
	ok, err := s.pred(v)
	if err != nil {
		s.predicateFailed(key, err)
		return false
	}
	return ok
}

func (s *Stage[K, V]) predicateFailed(key K, cause error) {
	err := errors.PredicateFailed(key, cause)
	s.log.Debug("predicate failed, treating as non-match", logger.MergeWithError(
		logger.Fields(logger.FieldKey, fmt.Sprint(key), logger.FieldReason, string(errors.ErrCodePredicateFailed)), err))
	s.metrics.RecordPredicateError(context.Background())
}

func (s *Stage[K, V]) emit(cs changeset.ChangeSet[K, V]) {
	if len(cs) == 0 {
		return
	}
	s.metrics.RecordChangeSet(context.Background(), stageName, cs.Counts())
	s.out(cs)
}

// Members returns the items currently passing, in cache order.
func (s *Stage[K, V]) Members() []V {
	out := make([]V, 0, len(s.members))
	s.items.Range(func(k K, v V) bool {
		if _, ok := s.members[k]; ok {
			out = append(out, v)
		}
		return true
	})
	return out
}

// Len returns the number of passing items.
func (s *Stage[K, V]) Len() int { return len(s.members) }

// Reset forgets all items without emitting.
func (s *Stage[K, V]) Reset() {
	s.items.Clear()
	s.members = make(map[K]struct{})
}
