// Package sorting keeps upstream items in a total order under a replaceable
// comparator and emits indexed change sets.
package sorting

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/kbukum/liveview/changeset"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/observability"
)

const stageName = "sort"

// Stage holds a slice sorted by (Compare, Key). Ties on the comparator are
// broken by key, so the order is total. It is not safe for concurrent use.
type Stage[K cmp.Ordered, V any] struct {
	cmp     Comparator[V]
	items   []changeset.Entry[K, V]
	values  map[K]V
	out     func(changeset.ChangeSet[K, V])
	log     *logger.Logger
	metrics *observability.PipelineMetrics
}

// New creates a stage. A nil Compare orders by key only.
func New[K cmp.Ordered, V any](c Comparator[V], out func(changeset.ChangeSet[K, V]), log *logger.Logger) *Stage[K, V] {
	if c.Compare == nil {
		c = Unordered[V]()
	}
	if log == nil {
		log = logger.Get(stageName)
	}
	return &Stage[K, V]{
		cmp:     c,
		values:  make(map[K]V),
		out:     out,
		log:     log.WithFields(logger.Fields(logger.FieldStage, stageName)),
		metrics: observability.Metrics(),
	}
}

func (s *Stage[K, V]) compare(a, b changeset.Entry[K, V]) int {
	if r := s.cmp.Compare(a.Value, b.Value); r != 0 {
		return r
	}
	return cmp.Compare(a.Key, b.Key)
}

// rank returns the insertion index of e.
func (s *Stage[K, V]) rank(e changeset.Entry[K, V]) int {
	i, _ := slices.BinarySearchFunc(s.items, e, s.compare)
	return i
}

// position finds key, trusting the binary search when the stored value has
// not changed order behind the stage's back.
func (s *Stage[K, V]) position(key K) int {
	v := s.values[key]
	i, found := slices.BinarySearchFunc(s.items, changeset.Entry[K, V]{Key: key, Value: v}, s.compare)
	if found && s.items[i].Key == key {
		return i
	}
	return slices.IndexFunc(s.items, func(e changeset.Entry[K, V]) bool { return e.Key == key })
}

func (s *Stage[K, V]) insert(e changeset.Entry[K, V]) int {
	i := s.rank(e)
	s.items = changeset.InsertAt(s.items, i, e)
	s.values[e.Key] = e.Value
	return i
}

func (s *Stage[K, V]) removeKey(key K) int {
	i := s.position(key)
	s.items = changeset.RemoveAt(s.items, i)
	delete(s.values, key)
	return i
}

// Push applies an unindexed change set and emits its indexed counterpart.
func (s *Stage[K, V]) Push(cs changeset.ChangeSet[K, V]) error {
	if err := s.check(cs); err != nil {
		return err
	}
	if len(s.items) == 0 && len(cs) > 1 && cs.Count(changeset.Add) == len(cs) {
		s.bulkLoad(cs)
		return nil
	}

	out := make(changeset.ChangeSet[K, V], 0, len(cs))
	for _, ch := range cs {
		switch ch.Reason {
		case changeset.Add:
			i := s.insert(changeset.Entry[K, V]{Key: ch.Key, Value: ch.Current})
			out = append(out, ch.At(i, changeset.Unindexed))

		case changeset.Remove:
			old := s.values[ch.Key]
			i := s.removeKey(ch.Key)
			out = append(out, changeset.NewRemove(ch.Key, old).At(i, changeset.Unindexed))

		case changeset.Update:
			old := s.values[ch.Key]
			i := s.position(ch.Key)
			if s.cmp.StableOnImmutableKeys && s.cmp.Compare(old, ch.Current) == 0 {
				s.items[i].Value = ch.Current
				s.values[ch.Key] = ch.Current
				out = append(out, changeset.NewUpdate(ch.Key, ch.Current, old).At(i, i))
				continue
			}
			s.items = changeset.RemoveAt(s.items, i)
			j := s.insert(changeset.Entry[K, V]{Key: ch.Key, Value: ch.Current})
			out = append(out, changeset.NewUpdate(ch.Key, ch.Current, old).At(j, i))

		case changeset.Refresh:
			i := s.position(ch.Key)
			s.items = changeset.RemoveAt(s.items, i)
			j := s.insert(changeset.Entry[K, V]{Key: ch.Key, Value: ch.Current})
			if j != i {
				out = append(out, changeset.NewMove(ch.Key, ch.Current, j, i))
			} else {
				out = append(out, changeset.NewRefresh(ch.Key, ch.Current).At(i, i))
			}
		}
	}
	s.emit(out)
	return nil
}

func (s *Stage[K, V]) bulkLoad(cs changeset.ChangeSet[K, V]) {
	s.items = make([]changeset.Entry[K, V], 0, len(cs))
	for _, ch := range cs {
		s.items = append(s.items, changeset.Entry[K, V]{Key: ch.Key, Value: ch.Current})
		s.values[ch.Key] = ch.Current
	}
	slices.SortFunc(s.items, s.compare)

	out := make(changeset.ChangeSet[K, V], len(s.items))
	for i, e := range s.items {
		out[i] = changeset.NewAdd(e.Key, e.Value).At(i, changeset.Unindexed)
	}
	s.emit(out)
}

func (s *Stage[K, V]) check(cs changeset.ChangeSet[K, V]) error {
	if err := cs.Validate(); err != nil {
		return fmt.Errorf("sort: %w", err)
	}
	for _, ch := range cs {
		_, present := s.values[ch.Key]
		switch {
		case ch.Reason == changeset.Add && present:
			return errors.InvariantViolation(stageName, fmt.Sprintf("add of present key %v", ch.Key))
		case ch.Reason != changeset.Add && !present:
			return errors.InvariantViolation(stageName, fmt.Sprintf("%s of absent key %v", ch.Reason, ch.Key))
		}
	}
	return nil
}

// SetComparator re-sorts under c and emits the minimal set of Moves.
func (s *Stage[K, V]) SetComparator(c Comparator[V]) {
	if c.Compare == nil {
		c = Unordered[V]()
	}
	before := s.items
	s.cmp = c
	s.items = slices.Clone(before)
	slices.SortFunc(s.items, s.compare)

	moves := Reorder(before, s.items)
	s.log.Debug("comparator replaced", logger.Fields("comparator", c.Name, logger.FieldCount, len(moves)))
	s.emit(moves)
}

// Comparator returns the active comparator.
func (s *Stage[K, V]) Comparator() Comparator[V] { return s.cmp }

func (s *Stage[K, V]) emit(cs changeset.ChangeSet[K, V]) {
	if len(cs) == 0 {
		return
	}
	s.metrics.RecordChangeSet(context.Background(), stageName, cs.Counts())
	s.out(cs)
}

// Items returns the sorted entries. The slice must not be modified.
func (s *Stage[K, V]) Items() []changeset.Entry[K, V] { return s.items }

// Len returns the number of items.
func (s *Stage[K, V]) Len() int { return len(s.items) }

// Reset forgets all items without emitting.
func (s *Stage[K, V]) Reset() {
	s.items = nil
	s.values = make(map[K]V)
}
