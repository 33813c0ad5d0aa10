package changeset

import (
	"fmt"

	"github.com/kbukum/liveview/errors"
)

// Reason classifies a Change.
type Reason int

const (
	Add Reason = iota
	Update
	Remove
	// Refresh asks downstream stages to re-evaluate an unchanged value.
	Refresh
	// Move carries only positional metadata.
	Move
)

func (r Reason) String() string {
	switch r {
	case Add:
		return "add"
	case Update:
		return "update"
	case Remove:
		return "remove"
	case Refresh:
		return "refresh"
	case Move:
		return "move"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Unindexed marks an index field a stage does not produce.
const Unindexed = -1

// Change is one mutation of one key.
//
// Current is the value after the change; for Remove it is the value being
// removed. Previous is only meaningful for Update. Indices are Unindexed
// unless the producing stage maintains an order; in an indexed set they refer
// to the sequence as it stands after all earlier entries were applied.
type Change[K comparable, V any] struct {
	Reason        Reason
	Key           K
	Current       V
	Previous      V
	CurrentIndex  int
	PreviousIndex int
}

// NewAdd returns an unindexed Add.
func NewAdd[K comparable, V any](key K, v V) Change[K, V] {
	return Change[K, V]{Reason: Add, Key: key, Current: v, CurrentIndex: Unindexed, PreviousIndex: Unindexed}
}

// NewUpdate returns an unindexed Update from prev to cur.
func NewUpdate[K comparable, V any](key K, cur, prev V) Change[K, V] {
	return Change[K, V]{Reason: Update, Key: key, Current: cur, Previous: prev, CurrentIndex: Unindexed, PreviousIndex: Unindexed}
}

// NewRemove returns an unindexed Remove carrying the removed value.
func NewRemove[K comparable, V any](key K, v V) Change[K, V] {
	return Change[K, V]{Reason: Remove, Key: key, Current: v, CurrentIndex: Unindexed, PreviousIndex: Unindexed}
}

// NewRefresh returns an unindexed Refresh.
func NewRefresh[K comparable, V any](key K, v V) Change[K, V] {
	return Change[K, V]{Reason: Refresh, Key: key, Current: v, CurrentIndex: Unindexed, PreviousIndex: Unindexed}
}

// NewMove returns a Move of key from index from to index to.
func NewMove[K comparable, V any](key K, v V, to, from int) Change[K, V] {
	return Change[K, V]{Reason: Move, Key: key, Current: v, CurrentIndex: to, PreviousIndex: from}
}

// At returns c with its indices set.
func (c Change[K, V]) At(current, previous int) Change[K, V] {
	c.CurrentIndex = current
	c.PreviousIndex = previous
	return c
}

// Indexed reports whether c carries positional metadata.
func (c Change[K, V]) Indexed() bool {
	return c.CurrentIndex != Unindexed || c.PreviousIndex != Unindexed
}

func (c Change[K, V]) String() string {
	if c.Indexed() {
		return fmt.Sprintf("%s(%v @%d<-%d)", c.Reason, c.Key, c.CurrentIndex, c.PreviousIndex)
	}
	return fmt.Sprintf("%s(%v)", c.Reason, c.Key)
}

// ChangeSet is an ordered batch of changes with at most one entry per key.
type ChangeSet[K comparable, V any] []Change[K, V]

// Count returns the number of entries with the given reason.
func (cs ChangeSet[K, V]) Count(reason Reason) int {
	n := 0
	for _, c := range cs {
		if c.Reason == reason {
			n++
		}
	}
	return n
}

// Counts returns the entry count per reason name, for metrics.
func (cs ChangeSet[K, V]) Counts() map[string]int {
	out := make(map[string]int, 5)
	for _, c := range cs {
		out[c.Reason.String()]++
	}
	return out
}

// Keys returns the keys in entry order.
func (cs ChangeSet[K, V]) Keys() []K {
	keys := make([]K, len(cs))
	for i, c := range cs {
		keys[i] = c.Key
	}
	return keys
}

// Validate checks the one-entry-per-key rule.
func (cs ChangeSet[K, V]) Validate() error {
	seen := make(map[K]struct{}, len(cs))
	for _, c := range cs {
		if _, dup := seen[c.Key]; dup {
			return errors.InvariantViolation("changeset", fmt.Sprintf("duplicate key %v", c.Key))
		}
		seen[c.Key] = struct{}{}
	}
	return nil
}
