package changeset

import (
	"fmt"

	"github.com/kbukum/liveview/errors"
)

// Entry is one element of an ordered sequence.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// ApplyIndexed applies an indexed change set to seq with sequential
// semantics and returns the new sequence. seq may be modified in place.
//
// Add inserts at CurrentIndex. Remove deletes at CurrentIndex. Update and
// Move delete at PreviousIndex and insert at CurrentIndex. Refresh replaces
// the value at CurrentIndex. The key found at each removal index must match.
func ApplyIndexed[K comparable, V any](seq []Entry[K, V], cs ChangeSet[K, V]) ([]Entry[K, V], error) {
	for _, ch := range cs {
		switch ch.Reason {
		case Add:
			if ch.CurrentIndex < 0 || ch.CurrentIndex > len(seq) {
				return seq, indexError(ch, len(seq))
			}
			seq = insertAt(seq, ch.CurrentIndex, Entry[K, V]{Key: ch.Key, Value: ch.Current})
		case Remove:
			if err := checkKeyAt(seq, ch.CurrentIndex, ch); err != nil {
				return seq, err
			}
			seq = removeAt(seq, ch.CurrentIndex)
		case Update, Move:
			if err := checkKeyAt(seq, ch.PreviousIndex, ch); err != nil {
				return seq, err
			}
			seq = removeAt(seq, ch.PreviousIndex)
			if ch.CurrentIndex < 0 || ch.CurrentIndex > len(seq) {
				return seq, indexError(ch, len(seq))
			}
			seq = insertAt(seq, ch.CurrentIndex, Entry[K, V]{Key: ch.Key, Value: ch.Current})
		case Refresh:
			if err := checkKeyAt(seq, ch.CurrentIndex, ch); err != nil {
				return seq, err
			}
			seq[ch.CurrentIndex].Value = ch.Current
		}
	}
	return seq, nil
}

func checkKeyAt[K comparable, V any](seq []Entry[K, V], i int, ch Change[K, V]) error {
	if i < 0 || i >= len(seq) {
		return indexError(ch, len(seq))
	}
	if seq[i].Key != ch.Key {
		return errors.InvariantViolation("indexed", fmt.Sprintf("%s expects key %v at %d, found %v", ch.Reason, ch.Key, i, seq[i].Key))
	}
	return nil
}

func indexError[K comparable, V any](ch Change[K, V], n int) error {
	return errors.InvariantViolation("indexed", fmt.Sprintf("%s index out of range for length %d", ch, n))
}

func insertAt[T any](s []T, i int, v T) []T {
	var zero T
	s = append(s, zero)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeAt[T any](s []T, i int) []T {
	copy(s[i:], s[i+1:])
	var zero T
	s[len(s)-1] = zero
	return s[:len(s)-1]
}

// InsertAt inserts v at index i of s.
func InsertAt[T any](s []T, i int, v T) []T { return insertAt(s, i, v) }

// RemoveAt deletes index i of s.
func RemoveAt[T any](s []T, i int) []T { return removeAt(s, i) }
