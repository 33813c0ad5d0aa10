package relay

import (
	"github.com/kbukum/liveview/changeset"
)

// Batch is the wire form of one replicated change set. Seq increases by one
// per batch from a given Origin; a Reset batch replaces the replica's
// contents with Upserts.
type Batch[K comparable, V any] struct {
	Origin    string `json:"origin"`
	Seq       uint64 `json:"seq"`
	Reset     bool   `json:"reset,omitempty"`
	Upserts   []V    `json:"upserts,omitempty"`
	Removes   []K    `json:"removes,omitempty"`
	Refreshes []K    `json:"refreshes,omitempty"`
}

// fromChangeSet keeps what a replica needs: final values and removed keys.
func fromChangeSet[K comparable, V any](cs changeset.ChangeSet[K, V]) Batch[K, V] {
	var b Batch[K, V]
	for _, c := range cs {
		switch c.Reason {
		case changeset.Add, changeset.Update:
			b.Upserts = append(b.Upserts, c.Current)
		case changeset.Remove:
			b.Removes = append(b.Removes, c.Key)
		case changeset.Refresh:
			b.Refreshes = append(b.Refreshes, c.Key)
		}
	}
	return b
}

// Empty reports whether the batch carries nothing to apply.
func (b Batch[K, V]) Empty() bool {
	return !b.Reset && len(b.Upserts) == 0 && len(b.Removes) == 0 && len(b.Refreshes) == 0
}
