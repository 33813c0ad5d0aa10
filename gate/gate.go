// Package gate holds change sets back while paused and releases them as one
// consolidated change set on resume.
package gate

import (
	"github.com/kbukum/liveview/changeset"
	"github.com/kbukum/liveview/logger"
)

// Gate passes change sets through while open. While paused it merges them
// per key (see changeset.Accumulator) and emits nothing.
//
// A Gate is not safe for concurrent use; the owning view serializes calls.
type Gate[K comparable, V any] struct {
	out    func(changeset.ChangeSet[K, V])
	acc    *changeset.Accumulator[K, V]
	paused bool
	log    *logger.Logger
}

// New creates an open gate forwarding to out.
func New[K comparable, V any](out func(changeset.ChangeSet[K, V]), log *logger.Logger) *Gate[K, V] {
	if log == nil {
		log = logger.Get("gate")
	}
	return &Gate[K, V]{out: out, acc: changeset.NewAccumulator[K, V](), log: log}
}

// Push forwards cs, or accumulates it while paused.
func (g *Gate[K, V]) Push(cs changeset.ChangeSet[K, V]) {
	if len(cs) == 0 {
		return
	}
	if g.paused {
		g.acc.Push(cs)
		return
	}
	g.out(cs)
}

// SetPaused pauses or resumes. Resuming forwards the accumulated set once,
// if it is not empty.
func (g *Gate[K, V]) SetPaused(paused bool) {
	if g.paused == paused {
		return
	}
	g.paused = paused
	if paused {
		g.log.Debug("gate paused")
		return
	}
	cs := g.acc.Flush()
	g.log.Debug("gate resumed", logger.Fields(logger.FieldCount, len(cs)))
	if len(cs) > 0 {
		g.out(cs)
	}
}

// Paused reports whether the gate is paused.
func (g *Gate[K, V]) Paused() bool { return g.paused }

// Pending returns the number of keys held back.
func (g *Gate[K, V]) Pending() int { return g.acc.Len() }

// Reset drops anything held back and keeps the pause state.
func (g *Gate[K, V]) Reset() {
	g.acc.Flush()
}
