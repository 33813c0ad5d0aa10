// Package binding materializes the final indexed change stream into an
// ordered sequence read by consumers, on one consumption context.
package binding

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/kbukum/liveview/changeset"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/observability"
	"github.com/kbukum/liveview/transform"
)

const stageName = "bind"

// Notification reports one applied change. Index and PreviousIndex follow
// the sequential semantics of the change set they came from.
type Notification[K comparable] struct {
	Reason        changeset.Reason `json:"-"`
	Kind          string           `json:"kind"`
	Key           K                `json:"key"`
	Index         int              `json:"index"`
	PreviousIndex int              `json:"previous_index"`
}

type entry[K comparable, R any] = changeset.Entry[K, *transform.Ref[R]]

// Binder holds one reference to every projection it shows. References are
// taken in Push, on the producer's goroutine, and dropped when the change
// that evicts them is applied on the dispatcher.
type Binder[K comparable, R any] struct {
	dispatcher Dispatcher
	mu         sync.RWMutex
	seq        []entry[K, R]
	subsMu     sync.Mutex
	subs       map[uint64]func([]Notification[K])
	nextSub    uint64
	closed     atomic.Bool
	applied    atomic.Uint64
	log        *logger.Logger
	metrics    *observability.PipelineMetrics
	onFault    func(error)
}

// Option configures a Binder.
type Option[K comparable, R any] func(*Binder[K, R])

// WithFaultHandler sets fn to receive an invariant violation whenever a
// change set does not fit the bound sequence. fn runs on the dispatcher.
func WithFaultHandler[K comparable, R any](fn func(error)) Option[K, R] {
	return func(b *Binder[K, R]) { b.onFault = fn }
}

// New creates a binder applying on d. A nil d applies inline.
func New[K comparable, R any](d Dispatcher, log *logger.Logger, opts ...Option[K, R]) *Binder[K, R] {
	if d == nil {
		d = Immediate{}
	}
	if log == nil {
		log = logger.Get(stageName)
	}
	b := &Binder[K, R]{
		dispatcher: d,
		subs:       make(map[uint64]func([]Notification[K])),
		log:        log.WithFields(logger.Fields(logger.FieldStage, stageName)),
		metrics:    observability.Metrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push retains the incoming projections and schedules cs for application.
func (b *Binder[K, R]) Push(cs changeset.ChangeSet[K, *transform.Ref[R]]) error {
	if b.closed.Load() {
		return errors.TornDown()
	}
	if len(cs) == 0 {
		return nil
	}
	for _, ch := range cs {
		if ch.Reason == changeset.Add || ch.Reason == changeset.Update {
			ch.Current.Retain()
		}
	}
	b.dispatch(func() { b.apply(cs) })
	return nil
}

func (b *Binder[K, R]) dispatch(fn func()) {
	if err := b.dispatcher.Dispatch(fn); err != nil {
		fn()
	}
}

func (b *Binder[K, R]) apply(cs changeset.ChangeSet[K, *transform.Ref[R]]) {
	b.mu.Lock()
	next, evicted, err := applyTo(slices.Clone(b.seq), cs)
	if err != nil {
		b.mu.Unlock()
		b.log.Error("change set does not fit bound sequence", logger.MergeWithError(logger.Fields(logger.FieldCount, len(cs)), err))
		for _, ch := range cs {
			if ch.Reason == changeset.Add || ch.Reason == changeset.Update {
				ch.Current.Release()
			}
		}
		if b.onFault != nil {
			b.onFault(errors.InvariantViolation(stageName, err.Error()))
		}
		return
	}
	b.seq = next
	b.mu.Unlock()

	b.applied.Add(1)
	b.metrics.RecordChangeSet(context.Background(), stageName, cs.Counts())
	notes := make([]Notification[K], len(cs))
	for i, ch := range cs {
		notes[i] = Notification[K]{
			Reason:        ch.Reason,
			Kind:          ch.Reason.String(),
			Key:           ch.Key,
			Index:         ch.CurrentIndex,
			PreviousIndex: ch.PreviousIndex,
		}
	}
	b.notify(notes)
	for _, ref := range evicted {
		ref.Release()
	}
}

// applyTo applies cs with sequential semantics and returns the projections
// the change set evicted. Moves and Refreshes keep the held projection.
func applyTo[K comparable, R any](seq []entry[K, R], cs changeset.ChangeSet[K, *transform.Ref[R]]) ([]entry[K, R], []*transform.Ref[R], error) {
	var evicted []*transform.Ref[R]
	at := func(i int, ch changeset.Change[K, *transform.Ref[R]]) error {
		if i < 0 || i >= len(seq) || seq[i].Key != ch.Key {
			return fmt.Errorf("%s: key %v not at %d", ch.Reason, ch.Key, i)
		}
		return nil
	}
	for _, ch := range cs {
		switch ch.Reason {
		case changeset.Add:
			if ch.CurrentIndex < 0 || ch.CurrentIndex > len(seq) {
				return nil, nil, fmt.Errorf("add: index %d out of range %d", ch.CurrentIndex, len(seq))
			}
			seq = changeset.InsertAt(seq, ch.CurrentIndex, entry[K, R]{Key: ch.Key, Value: ch.Current})
		case changeset.Remove:
			if err := at(ch.CurrentIndex, ch); err != nil {
				return nil, nil, err
			}
			evicted = append(evicted, seq[ch.CurrentIndex].Value)
			seq = changeset.RemoveAt(seq, ch.CurrentIndex)
		case changeset.Update, changeset.Move:
			if err := at(ch.PreviousIndex, ch); err != nil {
				return nil, nil, err
			}
			held := seq[ch.PreviousIndex].Value
			seq = changeset.RemoveAt(seq, ch.PreviousIndex)
			if ch.CurrentIndex < 0 || ch.CurrentIndex > len(seq) {
				return nil, nil, fmt.Errorf("%s: index %d out of range %d", ch.Reason, ch.CurrentIndex, len(seq))
			}
			if ch.Reason == changeset.Update {
				evicted = append(evicted, held)
				held = ch.Current
			}
			seq = changeset.InsertAt(seq, ch.CurrentIndex, entry[K, R]{Key: ch.Key, Value: held})
		case changeset.Refresh:
			if err := at(ch.CurrentIndex, ch); err != nil {
				return nil, nil, err
			}
		}
	}
	return seq, evicted, nil
}

func (b *Binder[K, R]) notify(notes []Notification[K]) {
	b.subsMu.Lock()
	subs := make([]func([]Notification[K]), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.subsMu.Unlock()
	for _, fn := range subs {
		fn(notes)
	}
}

// Subscribe registers fn for every applied change set. Calls happen on the
// dispatcher after the sequence has been updated. The returned function
// unsubscribes.
func (b *Binder[K, R]) Subscribe(fn func([]Notification[K])) func() {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	return func() {
		b.subsMu.Lock()
		delete(b.subs, id)
		b.subsMu.Unlock()
	}
}

// Items returns the bound values in order.
func (b *Binder[K, R]) Items() []R {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]R, len(b.seq))
	for i, e := range b.seq {
		out[i] = e.Value.Value()
	}
	return out
}

// Keys returns the bound keys in order.
func (b *Binder[K, R]) Keys() []K {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]K, len(b.seq))
	for i, e := range b.seq {
		out[i] = e.Key
	}
	return out
}

// Len returns the number of bound items.
func (b *Binder[K, R]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.seq)
}

// Applied returns how many change sets have been applied.
func (b *Binder[K, R]) Applied() uint64 { return b.applied.Load() }

// Barrier runs fn on the dispatcher after everything pushed so far.
func (b *Binder[K, R]) Barrier(fn func()) { b.dispatch(fn) }

// Reset empties the sequence, notifying removals from the last index down,
// and releases every bound projection.
func (b *Binder[K, R]) Reset() {
	b.dispatch(func() {
		held := b.take()
		if len(held) == 0 {
			return
		}
		notes := make([]Notification[K], 0, len(held))
		for i := len(held) - 1; i >= 0; i-- {
			notes = append(notes, Notification[K]{
				Reason:        changeset.Remove,
				Kind:          changeset.Remove.String(),
				Key:           held[i].Key,
				Index:         i,
				PreviousIndex: changeset.Unindexed,
			})
		}
		b.notify(notes)
		release(held)
	})
}

// Close stops accepting change sets and releases every bound projection
// once everything already pushed has been applied. Safe to call repeatedly.
func (b *Binder[K, R]) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.dispatch(func() {
		release(b.take())
		b.subsMu.Lock()
		clear(b.subs)
		b.subsMu.Unlock()
	})
}

func (b *Binder[K, R]) take() []entry[K, R] {
	b.mu.Lock()
	defer b.mu.Unlock()
	held := b.seq
	b.seq = nil
	return held
}

func release[K comparable, R any](held []entry[K, R]) {
	for _, e := range held {
		e.Value.Release()
	}
}
