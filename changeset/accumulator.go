package changeset

// Accumulator merges successive changes into at most one change per key, so
// that applying its result equals applying the raw sequence.
//
//	Add     then Update  -> Add(latest)
//	Add     then Remove  -> nothing
//	Update  then Update  -> Update(latest, original previous)
//	Update  then Remove  -> Remove(original previous)
//	Remove  then Add     -> Update(latest, removed value)
//	Refresh then X       -> X
//	X       then Refresh -> X, value kept
//
// The Remove then Add rule assumes the consumer never observed the removal.
type Accumulator[K comparable, V any] struct {
	pending *Cache[K, Change[K, V]]
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator[K comparable, V any]() *Accumulator[K, V] {
	return &Accumulator[K, V]{pending: NewCache[K, Change[K, V]]()}
}

// Push merges every change of cs.
func (a *Accumulator[K, V]) Push(cs ChangeSet[K, V]) {
	for _, ch := range cs {
		a.PushChange(ch)
	}
}

// PushChange merges one change. Indices are dropped.
func (a *Accumulator[K, V]) PushChange(next Change[K, V]) {
	next = next.At(Unindexed, Unindexed)
	prev, ok := a.pending.Lookup(next.Key)
	if !ok || next.Reason == Move {
		if next.Reason != Move {
			a.pending.Set(next.Key, next)
		}
		return
	}

	merged, keep := merge(prev, next)
	if !keep {
		a.pending.Remove(next.Key)
		return
	}
	a.pending.Set(next.Key, merged)
}

func merge[K comparable, V any](prev, next Change[K, V]) (Change[K, V], bool) {
	switch prev.Reason {
	case Add:
		switch next.Reason {
		case Update, Add:
			return NewAdd(next.Key, next.Current), true
		case Remove:
			return Change[K, V]{}, false
		}
		return prev, true
	case Update:
		switch next.Reason {
		case Update, Add:
			return NewUpdate(next.Key, next.Current, prev.Previous), true
		case Remove:
			return NewRemove(next.Key, prev.Previous), true
		case Refresh:
			return prev, true
		}
	case Remove:
		if next.Reason == Add || next.Reason == Update {
			return NewUpdate(next.Key, next.Current, prev.Current), true
		}
		return prev, true
	case Refresh:
		return next, true
	}
	return next, true
}

// Len returns the number of pending keys.
func (a *Accumulator[K, V]) Len() int { return a.pending.Len() }

// Flush returns the merged set in first-touch order and resets the accumulator.
func (a *Accumulator[K, V]) Flush() ChangeSet[K, V] {
	if a.pending.Len() == 0 {
		return nil
	}
	out := make(ChangeSet[K, V], 0, a.pending.Len())
	a.pending.Range(func(_ K, ch Change[K, V]) bool {
		out = append(out, ch)
		return true
	})
	a.pending.Clear()
	return out
}
