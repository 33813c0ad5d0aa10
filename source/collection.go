package source

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/liveview/changeset"
	"github.com/kbukum/liveview/logger"
)

// Collection is a keyed, mutable set of records. Every mutation is
// published to subscribers as one ChangeSet.
//
// Writers may call from any goroutine; a mutation lock serializes them and
// subscribers are invoked while it is held, one emission at a time.
// Subscriber callbacks must not call back into the collection.
type Collection[K comparable, V any] struct {
	mu    sync.Mutex
	keyOf func(V) K
	equal func(a, b V) bool
	items *changeset.Cache[K, V]
	subs  []*subscriber[K, V]
	log   *logger.Logger
}

type subscriber[K comparable, V any] struct {
	sub *Subscription
	fn  func(changeset.ChangeSet[K, V])
}

// Option configures a Collection.
type Option[K comparable, V any] func(*Collection[K, V])

// WithEquality makes AddOrUpdate a no-op when the stored value equals the
// new one.
func WithEquality[K comparable, V any](equal func(a, b V) bool) Option[K, V] {
	return func(c *Collection[K, V]) { c.equal = equal }
}

// WithLogger sets the logger.
func WithLogger[K comparable, V any](l *logger.Logger) Option[K, V] {
	return func(c *Collection[K, V]) { c.log = l }
}

// New creates an empty collection keyed by keyOf.
func New[K comparable, V any](keyOf func(V) K, opts ...Option[K, V]) *Collection[K, V] {
	c := &Collection[K, V]{
		keyOf: keyOf,
		items: changeset.NewCache[K, V](),
		log:   logger.Get("source"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddOrUpdate inserts or replaces items.
func (c *Collection[K, V]) AddOrUpdate(items ...V) {
	c.Edit(func(u *Updater[K, V]) {
		for _, v := range items {
			u.AddOrUpdate(v)
		}
	})
}

// Remove deletes the given keys; unknown keys are ignored.
func (c *Collection[K, V]) Remove(keys ...K) {
	c.Edit(func(u *Updater[K, V]) {
		for _, k := range keys {
			u.Remove(k)
		}
	})
}

// Refresh asks downstream stages to re-evaluate the given keys, for values
// mutated in place.
func (c *Collection[K, V]) Refresh(keys ...K) {
	c.Edit(func(u *Updater[K, V]) {
		for _, k := range keys {
			u.Refresh(k)
		}
	})
}

// Clear removes every item.
func (c *Collection[K, V]) Clear() {
	c.Edit(func(u *Updater[K, V]) { u.Clear() })
}

// Edit applies many mutations under one lock and publishes them as a single
// ChangeSet. Mutations of the same key inside fn are collapsed.
func (c *Collection[K, V]) Edit(fn func(u *Updater[K, V])) {
	c.mu.Lock()
	defer c.mu.Unlock()

	u := &Updater[K, V]{c: c, acc: changeset.NewAccumulator[K, V]()}
	fn(u)
	if cs := u.acc.Flush(); len(cs) > 0 {
		c.publish(cs)
	}
}

func (c *Collection[K, V]) publish(cs changeset.ChangeSet[K, V]) {
	for _, s := range c.subs {
		s.fn(cs)
	}
}

// Lookup returns the item stored under key.
func (c *Collection[K, V]) Lookup(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Lookup(key)
}

// Count returns the number of items.
func (c *Collection[K, V]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// Items returns a snapshot of the items in insertion order.
func (c *Collection[K, V]) Items() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Values()
}

// Connect subscribes fn. The current contents are delivered first as one
// Add ChangeSet (skipped when empty), atomically with respect to writers.
func (c *Collection[K, V]) Connect(fn func(changeset.ChangeSet[K, V])) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.items.Len() > 0 {
		snapshot := make(changeset.ChangeSet[K, V], 0, c.items.Len())
		c.items.Range(func(k K, v V) bool {
			snapshot = append(snapshot, changeset.NewAdd(k, v))
			return true
		})
		fn(snapshot)
	}

	s := &Subscription{id: uuid.NewString()}
	s.detach = func() { c.unsubscribe(s) }
	c.subs = append(c.subs, &subscriber[K, V]{sub: s, fn: fn})
	c.log.Debug("subscriber connected", logger.Fields("subscription", s.id, logger.FieldCount, len(c.subs)))
	return s
}

func (c *Collection[K, V]) unsubscribe(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cur := range c.subs {
		if cur.sub == s {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			break
		}
	}
	c.log.Debug("subscriber disconnected", logger.Fields("subscription", s.id, logger.FieldCount, len(c.subs)))
}

// Updater mutates a Collection inside Edit.
type Updater[K comparable, V any] struct {
	c   *Collection[K, V]
	acc *changeset.Accumulator[K, V]
}

// AddOrUpdate inserts or replaces v.
func (u *Updater[K, V]) AddOrUpdate(v V) {
	key := u.c.keyOf(v)
	old, exists := u.c.items.Lookup(key)
	if exists && u.c.equal != nil && u.c.equal(old, v) {
		return
	}
	u.c.items.Set(key, v)
	if exists {
		u.acc.PushChange(changeset.NewUpdate(key, v, old))
	} else {
		u.acc.PushChange(changeset.NewAdd(key, v))
	}
}

// Remove deletes key if present.
func (u *Updater[K, V]) Remove(key K) {
	if old, ok := u.c.items.Remove(key); ok {
		u.acc.PushChange(changeset.NewRemove(key, old))
	}
}

// Refresh marks key for re-evaluation if present.
func (u *Updater[K, V]) Refresh(key K) {
	if v, ok := u.c.items.Lookup(key); ok {
		u.acc.PushChange(changeset.NewRefresh(key, v))
	}
}

// Clear removes every item.
func (u *Updater[K, V]) Clear() {
	for _, k := range u.c.items.Keys() {
		u.Remove(k)
	}
}

// Lookup reads the current value, including edits made so far.
func (u *Updater[K, V]) Lookup(key K) (V, bool) {
	return u.c.items.Lookup(key)
}

// Keys lists the current keys in insertion order, including edits made so
// far.
func (u *Updater[K, V]) Keys() []K {
	return u.c.items.Keys()
}

// Subscription detaches a subscriber from its collection.
type Subscription struct {
	id     string
	once   sync.Once
	detach func()
}

// ID returns the subscription identifier used in logs.
func (s *Subscription) ID() string { return s.id }

// Close detaches the subscriber. It is safe to call more than once and
// must not be called from inside the subscriber callback.
func (s *Subscription) Close() {
	s.once.Do(s.detach)
}
