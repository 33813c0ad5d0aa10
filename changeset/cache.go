package changeset

import (
	"fmt"

	"github.com/kbukum/liveview/errors"
)

// Cache is a keyed store iterated in insertion order. Updating a key keeps
// its position; removing and re-adding moves it to the end.
type Cache[K comparable, V any] struct {
	index map[K]int
	slots []slot[K, V]
	dead  int
}

type slot[K comparable, V any] struct {
	key   K
	value V
	live  bool
}

// NewCache returns an empty cache.
func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{index: make(map[K]int)}
}

// Lookup returns the value stored for key.
func (c *Cache[K, V]) Lookup(key K) (V, bool) {
	if i, ok := c.index[key]; ok {
		return c.slots[i].value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key is present.
func (c *Cache[K, V]) Contains(key K) bool {
	_, ok := c.index[key]
	return ok
}

// Set inserts or replaces the value for key and reports whether it was present.
func (c *Cache[K, V]) Set(key K, v V) (replaced bool) {
	if i, ok := c.index[key]; ok {
		c.slots[i].value = v
		return true
	}
	c.index[key] = len(c.slots)
	c.slots = append(c.slots, slot[K, V]{key: key, value: v, live: true})
	return false
}

// Remove deletes key and returns the value it held.
func (c *Cache[K, V]) Remove(key K) (V, bool) {
	i, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	v := c.slots[i].value
	delete(c.index, key)
	c.slots[i] = slot[K, V]{}
	c.dead++
	if c.dead > 32 && c.dead*2 > len(c.slots) {
		c.compact()
	}
	return v, true
}

func (c *Cache[K, V]) compact() {
	live := make([]slot[K, V], 0, len(c.index))
	for _, s := range c.slots {
		if s.live {
			c.index[s.key] = len(live)
			live = append(live, s)
		}
	}
	c.slots = live
	c.dead = 0
}

// Len returns the number of keys.
func (c *Cache[K, V]) Len() int { return len(c.index) }

// Range calls fn for each entry in insertion order until fn returns false.
// fn must not mutate the cache.
func (c *Cache[K, V]) Range(fn func(key K, v V) bool) {
	for _, s := range c.slots {
		if s.live && !fn(s.key, s.value) {
			return
		}
	}
}

// Keys returns the keys in insertion order.
func (c *Cache[K, V]) Keys() []K {
	out := make([]K, 0, len(c.index))
	c.Range(func(k K, _ V) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Values returns the values in insertion order.
func (c *Cache[K, V]) Values() []V {
	out := make([]V, 0, len(c.index))
	c.Range(func(_ K, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Clear removes every entry.
func (c *Cache[K, V]) Clear() {
	c.index = make(map[K]int)
	c.slots = nil
	c.dead = 0
}

// Clone returns an independent copy with the same iteration order.
func (c *Cache[K, V]) Clone() *Cache[K, V] {
	out := NewCache[K, V]()
	c.Range(func(k K, v V) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// Apply applies an unindexed change set. It fails without mutating the
// cache when the set contradicts it: Add of a present key, Update, Refresh
// or Remove of an absent key, or a duplicate key.
func (c *Cache[K, V]) Apply(cs ChangeSet[K, V]) error {
	if err := c.Check(cs); err != nil {
		return err
	}
	for _, ch := range cs {
		switch ch.Reason {
		case Add, Update:
			c.Set(ch.Key, ch.Current)
		case Remove:
			c.Remove(ch.Key)
		}
	}
	return nil
}

// Check reports whether Apply would succeed.
func (c *Cache[K, V]) Check(cs ChangeSet[K, V]) error {
	if err := cs.Validate(); err != nil {
		return err
	}
	for _, ch := range cs {
		present := c.Contains(ch.Key)
		switch ch.Reason {
		case Add:
			if present {
				return errors.InvariantViolation("cache", fmt.Sprintf("add of present key %v", ch.Key))
			}
		case Update, Remove, Refresh, Move:
			if !present {
				return errors.InvariantViolation("cache", fmt.Sprintf("%s of absent key %v", ch.Reason, ch.Key))
			}
		}
	}
	return nil
}
