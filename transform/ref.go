package transform

import (
	"fmt"
	"sync"
)

// Ref is a reference-counted handle to a projected value. The release
// function runs exactly once, when the last holder lets go.
type Ref[R any] struct {
	mu       sync.Mutex
	value    R
	refs     int
	release  func(R)
	released bool
}

// NewRef returns a handle holding one reference.
func NewRef[R any](value R, release func(R)) *Ref[R] {
	return &Ref[R]{value: value, refs: 1, release: release}
}

// Value returns the projected value.
func (r *Ref[R]) Value() R { return r.value }

// Retain adds a reference. Retaining a released handle panics.
func (r *Ref[R]) Retain() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		panic(fmt.Sprintf("transform: retain of released projection %v", r.value))
	}
	r.refs++
}

// Release drops a reference and runs the release function when none are left.
// Extra releases are ignored.
func (r *Ref[R]) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.refs--
	if r.refs > 0 {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.mu.Unlock()

	if r.release != nil {
		r.release(r.value)
	}
}

// Refs returns the current reference count.
func (r *Ref[R]) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}

// Released reports whether the release function has run.
func (r *Ref[R]) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

func (r *Ref[R]) String() string {
	return fmt.Sprintf("ref(%v)", r.value)
}
