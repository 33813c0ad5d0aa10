// Package feed holds timing and shaping operators over plain channels, used
// to condition control streams (search text, page requests, sort choices)
// before they reach a view.
//
// Every operator starts one goroutine that ends, closing its output, when
// the input closes or ctx is done.
package feed

import (
	"context"
	"time"
)

// send delivers v unless ctx ends first.
func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// Debounce emits the latest value once d has passed without a new one. A
// value still pending when in closes is flushed.
func Debounce[T any](ctx context.Context, in <-chan T, d time.Duration) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		var latest T
		pending := false
		timer := time.NewTimer(d)
		timer.Stop()
		defer timer.Stop()

		for {
			select {
			case v, ok := <-in:
				if !ok {
					if pending {
						send(ctx, out, latest)
					}
					return
				}
				latest, pending = v, true
				timer.Reset(d)
			case <-timer.C:
				if pending {
					pending = false
					if !send(ctx, out, latest) {
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Sample emits the latest value seen during each period, skipping periods
// with no new value.
func Sample[T any](ctx context.Context, in <-chan T, period time.Duration) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		var latest T
		fresh := false

		for {
			select {
			case v, ok := <-in:
				if !ok {
					if fresh {
						send(ctx, out, latest)
					}
					return
				}
				latest, fresh = v, true
			case <-ticker.C:
				if fresh {
					fresh = false
					if !send(ctx, out, latest) {
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Throttle emits the first value of every interval and drops the rest.
func Throttle[T any](ctx context.Context, in <-chan T, interval time.Duration) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		var last time.Time
		for {
			select {
			case v, ok := <-in:
				if !ok {
					return
				}
				now := time.Now()
				if !last.IsZero() && now.Sub(last) < interval {
					continue
				}
				last = now
				if !send(ctx, out, v) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Distinct drops values equal to the one emitted just before.
func Distinct[T comparable](ctx context.Context, in <-chan T) <-chan T {
	return DistinctFunc(ctx, in, func(a, b T) bool { return a == b })
}

// DistinctFunc is Distinct with a custom equality.
func DistinctFunc[T any](ctx context.Context, in <-chan T, equal func(a, b T) bool) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		var prev T
		seen := false
		for {
			select {
			case v, ok := <-in:
				if !ok {
					return
				}
				if seen && equal(prev, v) {
					continue
				}
				prev, seen = v, true
				if !send(ctx, out, v) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Map applies fn to every value.
func Map[I, O any](ctx context.Context, in <-chan I, fn func(I) O) <-chan O {
	out := make(chan O)
	go func() {
		defer close(out)
		for {
			select {
			case v, ok := <-in:
				if !ok {
					return
				}
				if !send(ctx, out, fn(v)) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// StartWith emits first, then everything from in.
func StartWith[T any](ctx context.Context, in <-chan T, first ...T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for _, v := range first {
			if !send(ctx, out, v) {
				return
			}
		}
		for {
			select {
			case v, ok := <-in:
				if !ok {
					return
				}
				if !send(ctx, out, v) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
