package filter

// Predicate decides membership. An error counts as a non-match.
type Predicate[V any] func(V) (bool, error)

// All matches every item.
func All[V any]() Predicate[V] {
	return func(V) (bool, error) { return true, nil }
}

// Match adapts an infallible test.
func Match[V any](fn func(V) bool) Predicate[V] {
	return func(v V) (bool, error) { return fn(v), nil }
}
