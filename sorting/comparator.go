package sorting

import "cmp"

// Comparator orders values. StableOnImmutableKeys promises that an update
// comparing equal to its previous value keeps its position, so the stage
// may replace it in place.
type Comparator[V any] struct {
	Name                  string
	Compare               func(a, b V) int
	StableOnImmutableKeys bool
}

// Ascending orders by field.
func Ascending[V any, T cmp.Ordered](name string, field func(V) T) Comparator[V] {
	return Comparator[V]{Name: name, Compare: func(a, b V) int { return cmp.Compare(field(a), field(b)) }}
}

// Descending orders by field, largest first.
func Descending[V any, T cmp.Ordered](name string, field func(V) T) Comparator[V] {
	return Comparator[V]{Name: name, Compare: func(a, b V) int { return cmp.Compare(field(b), field(a)) }}
}

// Then breaks ties of c with next.
func (c Comparator[V]) Then(next Comparator[V]) Comparator[V] {
	return Comparator[V]{
		Name:                  c.Name + "," + next.Name,
		StableOnImmutableKeys: c.StableOnImmutableKeys && next.StableOnImmutableKeys,
		Compare: func(a, b V) int {
			if r := c.Compare(a, b); r != 0 {
				return r
			}
			return next.Compare(a, b)
		},
	}
}

// Stable returns c with StableOnImmutableKeys set.
func (c Comparator[V]) Stable() Comparator[V] {
	c.StableOnImmutableKeys = true
	return c
}

// Project lifts a comparator over W to one over V.
func Project[V, W any](c Comparator[W], fn func(V) W) Comparator[V] {
	return Comparator[V]{
		Name:                  c.Name,
		StableOnImmutableKeys: c.StableOnImmutableKeys,
		Compare:               func(a, b V) int { return c.Compare(fn(a), fn(b)) },
	}
}

// Unordered compares everything equal; the stage then orders by key.
func Unordered[V any]() Comparator[V] {
	return Comparator[V]{Name: "key", Compare: func(V, V) int { return 0 }, StableOnImmutableKeys: true}
}
