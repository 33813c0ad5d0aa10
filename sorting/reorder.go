package sorting

import (
	"github.com/kbukum/liveview/changeset"
)

// Reorder returns the Move changes that turn from into to, with sequential
// indices. Both must hold the same keys. Items on a longest increasing
// subsequence of old positions stay put; every other item is moved right
// after its new predecessor, in increasing order of new position.
//
// Every move lands directly after a slot nothing else is inserted after, so
// the order of all slots ever occupied is known up front. Indices are then
// occupied-slot counts from a Fenwick tree: O(n log n) overall.
func Reorder[K comparable, V any](from, to []changeset.Entry[K, V]) changeset.ChangeSet[K, V] {
	n := len(from)
	oldPos := make(map[K]int, n)
	for i, e := range from {
		oldPos[e.Key] = i
	}
	seq := make([]int, len(to))
	for j, e := range to {
		seq[j] = oldPos[e.Key]
	}
	keep := longestIncreasing(seq)

	// Slot 0 is the front, slot i+1 old position i, later slots are move
	// targets. after[s] is the slot inserted directly behind s, or -1.
	slotOf := make([]int, len(to))
	for j := range to {
		slotOf[j] = seq[j] + 1
	}
	after := make([]int, n+1, 2*n+1)
	for i := range after {
		after[i] = -1
	}
	src := make([]int, len(to))
	for j := range to {
		if keep[j] {
			continue
		}
		pred := 0
		if j > 0 {
			pred = slotOf[j-1]
		}
		src[j] = slotOf[j]
		slotOf[j] = len(after)
		after[pred] = slotOf[j]
		after = append(after, -1)
	}

	rank := make([]int, len(after))
	next := 0
	for s := 0; s <= n; s++ {
		for c := s; c != -1; c = after[c] {
			rank[c] = next
			next++
		}
	}

	occupied := newFenwick(len(after))
	for i := 1; i <= n; i++ {
		occupied.add(rank[i], 1)
	}

	var moves changeset.ChangeSet[K, V]
	for j, e := range to {
		if keep[j] {
			continue
		}
		cur := occupied.before(rank[src[j]])
		occupied.add(rank[src[j]], -1)
		dest := occupied.before(rank[slotOf[j]])
		occupied.add(rank[slotOf[j]], 1)
		if dest != cur {
			moves = append(moves, changeset.NewMove(e.Key, e.Value, dest, cur))
		}
	}
	return moves
}

// fenwick counts occupied slots by rank.
type fenwick []int

func newFenwick(n int) fenwick { return make(fenwick, n+1) }

func (f fenwick) add(i, d int) {
	for i++; i < len(f); i += i & -i {
		f[i] += d
	}
}

// before returns the count at ranks strictly below i.
func (f fenwick) before(i int) int {
	sum := 0
	for ; i > 0; i -= i & -i {
		sum += f[i]
	}
	return sum
}
