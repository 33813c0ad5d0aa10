package filter

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/kbukum/liveview/changeset"
	lverrors "github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
)

type sink struct {
	sets []changeset.ChangeSet[string, int]
}

func (s *sink) push(cs changeset.ChangeSet[string, int]) { s.sets = append(s.sets, cs) }

func (s *sink) last() changeset.ChangeSet[string, int] {
	if len(s.sets) == 0 {
		return nil
	}
	return s.sets[len(s.sets)-1]
}

func atLeast(n int) Predicate[int] {
	return Match(func(v int) bool { return v >= n })
}

func TestPushTransitions(t *testing.T) {
	out := &sink{}
	s := New(atLeast(2), out.push, logger.Nop())

	must(t, s.Push(changeset.ChangeSet[string, int]{
		changeset.NewAdd("a", 1),
		changeset.NewAdd("b", 3),
	}))
	if got := describe(out.last()); got != "[add(b)]" {
		t.Fatalf("got %s", got)
	}

	tests := []struct {
		name string
		in   changeset.Change[string, int]
		want string
	}{
		{"out to in", changeset.NewUpdate("a", 5, 1), "[add(a)]"},
		{"in to in", changeset.NewUpdate("a", 6, 5), "[update(a)]"},
		{"refresh member", changeset.NewRefresh("a", 6), "[refresh(a)]"},
		{"in to out", changeset.NewUpdate("b", 0, 3), "[remove(b)]"},
		{"remove non-member", changeset.NewRemove("b", 0), ""},
		{"remove member", changeset.NewRemove("a", 6), "[remove(a)]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(out.sets)
			must(t, s.Push(changeset.ChangeSet[string, int]{tt.in}))
			if tt.want == "" {
				if len(out.sets) != before {
					t.Errorf("expected no output, got %s", describe(out.last()))
				}
				return
			}
			if got := describe(out.last()); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUpdateCarriesCachedPrevious(t *testing.T) {
	out := &sink{}
	s := New(All[int](), out.push, logger.Nop())
	must(t, s.Push(changeset.ChangeSet[string, int]{changeset.NewAdd("a", 1)}))
	must(t, s.Push(changeset.ChangeSet[string, int]{changeset.NewUpdate("a", 2, 1)}))
	if ch := out.last()[0]; ch.Previous != 1 || ch.Current != 2 {
		t.Errorf("unexpected update %+v", ch)
	}
}

func TestSetPredicateEmitsOneDiffInCacheOrder(t *testing.T) {
	out := &sink{}
	s := New(All[int](), out.push, logger.Nop())
	must(t, s.Push(changeset.ChangeSet[string, int]{
		changeset.NewAdd("a", 1), changeset.NewAdd("b", 5), changeset.NewAdd("c", 2),
	}))
	out.sets = nil

	s.SetPredicate(atLeast(2))
	if len(out.sets) != 1 || describe(out.last()) != "[remove(a)]" {
		t.Fatalf("got %v", out.sets)
	}
	s.SetPredicate(Match(func(v int) bool { return v != 5 }))
	if got := describe(out.last()); got != "[add(a) remove(b)]" {
		t.Errorf("got %s", got)
	}
	if fmt.Sprint(s.Members()) != "[1 2]" || s.Len() != 2 {
		t.Errorf("unexpected members %v", s.Members())
	}

	out.sets = nil
	s.SetPredicate(Match(func(v int) bool { return v != 5 }))
	if len(out.sets) != 0 {
		t.Error("unchanged membership must not emit")
	}
}

func TestPredicateErrorsAndPanicsAreNonMatches(t *testing.T) {
	out := &sink{}
	pred := Predicate[int](func(v int) (bool, error) {
		switch v {
		case 13:
			return false, errors.New("unlucky")
		case 66:
			panic("boom")
		}
		return true, nil
	})
	s := New(pred, out.push, logger.Nop())
	must(t, s.Push(changeset.ChangeSet[string, int]{
		changeset.NewAdd("a", 1), changeset.NewAdd("b", 13), changeset.NewAdd("c", 66),
	}))
	if got := describe(out.last()); got != "[add(a)]" {
		t.Errorf("got %s", got)
	}
}

func TestInvariantViolationLeavesStageUntouched(t *testing.T) {
	out := &sink{}
	s := New(All[int](), out.push, logger.Nop())
	must(t, s.Push(changeset.ChangeSet[string, int]{changeset.NewAdd("a", 1)}))

	err := s.Push(changeset.ChangeSet[string, int]{changeset.NewAdd("b", 2), changeset.NewAdd("a", 1)})
	if !lverrors.HasCode(err, lverrors.ErrCodeInvariantViolation) {
		t.Fatalf("expected INVARIANT_VIOLATION, got %v", err)
	}
	if s.Len() != 1 || len(out.sets) != 1 {
		t.Errorf("stage mutated on failure: len=%d sets=%d", s.Len(), len(out.sets))
	}

	s.Reset()
	if s.Len() != 0 || len(s.Members()) != 0 {
		t.Error("reset should clear the stage")
	}
}

// Incremental membership must match filtering the final items from scratch,
// and the emitted sets must rebuild it downstream.
func TestDiffConsistency(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for round := range 100 {
		downstream := changeset.NewCache[string, int]()
		var pushErr error
		s := New(atLeast(50), func(cs changeset.ChangeSet[string, int]) {
			if err := downstream.Apply(cs); err != nil && pushErr == nil {
				pushErr = err
			}
		}, logger.Nop())
		truth := map[string]int{}

		for step := range 40 {
			var cs changeset.ChangeSet[string, int]
			touched := map[string]bool{}
			for range 1 + rng.IntN(4) {
				k := fmt.Sprintf("k%d", rng.IntN(12))
				if touched[k] {
					continue
				}
				touched[k] = true
				old, ok := truth[k]
				switch {
				case !ok:
					v := rng.IntN(100)
					truth[k] = v
					cs = append(cs, changeset.NewAdd(k, v))
				case rng.IntN(3) == 0:
					delete(truth, k)
					cs = append(cs, changeset.NewRemove(k, old))
				default:
					v := rng.IntN(100)
					truth[k] = v
					cs = append(cs, changeset.NewUpdate(k, v, old))
				}
			}
			must(t, s.Push(cs))
			if step%10 == 9 {
				threshold := rng.IntN(100)
				s.SetPredicate(atLeast(threshold))
				checkAgainst(t, round, downstream, truth, threshold)
			}
		}
		if pushErr != nil {
			t.Fatalf("round %d: downstream apply: %v", round, pushErr)
		}
	}
}

func checkAgainst(t *testing.T, round int, got *changeset.Cache[string, int], truth map[string]int, threshold int) {
	t.Helper()
	want := 0
	for k, v := range truth {
		if v < threshold {
			continue
		}
		want++
		if gv, ok := got.Lookup(k); !ok || gv != v {
			t.Fatalf("round %d: key %s want %d, got %d (%v)", round, k, v, gv, ok)
		}
	}
	if got.Len() != want {
		t.Fatalf("round %d: downstream has %d items, want %d", round, got.Len(), want)
	}
}

func describe(cs changeset.ChangeSet[string, int]) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = fmt.Sprintf("%s(%s)", c.Reason, c.Key)
	}
	return fmt.Sprint(parts)
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
