package changeset

import (
	"fmt"
	"testing"

	"github.com/kbukum/liveview/errors"
)

func TestReasonString(t *testing.T) {
	tests := []struct {
		reason Reason
		want   string
	}{
		{Add, "add"}, {Update, "update"}, {Remove, "remove"}, {Refresh, "refresh"}, {Move, "move"},
		{Reason(42), "reason(42)"},
	}
	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.want {
			t.Errorf("%d: got %q, want %q", int(tt.reason), got, tt.want)
		}
	}
}

func TestConstructorsAreUnindexed(t *testing.T) {
	for _, c := range []Change[string, int]{
		NewAdd("a", 1), NewUpdate("a", 2, 1), NewRemove("a", 1), NewRefresh("a", 1),
	} {
		if c.Indexed() {
			t.Errorf("%v should be unindexed", c)
		}
	}
	m := NewMove("a", 1, 3, 0)
	if !m.Indexed() || m.CurrentIndex != 3 || m.PreviousIndex != 0 {
		t.Errorf("unexpected move %v", m)
	}
	if got := NewAdd("a", 1).At(2, Unindexed).String(); got != "add(a @2<--1)" {
		t.Errorf("unexpected string %q", got)
	}
}

func TestChangeSetValidateAndCounts(t *testing.T) {
	cs := ChangeSet[string, int]{NewAdd("a", 1), NewAdd("b", 2), NewRemove("c", 3)}
	if err := cs.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Count(Add) != 2 || cs.Count(Remove) != 1 || cs.Count(Move) != 0 {
		t.Errorf("unexpected counts %v", cs.Counts())
	}
	if fmt.Sprint(cs.Keys()) != "[a b c]" {
		t.Errorf("unexpected keys %v", cs.Keys())
	}

	dup := append(cs, NewUpdate("a", 5, 1))
	if !errors.HasCode(dup.Validate(), errors.ErrCodeInvariantViolation) {
		t.Error("expected duplicate key to be rejected")
	}
}

func TestCacheInsertionOrder(t *testing.T) {
	c := NewCache[string, int]()
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Set("a", 10)
	c.Remove("b")
	c.Set("b", 20)

	if got := fmt.Sprint(c.Keys()); got != "[a c b]" {
		t.Errorf("got %s, want [a c b]", got)
	}
	if got := fmt.Sprint(c.Values()); got != "[10 3 20]" {
		t.Errorf("got %s, want [10 3 20]", got)
	}
	if v, ok := c.Lookup("a"); !ok || v != 10 {
		t.Errorf("Lookup(a) = %d, %v", v, ok)
	}
}

func TestCacheCompaction(t *testing.T) {
	c := NewCache[int, int]()
	for i := range 200 {
		c.Set(i, i)
	}
	for i := range 150 {
		c.Remove(i)
	}
	if c.Len() != 50 {
		t.Fatalf("expected 50, got %d", c.Len())
	}
	if len(c.slots) >= 200 {
		t.Errorf("expected compaction, still %d slots", len(c.slots))
	}
	prev := 149
	c.Range(func(k, v int) bool {
		if k <= prev {
			t.Fatalf("order broken at %d", k)
		}
		prev = k
		return true
	})
}

func TestCacheApply(t *testing.T) {
	c := NewCache[string, int]()
	if err := c.Apply(ChangeSet[string, int]{NewAdd("a", 1), NewAdd("b", 2)}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cs   ChangeSet[string, int]
	}{
		{"add present", ChangeSet[string, int]{NewAdd("a", 9)}},
		{"update absent", ChangeSet[string, int]{NewUpdate("z", 1, 0)}},
		{"remove absent", ChangeSet[string, int]{NewRemove("z", 0)}},
		{"refresh absent", ChangeSet[string, int]{NewRefresh("z", 0)}},
		{"duplicate", ChangeSet[string, int]{NewUpdate("a", 2, 1), NewRemove("a", 2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := fmt.Sprint(c.Keys(), c.Values())
			err := c.Apply(tt.cs)
			if !errors.HasCode(err, errors.ErrCodeInvariantViolation) {
				t.Fatalf("expected INVARIANT_VIOLATION, got %v", err)
			}
			if after := fmt.Sprint(c.Keys(), c.Values()); after != before {
				t.Errorf("cache mutated on failure: %s -> %s", before, after)
			}
		})
	}
}

func TestCacheCloneIsIndependent(t *testing.T) {
	c := NewCache[string, int]()
	c.Set("a", 1)
	clone := c.Clone()
	clone.Set("b", 2)
	c.Clear()
	if c.Len() != 0 || clone.Len() != 2 {
		t.Errorf("clone not independent: %d %d", c.Len(), clone.Len())
	}
}

func TestApplyIndexedSequential(t *testing.T) {
	seq := entries("a", "b", "c")
	cs := ChangeSet[string, int]{
		NewRemove("a", 0).At(0, Unindexed),  // [b c]
		NewAdd("d", 0).At(1, Unindexed),     // [b d c]
		NewMove("c", 0, 0, 2),               // [c b d]
		NewUpdate("b", 7, 0).At(2, 1),       // [c d b]
		NewRefresh("d", 9).At(1, Unindexed), // [c d b]
	}
	got, err := ApplyIndexed(seq, cs)
	if err != nil {
		t.Fatal(err)
	}
	if keysOf(got) != "[c d b]" {
		t.Errorf("got %s, want [c d b]", keysOf(got))
	}
	if got[2].Value != 7 || got[1].Value != 9 {
		t.Errorf("values not applied: %+v", got)
	}
}

func TestApplyIndexedRejectsWrongKey(t *testing.T) {
	_, err := ApplyIndexed(entries("a", "b"), ChangeSet[string, int]{NewRemove("b", 0).At(0, Unindexed)})
	if !errors.HasCode(err, errors.ErrCodeInvariantViolation) {
		t.Errorf("expected INVARIANT_VIOLATION, got %v", err)
	}
	_, err = ApplyIndexed(entries("a"), ChangeSet[string, int]{NewAdd("b", 0).At(5, Unindexed)})
	if err == nil {
		t.Error("expected out of range error")
	}
}

func entries(keys ...string) []Entry[string, int] {
	out := make([]Entry[string, int], len(keys))
	for i, k := range keys {
		out[i] = Entry[string, int]{Key: k}
	}
	return out
}

func keysOf(seq []Entry[string, int]) string {
	keys := make([]string, len(seq))
	for i, e := range seq {
		keys[i] = e.Key
	}
	return fmt.Sprint(keys)
}
