package view

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/liveview/binding"
	"github.com/kbukum/liveview/changeset"
	lverrors "github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/filter"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/paging"
	"github.com/kbukum/liveview/sorting"
	"github.com/kbukum/liveview/source"
	"github.com/kbukum/liveview/transform"
)

type item struct {
	ID    int
	Score int
	Name  string
}

type proxy struct {
	item
}

// tracker is a reference-counted test double: it records every projection
// made and how many times each was released.
type tracker struct {
	mu       sync.Mutex
	created  []*proxy
	released map[*proxy]int
	delay    func() time.Duration
}

func newTracker() *tracker { return &tracker{released: map[*proxy]int{}} }

func (tr *tracker) project(ctx context.Context, it item) (*proxy, error) {
	if tr.delay != nil {
		select {
		case <-time.After(tr.delay()):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &proxy{item: it}
	tr.mu.Lock()
	tr.created = append(tr.created, p)
	tr.mu.Unlock()
	return p, nil
}

func (tr *tracker) release(p *proxy) {
	tr.mu.Lock()
	tr.released[p]++
	tr.mu.Unlock()
}

func (tr *tracker) releases(p *proxy) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.released[p]
}

func (tr *tracker) made() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.created)
}

var byScore = sorting.Ascending("score", func(p *proxy) int { return p.Score })

type testView = View[int, item, *proxy]

func newSource(items ...item) *source.Collection[int, item] {
	src := source.New(func(it item) int { return it.ID }, source.WithLogger[int, item](logger.Nop()))
	src.AddOrUpdate(items...)
	return src
}

func start(t *testing.T, src *source.Collection[int, item], tr *tracker, opts ...Option[item, *proxy]) *testView {
	t.Helper()
	base := []Option[item, *proxy]{
		WithComparator[item](byScore),
		WithRelease[item](tr.release),
		WithDispatcher[item, *proxy](binding.Immediate{}),
		WithLogger[item, *proxy](logger.Nop()),
	}
	v, err := New[int, item, *proxy](src, tr.project, append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = v.Stop(context.Background()) })
	return v
}

func settle(t *testing.T, v *testView) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := v.Sync(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestEndToEnd(t *testing.T) {
	tr := newTracker()
	src := newSource(item{ID: 1, Score: 3, Name: "A"}, item{ID: 2, Score: 1, Name: "B"})
	v := start(t, src, tr, WithPageRequest[item, *proxy](paging.Request{Page: 1, Size: 10}))
	settle(t, v)
	if !slices.Equal(v.Keys(), []int{2, 1}) {
		t.Fatalf("keys %v", v.Keys())
	}

	var notes []binding.Notification[int]
	v.Subscribe(func(n []binding.Notification[int]) { notes = append(notes, n...) })

	src.AddOrUpdate(item{ID: 3, Score: 2, Name: "C"})
	settle(t, v)
	if !slices.Equal(v.Keys(), []int{2, 3, 1}) {
		t.Fatalf("keys %v", v.Keys())
	}

	notes = nil
	if err := v.SetPredicate(filter.Match(func(it item) bool { return it.Score >= 2 })); err != nil {
		t.Fatal(err)
	}
	settle(t, v)
	if !slices.Equal(v.Keys(), []int{3, 1}) {
		t.Fatalf("keys %v", v.Keys())
	}
	if len(notes) != 1 || notes[0].Reason != changeset.Remove || notes[0].Key != 2 {
		t.Errorf("notifications %v", notes)
	}
	if resp := v.Response(); resp.TotalSize != 2 || resp.Pages != 1 {
		t.Errorf("response %+v", resp)
	}
}

func TestComparatorChangeReorders(t *testing.T) {
	tr := newTracker()
	src := newSource(item{ID: 1, Score: 3, Name: "b"}, item{ID: 2, Score: 1, Name: "c"}, item{ID: 3, Score: 2, Name: "a"})
	v := start(t, src, tr)
	settle(t, v)

	var notes []binding.Notification[int]
	v.Subscribe(func(n []binding.Notification[int]) { notes = append(notes, n...) })
	if err := v.SetComparator(sorting.Ascending("name", func(p *proxy) string { return p.Name })); err != nil {
		t.Fatal(err)
	}
	settle(t, v)
	if !slices.Equal(v.Keys(), []int{3, 1, 2}) {
		t.Fatalf("keys %v", v.Keys())
	}
	for _, n := range notes {
		if n.Reason != changeset.Move {
			t.Errorf("expected only moves, got %v", n)
		}
	}
	if tr.made() != 3 {
		t.Errorf("reorder must not re-project, made %d", tr.made())
	}
}

func TestPauseAddRemoveResumeIsInvisible(t *testing.T) {
	tr := newTracker()
	src := newSource(item{ID: 1, Score: 1}, item{ID: 2, Score: 2})
	v := start(t, src, tr)
	settle(t, v)
	before := v.Keys()

	var notes []binding.Notification[int]
	v.Subscribe(func(n []binding.Notification[int]) { notes = append(notes, n...) })

	must(t, v.SetPaused(true))
	settle(t, v)
	src.AddOrUpdate(item{ID: 9, Score: 0})
	src.Remove(9)
	must(t, v.SetPaused(false))
	settle(t, v)

	if !slices.Equal(v.Keys(), before) {
		t.Errorf("keys changed: %v", v.Keys())
	}
	if len(notes) != 0 {
		t.Errorf("expected no notifications, got %v", notes)
	}
	if tr.made() != 2 {
		t.Errorf("paused item was projected")
	}
}

func TestPageClamp(t *testing.T) {
	tr := newTracker()
	var items []item
	for i := range 7 {
		items = append(items, item{ID: i, Score: i})
	}
	var mu sync.Mutex
	var responses []paging.Response
	v := start(t, newSource(items...), tr,
		WithPageRequest[item, *proxy](paging.Request{Page: 1, Size: 5}),
		WithResponseHandler[item, *proxy](func(r paging.Response) {
			mu.Lock()
			responses = append(responses, r)
			mu.Unlock()
		}))
	must(t, v.SetPageRequest(paging.Request{Page: 3, Size: 5}))
	settle(t, v)

	resp := v.Response()
	if resp.Page != 2 || resp.Pages != 2 || !resp.Clamped {
		t.Fatalf("response %+v", resp)
	}
	if !slices.Equal(v.Keys(), []int{5, 6}) {
		t.Errorf("keys %v", v.Keys())
	}
	mu.Lock()
	defer mu.Unlock()
	if last := responses[len(responses)-1]; last != resp {
		t.Errorf("handler saw %+v", last)
	}
	if err := v.SetPageRequest(paging.Request{Page: 0, Size: 5}); !lverrors.HasCode(err, lverrors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

// Every projection is released exactly once, and never while it is bound.
func TestDisposal(t *testing.T) {
	tr := newTracker()
	rng := rand.New(rand.NewPCG(21, 22))
	tr.delay = func() time.Duration { return time.Duration(rand.IntN(200)) * time.Microsecond }
	src := newSource()
	v, err := New[int, item, *proxy](src, tr.project,
		WithComparator[item](byScore),
		WithRelease[item](tr.release),
		WithPageRequest[item, *proxy](paging.Request{Page: 1, Size: 4}),
		WithLogger[item, *proxy](logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	must(t, v.Start(context.Background()))

	for step := range 150 {
		switch rng.IntN(6) {
		case 0:
			src.Remove(rng.IntN(12))
		case 1:
			must(t, v.SetPageRequest(paging.Request{Page: 1 + rng.IntN(3), Size: 4}))
		case 2:
			must(t, v.SetPredicate(filter.Match(func(it item) bool { return it.Score%3 != 0 })))
		case 3:
			must(t, v.SetPredicate(nil))
		default:
			src.AddOrUpdate(item{ID: rng.IntN(12), Score: rng.IntN(10)})
		}
		if step%10 == 0 {
			settle(t, v)
			for _, p := range v.Items() {
				if n := tr.releases(p); n != 0 {
					t.Fatalf("bound projection %v released %d times", p.item, n)
				}
			}
		}
	}

	must(t, v.Stop(context.Background()))
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.created) == 0 {
		t.Fatal("nothing projected")
	}
	for _, p := range tr.created {
		if n := tr.released[p]; n != 1 {
			t.Errorf("projection %v released %d times", p.item, n)
		}
	}
}

func TestTeardown(t *testing.T) {
	tr := newTracker()
	src := newSource(item{ID: 1})
	v := start(t, src, tr)
	settle(t, v)

	must(t, v.Stop(context.Background()))
	v.Close()
	for _, err := range []error{
		v.SetPaused(true),
		v.SetComparator(byScore),
		v.SetPredicate(nil),
		v.Sync(context.Background()),
	} {
		if !lverrors.HasCode(err, lverrors.ErrCodeTornDown) {
			t.Errorf("expected TORN_DOWN, got %v", err)
		}
	}
	src.AddOrUpdate(item{ID: 2})
	if v.Health(context.Background()).Status != "unhealthy" {
		t.Error("closed view reported healthy")
	}
	if tr.releases(tr.created[0]) != 1 {
		t.Error("projection not released by teardown")
	}
}

func TestStopCancelsInFlightProjections(t *testing.T) {
	tr := newTracker()
	tr.delay = func() time.Duration { return time.Hour }
	v := start(t, newSource(item{ID: 1}, item{ID: 2}), tr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := v.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if tr.made() != 0 {
		t.Errorf("made %d", tr.made())
	}
}

func TestInvariantViolationResyncs(t *testing.T) {
	tr := newTracker()
	src := newSource(item{ID: 1, Score: 2}, item{ID: 2, Score: 1})
	v := start(t, src, tr)
	settle(t, v)

	// a removal the pipeline never saw an add for
	v.enqueue(event[int, item, *proxy]{
		kind: eventChanges,
		gen:  v.gen.Load(),
		cs:   changeset.ChangeSet[int, item]{changeset.NewRemove(42, item{ID: 42})},
	})
	settle(t, v)
	// the rebuilt snapshot is queued behind the first barrier
	settle(t, v)

	if v.Resyncs() != 1 {
		t.Fatalf("resyncs %d", v.Resyncs())
	}
	if !slices.Equal(v.Keys(), []int{2, 1}) {
		t.Errorf("keys after resync %v", v.Keys())
	}
	src.AddOrUpdate(item{ID: 3, Score: 0})
	settle(t, v)
	if !slices.Equal(v.Keys(), []int{3, 2, 1}) {
		t.Errorf("keys %v", v.Keys())
	}
	for _, p := range v.Items() {
		if tr.releases(p) != 0 {
			t.Errorf("bound projection %v released", p.item)
		}
	}
}

func TestBinderMismatchResyncs(t *testing.T) {
	tr := newTracker()
	src := newSource(item{ID: 1, Score: 2}, item{ID: 2, Score: 1})
	v := start(t, src, tr)
	settle(t, v)

	// the bound sequence never held key 42
	err := v.binder.Push(changeset.ChangeSet[int, *transform.Ref[*proxy]]{
		changeset.NewRemove[int, *transform.Ref[*proxy]](42, nil).At(0, changeset.Unindexed),
	})
	if err != nil {
		t.Fatal(err)
	}
	settle(t, v)
	settle(t, v)

	if v.Resyncs() != 1 {
		t.Fatalf("resyncs %d", v.Resyncs())
	}
	if !slices.Equal(v.Keys(), []int{2, 1}) {
		t.Errorf("keys after resync %v", v.Keys())
	}
	src.AddOrUpdate(item{ID: 3, Score: 0})
	settle(t, v)
	if !slices.Equal(v.Keys(), []int{3, 2, 1}) {
		t.Errorf("keys %v", v.Keys())
	}
}

func TestStrictInvariantsPanic(t *testing.T) {
	tr := newTracker()
	v, err := New[int, item, *proxy](newSource(), tr.project,
		WithStrictInvariants[item, *proxy](true),
		WithLogger[item, *proxy](logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	v.onFault(context.Background(), lverrors.InvariantViolation("test", "broken"))
}

func TestInvalidConfig(t *testing.T) {
	_, err := New[int, item, *proxy](newSource(), newTracker().project,
		WithConfig[item, *proxy](Config{Workers: -1}))
	if !lverrors.HasCode(err, lverrors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestDrive(t *testing.T) {
	tr := newTracker()
	v := start(t, newSource(item{ID: 1, Score: 1, Name: "z"}, item{ID: 2, Score: 2, Name: "a"}), tr)

	preds := make(chan filter.Predicate[item])
	cmps := make(chan sorting.Comparator[*proxy])
	pages := make(chan paging.Request)
	done := make(chan error, 1)
	go func() {
		done <- v.Drive(context.Background(), Feeds[item, *proxy]{Predicates: preds, Comparators: cmps, Pages: pages})
	}()

	cmps <- sorting.Ascending("name", func(p *proxy) string { return p.Name })
	pages <- paging.Request{Page: 0, Size: 1}
	preds <- filter.Match(func(it item) bool { return it.ID != 3 })
	close(preds)
	close(cmps)
	close(pages)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	settle(t, v)
	if !slices.Equal(v.Keys(), []int{2, 1}) {
		t.Errorf("keys %v", v.Keys())
	}
}

func TestHealth(t *testing.T) {
	tr := newTracker()
	v, err := New[int, item, *proxy](newSource(), tr.project, WithName[item, *proxy]("trades"), WithLogger[item, *proxy](logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	if h := v.Health(context.Background()); h.Status != "degraded" || h.Name != "trades" {
		t.Errorf("health before start %+v", h)
	}
	must(t, v.Start(context.Background()))
	if h := v.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("health %+v", h)
	}
	must(t, v.Stop(context.Background()))
	if d := v.Describe(); d.Type != "view" {
		t.Errorf("describe %+v", d)
	}
	if v.ID() == "" {
		t.Error("empty id")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
