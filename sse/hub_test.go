package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(logger.Nop())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func TestEventFraming(t *testing.T) {
	var b strings.Builder
	n, err := Event{Type: EventChanges, ID: "7", Data: []byte(`{"seq":7}`)}.WriteTo(&b)
	if err != nil {
		t.Fatal(err)
	}
	want := "id: 7\nevent: changes\ndata: {\"seq\":7}\n\n"
	if b.String() != want {
		t.Errorf("got %q, want %q", b.String(), want)
	}
	if n != int64(len(want)) {
		t.Errorf("expected %d bytes, got %d", len(want), n)
	}
}

func TestClientSendFull(t *testing.T) {
	c := NewClient("trades:a", 2)
	if !c.Send(Event{}) || !c.Send(Event{}) {
		t.Fatal("expected two sends to fit")
	}
	if c.Send(Event{}) {
		t.Error("expected third send to be refused")
	}
}

func TestBroadcastMatchesPattern(t *testing.T) {
	hub := startHub(t)
	a := NewClient("trades:a", 4)
	b := NewClient("orders:b", 4)
	for _, c := range []*Client{a, b} {
		if err := hub.Register(c); err != nil {
			t.Fatal(err)
		}
	}

	hub.Broadcast("trades:*", Event{Type: EventPage, Data: []byte("x")})

	select {
	case e := <-a.Events():
		if e.Type != EventPage {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("matching client got nothing")
	}
	select {
	case e := <-b.Events():
		t.Errorf("non matching client got %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := startHub(t)
	slow := NewClient("trades:slow", 1)
	if err := hub.Register(slow); err != nil {
		t.Fatal(err)
	}

	hub.Broadcast("trades:*", Event{Data: []byte("1")})
	hub.Broadcast("trades:*", Event{Data: []byte("2")})

	deadline := time.After(time.Second)
	for hub.ClientCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("slow client was not dropped")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if hub.Dropped() != 1 {
		t.Errorf("expected 1 dropped client, got %d", hub.Dropped())
	}

	// the buffered event is still readable, then the channel is closed
	if e := <-slow.Events(); string(e.Data) != "1" {
		t.Errorf("expected first event, got %q", e.Data)
	}
	if _, ok := <-slow.Events(); ok {
		t.Error("expected closed channel")
	}
}

func TestReplacedClientIsClosed(t *testing.T) {
	hub := startHub(t)
	first := NewClient("trades:a", 1)
	second := NewClient("trades:a", 1)
	_ = hub.Register(first)
	_ = hub.Register(second)

	select {
	case _, ok := <-first.Events():
		if ok {
			t.Error("expected first client closed")
		}
	case <-time.After(time.Second):
		t.Fatal("first client not closed")
	}

	// unregistering the stale client must not remove the new one
	hub.Unregister(first)
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", hub.ClientCount())
	}
}

func TestRegisterAfterStop(t *testing.T) {
	hub := NewHub(logger.Nop())
	exited := make(chan struct{})
	go func() {
		hub.Run()
		close(exited)
	}()
	hub.Stop()
	hub.Stop()
	<-exited

	if err := hub.Register(NewClient("x", 1)); !errors.HasCode(err, errors.ErrCodeTornDown) {
		t.Errorf("expected TORN_DOWN, got %v", err)
	}
	hub.Broadcast("*", Event{})
	hub.Unregister(NewClient("x", 1))
}

func TestServeStreamsSnapshotThenBroadcasts(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Serve(hub, w, r, Stream{
			ClientID: "trades:" + r.URL.Query().Get("id"),
			Snapshot: func() []Event {
				return []Event{{Type: EventPage, Data: []byte("snapshot")}}
			},
		})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?id=1", http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}

	lines := make(chan string, 32)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	expect := func(want string) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case l, ok := <-lines:
				if !ok {
					t.Fatalf("stream ended before %q", want)
				}
				if l == want {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", want)
			}
		}
	}

	expect("event: connected")
	expect("data: snapshot")
	hub.Broadcast("trades:1", Event{Type: EventChanges, Data: []byte("live")})
	expect("data: live")
}

func TestComponentHealth(t *testing.T) {
	c := NewComponent("/events", logger.Nop())
	ctx := context.Background()
	if h := c.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy before start, got %s", h.Status)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	h := c.Health(ctx)
	if h.Status != component.StatusHealthy || h.Details["clients"] != "0" {
		t.Errorf("unexpected health %+v", h)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if h := c.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy after stop, got %s", h.Status)
	}
	if d := c.Describe(); d.Details != "path /events" {
		t.Errorf("unexpected description %+v", d)
	}
}
