package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/paging"
	"github.com/kbukum/liveview/relay"
	"github.com/kbukum/liveview/server"
	"github.com/kbukum/liveview/source"
	"github.com/kbukum/liveview/sse"
	"github.com/kbukum/liveview/trades"
)

type harness struct {
	t       *testing.T
	cfg     *Config
	coll    *source.Collection[string, trades.Trade]
	viewer  *Viewer
	hub     *sse.Hub
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Logging.Level = "error"
	cfg.Feed.SearchDebounce = 5 * time.Millisecond
	cfg.Feed.PageSample = 5 * time.Millisecond
	cfg.View.PageSize = 5
	cfg.Server.ControlRate = 1000
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	log := logger.Nop()
	coll := source.New(trades.Key, source.WithEquality[string](trades.Equal))
	seed(coll, 12)

	hub := sse.NewHub(log)
	go hub.Run()

	vw, err := NewViewer(cfg, coll, hub, log)
	if err != nil {
		t.Fatalf("NewViewer: %v", err)
	}
	reg := component.NewRegistry()
	for _, c := range []component.Component{vw.View(), vw} {
		if err := reg.Register(c); err != nil {
			t.Fatalf("register %s: %v", c.Name(), err)
		}
	}
	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = reg.StopAll(ctx)
		hub.Stop()
	})

	srv := server.New(cfg.Server, log)
	(&api{viewer: vw, hub: hub, components: reg, service: "tradeviewer", version: "test"}).routes(srv)

	return &harness{t: t, cfg: cfg, coll: coll, viewer: vw, hub: hub, handler: srv.Handler()}
}

// seed adds n live trades; even ids trade EUR/USD for "alpha", odd ids
// GBP/JPY for "beta".
func seed(coll *source.Collection[string, trades.Trade], n int) {
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	items := make([]trades.Trade, n)
	for i := range items {
		pair, customer := "EUR/USD", "alpha"
		if i%2 == 1 {
			pair, customer = "GBP/JPY", "beta"
		}
		items[i] = trades.Trade{
			ID:           fmt.Sprintf("t%02d", i),
			Customer:     customer,
			CurrencyPair: pair,
			Status:       trades.StatusLive,
			Side:         trades.SideBuy,
			TradePrice:   1.1,
			MarketPrice:  1.2,
			Amount:       float64(1000 * (i + 1)),
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		}
	}
	coll.AddOrUpdate(items...)
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

type windowBody struct {
	Data []*trades.Proxy `json:"data"`
	Meta server.Meta     `json:"meta"`
}

func (h *harness) window() (windowBody, string) {
	h.t.Helper()
	w := h.do(http.MethodGet, "/trades", "")
	if w.Code != http.StatusOK {
		h.t.Fatalf("GET /trades = %d: %s", w.Code, w.Body.String())
	}
	var body windowBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		h.t.Fatalf("decode window: %v", err)
	}
	return body, w.Header().Get("X-Window-Seq")
}

// eventually polls the window until ok accepts it.
func (h *harness) eventually(what string, ok func(windowBody) bool) windowBody {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		body, _ := h.window()
		if ok(body) {
			return body
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s; last meta %+v, %d rows", what, body.Meta, len(body.Data))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (h *harness) state() State {
	h.t.Helper()
	w := h.do(http.MethodGet, "/state", "")
	var body struct {
		Data State `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		h.t.Fatalf("decode state: %v", err)
	}
	return body.Data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body.Error.Code
}

func TestWindowServesFirstPage(t *testing.T) {
	h := newHarness(t)
	body := h.eventually("first page", func(b windowBody) bool { return len(b.Data) == 5 })

	if body.Meta.Page != 1 || body.Meta.PageSize != 5 || body.Meta.Total != 12 || body.Meta.Pages != 3 {
		t.Errorf("meta = %+v", body.Meta)
	}
	// newest first
	if body.Data[0].ID != "t11" {
		t.Errorf("first row = %s, want t11", body.Data[0].ID)
	}
	if _, seq := h.window(); seq == "" || seq == "0" {
		t.Errorf("X-Window-Seq = %q", seq)
	}
}

func TestSearchNarrowsWindow(t *testing.T) {
	h := newHarness(t)
	h.eventually("first page", func(b windowBody) bool { return b.Meta.Total == 12 })

	w := h.do(http.MethodPut, "/search", `{"text":"gbp"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("PUT /search = %d: %s", w.Code, w.Body.String())
	}
	body := h.eventually("search applied", func(b windowBody) bool { return b.Meta.Total == 6 })
	for _, p := range body.Data {
		if p.CurrencyPair != "GBP/JPY" {
			t.Errorf("row %s has pair %s", p.ID, p.CurrencyPair)
		}
	}
	if got := h.state().Search; got != "gbp" {
		t.Errorf("state search = %q", got)
	}

	h.do(http.MethodPut, "/search", `{"text":""}`)
	h.eventually("search cleared", func(b windowBody) bool { return b.Meta.Total == 12 })
}

func TestSearchRejectsLongText(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPut, "/search", fmt.Sprintf(`{"text":%q}`, strings.Repeat("x", 201)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if code := errorCode(t, w); code != "INVALID_INPUT" {
		t.Errorf("code = %s", code)
	}
}

func TestSortSwitch(t *testing.T) {
	h := newHarness(t)
	h.eventually("first page", func(b windowBody) bool { return len(b.Data) == 5 })

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"known option", `{"name":"customer"}`, http.StatusAccepted, ""},
		{"unknown option", `{"name":"colour"}`, http.StatusNotFound, "NOT_FOUND"},
		{"missing name", `{}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"malformed body", `{"name":`, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodPut, "/sort", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.code != "" {
				if code := errorCode(t, w); code != tt.code {
					t.Errorf("code = %s, want %s", code, tt.code)
				}
			}
		})
	}

	if got := h.state().Sort; got != "customer" {
		t.Errorf("state sort = %q", got)
	}
	h.eventually("customer order", func(b windowBody) bool {
		return len(b.Data) == 5 && b.Data[0].Customer == "alpha"
	})
}

func TestSortsListsOptions(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/sorts", "")
	var body struct {
		Data []string `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != len(trades.SortOptions) || body.Data[0] != "time" {
		t.Errorf("sorts = %v", body.Data)
	}
}

func TestPageRequest(t *testing.T) {
	h := newHarness(t)
	h.eventually("first page", func(b windowBody) bool { return len(b.Data) == 5 })

	w := h.do(http.MethodPut, "/page", `{"page":3,"size":5}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("PUT /page = %d: %s", w.Code, w.Body.String())
	}
	body := h.eventually("last page", func(b windowBody) bool { return b.Meta.Page == 3 })
	if len(body.Data) != 2 {
		t.Errorf("last page rows = %d, want 2", len(body.Data))
	}
	// the automatic pause ends once the page is delivered
	deadline := time.Now().Add(3 * time.Second)
	for h.state().Paused {
		if time.Now().After(deadline) {
			t.Fatalf("view still paused after delivery: %+v", h.state())
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, bad := range []string{`{"page":0,"size":5}`, `{"page":1,"size":0}`, `{"page":1,"size":5000}`} {
		if w := h.do(http.MethodPut, "/page", bad); w.Code != http.StatusBadRequest {
			t.Errorf("PUT /page %s = %d, want 400", bad, w.Code)
		}
	}
}

func TestPageBeyondEndIsClamped(t *testing.T) {
	h := newHarness(t)
	h.eventually("first page", func(b windowBody) bool { return len(b.Data) == 5 })

	h.do(http.MethodPut, "/page", `{"page":9,"size":5}`)
	body := h.eventually("clamped page", func(b windowBody) bool { return b.Meta.Clamped })
	if body.Meta.Page != 3 {
		t.Errorf("clamped page = %d, want 3", body.Meta.Page)
	}
	if got := h.state().Request.Page; got != 9 {
		t.Errorf("requested page = %d, want 9 kept", got)
	}
}

func TestStaleClampedResponseKeepsPageOutstanding(t *testing.T) {
	h := newHarness(t)
	h.eventually("first page", func(b windowBody) bool { return len(b.Data) == 5 })

	vw := h.viewer
	vw.mu.Lock()
	vw.pending = &paging.Request{Page: 9, Size: 5}
	vw.mu.Unlock()
	outstanding := func() bool {
		vw.mu.Lock()
		defer vw.mu.Unlock()
		return vw.pending != nil
	}

	// a clamp computed for an earlier request
	vw.onResponse(paging.Response{Page: 3, RequestedPage: 4, PageSize: 5, TotalSize: 12, Pages: 3, Clamped: true})
	if !outstanding() {
		t.Fatal("response for page 4 counted as delivering page 9")
	}
	vw.onResponse(paging.Response{Page: 3, RequestedPage: 9, PageSize: 5, TotalSize: 12, Pages: 3, Clamped: true})
	if outstanding() {
		t.Error("clamped response for page 9 not counted as delivered")
	}
}

func TestPauseControls(t *testing.T) {
	h := newHarness(t)
	h.eventually("first page", func(b windowBody) bool { return b.Meta.Total == 12 })

	if w := h.do(http.MethodPut, "/pause", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty pause = %d, want 400", w.Code)
	}
	if w := h.do(http.MethodPut, "/pause", `{"paused":true,"auto_pause":false}`); w.Code != http.StatusAccepted {
		t.Fatalf("pause = %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(3 * time.Second)
	for !h.state().Paused {
		if time.Now().After(deadline) {
			t.Fatal("view never paused")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if h.state().AutoPause {
		t.Error("auto pause still enabled")
	}

	// changes queue while paused and land on resume
	seed(h.coll, 14)
	time.Sleep(50 * time.Millisecond)
	if body, _ := h.window(); body.Meta.Total != 12 {
		t.Errorf("paused total = %d, want 12", body.Meta.Total)
	}
	h.do(http.MethodPut, "/pause", `{"paused":false}`)
	h.eventually("resumed", func(b windowBody) bool { return b.Meta.Total == 14 })
}

func TestHealthAndVersion(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d: %s", w.Code, w.Body.String())
	}
	var health struct {
		Service    string             `json:"service"`
		Status     string             `json:"status"`
		Components []component.Health `json:"components"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != string(component.StatusHealthy) || len(health.Components) != 2 {
		t.Errorf("health = %+v", health)
	}

	w = h.do(http.MethodGet, "/version", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"version"`) {
		t.Errorf("GET /version = %d: %s", w.Code, w.Body.String())
	}
}

func TestEventStreamStartsWithSnapshot(t *testing.T) {
	h := newHarness(t)
	h.eventually("first page", func(b windowBody) bool { return len(b.Data) == 5 })

	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/trades/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	var types []string
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() && len(types) < 2 {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			types = append(types, name)
		}
	}
	if len(types) < 2 || types[0] != sse.EventConnected || types[1] != sse.EventSnapshot {
		t.Errorf("first events = %v", types)
	}
}

func TestEventStreamRejectsBadClientID(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/trades/events?client=not-a-uuid", "")
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "INVALID_INPUT" {
		t.Fatalf("bad client = %d: %s", w.Code, w.Body.String())
	}
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Name != serviceName || cfg.Viewer.Sort != "time" || cfg.Viewer.StreamPrefix != "trades" {
		t.Errorf("defaults = %+v", cfg.Viewer)
	}

	cfg.Viewer.Sort = "colour"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown sort") {
		t.Errorf("unknown sort err = %v", err)
	}

	cfg = &Config{}
	cfg.ApplyDefaults()
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil || !strings.HasPrefix(err.Error(), "server:") {
		t.Errorf("bad port err = %v", err)
	}
}

func TestTradeFeedByRelayMode(t *testing.T) {
	tests := []struct {
		mode string
		want []string
	}{
		{relay.ModeLocal, []string{"market"}},
		{relay.ModePublish, []string{"redis", "relay-publisher", "market"}},
		{relay.ModeSubscribe, []string{"redis", "relay-subscriber"}},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := &Config{}
			cfg.Relay.Mode = tt.mode
			cfg.Redis.Enabled = tt.mode != relay.ModeLocal
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("config: %v", err)
			}
			coll := source.New(trades.Key)
			feeders, err := tradeFeed(cfg, coll)
			if err != nil {
				t.Fatal(err)
			}
			var names []string
			for _, c := range feeders {
				names = append(names, c.Name())
			}
			if !slices.Equal(names, tt.want) {
				t.Errorf("components = %v, want %v", names, tt.want)
			}
		})
	}

	cfg := &Config{}
	cfg.Relay.Mode = relay.ModePublish
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "redis.enabled") {
		t.Errorf("publish without redis err = %v", err)
	}
}
