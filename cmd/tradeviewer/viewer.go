package main

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/kbukum/liveview/autopause"
	"github.com/kbukum/liveview/binding"
	"github.com/kbukum/liveview/changeset"
	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/feed"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/paging"
	"github.com/kbukum/liveview/sse"
	"github.com/kbukum/liveview/trades"
	"github.com/kbukum/liveview/view"
)

type tradeView = view.View[string, trades.Trade, *trades.Proxy]

// State is what a client sees of the shared view's controls.
type State struct {
	Search     string          `json:"search"`
	Sort       string          `json:"sort"`
	Request    paging.Request  `json:"request"`
	Response   paging.Response `json:"response"`
	Paused     bool            `json:"paused"`
	AutoPause  bool            `json:"auto_pause"`
	PauseState string          `json:"pause_state"`
}

// Snapshot is the bound window after change batch Seq.
type Snapshot struct {
	Seq      uint64          `json:"seq"`
	Rows     []*trades.Proxy `json:"rows"`
	Response paging.Response `json:"response"`
}

// changesPayload is one bound batch. Rows holds the final value of every
// key the batch added, updated, refreshed or moved.
type changesPayload struct {
	Seq     uint64                         `json:"seq"`
	Changes []binding.Notification[string] `json:"changes"`
	Rows    map[string]*trades.Proxy       `json:"rows,omitempty"`
}

// Viewer is the shared trade view plus its controls: debounced search,
// sampled paging, sort selection and the pause policy. It streams every
// bound batch to hub under a sequence number.
type Viewer struct {
	cfg    *Config
	view   *tradeView
	policy *autopause.Policy
	hub    sse.Broadcaster
	log    *logger.Logger

	searches chan string
	pages    chan paging.Request

	mu       sync.Mutex
	search   string
	sort     string
	request  paging.Request
	pending  *paging.Request
	seq      uint64
	window   []*trades.Proxy
	response paging.Response

	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
}

var (
	_ component.Component   = (*Viewer)(nil)
	_ component.Describable = (*Viewer)(nil)
)

// NewViewer builds the view over src. The view is registered separately;
// the Viewer component only runs the control feeds.
func NewViewer(cfg *Config, src view.Source[string, trades.Trade], hub sse.Broadcaster, log *logger.Logger) (*Viewer, error) {
	cmp, ok := trades.LookupSort(cfg.Viewer.Sort)
	if !ok {
		return nil, errors.NotFound("sort", cfg.Viewer.Sort)
	}
	vw := &Viewer{
		cfg:      cfg,
		hub:      hub,
		log:      logger.Get("viewer"),
		searches: make(chan string, cfg.Feed.Buffer),
		pages:    make(chan paging.Request, cfg.Feed.Buffer),
		sort:     cfg.Viewer.Sort,
		request:  paging.Request{Page: 1, Size: cfg.View.PageSize},
	}

	v, err := view.New[string, trades.Trade, *trades.Proxy](src, trades.Project,
		view.WithName[trades.Trade, *trades.Proxy]("trades"),
		view.WithConfig[trades.Trade, *trades.Proxy](cfg.View),
		view.WithComparator[trades.Trade](cmp),
		view.WithRelease[trades.Trade]((*trades.Proxy).Close),
		view.WithResponseHandler[trades.Trade, *trades.Proxy](vw.onResponse),
		view.WithLogger[trades.Trade, *trades.Proxy](log),
	)
	if err != nil {
		return nil, err
	}
	vw.view = v
	vw.policy = autopause.New(v.SetPaused, vw.log)
	if err := vw.policy.SetEnabled(cfg.Viewer.AutoPause); err != nil {
		return nil, err
	}
	vw.unsubscribe = v.Subscribe(vw.onBound)
	return vw, nil
}

// View returns the underlying view for registration.
func (vw *Viewer) View() *tradeView { return vw.view }

func (vw *Viewer) Name() string { return "viewer-controls" }

// Start runs the control feeds into the view until Stop.
func (vw *Viewer) Start(context.Context) error {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if vw.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	vw.cancel = cancel
	vw.done = make(chan struct{})

	fc := vw.cfg.Feed
	predicates := feed.Map(ctx, feed.Debounce(ctx, vw.searches, fc.SearchDebounce), trades.SearchFilter)
	pages := feed.Map(ctx,
		feed.Sample(ctx, feed.Distinct(ctx, feed.StartWith(ctx, vw.pages, vw.request)), fc.PageSample),
		vw.requested)

	go func() {
		defer close(vw.done)
		err := vw.view.Drive(ctx, view.Feeds[trades.Trade, *trades.Proxy]{
			Predicates: predicates,
			Pages:      pages,
		})
		if err != nil && ctx.Err() == nil {
			vw.log.Warn("control feeds ended", logger.MergeWithError(nil, err))
		}
	}()
	return nil
}

// Stop ends the feeds and detaches from the view.
func (vw *Viewer) Stop(ctx context.Context) error {
	vw.mu.Lock()
	cancel, done := vw.cancel, vw.done
	vw.mu.Unlock()
	vw.unsubscribe()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Timeout("viewer stop").WithCause(ctx.Err())
	}
}

// Health reports the pause policy and the stream sequence.
func (vw *Viewer) Health(context.Context) component.Health {
	st := vw.State()
	vw.mu.Lock()
	seq := vw.seq
	vw.mu.Unlock()
	return component.Health{
		Name:   vw.Name(),
		Status: component.StatusHealthy,
		Details: map[string]string{
			"sort":        st.Sort,
			"search":      st.Search,
			"pause_state": st.PauseState,
			"seq":         strconv.FormatUint(seq, 10),
		},
	}
}

func (vw *Viewer) Describe() component.Description {
	return component.Description{
		Type:    "controls",
		Details: "search debounce " + vw.cfg.Feed.SearchDebounce.String() + ", page sample " + vw.cfg.Feed.PageSample.String(),
	}
}

// Search queues a search text; only the latest text within the debounce
// window is applied.
func (vw *Viewer) Search(text string) {
	vw.mu.Lock()
	vw.search = text
	vw.mu.Unlock()
	offer(vw.searches, text)
}

// RequestPage queues a page request after validating it.
func (vw *Viewer) RequestPage(req paging.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	offer(vw.pages, req)
	return nil
}

// SetSort switches to the named sort option.
func (vw *Viewer) SetSort(name string) error {
	cmp, ok := trades.LookupSort(name)
	if !ok {
		return errors.NotFound("sort", name).WithDetail("options", trades.SortNames())
	}
	if err := vw.view.SetComparator(cmp); err != nil {
		return err
	}
	vw.mu.Lock()
	vw.sort = name
	vw.mu.Unlock()
	return nil
}

// SetPaused pauses or resumes manually.
func (vw *Viewer) SetPaused(paused bool) error {
	if paused {
		return vw.policy.Pause()
	}
	return vw.policy.Resume()
}

// SetAutoPause switches automatic pausing on page changes.
func (vw *Viewer) SetAutoPause(enabled bool) error {
	return vw.policy.SetEnabled(enabled)
}

// State returns the current controls.
func (vw *Viewer) State() State {
	vw.mu.Lock()
	st := State{
		Search:   vw.search,
		Sort:     vw.sort,
		Request:  vw.request,
		Response: vw.response,
	}
	vw.mu.Unlock()
	st.Paused = vw.view.Paused()
	st.AutoPause = vw.policy.Enabled()
	st.PauseState = vw.policy.State().String()
	return st
}

// Snapshot returns the window as of the last bound batch.
func (vw *Viewer) Snapshot() Snapshot {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	return Snapshot{Seq: vw.seq, Rows: vw.window, Response: vw.response}
}

// streamPattern matches every client of this viewer on the hub.
func (vw *Viewer) streamPattern() string { return vw.cfg.Viewer.StreamPrefix + ":*" }

// StreamEvents is the initial event list for a new stream client.
func (vw *Viewer) StreamEvents() []sse.Event {
	snap := vw.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		vw.log.Error("snapshot encoding failed", logger.MergeWithError(nil, err))
		return nil
	}
	return []sse.Event{{Type: sse.EventSnapshot, ID: strconv.FormatUint(snap.Seq, 10), Data: data}}
}

// requested runs on the sampled page feed before the view sees req.
func (vw *Viewer) requested(req paging.Request) paging.Request {
	vw.mu.Lock()
	same := req == vw.request
	vw.request = req
	if !same {
		vw.pending = &req
	}
	vw.mu.Unlock()

	if !same {
		if err := vw.policy.PageRequested(); err != nil {
			vw.log.Warn("auto pause failed", logger.MergeWithError(nil, err))
		}
	}
	return req
}

// onResponse runs on the view goroutine after every recut.
func (vw *Viewer) onResponse(resp paging.Response) {
	vw.mu.Lock()
	vw.response = resp
	delivered := vw.pending != nil && resp.Serves(*vw.pending)
	if delivered {
		vw.pending = nil
	}
	vw.mu.Unlock()

	if delivered {
		if err := vw.policy.PageDelivered(); err != nil {
			vw.log.Warn("auto resume failed", logger.MergeWithError(nil, err))
		}
	}
	if data, err := json.Marshal(resp); err == nil {
		vw.hub.Broadcast(vw.streamPattern(), sse.Event{Type: sse.EventPage, Data: data})
	}
}

// onBound runs on the binder's dispatcher after each applied batch, so the
// stored window always matches seq.
func (vw *Viewer) onBound(notes []binding.Notification[string]) {
	window := vw.view.Items()
	byKey := make(map[string]*trades.Proxy, len(window))
	for _, p := range window {
		byKey[p.ID] = p
	}
	rows := make(map[string]*trades.Proxy)
	for _, n := range notes {
		if n.Reason == changeset.Remove {
			continue
		}
		if p, ok := byKey[n.Key]; ok {
			rows[n.Key] = p
		}
	}

	vw.mu.Lock()
	vw.seq++
	seq := vw.seq
	vw.window = window
	vw.mu.Unlock()

	data, err := json.Marshal(changesPayload{Seq: seq, Changes: notes, Rows: rows})
	if err != nil {
		vw.log.Error("changes encoding failed", logger.MergeWithError(nil, err))
		return
	}
	vw.hub.Broadcast(vw.streamPattern(), sse.Event{Type: sse.EventChanges, ID: strconv.FormatUint(seq, 10), Data: data})
}

// offer puts v on ch, discarding the oldest queued value when ch is full.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
