package sse

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
)

// Broadcaster sends events to every client whose id matches a glob pattern.
type Broadcaster interface {
	Broadcast(pattern string, e Event)
}

type message struct {
	pattern string
	event   Event
}

// Hub routes events to connected clients. A client whose buffer is full
// misses events, so the hub drops it; its stream ends and the client is
// expected to reconnect and re-read the window.
type Hub struct {
	log        *logger.Logger
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	dropped    atomic.Uint64
	sent       atomic.Uint64
}

var _ Broadcaster = (*Hub)(nil)

// NewHub creates a hub; call Run to start routing.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Get("sse")
	}
	return &Hub{
		log:        log,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
	}
}

// Run routes until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[c.id]; ok {
				old.close()
			}
			h.clients[c.id] = c
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client registered", logger.Fields("client_id", c.id, "clients", n))
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Stop ends Run and closes every client. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds c. It returns TornDown once the hub is stopped.
func (h *Hub) Register(c *Client) error {
	select {
	case <-h.done:
		return errors.TornDown()
	default:
	}
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return errors.TornDown()
	}
}

// Unregister removes c if it is still registered.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues e for every client whose id matches pattern.
func (h *Hub) Broadcast(pattern string, e Event) {
	select {
	case h.broadcast <- message{pattern: pattern, event: e}:
	case <-h.done:
	}
}

func (h *Hub) deliver(msg message) {
	var slow []*Client
	h.mu.RLock()
	for id, c := range h.clients {
		matched, err := filepath.Match(msg.pattern, id)
		if err != nil {
			h.log.Error("bad broadcast pattern", logger.MergeWithError(logger.Fields("pattern", msg.pattern), err))
			break
		}
		if !matched {
			continue
		}
		if c.Send(msg.event) {
			h.sent.Add(1)
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.dropped.Add(1)
		h.log.Warn("client buffer full, dropping client", logger.Fields("client_id", c.id))
		h.remove(c)
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
		c.close()
		h.log.Debug("client unregistered", logger.Fields("client_id", c.id, "clients", len(h.clients)))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many clients were dropped for being slow.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Sent returns the number of events delivered to client buffers.
func (h *Hub) Sent() uint64 { return h.sent.Load() }
