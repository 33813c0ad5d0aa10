package sse

import "sync"

const defaultClientBuffer = 256

// Client is one connected stream.
type Client struct {
	id     string
	events chan Event
	once   sync.Once
}

// NewClient creates a client with a buffer of size events; size <= 0 uses
// the default of 256.
func NewClient(id string, size int) *Client {
	if size <= 0 {
		size = defaultClientBuffer
	}
	return &Client{id: id, events: make(chan Event, size)}
}

// ID returns the client id the hub matches patterns against.
func (c *Client) ID() string { return c.id }

// Events returns the receive side of the client's buffer. It is closed when
// the hub drops the client.
func (c *Client) Events() <-chan Event { return c.events }

// Send queues e without blocking and reports whether it fit.
func (c *Client) Send(e Event) bool {
	select {
	case c.events <- e:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.events) })
}
