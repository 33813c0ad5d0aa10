package sse

import (
	"context"
	"strconv"
	"sync"

	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/logger"
)

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// Component runs a Hub under the component registry.
type Component struct {
	hub     *Hub
	path    string
	mu      sync.Mutex
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewComponent creates a component with a fresh hub serving path.
func NewComponent(path string, log *logger.Logger) *Component {
	return &Component{hub: NewHub(log), path: path}
}

// Hub returns the routed hub.
func (c *Component) Hub() *Hub { return c.hub }

func (c *Component) Name() string { return "sse" }

// Start runs the hub loop in the background.
func (c *Component) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	c.started = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.hub.Run()
	}()
	return nil
}

// Stop closes every client and waits for the loop to exit.
func (c *Component) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.hub.Stop()
	c.wg.Wait()
	return nil
}

// Health reports client and drop counts.
func (c *Component) Health(context.Context) component.Health {
	c.mu.Lock()
	running := c.started && !c.stopped
	c.mu.Unlock()

	h := component.Health{
		Name:   c.Name(),
		Status: component.StatusHealthy,
		Details: map[string]string{
			"clients": strconv.Itoa(c.hub.ClientCount()),
			"dropped": strconv.FormatUint(c.hub.Dropped(), 10),
			"sent":    strconv.FormatUint(c.hub.Sent(), 10),
		},
	}
	if !running {
		h.Status = component.StatusUnhealthy
		h.Message = "hub not running"
	}
	return h
}

// Describe reports the stream path.
func (c *Component) Describe() component.Description {
	return component.Description{Type: "sse", Details: "path " + c.path}
}
