package server

import (
	"context"
	"strconv"

	"github.com/kbukum/liveview/component"
)

const componentName = "http-server"

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// Component registers a Server with the component registry.
type Component struct {
	server *Server
}

// NewComponent wraps s.
func NewComponent(s *Server) *Component {
	return &Component{server: s}
}

func (sc *Component) Name() string { return componentName }

func (sc *Component) Start(ctx context.Context) error { return sc.server.Start(ctx) }

func (sc *Component) Stop(ctx context.Context) error { return sc.server.Stop(ctx) }

// Health is healthy while the listener serves.
func (sc *Component) Health(context.Context) component.Health {
	if sc.server.Serving() {
		return component.Health{Name: componentName, Status: component.StatusHealthy}
	}
	return component.Health{
		Name:    componentName,
		Status:  component.StatusUnhealthy,
		Message: "not serving",
	}
}

// Describe lists the bound address and the route count.
func (sc *Component) Describe() component.Description {
	return component.Description{
		Type:    "server",
		Details: sc.server.Addr() + " routes=" + strconv.Itoa(len(sc.server.engine.Routes())),
	}
}
