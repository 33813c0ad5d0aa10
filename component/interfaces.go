package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Component is a lifecycle-managed part of a service: a view, a dispatcher,
// a feed simulator, the HTTP server.
type Component interface {
	// Name returns the unique name of the component for registration.
	Name() string

	// Start starts the component. It must not block past startup.
	Start(ctx context.Context) error

	// Stop shuts the component down and releases its resources.
	Stop(ctx context.Context) error

	// Health returns the current health status of the component.
	Health(ctx context.Context) Health
}

// Description is a one-line self report logged when a component starts.
type Description struct {
	// Type categorizes the component: "view", "dispatcher", "server", ...
	Type    string
	Details string
}

// Describable is optionally implemented by components that want their
// configuration logged at startup.
type Describable interface {
	Describe() Description
}
