// Package component defines the lifecycle contract shared by the long-lived
// parts of a liveview service and a Registry that starts them in order and
// stops them in reverse.
package component
