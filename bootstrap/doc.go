// Package bootstrap runs a liveview service: it validates the typed config,
// initializes logging, starts registered components in order, runs
// configure callbacks and hooks, and shuts everything down in reverse on
// SIGINT/SIGTERM or when a task finishes.
package bootstrap
