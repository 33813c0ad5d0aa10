// Package resilience wraps the pipeline's fault-tolerance helpers: Retry
// for flaky projections, a RateLimiter over golang.org/x/time/rate pacing
// the market and the control routes, and a Bulkhead over
// golang.org/x/sync/semaphore capping concurrent event streams.
package resilience
