// Package server is the HTTP front of a liveview service: a Gin engine
// served over HTTP/1.1 and h2c, wrapped as a lifecycle component.
//
// Every route runs the middleware in server/middleware: panic recovery,
// request ids, a telemetry span with request metrics, a body size cap and
// request logging. ControlLimiter and StreamLimiter return per-route guards
// for state-changing requests and long-lived event streams.
package server
