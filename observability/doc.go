// Package observability wires OpenTelemetry tracing and metrics into the
// liveview pipeline.
//
// Stages record through the process-wide instruments returned by Metrics.
// Those instruments use the global meter provider, so they are no-ops until
// a binary calls InitMeter:
//
//	mp, err := observability.InitMeter(ctx, &meterCfg)
//	defer mp.Shutdown(ctx)
//
// The View wraps every processed event in a span started with StartSpan.
// ServiceHealth aggregates component health for the /healthz endpoint.
package observability
