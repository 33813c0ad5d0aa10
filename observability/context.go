package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestContext tracks one HTTP request against the liveview service.
type RequestContext struct {
	RequestID string
	Route     string
	Method    string
	StartTime time.Time
	span      trace.Span
}

type requestContextKey struct{}

// StartRequest opens an HTTP span and stores the RequestContext in ctx.
func StartRequest(ctx context.Context, requestID, method, route string) (context.Context, *RequestContext) {
	ctx, span := StartSpan(ctx, SpanHTTP, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrRoute, route),
		attribute.String("http.method", method),
	)
	rc := &RequestContext{
		RequestID: requestID,
		Route:     route,
		Method:    method,
		StartTime: time.Now(),
		span:      span,
	}
	return context.WithValue(ctx, requestContextKey{}, rc), rc
}

// RequestFromContext returns the RequestContext stored in ctx, or nil.
func RequestFromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// End closes the span and records the request metrics.
func (rc *RequestContext) End(ctx context.Context, status int, err error) {
	rc.span.SetAttributes(attribute.Int(AttrStatus, status))
	EndSpan(rc.span, err)
	Metrics().RecordRequest(ctx, rc.Route, rc.Method, status, rc.Duration())
}

// Duration returns the elapsed time since the request started.
func (rc *RequestContext) Duration() time.Duration {
	return time.Since(rc.StartTime)
}
