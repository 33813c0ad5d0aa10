package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/liveview/logger"
)

const meterName = "github.com/kbukum/liveview"

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// InitMeter installs a global meter provider exporting over OTLP/HTTP.
// The returned provider must be shut down on exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// PipelineMetrics holds the instruments recorded by the pipeline stages.
type PipelineMetrics struct {
	changeSets         metric.Int64Counter
	changes            metric.Int64Counter
	projectionDuration metric.Float64Histogram
	projectionErrors   metric.Int64Counter
	predicateErrors    metric.Int64Counter
	resyncs            metric.Int64Counter
	pageClamps         metric.Int64Counter
	requests           metric.Int64Counter
	requestDuration    metric.Float64Histogram
}

var (
	pipelineMetrics     *PipelineMetrics
	pipelineMetricsOnce sync.Once
)

// Metrics returns the process-wide pipeline instruments, created on first
// use from the global meter provider. Instruments created before InitMeter
// forward to the provider installed later.
func Metrics() *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		m, err := NewPipelineMetrics(Meter(meterName))
		if err != nil {
			logger.Warn("pipeline metrics unavailable", logger.ErrorFields("metrics init", err))
			m = &PipelineMetrics{}
		}
		pipelineMetrics = m
	})
	return pipelineMetrics
}

// NewPipelineMetrics creates the pipeline instruments on meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	var (
		m   PipelineMetrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.changeSets, "liveview.changesets", "Change sets emitted per stage"},
		{&m.changes, "liveview.changes", "Changes emitted per stage and reason"},
		{&m.projectionErrors, "liveview.projection.errors", "Items excluded because projection failed"},
		{&m.predicateErrors, "liveview.predicate.errors", "Items treated as non-matching because the predicate failed"},
		{&m.resyncs, "liveview.resyncs", "Full resynchronisations after an invariant violation"},
		{&m.pageClamps, "liveview.page.clamps", "Page requests clamped to the last page"},
		{&m.requests, "liveview.http.requests", "HTTP requests served"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}

	if m.projectionDuration, err = meter.Float64Histogram("liveview.projection.duration",
		metric.WithDescription("Duration of one projection batch"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating liveview.projection.duration histogram: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("liveview.http.duration",
		metric.WithDescription("Duration of HTTP requests"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating liveview.http.duration histogram: %w", err)
	}
	return &m, nil
}

// RecordChangeSet records one emitted change set and its per-reason counts.
func (m *PipelineMetrics) RecordChangeSet(ctx context.Context, stage string, byReason map[string]int) {
	if m.changeSets == nil {
		return
	}
	m.changeSets.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	for reason, n := range byReason {
		if n == 0 {
			continue
		}
		m.changes.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("reason", reason),
		))
	}
}

// RecordProjectionBatch records the wall time of one projection batch.
func (m *PipelineMetrics) RecordProjectionBatch(ctx context.Context, items int, duration time.Duration) {
	if m.projectionDuration == nil {
		return
	}
	m.projectionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Int("items", items)))
}

// RecordProjectionError counts one item excluded by a failed projection.
func (m *PipelineMetrics) RecordProjectionError(ctx context.Context) {
	if m.projectionErrors != nil {
		m.projectionErrors.Add(ctx, 1)
	}
}

// RecordPredicateError counts one predicate failure.
func (m *PipelineMetrics) RecordPredicateError(ctx context.Context) {
	if m.predicateErrors != nil {
		m.predicateErrors.Add(ctx, 1)
	}
}

// RecordResync counts one full resynchronisation of a view.
func (m *PipelineMetrics) RecordResync(ctx context.Context, view string) {
	if m.resyncs != nil {
		m.resyncs.Add(ctx, 1, metric.WithAttributes(attribute.String("view", view)))
	}
}

// RecordPageClamp counts one clamped page request.
func (m *PipelineMetrics) RecordPageClamp(ctx context.Context) {
	if m.pageClamps != nil {
		m.pageClamps.Add(ctx, 1)
	}
}

// RecordRequest records a finished HTTP request.
func (m *PipelineMetrics) RecordRequest(ctx context.Context, route, method string, status int, duration time.Duration) {
	if m.requests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("method", method),
		attribute.Int("status", status),
	)
	m.requests.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("method", method),
	))
}

// RegisterGauge reports fn as an observable gauge on the liveview meter.
func RegisterGauge(name, description string, fn func() int64) error {
	_, err := Meter(meterName).Int64ObservableGauge(name,
		metric.WithDescription(description),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(fn())
			return nil
		}),
	)
	return err
}
