// Package observe provides application-wide observability primitives for
// the clip extraction pipeline: OpenTelemetry metrics, distributed tracing,
// structured logging helpers, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pipeline metrics.
const meterName = "github.com/autoclipper/pipeline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// JobDuration tracks a Dispatcher job's end-to-end handler execution
	// time. Use with attribute.String("handler", ...).
	JobDuration metric.Float64Histogram

	// GatewayDuration tracks an external-capability Gateway call's latency.
	// Use with attribute.String("gateway", ...), attribute.String("op", ...).
	GatewayDuration metric.Float64Histogram

	// PollDuration tracks one Feed Poller PollAll pass's latency.
	PollDuration metric.Float64Histogram

	// --- Counters ---

	// JobsCompleted counts Dispatcher jobs by queue, handler, and outcome.
	// Use with attribute.String("queue", ...), attribute.String("handler", ...),
	// attribute.String("status", ...) where status is one of done/retried/failed.
	JobsCompleted metric.Int64Counter

	// GatewayRequests counts Gateway calls by gateway and status.
	// Use with attribute.String("gateway", ...), attribute.String("status", ...)
	GatewayRequests metric.Int64Counter

	// ItemsIngested counts Items created, by source (feed/manual).
	// Use with attribute.String("source", ...)
	ItemsIngested metric.Int64Counter

	// ClipsRendered counts Clips rendered to a preview file.
	ClipsRendered metric.Int64Counter

	// --- Error counters ---

	// GatewayErrors counts Gateway call failures by gateway.
	// Use with attribute.String("gateway", ...)
	GatewayErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveWorkers tracks the number of Dispatcher jobs currently executing.
	ActiveWorkers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time (the progress
	// stream server). Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// pipeline stage latencies, which range from sub-second probes to
// multi-minute transcriptions and renders.
var latencyBuckets = []float64{
	0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.JobDuration, err = m.Float64Histogram("autoclipper.job.duration",
		metric.WithDescription("Latency of a Dispatcher job's handler execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GatewayDuration, err = m.Float64Histogram("autoclipper.gateway.duration",
		metric.WithDescription("Latency of an external-capability Gateway call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PollDuration, err = m.Float64Histogram("autoclipper.poll.duration",
		metric.WithDescription("Latency of one Feed Poller PollAll pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.JobsCompleted, err = m.Int64Counter("autoclipper.jobs.completed",
		metric.WithDescription("Total Dispatcher jobs by queue, handler, and outcome."),
	); err != nil {
		return nil, err
	}
	if met.GatewayRequests, err = m.Int64Counter("autoclipper.gateway.requests",
		metric.WithDescription("Total Gateway calls by gateway and status."),
	); err != nil {
		return nil, err
	}
	if met.ItemsIngested, err = m.Int64Counter("autoclipper.items.ingested",
		metric.WithDescription("Total Items created by source."),
	); err != nil {
		return nil, err
	}
	if met.ClipsRendered, err = m.Int64Counter("autoclipper.clips.rendered",
		metric.WithDescription("Total Clips rendered to a preview file."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.GatewayErrors, err = m.Int64Counter("autoclipper.gateway.errors",
		metric.WithDescription("Total Gateway call failures by gateway."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveWorkers, err = m.Int64UpDownCounter("autoclipper.active_workers",
		metric.WithDescription("Number of Dispatcher jobs currently executing."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("autoclipper.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordJobCompleted is a convenience method recording a job's outcome and
// handler execution duration.
func (m *Metrics) RecordJobCompleted(ctx context.Context, queue, handler, status string, durationSec float64) {
	attrs := metric.WithAttributes(
		attribute.String("queue", queue),
		attribute.String("handler", handler),
		attribute.String("status", status),
	)
	m.JobsCompleted.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, durationSec, metric.WithAttributes(attribute.String("handler", handler)))
}

// RecordGatewayCall is a convenience method recording a Gateway call's
// outcome and latency.
func (m *Metrics) RecordGatewayCall(ctx context.Context, gateway, op string, durationSec float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.GatewayErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("gateway", gateway)))
	}
	m.GatewayRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gateway", gateway),
		attribute.String("status", status),
	))
	m.GatewayDuration.Record(ctx, durationSec, metric.WithAttributes(
		attribute.String("gateway", gateway),
		attribute.String("op", op),
	))
}

// RecordItemIngested is a convenience method recording an Item creation by
// source (feed or manual).
func (m *Metrics) RecordItemIngested(ctx context.Context, source string) {
	m.ItemsIngested.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
