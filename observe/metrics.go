// Package observe holds the service's OpenTelemetry metric instruments and
// the Prometheus bridge that exposes them on /metrics.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "openhowl"

// Metrics holds every instrument the service records. Safe for concurrent use.
type Metrics struct {
	// RenderDuration tracks preview renders, attribute "outcome".
	RenderDuration metric.Float64Histogram

	// IngestDuration tracks uploads and imports, attributes "source" and "outcome".
	IngestDuration metric.Float64Histogram

	// RenderCache counts cache lookups, attribute "result" (hit, miss).
	RenderCache metric.Int64Counter

	// HTTPRequestDuration tracks request latency by method, route and status.
	HTTPRequestDuration metric.Float64Histogram

	// WSPeers is the number of connected broadcast peers.
	WSPeers metric.Int64UpDownCounter
}

var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RenderDuration, err = m.Float64Histogram("openhowl.render.duration",
		metric.WithDescription("Latency of preview renders."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IngestDuration, err = m.Float64Histogram("openhowl.ingest.duration",
		metric.WithDescription("Latency of clip ingestion by source."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RenderCache, err = m.Int64Counter("openhowl.render.cache",
		metric.WithDescription("Render cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("openhowl.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.WSPeers, err = m.Int64UpDownCounter("openhowl.ws.peers",
		metric.WithDescription("Number of connected websocket peers."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on the global
// MeterProvider.
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

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordRender records one render that started at start.
func (m *Metrics) RecordRender(ctx context.Context, start time.Time, err error) {
	m.RenderDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome(err))))
}

// RecordIngest records one ingestion from source ("upload", "import").
func (m *Metrics) RecordIngest(ctx context.Context, source string, start time.Time, err error) {
	m.IngestDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("outcome", outcome(err)),
		))
}

// RecordCacheLookup counts a render cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RenderCache.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
