// Package observe provides application-wide observability primitives for
// Mnemo: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all Mnemo metrics.
const meterName = "github.com/mnemo-ai/mnemo"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// GenerationDuration tracks LLM generation latency. Use with attributes:
	//   attribute.String("family", ...), attribute.String("model", ...)
	GenerationDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding provider latency.
	EmbeddingDuration metric.Float64Histogram

	// MemoryQueryDuration tracks memory store query + ranking latency.
	MemoryQueryDuration metric.Float64Histogram

	// WindowAssemblyDuration tracks end-to-end context-window assembly
	// latency, retrieval included.
	WindowAssemblyDuration metric.Float64Histogram

	// --- Counters ---

	// GenerationRequests counts routed generation calls. Use with attributes:
	//   attribute.String("family", ...), attribute.String("model", ...),
	//   attribute.String("status", ...)
	GenerationRequests metric.Int64Counter

	// GenerationErrors counts failed generation calls by family and error
	// kind (unsupported_model, provider_unavailable, backend).
	GenerationErrors metric.Int64Counter

	// MemoriesInjected counts memories attached to context windows.
	MemoriesInjected metric.Int64Counter

	// MemoriesStored counts memory records persisted from user turns.
	MemoriesStored metric.Int64Counter

	// StreamFragments counts fragments relayed on streaming responses.
	StreamFragments metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of in-flight streaming responses.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM and embedding round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.GenerationDuration, err = m.Float64Histogram("mnemo.generation.duration",
		metric.WithDescription("Latency of LLM generation calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("mnemo.embedding.duration",
		metric.WithDescription("Latency of embedding provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MemoryQueryDuration, err = m.Float64Histogram("mnemo.memory.query.duration",
		metric.WithDescription("Latency of memory retrieval and ranking."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WindowAssemblyDuration, err = m.Float64Histogram("mnemo.window.assembly.duration",
		metric.WithDescription("Latency of context-window assembly."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.GenerationRequests, err = m.Int64Counter("mnemo.generation.requests",
		metric.WithDescription("Total routed generation calls by family, model, and status."),
	); err != nil {
		return nil, err
	}
	if met.GenerationErrors, err = m.Int64Counter("mnemo.generation.errors",
		metric.WithDescription("Total failed generation calls by family and error kind."),
	); err != nil {
		return nil, err
	}
	if met.MemoriesInjected, err = m.Int64Counter("mnemo.memories.injected",
		metric.WithDescription("Total memories attached to context windows."),
	); err != nil {
		return nil, err
	}
	if met.MemoriesStored, err = m.Int64Counter("mnemo.memories.stored",
		metric.WithDescription("Total memory records persisted from user turns."),
	); err != nil {
		return nil, err
	}

	if met.StreamFragments, err = m.Int64Counter("mnemo.stream.fragments",
		metric.WithDescription("Total fragments relayed on streaming responses."),
	); err != nil {
		return nil, err
	}

	if met.ActiveStreams, err = m.Int64UpDownCounter("mnemo.active_streams",
		metric.WithDescription("Number of in-flight streaming responses."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("mnemo.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

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

// RecordGeneration records one routed generation call with the standard
// attribute set.
func (m *Metrics) RecordGeneration(ctx context.Context, family, model, status string) {
	m.GenerationRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("family", family),
			attribute.String("model", model),
			attribute.String("status", status),
		),
	)
}

// RecordGenerationDuration records the wall-clock latency of one generation
// call in seconds.
func (m *Metrics) RecordGenerationDuration(ctx context.Context, family, model string, seconds float64) {
	m.GenerationDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("family", family),
			attribute.String("model", model),
		),
	)
}

// RecordGenerationError records one failed generation call.
func (m *Metrics) RecordGenerationError(ctx context.Context, family, kind string) {
	m.GenerationErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("family", family),
			attribute.String("kind", kind),
		),
	)
}

// RecordMemoriesInjected adds n to the injected-memories counter.
func (m *Metrics) RecordMemoriesInjected(ctx context.Context, n int) {
	if n > 0 {
		m.MemoriesInjected.Add(ctx, int64(n))
	}
}

// RecordMemoriesStored adds n to the stored-memories counter.
func (m *Metrics) RecordMemoriesStored(ctx context.Context, n int) {
	if n > 0 {
		m.MemoriesStored.Add(ctx, int64(n))
	}
}

// RecordEmbeddingDuration records the latency of one embedding provider call
// in seconds.
func (m *Metrics) RecordEmbeddingDuration(ctx context.Context, seconds float64) {
	m.EmbeddingDuration.Record(ctx, seconds)
}

// RecordMemoryQueryDuration records the latency of one memory retrieval
// (store query plus ranking) in seconds.
func (m *Metrics) RecordMemoryQueryDuration(ctx context.Context, seconds float64) {
	m.MemoryQueryDuration.Record(ctx, seconds)
}

// RecordWindowAssembly records the latency of one context-window assembly in
// seconds.
func (m *Metrics) RecordWindowAssembly(ctx context.Context, seconds float64) {
	m.WindowAssemblyDuration.Record(ctx, seconds)
}
