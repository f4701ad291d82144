package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestGenerationDurationHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.GenerationDuration.Record(ctx, 0.8)
	m.GenerationDuration.Record(ctx, 2.1)

	rm := collect(t, reader)
	md := findMetric(rm, "mnemo.generation.duration")
	if md == nil {
		t.Fatal("mnemo.generation.duration not found")
	}
	hist, ok := md.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data type = %T, want Histogram[float64]", md.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("datapoints = %+v, want one point with count 2", hist.DataPoints)
	}
}

func TestRecordGeneration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGeneration(ctx, "openai", "gpt-4o", "ok")
	m.RecordGeneration(ctx, "openai", "gpt-4o", "ok")
	m.RecordGeneration(ctx, "google", "gemini-2.0-flash", "error")

	rm := collect(t, reader)
	md := findMetric(rm, "mnemo.generation.requests")
	if md == nil {
		t.Fatal("mnemo.generation.requests not found")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type = %T, want Sum[int64]", md.Data)
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("datapoints = %d, want 2 attribute sets", len(sum.DataPoints))
	}
	for _, dp := range sum.DataPoints {
		if fam, _ := dp.Attributes.Value(attribute.Key("family")); fam.AsString() == "openai" {
			if dp.Value != 2 {
				t.Errorf("openai count = %d, want 2", dp.Value)
			}
		}
	}
}

func TestRecordGenerationError(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordGenerationError(context.Background(), "anthropic", "provider_unavailable")

	rm := collect(t, reader)
	md := findMetric(rm, "mnemo.generation.errors")
	if md == nil {
		t.Fatal("mnemo.generation.errors not found")
	}
	sum := md.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("datapoints = %+v, want single count 1", sum.DataPoints)
	}
}

func TestMemoryCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordMemoriesInjected(ctx, 3)
	m.RecordMemoriesInjected(ctx, 0) // no-op
	m.RecordMemoriesStored(ctx, 2)

	rm := collect(t, reader)

	injected := findMetric(rm, "mnemo.memories.injected")
	if injected == nil {
		t.Fatal("mnemo.memories.injected not found")
	}
	if sum := injected.Data.(metricdata.Sum[int64]); sum.DataPoints[0].Value != 3 {
		t.Errorf("injected = %d, want 3", sum.DataPoints[0].Value)
	}

	stored := findMetric(rm, "mnemo.memories.stored")
	if stored == nil {
		t.Fatal("mnemo.memories.stored not found")
	}
	if sum := stored.Data.(metricdata.Sum[int64]); sum.DataPoints[0].Value != 2 {
		t.Errorf("stored = %d, want 2", sum.DataPoints[0].Value)
	}
}

func TestActiveStreamsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveStreams.Add(ctx, 1)
	m.ActiveStreams.Add(ctx, 1)
	m.ActiveStreams.Add(ctx, -1)

	rm := collect(t, reader)
	md := findMetric(rm, "mnemo.active_streams")
	if md == nil {
		t.Fatal("mnemo.active_streams not found")
	}
	sum := md.Data.(metricdata.Sum[int64])
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("active streams = %d, want 1", sum.DataPoints[0].Value)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics() returned different instances")
	}
}
