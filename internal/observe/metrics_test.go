package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader.
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

// sumFor returns the counter value for the data point carrying key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// None of these may panic.
	m.RecordSynthesis(ctx, "openai", time.Second)
	m.RecordChunk(ctx, "openai")
	m.RecordFallback(ctx, "openai", "local")
	m.RecordBackendError(ctx, "openai", "prepare")
	m.SessionStarted(ctx)
	m.SessionEnded(ctx, "completed")
	m.RecordTranscription(ctx, time.Second, "ok")
	m.RecordCacheLookup(ctx, "memory", true)
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordChunk(ctx, "openai")
	m.RecordChunk(ctx, "openai")
	m.RecordChunk(ctx, "local")
	m.RecordFallback(ctx, "openai", "local")
	m.RecordBackendError(ctx, "openai", "prepare")
	m.RecordCacheLookup(ctx, "memory", true)
	m.RecordCacheLookup(ctx, "memory", false)
	m.RecordCacheLookup(ctx, "memory", false)

	rm := collect(t, reader)

	tests := []struct {
		name  string
		key   string
		value string
		want  int64
	}{
		{ChunksName, "backend", "openai", 2},
		{ChunksName, "backend", "local", 1},
		{FallbacksName, "to", "local", 1},
		{BackendErrorsName, "stage", "prepare", 1},
		{CacheLookupsName, "result", "miss", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.value, func(t *testing.T) {
			if got := sumFor(t, rm, tt.name, tt.key, tt.value); got != tt.want {
				t.Errorf("value = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSessionGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionEnded(ctx, "stopped")

	rm := collect(t, reader)
	met := findMetric(rm, ActiveSessionsName)
	if met == nil {
		t.Fatal("active sessions metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("active sessions has no data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
	if got := sumFor(t, rm, SessionsName, "outcome", "stopped"); got != 1 {
		t.Errorf("stopped sessions = %d, want 1", got)
	}
}

func TestHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSynthesis(ctx, "openai", 200*time.Millisecond)
	m.RecordSynthesis(ctx, "openai", 400*time.Millisecond)
	m.RecordTranscription(ctx, time.Second, "ok")

	rm := collect(t, reader)

	tests := []struct {
		name string
		want uint64
	}{
		{SynthesisDurationName, 2},
		{TranscriptionDurationName, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			met := findMetric(rm, tt.name)
			if met == nil {
				t.Fatalf("metric %q not found", tt.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok || len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no histogram data", tt.name)
			}
			if got := hist.DataPoints[0].Count; got != tt.want {
				t.Errorf("count = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStatsSnapshot(t *testing.T) {
	stats, err := NewStats()
	if err != nil {
		t.Fatalf("NewStats: %v", err)
	}
	t.Cleanup(func() { _ = stats.Shutdown(context.Background()) })

	ctx := context.Background()
	stats.Metrics.RecordChunk(ctx, "local")
	stats.Metrics.RecordSynthesis(ctx, "local", time.Second)

	series, err := stats.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	var chunks, synth *Series
	for i := range series {
		switch series[i].Name {
		case ChunksName:
			chunks = &series[i]
		case SynthesisDurationName:
			synth = &series[i]
		}
	}
	if chunks == nil || chunks.Value != 1 || chunks.Labels != "backend=local" {
		t.Errorf("chunks series = %+v", chunks)
	}
	if synth == nil || synth.Count != 1 || synth.Value != 1 {
		t.Errorf("synthesis series = %+v", synth)
	}
	for i := 1; i < len(series); i++ {
		if series[i-1].Name > series[i].Name {
			t.Errorf("series not sorted: %q before %q", series[i-1].Name, series[i].Name)
		}
	}
}
