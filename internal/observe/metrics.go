// Package observe records narration metrics through the OpenTelemetry
// Metrics API. Tests should use [NewMetrics] with their own
// [metric.MeterProvider]; [DefaultMetrics] uses the global provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope used for all narrator metrics.
const meterName = "github.com/dgnsrekt/narrator"

// Metric names.
const (
	SynthesisDurationName     = "narrator.synthesis.duration"
	TranscriptionDurationName = "narrator.transcription.duration"
	ChunksName                = "narrator.chunks"
	FallbacksName             = "narrator.fallbacks"
	SessionsName              = "narrator.sessions"
	BackendErrorsName         = "narrator.backend.errors"
	ActiveSessionsName        = "narrator.active_sessions"
	CacheLookupsName          = "narrator.cache.lookups"
)

// Metrics holds the metric instruments. All fields are safe for concurrent
// use.
type Metrics struct {
	// SynthesisDuration tracks how long a backend takes to prepare a chunk.
	SynthesisDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech recognition latency.
	TranscriptionDuration metric.Float64Histogram

	// Chunks counts narrated chunks by backend.
	Chunks metric.Int64Counter

	// Fallbacks counts switches from the primary to the fallback backend.
	Fallbacks metric.Int64Counter

	// Sessions counts finished sessions by outcome.
	Sessions metric.Int64Counter

	// BackendErrors counts backend failures by backend and stage.
	BackendErrors metric.Int64Counter

	// ActiveSessions tracks sessions currently holding the audio output.
	ActiveSessions metric.Int64UpDownCounter

	// CacheLookups counts synthesis cache lookups by result.
	CacheLookups metric.Int64Counter
}

// latencyBuckets are histogram boundaries in seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram(SynthesisDurationName,
		metric.WithDescription("Time taken to prepare a chunk for playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram(TranscriptionDurationName,
		metric.WithDescription("Latency of speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Chunks, err = m.Int64Counter(ChunksName,
		metric.WithDescription("Chunks narrated by backend."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter(FallbacksName,
		metric.WithDescription("Switches from the primary to the fallback backend."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter(SessionsName,
		metric.WithDescription("Finished narration sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter(BackendErrorsName,
		metric.WithDescription("Speech backend failures by backend and stage."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter(ActiveSessionsName,
		metric.WithDescription("Narration sessions holding the audio output."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter(CacheLookupsName,
		metric.WithDescription("Synthesis cache lookups by result."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level instance built on the global
// meter provider.
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

// RecordSynthesis records the time a backend took to prepare a chunk.
func (m *Metrics) RecordSynthesis(ctx context.Context, backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.SynthesisDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("backend", backend)))
}

// RecordChunk counts a chunk narrated by backend.
func (m *Metrics) RecordChunk(ctx context.Context, backend string) {
	if m == nil {
		return
	}
	m.Chunks.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}

// RecordFallback counts a switch from one backend to another.
func (m *Metrics) RecordFallback(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.Fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordBackendError counts a backend failure at the given stage.
func (m *Metrics) RecordBackendError(ctx context.Context, backend, stage string) {
	if m == nil {
		return
	}
	m.BackendErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("stage", stage),
	))
}

// SessionStarted marks a session as holding the audio output.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded releases a session and counts its outcome.
func (m *Metrics) SessionEnded(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTranscription records speech recognition latency and status.
func (m *Metrics) RecordTranscription(ctx context.Context, d time.Duration, status string) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
}

// RecordCacheLookup counts a cache lookup. hit selects the result label.
func (m *Metrics) RecordCacheLookup(ctx context.Context, tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("result", result),
	))
}
