package observe

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Stats keeps metrics in process so a summary can be printed when a
// command exits.
type Stats struct {
	Metrics *Metrics

	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// Series is one counter or histogram data point.
type Series struct {
	Name   string
	Labels string  // Sorted key=value pairs joined by commas
	Value  float64 // Counter value or histogram sum
	Count  uint64  // Histogram sample count, zero for counters
}

// NewStats creates metrics backed by a manual reader.
func NewStats() (*Stats, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider)
	if err != nil {
		return nil, err
	}
	return &Stats{Metrics: m, reader: reader, provider: provider}, nil
}

// Snapshot collects every recorded series, sorted by name and labels.
func (s *Stats) Snapshot(ctx context.Context) ([]Series, error) {
	var rm metricdata.ResourceMetrics
	if err := s.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	var out []Series
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out = append(out, Series{
						Name:   m.Name,
						Labels: labels(dp.Attributes.ToSlice()),
						Value:  float64(dp.Value),
					})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out = append(out, Series{
						Name:   m.Name,
						Labels: labels(dp.Attributes.ToSlice()),
						Value:  dp.Sum,
						Count:  dp.Count,
					})
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Labels < out[j].Labels
	})
	return out, nil
}

// Shutdown releases the meter provider.
func (s *Stats) Shutdown(ctx context.Context) error {
	return s.provider.Shutdown(ctx)
}

func labels(kvs []attribute.KeyValue) string {
	parts := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	return strings.Join(parts, ",")
}
