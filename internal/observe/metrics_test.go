package observe_test

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jmallek/voicewire/internal/observe"
)

// newTestMetrics builds a Metrics instance backed by a manual reader so tests
// can collect what was recorded.
func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reader
}

// collectInt64Sum returns the total of all data points for the named
// Int64Counter, or 0 if the instrument recorded nothing.
func collectInt64Sum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, metr := range sm.Metrics {
			if metr.Name != name {
				continue
			}
			sum, ok := metr.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q has unexpected data type %T", name, metr.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetricsCounters(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.CaptureFrames.Add(ctx, 3)
	m.PlaybackSegments.Add(ctx, 2)
	m.Interruptions.Add(ctx, 1)

	if got := collectInt64Sum(t, reader, "voicewire.capture.frames"); got != 3 {
		t.Errorf("capture.frames = %d, want 3", got)
	}
}

func TestRecordTokensSplitsByAttribute(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTokens(ctx, "input", "audio", 150)
	m.RecordTokens(ctx, "output", "audio", 320)
	m.RecordTokens(ctx, "output", "text", 0) // zero counts are skipped

	if got := collectInt64Sum(t, reader, "voicewire.tokens"); got != 470 {
		t.Errorf("tokens total = %d, want 470", got)
	}
}

func TestRecordCost(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCost(ctx, "gemini-2.0-flash-live-001", 0.0042)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	var total float64
	for _, sm := range rm.ScopeMetrics {
		for _, metr := range sm.Metrics {
			if metr.Name != "voicewire.cost.usd" {
				continue
			}
			sum, ok := metr.Data.(metricdata.Sum[float64])
			if !ok {
				t.Fatalf("cost.usd has unexpected data type %T", metr.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 0.0042 {
		t.Errorf("cost.usd = %v, want 0.0042", total)
	}
}
