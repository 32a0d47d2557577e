// Package observe provides application-wide observability primitives for
// voicewire: OpenTelemetry metrics and the SDK provider wiring.
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

// meterName is the instrumentation scope name used for all voicewire metrics.
const meterName = "github.com/jmallek/voicewire"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture side ---

	// CaptureFrames counts full capture frames sent to the model.
	CaptureFrames metric.Int64Counter

	// --- Playback side ---

	// PlaybackSegments counts audio segments scheduled for playback.
	PlaybackSegments metric.Int64Counter

	// Interruptions counts barge-in events that flushed the playback queue.
	Interruptions metric.Int64Counter

	// DecodeFailures counts inbound audio payloads dropped because their
	// transport encoding could not be decoded.
	DecodeFailures metric.Int64Counter

	// --- Cost accounting ---

	// Tokens counts billed tokens. Use with attributes:
	//   attribute.String("side", "input"|"output"), attribute.String("modality", "text"|"audio")
	Tokens metric.Int64Counter

	// CostUSD accumulates response cost in USD. Use with attribute:
	//   attribute.String("model", ...)
	CostUSD metric.Float64Counter

	// --- Turn timing ---

	// TurnDuration tracks the wall time of one model response turn, from its
	// first message to its turn-complete marker.
	TurnDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-turn latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.CaptureFrames, err = m.Int64Counter("voicewire.capture.frames",
		metric.WithDescription("Total full capture frames sent to the model."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackSegments, err = m.Int64Counter("voicewire.playback.segments",
		metric.WithDescription("Total audio segments scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("voicewire.playback.interruptions",
		metric.WithDescription("Total barge-in events that flushed the playback queue."),
	); err != nil {
		return nil, err
	}
	if met.DecodeFailures, err = m.Int64Counter("voicewire.playback.decode_failures",
		metric.WithDescription("Total inbound audio payloads dropped due to decode errors."),
	); err != nil {
		return nil, err
	}
	if met.Tokens, err = m.Int64Counter("voicewire.tokens",
		metric.WithDescription("Total billed tokens by side and modality."),
	); err != nil {
		return nil, err
	}
	if met.CostUSD, err = m.Float64Counter("voicewire.cost.usd",
		metric.WithDescription("Accumulated response cost in USD by model."),
		metric.WithUnit("{USD}"),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("voicewire.turn.duration",
		metric.WithDescription("Wall time of one model response turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
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

// RecordTokens is a convenience method that records a token counter increment
// with the standard attribute set.
func (m *Metrics) RecordTokens(ctx context.Context, side, modality string, count int64) {
	if count == 0 {
		return
	}
	m.Tokens.Add(ctx, count,
		metric.WithAttributes(
			attribute.String("side", side),
			attribute.String("modality", modality),
		),
	)
}

// RecordCost is a convenience method that accumulates response cost for a
// model.
func (m *Metrics) RecordCost(ctx context.Context, model string, usd float64) {
	m.CostUSD.Add(ctx, usd,
		metric.WithAttributes(attribute.String("model", model)),
	)
}
