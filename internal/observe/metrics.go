// Package observe provides application-wide observability primitives for
// ccoli: OpenTelemetry metrics, tracing helpers, structured logging, HTTP
// middleware, and the cumulative turn counters printed at shutdown.
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

// meterName is the instrumentation scope name used for all ccoli metrics.
const meterName = "github.com/jwhan-dev/ccoli"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks whole-turn latency from dequeue to reply sent.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts processed utterances. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("outcome", ...)
	Turns metric.Int64Counter

	// QueueDrops counts jobs evicted from the utterance queue.
	QueueDrops metric.Int64Counter

	// StreamsRejected counts inbound streams dropped by the input gate.
	StreamsRejected metric.Int64Counter

	// SendFailures counts failed outbound packets by packet kind.
	SendFailures metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of connected devices.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time on the
	// auxiliary endpoint. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("ccoli.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("ccoli.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("ccoli.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("ccoli.turn.duration",
		metric.WithDescription("Whole-turn latency from dequeue to reply sent."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("ccoli.turns",
		metric.WithDescription("Total processed utterances by mode and outcome."),
	); err != nil {
		return nil, err
	}
	if met.QueueDrops, err = m.Int64Counter("ccoli.queue.drops",
		metric.WithDescription("Total jobs evicted from the utterance queue."),
	); err != nil {
		return nil, err
	}
	if met.StreamsRejected, err = m.Int64Counter("ccoli.streams.rejected",
		metric.WithDescription("Total inbound streams dropped by the input gate."),
	); err != nil {
		return nil, err
	}
	if met.SendFailures, err = m.Int64Counter("ccoli.send.failures",
		metric.WithDescription("Total failed outbound packets by packet kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("ccoli.active_sessions",
		metric.WithDescription("Number of connected devices."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("ccoli.http.request.duration",
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

// RecordTurn records a processed utterance with the standard attribute set.
func (m *Metrics) RecordTurn(ctx context.Context, mode, outcome string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordQueueDrop records one evicted utterance job.
func (m *Metrics) RecordQueueDrop(ctx context.Context) {
	m.QueueDrops.Add(ctx, 1)
}

// RecordStreamRejected records one stream dropped by the input gate.
func (m *Metrics) RecordStreamRejected(ctx context.Context) {
	m.StreamsRejected.Add(ctx, 1)
}

// RecordSendFailure records one failed outbound packet.
func (m *Metrics) RecordSendFailure(ctx context.Context, kind string) {
	m.SendFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
