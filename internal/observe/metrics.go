// Package observe provides application-wide observability primitives for
// Quill: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Quill metrics.
const meterName = "github.com/MrWong99/quill"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks speech-to-text transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// CaptureDuration tracks how long recording sessions spent capturing
	// audio before dispatch.
	CaptureDuration metric.Float64Histogram

	// InsertDuration tracks text delivery latency into the focused target.
	InsertDuration metric.Float64Histogram

	// --- Counters ---

	// WakeDetections counts wake-word matches. Use with attribute:
	//   attribute.String("keyword", ...)
	WakeDetections metric.Int64Counter

	// SessionOutcomes counts finished recording sessions. Use with attribute:
	//   attribute.String("outcome", ...)
	SessionOutcomes metric.Int64Counter

	// Insertions counts text deliveries. Use with attribute:
	//   attribute.String("outcome", ...)
	Insertions metric.Int64Counter

	// DroppedFrames counts audio frames discarded by slow subscribers. Use
	// with attribute:
	//   attribute.String("subscriber", ...)
	DroppedFrames metric.Int64Counter

	// --- Error counters ---

	// TranscriptionErrors counts failed transcription attempts. Use with
	// attribute:
	//   attribute.String("language", ...)
	TranscriptionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of non-terminal recording sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
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
	if met.TranscriptionDuration, err = m.Float64Histogram("quill.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("quill.capture.duration",
		metric.WithDescription("Time sessions spent capturing audio before dispatch."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.InsertDuration, err = m.Float64Histogram("quill.insert.duration",
		metric.WithDescription("Latency of text delivery into the focused target."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WakeDetections, err = m.Int64Counter("quill.wake.detections",
		metric.WithDescription("Total wake-word matches by keyword."),
	); err != nil {
		return nil, err
	}
	if met.SessionOutcomes, err = m.Int64Counter("quill.session.outcomes",
		metric.WithDescription("Total finished recording sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Insertions, err = m.Int64Counter("quill.insert.deliveries",
		metric.WithDescription("Total text deliveries by outcome."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("quill.audio.dropped_frames",
		metric.WithDescription("Total audio frames discarded by slow subscribers."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.TranscriptionErrors, err = m.Int64Counter("quill.transcription.errors",
		metric.WithDescription("Total failed transcription attempts by language."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("quill.active_sessions",
		metric.WithDescription("Number of non-terminal recording sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("quill.http.request.duration",
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

// RecordWakeDetection is a convenience method that records a wake-word match
// counter increment.
func (m *Metrics) RecordWakeDetection(ctx context.Context, keyword string) {
	m.WakeDetections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("keyword", keyword)),
	)
}

// RecordSessionOutcome is a convenience method that records a finished
// session counter increment.
func (m *Metrics) RecordSessionOutcome(ctx context.Context, outcome string) {
	m.SessionOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordInsertion is a convenience method that records a text delivery
// counter increment.
func (m *Metrics) RecordInsertion(ctx context.Context, outcome string) {
	m.Insertions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordDroppedFrames is a convenience method that records discarded audio
// frames for a named subscriber.
func (m *Metrics) RecordDroppedFrames(ctx context.Context, subscriber string, n int64) {
	m.DroppedFrames.Add(ctx, n,
		metric.WithAttributes(attribute.String("subscriber", subscriber)),
	)
}
