// Package observe provides application-wide observability primitives for
// Shadowline: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Shadowline metrics.
const meterName = "github.com/mtoso/shadowline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// RecognizeDuration tracks speech-to-text transcription latency inside
	// the scoring service.
	RecognizeDuration metric.Float64Histogram

	// ScoreDuration tracks end-to-end scoring request latency: decode,
	// recognize, compare.
	ScoreDuration metric.Float64Histogram

	// --- Counters ---

	// Attempts counts finished recording attempts. Use with attribute:
	//   attribute.String("status", "scored"|"upload_failed"|"cancelled")
	Attempts metric.Int64Counter

	// StaleResults counts scoring responses discarded because the session
	// had moved on before they arrived.
	StaleResults metric.Int64Counter

	// Cues counts feedback cues played. Use with attribute:
	//   attribute.String("kind", "success"|"needs_work")
	Cues metric.Int64Counter

	// ScoreErrors counts scoring requests rejected or failed, by reason.
	ScoreErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks the number of microphones currently held.
	ActiveRecordings metric.Int64UpDownCounter

	// ActiveSessions tracks the number of live practice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// short-clip transcription and scoring latencies.
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
	if met.RecognizeDuration, err = m.Float64Histogram("shadowline.recognize.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScoreDuration, err = m.Float64Histogram("shadowline.score.duration",
		metric.WithDescription("End-to-end latency of one scoring request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Attempts, err = m.Int64Counter("shadowline.attempts",
		metric.WithDescription("Total finished recording attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.StaleResults, err = m.Int64Counter("shadowline.stale_results",
		metric.WithDescription("Total scoring responses discarded as stale."),
	); err != nil {
		return nil, err
	}
	if met.Cues, err = m.Int64Counter("shadowline.cues",
		metric.WithDescription("Total feedback cues played by kind."),
	); err != nil {
		return nil, err
	}
	if met.ScoreErrors, err = m.Int64Counter("shadowline.score.errors",
		metric.WithDescription("Total failed scoring requests by reason."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("shadowline.active_recordings",
		metric.WithDescription("Number of microphones currently held."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("shadowline.active_sessions",
		metric.WithDescription("Number of live practice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("shadowline.http.request.duration",
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

// RecordAttempt records one finished recording attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, status string) {
	m.Attempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordCue records one played feedback cue.
func (m *Metrics) RecordCue(ctx context.Context, kind string) {
	m.Cues.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordScoreError records one failed scoring request.
func (m *Metrics) RecordScoreError(ctx context.Context, reason string) {
	m.ScoreErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
