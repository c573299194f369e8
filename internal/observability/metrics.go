package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	meterScope           = "github.com/boardgamehub/hub/internal/observability"
	cardinalityLimit     = 2000
	metricExportInterval = 60 * time.Second
)

// latencyHistogramBoundaries are Prometheus-style buckets (seconds) for HTTP and stage durations.
// Generation dominates end-to-end latency, so buckets reach well past the HTTP defaults.
var latencyHistogramBoundaries = []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// candidateBoundaries bucket the number of retrieved candidates per request.
var candidateBoundaries = []float64{0, 1, 5, 10, 20, 50}

// Metrics is the single metrics interface for the API (HTTP, pipeline stages, cache, breaker).
// Call sites accept a nil Metrics when metrics are disabled.
type Metrics interface {
	RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration)
	RecordRequestBodyTooLarge(ctx context.Context)
	RecordRecommendation(ctx context.Context, outcome string, duration time.Duration)
	RecordStageDuration(ctx context.Context, stage, outcome string, duration time.Duration)
	RecordRetrievalDegraded(ctx context.Context, reason string)
	RecordCandidates(ctx context.Context, count int)
	RecordUnresolvedNames(ctx context.Context, count int)
	RecordGenerationRateLimited(ctx context.Context)
	RecordCacheLookup(ctx context.Context, cacheName string, hit bool)
	RecordBreakerStateChange(ctx context.Context, breaker, state string)
}

// MeterProviderShutdown is the subset of the SDK MeterProvider needed for shutdown.
type MeterProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// MeterProviderConfig holds configuration for creating the MeterProvider and metrics.
type MeterProviderConfig struct {
	// ServiceName is used in the resource (default: boardgame-recommender).
	ServiceName string
	// OTLPPush adds a periodic OTLP HTTP reader next to the Prometheus exporter.
	// The SDK reads OTEL_EXPORTER_OTLP_ENDPOINT from the environment.
	OTLPPush bool
}

// NewMeterProvider creates a MeterProvider with a Prometheus exporter and returns the provider,
// an HTTP handler for /metrics, and Metrics that use the provider's Meter.
// Caller must call provider.Shutdown on exit.
func NewMeterProvider(
	ctx context.Context, cfg MeterProviderConfig,
) (provider MeterProviderShutdown, metricsHandler http.Handler, metrics Metrics, err error) {
	res, err := newResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, nil, nil, err
	}

	reg := prometheus.NewRegistry()

	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
		sdkmetric.WithView(
			durationView(MetricNameRequestDuration),
			durationView(MetricNameRecommendationDuration),
			durationView(MetricNameStageDuration),
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: MetricNameCandidates},
				sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: candidateBoundaries}},
			),
		),
	}

	if cfg.OTLPPush {
		otlpExporter, err := otlpmetrichttp.New(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(otlpExporter, sdkmetric.WithInterval(metricExportInterval)),
		))
	}

	mp := sdkmetric.NewMeterProvider(opts...)

	impl, err := newMetricsFromMeter(mp.Meter(meterScope))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create metrics instruments: %w", err)
	}

	return mp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), impl, nil
}

func durationView(name string) sdkmetric.View {
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: name},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyHistogramBoundaries}},
	)
}

type metricsImpl struct {
	requestCount           metric.Int64Counter
	requestDuration        metric.Float64Histogram
	requestBodyTooLarge    metric.Int64Counter
	recommendations        metric.Int64Counter
	recommendationDuration metric.Float64Histogram
	stageDuration          metric.Float64Histogram
	retrievalDegraded      metric.Int64Counter
	candidates             metric.Int64Histogram
	unresolvedNames        metric.Int64Counter
	rateLimited            metric.Int64Counter
	cacheHits              metric.Int64Counter
	cacheMisses            metric.Int64Counter
	breakerTransitions     metric.Int64Counter
}

//nolint:funlen // one block per instrument
func newMetricsFromMeter(meter metric.Meter) (*metricsImpl, error) {
	m := &metricsImpl{}

	var err error

	if m.requestCount, err = meter.Int64Counter(MetricNameRequestCount,
		metric.WithDescription("Total HTTP requests")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameRequestCount, err)
	}

	if m.requestDuration, err = meter.Float64Histogram(MetricNameRequestDuration,
		metric.WithDescription("HTTP request duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameRequestDuration, err)
	}

	if m.requestBodyTooLarge, err = meter.Int64Counter(MetricNameRequestBodyTooLarge,
		metric.WithDescription("Requests rejected with 413 because the body exceeded the limit")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameRequestBodyTooLarge, err)
	}

	if m.recommendations, err = meter.Int64Counter(MetricNameRecommendations,
		metric.WithDescription("Recommendation requests by outcome")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameRecommendations, err)
	}

	if m.recommendationDuration, err = meter.Float64Histogram(MetricNameRecommendationDuration,
		metric.WithDescription("End-to-end recommendation pipeline duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameRecommendationDuration, err)
	}

	if m.stageDuration, err = meter.Float64Histogram(MetricNameStageDuration,
		metric.WithDescription("Recommendation pipeline stage duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameStageDuration, err)
	}

	if m.retrievalDegraded, err = meter.Int64Counter(MetricNameRetrievalDegraded,
		metric.WithDescription("Requests that continued without retrieved context, by reason")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameRetrievalDegraded, err)
	}

	if m.candidates, err = meter.Int64Histogram(MetricNameCandidates,
		metric.WithDescription("Candidates returned by vector retrieval per request")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameCandidates, err)
	}

	if m.unresolvedNames, err = meter.Int64Counter(MetricNameUnresolvedNames,
		metric.WithDescription("Generated game names that did not resolve to a stored board game")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameUnresolvedNames, err)
	}

	if m.rateLimited, err = meter.Int64Counter(MetricNameGenerationRateLimitWaits,
		metric.WithDescription("Generation calls rejected because the rate limiter wait exceeded the deadline")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameGenerationRateLimitWaits, err)
	}

	if m.cacheHits, err = meter.Int64Counter(MetricNameCacheHits,
		metric.WithDescription("Cache lookups that returned a cached value. Label cache: query_embedding.")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameCacheHits, err)
	}

	if m.cacheMisses, err = meter.Int64Counter(MetricNameCacheMisses,
		metric.WithDescription("Cache lookups that missed and triggered a load. Label cache: query_embedding.")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameCacheMisses, err)
	}

	if m.breakerTransitions, err = meter.Int64Counter(MetricNameBreakerStateTransitions,
		metric.WithDescription("Circuit breaker state transitions by target state")); err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameBreakerStateTransitions, err)
	}

	return m, nil
}

func (m *metricsImpl) RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration) {
	attrs := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status_class", statusClass),
	)
	m.requestCount.Add(ctx, 1, metric.WithAttributeSet(attrs))

	durAttrs := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
	)
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(durAttrs))
}

func (m *metricsImpl) RecordRequestBodyTooLarge(ctx context.Context) {
	m.requestBodyTooLarge.Add(ctx, 1)
}

func (m *metricsImpl) RecordRecommendation(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrOutcome, NormalizeOutcome(outcome)))
	m.recommendations.Add(ctx, 1, attrs)
	m.recommendationDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *metricsImpl) RecordStageDuration(ctx context.Context, stage, outcome string, duration time.Duration) {
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrStage, NormalizeStage(stage)),
		attribute.String(AttrOutcome, NormalizeOutcome(outcome)),
	))
}

func (m *metricsImpl) RecordRetrievalDegraded(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedDegradedReasons)
	m.retrievalDegraded.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (m *metricsImpl) RecordCandidates(ctx context.Context, count int) {
	m.candidates.Record(ctx, int64(count))
}

func (m *metricsImpl) RecordUnresolvedNames(ctx context.Context, count int) {
	if count <= 0 {
		return
	}

	m.unresolvedNames.Add(ctx, int64(count))
}

func (m *metricsImpl) RecordGenerationRateLimited(ctx context.Context) {
	m.rateLimited.Add(ctx, 1)
}

func (m *metricsImpl) RecordCacheLookup(ctx context.Context, cacheName string, hit bool) {
	attrs := metric.WithAttributes(attribute.String(AttrCache, NormalizeCacheName(cacheName)))
	if hit {
		m.cacheHits.Add(ctx, 1, attrs)

		return
	}

	m.cacheMisses.Add(ctx, 1, attrs)
}

func (m *metricsImpl) RecordBreakerStateChange(ctx context.Context, breaker, state string) {
	m.breakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrBreaker, breaker),
		attribute.String(AttrState, NormalizeReason(state, AllowedBreakerStates)),
	))
}
