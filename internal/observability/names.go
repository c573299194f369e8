// Package observability provides OpenTelemetry metrics and tracing for the recommendation API.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameRequestCount             = "http.server.request_count"
	MetricNameRequestDuration          = "http.server.duration"
	MetricNameRequestBodyTooLarge      = "http_request_body_too_large_total"
	MetricNameRecommendations          = "recommendations_total"
	MetricNameRecommendationDuration   = "recommendation_duration_seconds"
	MetricNameStageDuration            = "recommendation_stage_duration_seconds"
	MetricNameRetrievalDegraded        = "recommendation_retrieval_degraded_total"
	MetricNameCandidates               = "recommendation_candidates"
	MetricNameUnresolvedNames          = "recommendation_unresolved_names_total"
	MetricNameCacheHits                = "cache_hits_total"
	MetricNameCacheMisses              = "cache_misses_total"
	MetricNameBreakerStateTransitions  = "circuit_breaker_state_transitions_total"
	MetricNameGenerationRateLimitWaits = "recommendation_generation_rate_limited_total"
)

// Attribute keys.
const (
	AttrOutcome = "outcome"
	AttrStage   = "stage"
	AttrReason  = "reason"
	AttrCache   = "cache"
	AttrBreaker = "breaker"
	AttrState   = "state"
)

// AllowedOutcomes for recommendations_total and per-stage durations.
var AllowedOutcomes = map[string]bool{
	"success":                true,
	"validation_error":       true,
	"generation_unavailable": true,
	"generation_format":      true,
	"store_unavailable":      true,
	"degraded":               true,
	"error":                  true,
}

// AllowedStages for recommendation_stage_duration_seconds.
var AllowedStages = map[string]bool{
	"retrieving":  true,
	"formatting":  true,
	"generating":  true,
	"reconciling": true,
}

// AllowedDegradedReasons for recommendation_retrieval_degraded_total.
var AllowedDegradedReasons = map[string]bool{
	"timeout":      true,
	"failed":       true,
	"circuit_open": true,
}

// AllowedCacheNames for cache_hits_total and cache_misses_total.
var AllowedCacheNames = map[string]bool{
	"query_embedding": true,
}

// AllowedBreakerStates for circuit_breaker_state_transitions_total.
var AllowedBreakerStates = map[string]bool{
	"closed":    true,
	"half-open": true,
	"open":      true,
}

// NormalizeOutcome returns outcome if allowed, otherwise "other".
func NormalizeOutcome(outcome string) string {
	return normalize(outcome, AllowedOutcomes)
}

// NormalizeStage returns stage if allowed, otherwise "other".
func NormalizeStage(stage string) string {
	return normalize(stage, AllowedStages)
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	return normalize(reason, allowed)
}

// NormalizeCacheName returns name if allowed, otherwise "other".
func NormalizeCacheName(name string) string {
	return normalize(name, AllowedCacheNames)
}

func normalize(value string, allowed map[string]bool) string {
	if allowed[value] {
		return value
	}

	return "other"
}
