package models

// Request defaults.
const (
	DefaultRecommendationLimit = 5
	DefaultRetrievalLimit      = 10
)

// RecommendationRequest is the body of POST /recommendations/.
// Limit and RetrievalLimit are pointers so an explicit 0 is rejected instead of defaulted.
type RecommendationRequest struct {
	Preference     string `json:"preference" validate:"required,no_null_bytes,not_blank,max=2000"`
	Limit          *int   `json:"limit,omitempty" validate:"omitempty,min=1"`
	RetrievalLimit *int   `json:"retrieval_limit,omitempty" validate:"omitempty,min=1"`
}

// EffectiveLimit returns the requested recommendation count or the default.
func (r *RecommendationRequest) EffectiveLimit() int {
	if r.Limit == nil {
		return DefaultRecommendationLimit
	}

	return *r.Limit
}

// EffectiveRetrievalLimit returns the requested candidate count clamped to ceiling, or the default.
func (r *RecommendationRequest) EffectiveRetrievalLimit(ceiling int) int {
	k := DefaultRetrievalLimit
	if r.RetrievalLimit != nil {
		k = *r.RetrievalLimit
	}

	return min(k, ceiling)
}

// GeneratedRecommendation is the validated structured output of the language model.
type GeneratedRecommendation struct {
	GameNames   []string
	Explanation string
}

// ReconciliationResult holds store-resolved games in generator order plus the names that did not resolve.
type ReconciliationResult struct {
	Games      []BoardGame
	Unresolved []string
}

// RecommendationResult is the response body of POST /recommendations/.
type RecommendationResult struct {
	Recommendations []BoardGame `json:"recommendations"`
	Explanation     string      `json:"explanation"`
}
