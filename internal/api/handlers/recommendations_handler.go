package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/boardgamehub/hub/internal/api/response"
	"github.com/boardgamehub/hub/internal/api/validation"
	"github.com/boardgamehub/hub/internal/huberrors"
	"github.com/boardgamehub/hub/internal/models"
	"github.com/boardgamehub/hub/internal/service"
)

// RecommendationService defines the interface for producing board game recommendations.
type RecommendationService interface {
	Recommend(ctx context.Context, req *models.RecommendationRequest) (*models.RecommendationResult, error)
}

// RecommendationsHandler handles HTTP requests for recommendations.
type RecommendationsHandler struct {
	service RecommendationService
}

// NewRecommendationsHandler creates a new recommendations handler.
func NewRecommendationsHandler(service RecommendationService) *RecommendationsHandler {
	return &RecommendationsHandler{service: service}
}

// Create handles POST /recommendations/.
func (h *RecommendationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendationRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	// The body must hold exactly one JSON value.
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	result, err := h.service.Recommend(r.Context(), &req)
	if err != nil {
		respondRecommendationError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// respondRecommendationError maps pipeline errors to status codes. Upstream details are logged, never echoed.
func respondRecommendationError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *huberrors.ValidationError

	switch {
	case errors.As(err, &validationErr):
		response.RespondProblem(w, response.ProblemDetails{
			Title:  "Validation Error",
			Status: http.StatusBadRequest,
			Detail: validationErr.Error(),
			Errors: []response.ErrorDetail{{Location: validationErr.Field, Message: validationErr.Error()}},
		})
	case errors.Is(err, service.ErrGenerationUnavailable), errors.Is(err, huberrors.ErrUnavailable):
		slog.WarnContext(r.Context(), "recommendation unavailable", "error", err)
		response.RespondServiceUnavailable(w, "Recommendation service temporarily unavailable")
	default:
		slog.ErrorContext(r.Context(), "recommendation failed", "error", err)
		response.RespondInternalServerError(w, "Recommendation failed")
	}
}
