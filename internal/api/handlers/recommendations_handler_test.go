package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardgamehub/hub/internal/api/response"
	"github.com/boardgamehub/hub/internal/huberrors"
	"github.com/boardgamehub/hub/internal/models"
	"github.com/boardgamehub/hub/internal/service"
)

type mockRecommendationService struct {
	recommendFunc func(ctx context.Context, req *models.RecommendationRequest) (*models.RecommendationResult, error)
	calls         int
}

func (m *mockRecommendationService) Recommend(
	ctx context.Context, req *models.RecommendationRequest,
) (*models.RecommendationResult, error) {
	m.calls++

	if m.recommendFunc != nil {
		return m.recommendFunc(ctx, req)
	}

	return &models.RecommendationResult{Recommendations: []models.BoardGame{}}, nil
}

func postRecommendation(t *testing.T, h *RecommendationsHandler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "http://test/recommendations/", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.Create(rec, req)

	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) response.ProblemDetails {
	t.Helper()

	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem response.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))

	return problem
}

func TestRecommendationsHandler_Create(t *testing.T) {
	t.Run("success returns 200 with recommendations and explanation", func(t *testing.T) {
		svc := &mockRecommendationService{
			recommendFunc: func(_ context.Context, req *models.RecommendationRequest) (*models.RecommendationResult, error) {
				assert.Equal(t, "tile laying", req.Preference)
				require.NotNil(t, req.Limit)
				assert.Equal(t, 2, *req.Limit)

				return &models.RecommendationResult{
					Recommendations: []models.BoardGame{
						{ID: 7, GameMetadata: models.GameMetadata{Name: "Azul"}, Status: models.BoardGameStatusApproved},
					},
					Explanation: "Pretty tiles.",
				}, nil
			},
		}

		rec := postRecommendation(t, NewRecommendationsHandler(svc), `{"preference":"tile laying","limit":2}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Pretty tiles.", body["explanation"])

		recs, ok := body["recommendations"].([]any)
		require.True(t, ok)
		require.Len(t, recs, 1)
		assert.Equal(t, "Azul", recs[0].(map[string]any)["name"])
	})

	t.Run("empty result encodes an empty array", func(t *testing.T) {
		rec := postRecommendation(t, NewRecommendationsHandler(&mockRecommendationService{}), `{"preference":"x"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"recommendations":[]`)
	})

	t.Run("trailing whitespace after the body is accepted", func(t *testing.T) {
		svc := &mockRecommendationService{}

		rec := postRecommendation(t, NewRecommendationsHandler(svc), "{\"preference\":\"x\"}\n  \n")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, svc.calls)
	})

	t.Run("request validation returns 400 without calling the service", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"malformed json", `{"preference":`},
			{"unknown field", `{"preference":"x","mood":"happy"}`},
			{"missing preference", `{}`},
			{"blank preference", `{"preference":"   "}`},
			{"zero limit", `{"preference":"x","limit":0}`},
			{"negative retrieval limit", `{"preference":"x","retrieval_limit":-1}`},
			{"wrong type", `{"preference":"x","limit":"five"}`},
			{"second json value", `{"preference":"x"}{"preference":"y"}`},
			{"trailing garbage", `{"preference":"x"} trailing`},
			{"trailing closing brace", `{"preference":"x"}}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := &mockRecommendationService{}

				rec := postRecommendation(t, NewRecommendationsHandler(svc), tt.body)

				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Equal(t, http.StatusBadRequest, decodeProblem(t, rec).Status)
				assert.Equal(t, 0, svc.calls)
			})
		}
	})

	t.Run("maps service errors to status codes", func(t *testing.T) {
		tests := []struct {
			name       string
			err        error
			wantStatus int
			wantDetail string
		}{
			{
				name:       "service validation",
				err:        huberrors.NewValidationError("preference", "preference is required and must be non-empty"),
				wantStatus: http.StatusBadRequest,
				wantDetail: "preference is required and must be non-empty",
			},
			{
				name:       "generation unavailable",
				err:        fmt.Errorf("%w: %w", service.ErrGenerationUnavailable, errors.New("upstream said: secret key invalid")),
				wantStatus: http.StatusServiceUnavailable,
				wantDetail: "Recommendation service temporarily unavailable",
			},
			{
				name:       "generation format",
				err:        fmt.Errorf("%w: output is not a JSON object", service.ErrGenerationFormat),
				wantStatus: http.StatusInternalServerError,
				wantDetail: "Recommendation failed",
			},
			{
				name:       "store unavailable",
				err:        fmt.Errorf("%w: dial tcp 10.0.0.1:5432", service.ErrStoreUnavailable),
				wantStatus: http.StatusInternalServerError,
				wantDetail: "Recommendation failed",
			},
			{
				name:       "unexpected",
				err:        errors.New("boom"),
				wantStatus: http.StatusInternalServerError,
				wantDetail: "Recommendation failed",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := &mockRecommendationService{
					recommendFunc: func(context.Context, *models.RecommendationRequest) (*models.RecommendationResult, error) {
						return nil, tt.err
					},
				}

				rec := postRecommendation(t, NewRecommendationsHandler(svc), `{"preference":"x"}`)

				assert.Equal(t, tt.wantStatus, rec.Code)
				problem := decodeProblem(t, rec)
				assert.Equal(t, tt.wantDetail, problem.Detail)
				assert.NotContains(t, rec.Body.String(), "secret key")
				assert.NotContains(t, rec.Body.String(), "10.0.0.1")
			})
		}
	})
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	t.Run("liveness", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(fakePinger{err: errors.New("down")}).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("ready when store reachable", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(fakePinger{}).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not ready when store unreachable", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(fakePinger{err: errors.New("dial tcp: refused")}).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotContains(t, rec.Body.String(), "refused")
	})
}
