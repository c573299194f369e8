package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/boardgamehub/hub/internal/huberrors"
	"github.com/boardgamehub/hub/internal/models"
)

type pipelineFixture struct {
	retriever *mockRetriever
	chat      *mockChatClient
	store     *memoryStore
	prompts   []string
	service   *RecommendationService
}

func newPipelineFixture(t *testing.T, reply string) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		retriever: &mockRetriever{},
		store: &memoryStore{
			games: []models.BoardGame{game(1, "Azul"), game(2, "Catan"), game(3, "Pandemic")},
		},
	}
	f.chat = &mockChatClient{
		completeFunc: func(_ context.Context, _, userPrompt string) (string, error) {
			f.prompts = append(f.prompts, userPrompt)

			return reply, nil
		},
	}
	f.service = NewRecommendationService(RecommendationServiceParams{
		Retriever:         f.retriever,
		Generator:         NewRecommendationGenerator(RecommendationGeneratorParams{Chat: f.chat}),
		Reconciler:        NewResponseReconciler(ResponseReconcilerParams{Repo: f.store}),
		MaxRetrievalLimit: 20,
	})

	return f
}

func TestRecommendationService_Recommend(t *testing.T) {
	t.Run("returns resolved games in generator order with explanation", func(t *testing.T) {
		f := newPipelineFixture(t,
			`{"recommended_game_names": ["Catan", "Azul"], "explanation": "Both are great for families."}`)
		f.retriever.On("Retrieve", mock.Anything, "family game", 10).
			Return([]models.CandidateRecord{candidate("Azul", 2, 4), candidate("Catan", 3, 4)}, nil)

		res, err := f.service.Recommend(context.Background(), &models.RecommendationRequest{Preference: " family game "})
		require.NoError(t, err)
		assert.Equal(t, []string{"Catan", "Azul"}, gameNames(res.Recommendations))
		assert.Equal(t, "Both are great for families.", res.Explanation)

		require.Len(t, f.prompts, 1)
		assert.Contains(t, f.prompts[0], "1. Name: Azul")
		assert.Contains(t, f.prompts[0], "2. Name: Catan")
		f.retriever.AssertExpectations(t)
	})

	t.Run("strategy preference resolves the generated names from ten candidates", func(t *testing.T) {
		f := newPipelineFixture(t,
			`{"recommended_game_names": ["Azul", "Catan"], "explanation": "Both play 2-4 in under an hour."}`)
		retrieved := []string{
			"Azul", "Catan", "Pandemic", "Carcassonne", "Splendor",
			"Ticket to Ride", "Kingdomino", "Patchwork", "Jaipur", "7 Wonders",
		}
		candidates := make([]models.CandidateRecord, 0, len(retrieved))

		for _, name := range retrieved {
			candidates = append(candidates, candidate(name, 2, 4))
		}

		f.retriever.On("Retrieve", mock.Anything, "strategy game, 2-4 players, under an hour", 10).
			Return(candidates, nil)

		res, err := f.service.Recommend(context.Background(), &models.RecommendationRequest{
			Preference: "strategy game, 2-4 players, under an hour",
			Limit:      intPtr(3),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Azul", "Catan"}, gameNames(res.Recommendations))
		assert.NotEmpty(t, res.Explanation)

		require.Len(t, f.prompts, 1)
		assert.Contains(t, f.prompts[0], "at most 3 board games")

		for i, name := range retrieved {
			assert.Contains(t, f.prompts[0], fmt.Sprintf("%d. Name: %s", i+1, name))
		}

		f.retriever.AssertExpectations(t)
	})

	t.Run("never returns more than limit", func(t *testing.T) {
		f := newPipelineFixture(t,
			`{"recommended_game_names": ["Azul", "Catan", "Pandemic"], "explanation": "x"}`)
		f.retriever.On("Retrieve", mock.Anything, "anything", 10).Return([]models.CandidateRecord{}, nil)

		res, err := f.service.Recommend(context.Background(),
			&models.RecommendationRequest{Preference: "anything", Limit: intPtr(2)})
		require.NoError(t, err)
		assert.Len(t, res.Recommendations, 2)
	})

	t.Run("retrieval limit above the ceiling behaves like the ceiling", func(t *testing.T) {
		f := newPipelineFixture(t, `{"recommended_game_names": [], "explanation": ""}`)
		f.retriever.On("Retrieve", mock.Anything, "coop", 20).Return([]models.CandidateRecord{}, nil).Twice()

		for _, k := range []int{50, 20} {
			_, err := f.service.Recommend(context.Background(),
				&models.RecommendationRequest{Preference: "coop", RetrievalLimit: intPtr(k)})
			require.NoError(t, err)
		}

		f.retriever.AssertExpectations(t)
	})

	t.Run("retrieval failure degrades to general knowledge context", func(t *testing.T) {
		f := newPipelineFixture(t,
			`{"recommended_game_names": ["Pandemic"], "explanation": "A classic co-op."}`)
		f.retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, ErrRetrievalTimeout)

		res, err := f.service.Recommend(context.Background(), &models.RecommendationRequest{Preference: "co-op"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Pandemic"}, gameNames(res.Recommendations))
		assert.NotEmpty(t, res.Explanation)

		require.Len(t, f.prompts, 1)
		assert.Contains(t, f.prompts[0], NoCandidatesContext)
	})

	t.Run("empty index uses general knowledge context", func(t *testing.T) {
		f := newPipelineFixture(t,
			`{"recommended_game_names": ["Catan"], "explanation": "A well-known trading game."}`)
		f.retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return([]models.CandidateRecord{}, nil)

		res, err := f.service.Recommend(context.Background(), &models.RecommendationRequest{Preference: "q"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Catan"}, gameNames(res.Recommendations))
		assert.NotEmpty(t, res.Explanation)
		assert.Contains(t, f.prompts[0], NoCandidatesContext)
	})

	t.Run("no resolved names is still a success", func(t *testing.T) {
		f := newPipelineFixture(t,
			`{"recommended_game_names": ["Imaginary Realms"], "explanation": "Try this."}`)
		f.retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return([]models.CandidateRecord{}, nil)

		res, err := f.service.Recommend(context.Background(), &models.RecommendationRequest{Preference: "q"})
		require.NoError(t, err)
		assert.NotNil(t, res.Recommendations)
		assert.Empty(t, res.Recommendations)
		assert.Equal(t, "Try this.", res.Explanation)
	})

	t.Run("validation happens before any remote call", func(t *testing.T) {
		tests := []struct {
			name string
			req  *models.RecommendationRequest
		}{
			{"nil request", nil},
			{"blank preference", &models.RecommendationRequest{Preference: "   "}},
			{"zero limit", &models.RecommendationRequest{Preference: "q", Limit: intPtr(0)}},
			{"negative retrieval limit", &models.RecommendationRequest{Preference: "q", RetrievalLimit: intPtr(-1)}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newPipelineFixture(t, `{}`)

				_, err := f.service.Recommend(context.Background(), tt.req)
				require.ErrorIs(t, err, huberrors.ErrValidation)
				f.retriever.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything)
				assert.Empty(t, f.prompts)
				assert.Equal(t, 0, f.store.findCalls)
			})
		}
	})

	t.Run("generation failure is propagated", func(t *testing.T) {
		f := newPipelineFixture(t, "")
		f.chat.completeFunc = func(context.Context, string, string) (string, error) {
			return "", errors.New("503 from upstream")
		}
		f.retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return([]models.CandidateRecord{}, nil)

		_, err := f.service.Recommend(context.Background(), &models.RecommendationRequest{Preference: "q"})
		require.ErrorIs(t, err, ErrGenerationUnavailable)
		require.ErrorIs(t, err, huberrors.ErrUnavailable)
		assert.Equal(t, 0, f.store.findCalls)
	})

	t.Run("malformed generation is a format error", func(t *testing.T) {
		f := newPipelineFixture(t, "Sure! Here are some games: Azul, Catan.")
		f.retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return([]models.CandidateRecord{}, nil)

		_, err := f.service.Recommend(context.Background(), &models.RecommendationRequest{Preference: "q"})
		require.ErrorIs(t, err, ErrGenerationFormat)
	})

	t.Run("store failure is propagated", func(t *testing.T) {
		f := newPipelineFixture(t, `{"recommended_game_names": ["Azul"], "explanation": "x"}`)
		f.store.findErr = errors.New("connection refused")
		f.retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return([]models.CandidateRecord{}, nil)

		_, err := f.service.Recommend(context.Background(), &models.RecommendationRequest{Preference: "q"})
		require.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("prompt carries the limit", func(t *testing.T) {
		f := newPipelineFixture(t, `{"recommended_game_names": [], "explanation": ""}`)
		f.retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return([]models.CandidateRecord{}, nil)

		_, err := f.service.Recommend(context.Background(),
			&models.RecommendationRequest{Preference: "q", Limit: intPtr(3)})
		require.NoError(t, err)
		assert.True(t, strings.Contains(f.prompts[0], "at most 3 board games"))
	})
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, "success", outcomeFor(nil))
	assert.Equal(t, "validation_error", outcomeFor(huberrors.NewValidationError("preference", "x")))
	assert.Equal(t, "generation_unavailable", outcomeFor(ErrGenerationUnavailable))
	assert.Equal(t, "generation_format", outcomeFor(ErrGenerationFormat))
	assert.Equal(t, "store_unavailable", outcomeFor(ErrStoreUnavailable))
	assert.Equal(t, "error", outcomeFor(errors.New("boom")))
}
