package service

import (
	"context"
	"slices"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/boardgamehub/hub/internal/models"
	"github.com/boardgamehub/hub/internal/observability"
)

type mockEmbeddingClient struct {
	createFunc func(ctx context.Context, input string) ([]float32, error)
}

func (m *mockEmbeddingClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, input)
	}

	return []float32{0.1}, nil
}

type mockGameIndexRepo struct {
	nearestFunc func(
		ctx context.Context, model string, queryEmbedding []float32, limit int, minScore float64,
	) ([]models.CandidateRecord, error)
}

func (m *mockGameIndexRepo) NearestGames(
	ctx context.Context, model string, queryEmbedding []float32, limit int, minScore float64,
) ([]models.CandidateRecord, error) {
	if m.nearestFunc != nil {
		return m.nearestFunc(ctx, model, queryEmbedding, limit, minScore)
	}

	return nil, nil
}

type mockChatClient struct {
	completeFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

func (m *mockChatClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, systemPrompt, userPrompt)
	}

	return `{"recommended_game_names": [], "explanation": ""}`, nil
}

// memoryStore is an in-memory BoardGamesRepository. Normalization matches the SQL expression.
type memoryStore struct {
	mu         sync.Mutex
	games      []models.BoardGame
	categories map[int64][]models.Category
	tags       map[int64][]models.Tag
	findErr    error
	relErr     error
	findCalls  int
	lastKeys   []string
}

func (s *memoryStore) FindByNormalizedNames(_ context.Context, names []string) ([]models.BoardGame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.findCalls++
	s.lastKeys = slices.Clone(names)

	if s.findErr != nil {
		return nil, s.findErr
	}

	out := []models.BoardGame{}

	for _, g := range s.games {
		if slices.Contains(names, NormalizeGameName(g.Name)) {
			out = append(out, g)
		}
	}

	slices.SortFunc(out, func(a, b models.BoardGame) int { return int(a.ID - b.ID) })

	return out, nil
}

func (s *memoryStore) ListCategoriesByGameIDs(_ context.Context, ids []int64) (map[int64][]models.Category, error) {
	if s.relErr != nil {
		return nil, s.relErr
	}

	out := map[int64][]models.Category{}

	for _, id := range ids {
		if c, ok := s.categories[id]; ok {
			out[id] = c
		}
	}

	return out, nil
}

func (s *memoryStore) ListTagsByGameIDs(_ context.Context, ids []int64) (map[int64][]models.Tag, error) {
	out := map[int64][]models.Tag{}

	for _, id := range ids {
		if t, ok := s.tags[id]; ok {
			out[id] = t
		}
	}

	return out, nil
}

// mockRetriever is a testify mock so tests can assert exact retrieval arguments.
type mockRetriever struct {
	mock.Mock
}

func (m *mockRetriever) Retrieve(ctx context.Context, query string, k int) ([]models.CandidateRecord, error) {
	args := m.Called(ctx, query, k)

	candidates, _ := args.Get(0).([]models.CandidateRecord)

	return candidates, args.Error(1)
}

func game(id int64, name string) models.BoardGame {
	return models.BoardGame{
		ID:           id,
		GameMetadata: models.GameMetadata{Name: name},
		Status:       models.BoardGameStatusApproved,
	}
}

func candidate(name string, minPlayers, maxPlayers int) models.CandidateRecord {
	return models.CandidateRecord{
		GameMetadata: models.GameMetadata{Name: name, MinPlayers: &minPlayers, MaxPlayers: &maxPlayers},
	}
}

func intPtr(v int) *int {
	return &v
}

// cacheLookupMetrics records cache lookups. Other Metrics methods are not expected to be called.
type cacheLookupMetrics struct {
	observability.Metrics

	mu   sync.Mutex
	hits int
	miss int
}

func (m *cacheLookupMetrics) RecordCacheLookup(_ context.Context, _ string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hit {
		m.hits++
	} else {
		m.miss++
	}
}

func (m *cacheLookupMetrics) counts() (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.hits, m.miss
}
