package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/boardgamehub/hub/internal/models"
	"github.com/boardgamehub/hub/internal/observability"
)

const (
	queryEmbeddingCacheName = "query_embedding"
	retrievalBreakerName    = "vector_retrieval"
	defaultRetrievalTimeout = 5 * time.Second
)

// EmbeddingClient turns text into an embedding vector. Implemented by openai.Client and googleai.Client.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}

// GameIndexRepository provides nearest-neighbour reads over the board game vector index.
type GameIndexRepository interface {
	NearestGames(
		ctx context.Context, model string, queryEmbedding []float32, limit int, minScore float64,
	) ([]models.CandidateRecord, error)
}

// VectorRetriever embeds a free-text preference and returns the most similar indexed games.
// It is stateless per call; the optional query cache and circuit breaker are shared across requests.
type VectorRetriever struct {
	embeddingClient EmbeddingClient
	indexRepo       GameIndexRepository
	model           string
	minScore        float64
	maxLimit        int
	timeout         time.Duration
	queryCache      *lru.Cache[string, []float32]
	queryLoadGroup  singleflight.Group
	breaker         *gobreaker.CircuitBreaker[[]models.CandidateRecord]
	metrics         observability.Metrics
	logger          *slog.Logger
}

// VectorRetrieverParams configures VectorRetriever. QueryCache, Breaker and Metrics may be nil.
type VectorRetrieverParams struct {
	EmbeddingClient EmbeddingClient
	IndexRepo       GameIndexRepository
	// Model is the embedding model name; index rows are filtered by it.
	Model    string
	MinScore float64
	// MaxLimit is the retrieval ceiling; larger requests are clamped to it.
	MaxLimit   int
	Timeout    time.Duration
	QueryCache *lru.Cache[string, []float32]
	Breaker    *gobreaker.CircuitBreaker[[]models.CandidateRecord]
	Metrics    observability.Metrics
	Logger     *slog.Logger
}

// NewVectorRetriever creates a VectorRetriever.
func NewVectorRetriever(p VectorRetrieverParams) *VectorRetriever {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultRetrievalTimeout
	}

	maxLimit := p.MaxLimit
	if maxLimit <= 0 {
		maxLimit = 20
	}

	return &VectorRetriever{
		embeddingClient: p.EmbeddingClient,
		indexRepo:       p.IndexRepo,
		model:           p.Model,
		minScore:        p.MinScore,
		maxLimit:        maxLimit,
		timeout:         timeout,
		queryCache:      p.QueryCache,
		breaker:         p.Breaker,
		metrics:         p.Metrics,
		logger:          logger,
	}
}

// RetrievalBreakerSettings configures NewRetrievalBreaker.
type RetrievalBreakerSettings struct {
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before allowing a probe.
	OpenTimeout time.Duration
	Metrics     observability.Metrics
	Logger      *slog.Logger
}

// NewRetrievalBreaker creates the circuit breaker shared by all retrievals. While open, Retrieve fails fast
// with ErrRetrievalFailed and the orchestrator degrades without waiting for the index timeout.
// Caller cancellations do not count as failures.
func NewRetrievalBreaker(s RetrievalBreakerSettings) *gobreaker.CircuitBreaker[[]models.CandidateRecord] {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return gobreaker.NewCircuitBreaker[[]models.CandidateRecord](gobreaker.Settings{
		Name:        retrievalBreakerName,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("retrieval circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())

			if s.Metrics != nil {
				s.Metrics.RecordBreakerStateChange(context.Background(), name, to.String())
			}
		},
	})
}

// ClampLimit bounds k to [1, MaxLimit].
func (r *VectorRetriever) ClampLimit(k int) int {
	return max(1, min(k, r.maxLimit))
}

// Retrieve returns up to k candidates (clamped to the retrieval ceiling) most similar to query,
// most similar first. An empty index yields an empty slice and no error.
// Errors wrap ErrRetrievalTimeout when the deadline is exceeded and ErrRetrievalFailed otherwise.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, k int) ([]models.CandidateRecord, error) {
	query = strings.TrimSpace(query)
	k = r.ClampLimit(k)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	search := func() ([]models.CandidateRecord, error) {
		embedding, err := r.queryEmbedding(ctx, query)
		if err != nil {
			return nil, err
		}

		candidates, err := r.indexRepo.NearestGames(ctx, r.model, embedding, k, r.minScore)
		if err != nil {
			return nil, fmt.Errorf("nearest games: %w", err)
		}

		return candidates, nil
	}

	var (
		candidates []models.CandidateRecord
		err        error
	)

	if r.breaker != nil {
		candidates, err = r.breaker.Execute(search)
	} else {
		candidates, err = search()
	}

	if err != nil {
		return nil, r.classify(ctx, err)
	}

	if candidates == nil {
		candidates = []models.CandidateRecord{}
	}

	r.logger.DebugContext(ctx, "vector retrieval completed", "model", r.model, "k", k, "candidates", len(candidates))

	return candidates, nil
}

func (r *VectorRetriever) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrRetrievalTimeout, err)
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: circuit open: %w", ErrRetrievalFailed, err)
	default:
		return fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}
}

// queryEmbedding returns the embedding of query, through the cache when one is configured.
// Concurrent misses for the same query share one provider call. That call runs detached from any single
// caller's cancellation, bounded by the retrieval timeout; each caller stops waiting when its own ctx ends.
func (r *VectorRetriever) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if r.queryCache == nil {
		vec, err := r.embeddingClient.CreateEmbedding(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("create embedding: %w", err)
		}

		return vec, nil
	}

	if vec, ok := r.queryCache.Get(query); ok {
		r.recordCacheLookup(ctx, true)

		return vec, nil
	}

	loaded := false

	ch := r.queryLoadGroup.DoChan(query, func() (any, error) {
		loaded = true

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		vec, err := r.embeddingClient.CreateEmbedding(loadCtx, query)
		if err != nil {
			return nil, fmt.Errorf("create embedding: %w", err)
		}

		r.queryCache.Add(query, vec)

		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("query embedding: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("query embedding: %w", res.Err)
		}

		// Callers that joined an in-flight load were served without a provider call of their own.
		r.recordCacheLookup(ctx, !loaded)

		vec, ok := res.Val.([]float32)
		if !ok {
			return nil, fmt.Errorf("query embedding: unexpected cached type %T", res.Val)
		}

		return vec, nil
	}
}

func (r *VectorRetriever) recordCacheLookup(ctx context.Context, hit bool) {
	if r.metrics != nil {
		r.metrics.RecordCacheLookup(ctx, queryEmbeddingCacheName, hit)
	}
}

// DegradedReason maps a retrieval error to a bounded metric reason.
func DegradedReason(err error) string {
	switch {
	case errors.Is(err, ErrRetrievalTimeout):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	default:
		return "failed"
	}
}
