package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/boardgamehub/hub/internal/huberrors"
	"github.com/boardgamehub/hub/internal/models"
	"github.com/boardgamehub/hub/internal/observability"
)

const tracerName = "github.com/boardgamehub/hub/internal/service"

// Retriever returns candidate games for a free-text query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.CandidateRecord, error)
}

// Generator produces untrusted game names and an explanation from a preference and a context block.
type Generator interface {
	Generate(ctx context.Context, preference, contextText string, limit int) (models.GeneratedRecommendation, error)
}

// Reconciler resolves generated names against the primary store.
type Reconciler interface {
	Reconcile(ctx context.Context, names []string, limit int) (models.ReconciliationResult, error)
}

// RecommendationService orchestrates retrieval, context formatting, generation and reconciliation.
type RecommendationService struct {
	retriever         Retriever
	generator         Generator
	reconciler        Reconciler
	maxRetrievalLimit int
	metrics           observability.Metrics
	tracer            trace.Tracer
	logger            *slog.Logger
}

// RecommendationServiceParams configures RecommendationService. Metrics may be nil.
type RecommendationServiceParams struct {
	Retriever  Retriever
	Generator  Generator
	Reconciler Reconciler
	// MaxRetrievalLimit is the retrieval ceiling applied to retrieval_limit.
	MaxRetrievalLimit int
	Metrics           observability.Metrics
	Logger            *slog.Logger
}

// NewRecommendationService creates a RecommendationService. Spans go to the global tracer provider.
func NewRecommendationService(p RecommendationServiceParams) *RecommendationService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxRetrieval := p.MaxRetrievalLimit
	if maxRetrieval <= 0 {
		maxRetrieval = 20
	}

	return &RecommendationService{
		retriever:         p.Retriever,
		generator:         p.Generator,
		reconciler:        p.Reconciler,
		maxRetrievalLimit: maxRetrieval,
		metrics:           p.Metrics,
		tracer:            otel.Tracer(tracerName),
		logger:            logger,
	}
}

// Recommend runs the pipeline for one request. Validation errors wrap huberrors.ErrValidation and happen before
// any remote call. Retrieval failures degrade to NoCandidatesContext. Generation and store failures are returned
// wrapped (ErrGenerationUnavailable, ErrGenerationFormat, ErrStoreUnavailable). A request whose generated names
// resolve to nothing still succeeds with an empty list and the explanation.
func (s *RecommendationService) Recommend(
	ctx context.Context, req *models.RecommendationRequest,
) (*models.RecommendationResult, error) {
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "recommendation.pipeline")
	defer span.End()

	preference, limit, retrievalLimit, err := s.validate(req)
	if err != nil {
		s.finish(ctx, span, StageReceived, "validation_error", start, err)

		return nil, err
	}

	span.SetAttributes(
		attribute.Int("recommendation.limit", limit),
		attribute.Int("recommendation.retrieval_limit", retrievalLimit),
	)

	// retrieving
	candidates, degraded := s.retrieve(ctx, preference, retrievalLimit)

	// formatting
	contextText := s.format(ctx, candidates)

	// generating
	generated, err := s.generate(ctx, preference, contextText, limit)
	if err != nil {
		s.finish(ctx, span, StageGenerating, outcomeFor(err), start, err)

		return nil, err
	}

	// reconciling
	reconciled, err := s.reconcile(ctx, generated.GameNames, limit)
	if err != nil {
		s.finish(ctx, span, StageReconciling, outcomeFor(err), start, err)

		return nil, err
	}

	outcome := "success"
	if degraded {
		outcome = "degraded"
	}

	s.finish(ctx, span, StageCompleted, outcome, start, nil)

	return &models.RecommendationResult{
		Recommendations: reconciled.Games,
		Explanation:     generated.Explanation,
	}, nil
}

func (s *RecommendationService) validate(req *models.RecommendationRequest) (string, int, int, error) {
	if req == nil {
		return "", 0, 0, huberrors.NewValidationError("preference", "preference is required and must be non-empty")
	}

	preference := strings.TrimSpace(req.Preference)
	if preference == "" {
		return "", 0, 0, huberrors.NewValidationError("preference", "preference is required and must be non-empty")
	}

	if req.Limit != nil && *req.Limit < 1 {
		return "", 0, 0, huberrors.NewValidationError("limit", "limit must be at least 1")
	}

	if req.RetrievalLimit != nil && *req.RetrievalLimit < 1 {
		return "", 0, 0, huberrors.NewValidationError("retrieval_limit", "retrieval_limit must be at least 1")
	}

	return preference, req.EffectiveLimit(), req.EffectiveRetrievalLimit(s.maxRetrievalLimit), nil
}

// retrieve never fails the request: errors and empty results both yield no candidates.
func (s *RecommendationService) retrieve(
	ctx context.Context, preference string, k int,
) (candidates []models.CandidateRecord, degraded bool) {
	ctx, span, done := s.startStage(ctx, StageRetrieving)
	defer span.End()

	candidates, err := s.retriever.Retrieve(ctx, preference, k)
	if err != nil {
		reason := DegradedReason(err)
		s.logger.WarnContext(ctx, "vector retrieval failed, continuing without catalog context",
			"error", err, "reason", reason)
		span.RecordError(err)
		span.SetAttributes(attribute.String("recommendation.degraded_reason", reason))

		if s.metrics != nil {
			s.metrics.RecordRetrievalDegraded(ctx, reason)
		}

		done("degraded")

		return nil, true
	}

	span.SetAttributes(attribute.Int("recommendation.candidates", len(candidates)))

	if s.metrics != nil {
		s.metrics.RecordCandidates(ctx, len(candidates))
	}

	done("success")

	return candidates, false
}

func (s *RecommendationService) format(ctx context.Context, candidates []models.CandidateRecord) string {
	_, span, done := s.startStage(ctx, StageFormatting)
	defer span.End()

	text := FormatContext(candidates)
	done("success")

	return text
}

func (s *RecommendationService) generate(
	ctx context.Context, preference, contextText string, limit int,
) (models.GeneratedRecommendation, error) {
	ctx, span, done := s.startStage(ctx, StageGenerating)
	defer span.End()

	generated, err := s.generator.Generate(ctx, preference, contextText, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		done(outcomeFor(err))

		return generated, err
	}

	span.SetAttributes(attribute.Int("recommendation.generated_names", len(generated.GameNames)))
	done("success")

	return generated, nil
}

func (s *RecommendationService) reconcile(
	ctx context.Context, names []string, limit int,
) (models.ReconciliationResult, error) {
	ctx, span, done := s.startStage(ctx, StageReconciling)
	defer span.End()

	reconciled, err := s.reconciler.Reconcile(ctx, names, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconciliation failed")
		done(outcomeFor(err))

		return reconciled, err
	}

	span.SetAttributes(
		attribute.Int("recommendation.resolved", len(reconciled.Games)),
		attribute.Int("recommendation.unresolved", len(reconciled.Unresolved)),
	)

	if s.metrics != nil {
		s.metrics.RecordUnresolvedNames(ctx, len(reconciled.Unresolved))
	}

	done("success")

	return reconciled, nil
}

// startStage opens a span for stage and tags log records with it. done records the stage duration.
func (s *RecommendationService) startStage(
	ctx context.Context, stage Stage,
) (context.Context, trace.Span, func(outcome string)) {
	started := time.Now()

	ctx = observability.WithStage(ctx, string(stage))
	ctx, span := s.tracer.Start(ctx, "recommendation."+string(stage))

	s.logger.DebugContext(ctx, "recommendation stage started")

	return ctx, span, func(outcome string) {
		if s.metrics != nil {
			s.metrics.RecordStageDuration(ctx, string(stage), outcome, time.Since(started))
		}
	}
}

func (s *RecommendationService) finish(
	ctx context.Context, span trace.Span, stage Stage, outcome string, start time.Time, err error,
) {
	if s.metrics != nil {
		s.metrics.RecordRecommendation(ctx, outcome, time.Since(start))
	}

	if err == nil {
		s.logger.InfoContext(ctx, "recommendation completed", "outcome", outcome, "duration", time.Since(start))

		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)

	if errors.Is(err, huberrors.ErrValidation) {
		s.logger.DebugContext(ctx, "recommendation rejected", "error", err)

		return
	}

	s.logger.ErrorContext(observability.WithStage(ctx, string(stage)), "recommendation failed",
		"outcome", outcome, "error", err)
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, huberrors.ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrGenerationUnavailable):
		return "generation_unavailable"
	case errors.Is(err, ErrGenerationFormat):
		return "generation_format"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
