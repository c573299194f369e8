package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/boardgamehub/hub/internal/api/handlers"
	"github.com/boardgamehub/hub/internal/api/middleware"
	"github.com/boardgamehub/hub/internal/config"
	"github.com/boardgamehub/hub/internal/googleai"
	"github.com/boardgamehub/hub/internal/observability"
	"github.com/boardgamehub/hub/internal/openai"
	"github.com/boardgamehub/hub/internal/repository"
	"github.com/boardgamehub/hub/internal/service"
	"github.com/boardgamehub/hub/pkg/httpclient"
)

const serviceName = "boardgame-recommender"

var errUnsupportedEmbeddingProvider = errors.New("unsupported embedding provider")

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	server         *http.Server
	meterProvider  observability.MeterProviderShutdown
	tracerProvider *sdktrace.TracerProvider
}

// metricsSetup holds the metric instruments and the /metrics handler. Both are nil when metrics are disabled.
type metricsSetup struct {
	metrics        observability.Metrics
	metricsHandler http.Handler
}

// NewApp builds and wires all components. It does not start the HTTP server; call Run.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		obs           metricsSetup
		meterProvider observability.MeterProviderShutdown
		err           error
	)

	if cfg.MetricsEnabled {
		meterProvider, obs.metricsHandler, obs.metrics, err = observability.NewMeterProvider(ctx,
			observability.MeterProviderConfig{
				ServiceName: serviceName,
				OTLPPush:    cfg.OtelMetricsExporter == "otlp",
			})
		if err != nil {
			return nil, fmt.Errorf("create meter provider: %w", err)
		}
	} else {
		slog.Warn("metrics not enabled (METRICS_ENABLED=false)")
	}

	tracerProvider, err := observability.NewTracerProvider(ctx, cfg.OtelTracesExporter, serviceName)
	if err != nil {
		if err2 := shutdownObservability(ctx, nil, meterProvider); err2 != nil {
			slog.Error("shutdown meter provider after tracer provider error", "error", err2)
		}

		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	if tracerProvider == nil {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unsupported)")
	}

	recommendations, err := newRecommendationService(ctx, cfg, db, obs.metrics)
	if err != nil {
		if err2 := shutdownObservability(ctx, tracerProvider, meterProvider); err2 != nil {
			slog.Error("shutdown observability after wiring error", "error", err2)
		}

		return nil, err
	}

	server := newHTTPServer(cfg,
		handlers.NewHealthHandler(db), handlers.NewRecommendationsHandler(recommendations), obs)

	return &App{
		cfg:            cfg,
		server:         server,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
	}, nil
}

// newRecommendationService wires retrieval, generation and reconciliation.
func newRecommendationService(
	ctx context.Context, cfg *config.Config, db *pgxpool.Pool, metrics observability.Metrics,
) (*service.RecommendationService, error) {
	logger := slog.Default()

	// One retrying transport for every language model and embedding call. The SDKs' own retries are off.
	// A single attempt never outlives the generation budget; stage contexts bound the total.
	llmHTTPClient := httpclient.NewRetrying(httpclient.Options{
		RetryMax: cfg.LLMMaxRetries,
		Timeout:  cfg.GenerationTimeout,
		Logger:   logger,
	})

	openaiClient := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithHTTPClient(llmHTTPClient),
		openai.WithChatModel(cfg.OpenAIModelName),
		openai.WithEmbeddingModel(cfg.OpenAIEmbeddingModel),
		openai.WithDimensions(cfg.EmbeddingDimensions),
	)

	var (
		embeddingClient service.EmbeddingClient
		embeddingModel  string
	)

	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		embedder := openaiClient
		if cfg.EmbeddingProviderAPIKey != cfg.OpenAIAPIKey {
			embedder = openai.NewClient(cfg.EmbeddingProviderAPIKey,
				openai.WithBaseURL(cfg.OpenAIBaseURL),
				openai.WithHTTPClient(llmHTTPClient),
				openai.WithEmbeddingModel(cfg.OpenAIEmbeddingModel),
				openai.WithDimensions(cfg.EmbeddingDimensions),
			)
		}

		embeddingClient = embedder
		embeddingModel = embedder.EmbeddingModel()
	case config.EmbeddingProviderGoogle:
		googleClient, err := googleai.NewClient(ctx, cfg.EmbeddingProviderAPIKey,
			googleai.WithHTTPClient(llmHTTPClient),
			googleai.WithModel(cfg.GoogleEmbeddingModel),
			googleai.WithDimensions(cfg.EmbeddingDimensions),
		)
		if err != nil {
			return nil, fmt.Errorf("create google embedding client: %w", err)
		}

		embeddingClient = googleClient
		embeddingModel = googleClient.EmbeddingModel()
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedEmbeddingProvider, cfg.EmbeddingProvider)
	}

	var queryCache *lru.Cache[string, []float32]

	if cfg.QueryEmbeddingCacheSize > 0 {
		var err error

		queryCache, err = lru.New[string, []float32](cfg.QueryEmbeddingCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create query embedding cache: %w", err)
		}
	}

	var limiter *rate.Limiter
	if cfg.GenerationRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.GenerationRateLimit), 1)
	}

	retriever := service.NewVectorRetriever(service.VectorRetrieverParams{
		EmbeddingClient: embeddingClient,
		IndexRepo:       repository.NewGameIndexRepository(db),
		Model:           embeddingModel,
		MinScore:        cfg.VectorMinScore,
		MaxLimit:        cfg.RetrievalMaxLimit,
		Timeout:         cfg.RetrievalTimeout,
		QueryCache:      queryCache,
		Breaker: service.NewRetrievalBreaker(service.RetrievalBreakerSettings{
			ConsecutiveFailures: uint32(cfg.RetrievalBreakerFailures), //nolint:gosec // validated >= 1 in config
			OpenTimeout:         cfg.RetrievalBreakerTimeout,
			Metrics:             metrics,
			Logger:              logger,
		}),
		Metrics: metrics,
		Logger:  logger,
	})

	generator := service.NewRecommendationGenerator(service.RecommendationGeneratorParams{
		Chat:                openaiClient,
		Limiter:             limiter,
		Timeout:             cfg.GenerationTimeout,
		AllowOutsideContext: cfg.GenerationAllowOutsideContext,
		Language:            cfg.RecommendationLanguage,
		Metrics:             metrics,
		Logger:              logger,
	})

	reconciler := service.NewResponseReconciler(service.ResponseReconcilerParams{
		Repo:    repository.NewBoardGamesRepository(db),
		Timeout: cfg.StoreTimeout,
		Logger:  logger,
	})

	slog.Info("recommendation pipeline configured",
		"chat_model", cfg.OpenAIModelName,
		"embedding_provider", cfg.EmbeddingProvider,
		"embedding_model", embeddingModel,
		"retrieval_max_limit", cfg.RetrievalMaxLimit,
		"query_cache_size", cfg.QueryEmbeddingCacheSize,
	)

	return service.NewRecommendationService(service.RecommendationServiceParams{
		Retriever:         retriever,
		Generator:         generator,
		Reconciler:        reconciler,
		MaxRetrievalLimit: cfg.RetrievalMaxLimit,
		Metrics:           metrics,
		Logger:            logger,
	}), nil
}

// newHTTPServer builds the router. Middleware order: RequestID, Metrics, AccessLog, MaxBody.
// otelhttp wraps the router so access logs carry trace_id and span_id.
func newHTTPServer(
	cfg *config.Config,
	health *handlers.HealthHandler,
	recommendations *handlers.RecommendationsHandler,
	obs metricsSetup,
) *http.Server {
	r := chi.NewRouter()

	var (
		requestRecorder middleware.RequestRecorder
		tooLarge        middleware.RequestBodyTooLargeRecorder
	)

	if obs.metrics != nil {
		requestRecorder = obs.metrics
		tooLarge = obs.metrics
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics(requestRecorder))
	r.Use(middleware.AccessLog(slog.Default()))
	r.Use(middleware.MaxBody(cfg.MaxRequestBodyBytes, tooLarge))

	r.Get("/health", health.Check)
	r.Get("/ready", health.Ready)

	if obs.metricsHandler != nil {
		r.Handle("/metrics", obs.metricsHandler)
	}

	r.Post("/recommendations", recommendations.Create)
	r.Post("/recommendations/", recommendations.Create)

	handler := otelhttp.NewHandler(r, "recommendations-api",
		// Skip tracing for health checks and scrapes to reduce noise.
		otelhttp.WithFilter(func(req *http.Request) bool {
			switch req.URL.Path {
			case "/health", "/ready", "/metrics":
				return false
			default:
				return true
			}
		}),
	)

	const (
		readTimeout = 15 * time.Second
		idleTimeout = 60 * time.Second
	)

	// Generation can take up to GENERATION_TIMEOUT, so the write deadline follows it.
	writeTimeout := cfg.RetrievalTimeout + cfg.GenerationTimeout + cfg.StoreTimeout + 5*time.Second

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled (e.g. signal) or the server fails.
// Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr <- fmt.Errorf("server: %w", err)
		}
	}()

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(
	ctx context.Context, tracer *sdktrace.TracerProvider, meter observability.MeterProviderShutdown,
) error {
	var first error

	if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
		first = err
	}

	if meter != nil {
		if err := meter.Shutdown(ctx); err != nil {
			if first == nil {
				first = fmt.Errorf("meter provider shutdown: %w", err)
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server, then flushes observability. The observability error is returned only when
// the server shut down cleanly.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
