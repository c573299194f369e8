package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/boardgamehub/hub/internal/models"
	"github.com/boardgamehub/hub/internal/observability"
)

const (
	defaultGenerationTimeout = 60 * time.Second
	defaultLanguage          = "English"
)

const systemPrompt = "You are a board game expert who recommends board games to players. " +
	"You always answer with a single JSON object and nothing else."

// ChatClient sends a system and user prompt to a language model and returns its raw JSON-object reply.
// Implemented by openai.Client.
type ChatClient interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// RecommendationGenerator builds the prompt, calls the language model and validates its structured output.
type RecommendationGenerator struct {
	chat            ChatClient
	limiter         *rate.Limiter
	timeout         time.Duration
	allowOutsideCtx bool
	language        string
	metrics         observability.Metrics
	logger          *slog.Logger
}

// RecommendationGeneratorParams configures RecommendationGenerator. Limiter and Metrics may be nil.
type RecommendationGeneratorParams struct {
	Chat    ChatClient
	Limiter *rate.Limiter
	Timeout time.Duration
	// AllowOutsideContext lets the model recommend games absent from the supplied context.
	AllowOutsideContext bool
	// Language of the explanation (default English).
	Language string
	Metrics  observability.Metrics
	Logger   *slog.Logger
}

// NewRecommendationGenerator creates a RecommendationGenerator.
func NewRecommendationGenerator(p RecommendationGeneratorParams) *RecommendationGenerator {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}

	language := strings.TrimSpace(p.Language)
	if language == "" {
		language = defaultLanguage
	}

	return &RecommendationGenerator{
		chat:            p.Chat,
		limiter:         p.Limiter,
		timeout:         timeout,
		allowOutsideCtx: p.AllowOutsideContext,
		language:        language,
		metrics:         p.Metrics,
		logger:          logger,
	}
}

// Generate asks the language model for at most limit game names plus one explanation.
// Call failures and timeouts wrap ErrGenerationUnavailable; malformed output wraps ErrGenerationFormat.
// The returned names are untrusted and must be reconciled against the store.
func (g *RecommendationGenerator) Generate(
	ctx context.Context, preference, contextText string, limit int,
) (models.GeneratedRecommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			if g.metrics != nil {
				g.metrics.RecordGenerationRateLimited(ctx)
			}

			return models.GeneratedRecommendation{}, fmt.Errorf("%w: rate limiter: %w", ErrGenerationUnavailable, err)
		}
	}

	raw, err := g.chat.CompleteJSON(ctx, systemPrompt, BuildUserPrompt(preference, contextText, limit, g.allowOutsideCtx, g.language))
	if err != nil {
		g.logger.ErrorContext(ctx, "recommendation generation: chat completion failed", "error", err)

		return models.GeneratedRecommendation{}, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}

	rec, err := ParseGeneratedRecommendation(raw)
	if err != nil {
		g.logger.ErrorContext(ctx, "recommendation generation: malformed model output", "error", err, "raw_length", len(raw))

		return models.GeneratedRecommendation{}, err
	}

	g.logger.InfoContext(ctx, "recommendation generation completed", "recommended_game_names", rec.GameNames)

	return rec, nil
}

// BuildUserPrompt renders the user message: the player's preference, the context block and the output contract.
func BuildUserPrompt(preference, contextText string, limit int, allowOutsideContext bool, language string) string {
	var b strings.Builder

	b.WriteString("A player describes what they are looking for:\n\"\"\"\n")
	b.WriteString(strings.TrimSpace(preference))
	b.WriteString("\n\"\"\"\n\nGames from our catalog that may be relevant:\n")
	b.WriteString(contextText)
	b.WriteString("\n\nInstructions:\n")
	fmt.Fprintf(&b, "- Recommend at most %d board games, best match first.\n", limit)

	if allowOutsideContext {
		b.WriteString("- Prefer games from the catalog list above. " +
			"You may recommend other well-known games when the list has no good match.\n")
	} else {
		b.WriteString("- Only recommend games from the catalog list above.\n")
	}

	b.WriteString("- Write game names exactly as they appear in the catalog list.\n")
	fmt.Fprintf(&b, "- Write the explanation in %s.\n", language)
	b.WriteString("- Respond with only a JSON object of the form " +
		`{"recommended_game_names": ["<name>", ...], "explanation": "<why these games fit>"}` + ".\n")

	return b.String()
}

// generatedPayload mirrors the model's JSON object. Pointers distinguish missing from empty.
type generatedPayload struct {
	GameNames   *[]string `json:"recommended_game_names"`
	Explanation *string   `json:"explanation"`
}

// ParseGeneratedRecommendation validates the raw model output. It must be a JSON object (optionally inside a
// Markdown code fence) with recommended_game_names as an array of strings; explanation, when present and non-null,
// must be a string. Blank names are dropped and the rest trimmed.
// The explanation is kept verbatim; a missing one becomes "".
func ParseGeneratedRecommendation(raw string) (models.GeneratedRecommendation, error) {
	body := stripCodeFence(raw)
	if !strings.HasPrefix(body, "{") {
		return models.GeneratedRecommendation{}, fmt.Errorf("%w: output is not a JSON object", ErrGenerationFormat)
	}

	var payload generatedPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return models.GeneratedRecommendation{}, fmt.Errorf("%w: field %s has the wrong type", ErrGenerationFormat, typeErr.Field)
		}

		return models.GeneratedRecommendation{}, fmt.Errorf("%w: %w", ErrGenerationFormat, err)
	}

	if payload.GameNames == nil {
		return models.GeneratedRecommendation{}, fmt.Errorf("%w: recommended_game_names is missing", ErrGenerationFormat)
	}

	names := make([]string, 0, len(*payload.GameNames))
	for _, name := range *payload.GameNames {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	rec := models.GeneratedRecommendation{GameNames: names}
	if payload.Explanation != nil {
		rec.Explanation = *payload.Explanation
	}

	return rec, nil
}

func stripCodeFence(raw string) string {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "```") {
		return body
	}

	body = strings.TrimPrefix(body, "```")
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		// drop the info string (e.g. "json")
		body = body[i+1:]
	}

	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "```"))
}
