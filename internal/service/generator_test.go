package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/boardgamehub/hub/internal/huberrors"
)

func TestParseGeneratedRecommendation(t *testing.T) {
	tests := []struct {
		name            string
		raw             string
		wantNames       []string
		wantExplanation string
		wantErr         bool
	}{
		{
			name:            "valid payload",
			raw:             `{"recommended_game_names": ["Azul", "Catan"], "explanation": "Both are great."}`,
			wantNames:       []string{"Azul", "Catan"},
			wantExplanation: "Both are great.",
		},
		{
			name:            "code fenced payload",
			raw:             "```json\n{\"recommended_game_names\": [\"Azul\"], \"explanation\": \"x\"}\n```",
			wantNames:       []string{"Azul"},
			wantExplanation: "x",
		},
		{
			name:            "missing explanation becomes empty",
			raw:             `{"recommended_game_names": ["Azul"]}`,
			wantNames:       []string{"Azul"},
			wantExplanation: "",
		},
		{
			name:            "null explanation becomes empty",
			raw:             `{"recommended_game_names": ["Azul"], "explanation": null}`,
			wantNames:       []string{"Azul"},
			wantExplanation: "",
		},
		{
			name:            "explanation is kept verbatim",
			raw:             `{"recommended_game_names": ["Azul"], "explanation": "  Line one.\n\nLine two.  \n"}`,
			wantNames:       []string{"Azul"},
			wantExplanation: "  Line one.\n\nLine two.  \n",
		},
		{
			name:      "blank names are dropped and others trimmed",
			raw:       `{"recommended_game_names": ["  Azul ", "", "   "], "explanation": ""}`,
			wantNames: []string{"Azul"},
		},
		{
			name:            "empty list is valid",
			raw:             `{"recommended_game_names": [], "explanation": "Nothing fits."}`,
			wantNames:       []string{},
			wantExplanation: "Nothing fits.",
		},
		{name: "prose", raw: "I recommend Azul.", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "top-level array", raw: `["Azul"]`, wantErr: true},
		{name: "truncated JSON", raw: `{"recommended_game_names": ["Azul"`, wantErr: true},
		{name: "missing names", raw: `{"explanation": "x"}`, wantErr: true},
		{name: "null names", raw: `{"recommended_game_names": null}`, wantErr: true},
		{name: "names not an array", raw: `{"recommended_game_names": "Azul"}`, wantErr: true},
		{name: "names with non-strings", raw: `{"recommended_game_names": ["Azul", 3]}`, wantErr: true},
		{name: "explanation not a string", raw: `{"recommended_game_names": [], "explanation": 42}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGeneratedRecommendation(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrGenerationFormat)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantNames, got.GameNames)
			assert.Equal(t, tt.wantExplanation, got.Explanation)
		})
	}
}

func TestBuildUserPrompt(t *testing.T) {
	t.Run("includes limit, context, language and output contract", func(t *testing.T) {
		prompt := BuildUserPrompt("  co-op for 4  ", "1. Name: Azul", 3, true, "German")

		assert.Contains(t, prompt, "co-op for 4")
		assert.Contains(t, prompt, "1. Name: Azul")
		assert.Contains(t, prompt, "at most 3 board games")
		assert.Contains(t, prompt, "explanation in German")
		assert.Contains(t, prompt, "recommended_game_names")
		assert.Contains(t, prompt, "You may recommend other well-known games")
	})

	t.Run("restricts to catalog when outside context is disallowed", func(t *testing.T) {
		prompt := BuildUserPrompt("x", NoCandidatesContext, 1, false, "English")

		assert.Contains(t, prompt, "Only recommend games from the catalog list above.")
		assert.NotContains(t, prompt, "You may recommend other well-known games")
	})
}

func TestRecommendationGenerator_Generate(t *testing.T) {
	t.Run("returns validated recommendation", func(t *testing.T) {
		chat := &mockChatClient{
			completeFunc: func(_ context.Context, system, user string) (string, error) {
				assert.Equal(t, systemPrompt, system)
				assert.Contains(t, user, "at most 2 board games")

				return `{"recommended_game_names": ["Azul"], "explanation": "Great for two."}`, nil
			},
		}
		gen := NewRecommendationGenerator(RecommendationGeneratorParams{Chat: chat})

		rec, err := gen.Generate(context.Background(), "two players", "ctx", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"Azul"}, rec.GameNames)
		assert.Equal(t, "Great for two.", rec.Explanation)
	})

	t.Run("call failure is generation unavailable", func(t *testing.T) {
		chat := &mockChatClient{
			completeFunc: func(context.Context, string, string) (string, error) {
				return "", errors.New("connection refused")
			},
		}
		gen := NewRecommendationGenerator(RecommendationGeneratorParams{Chat: chat})

		_, err := gen.Generate(context.Background(), "x", "ctx", 1)
		require.ErrorIs(t, err, ErrGenerationUnavailable)
		assert.ErrorIs(t, err, huberrors.ErrUnavailable)
		assert.NotErrorIs(t, err, ErrGenerationFormat)
	})

	t.Run("timeout is generation unavailable", func(t *testing.T) {
		chat := &mockChatClient{
			completeFunc: func(ctx context.Context, _, _ string) (string, error) {
				<-ctx.Done()

				return "", ctx.Err()
			},
		}
		gen := NewRecommendationGenerator(RecommendationGeneratorParams{Chat: chat, Timeout: 10 * time.Millisecond})

		_, err := gen.Generate(context.Background(), "x", "ctx", 1)
		require.ErrorIs(t, err, ErrGenerationUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("malformed output is a format error", func(t *testing.T) {
		chat := &mockChatClient{
			completeFunc: func(context.Context, string, string) (string, error) {
				return "Sure! Try Azul.", nil
			},
		}
		gen := NewRecommendationGenerator(RecommendationGeneratorParams{Chat: chat})

		_, err := gen.Generate(context.Background(), "x", "ctx", 1)
		require.ErrorIs(t, err, ErrGenerationFormat)
		assert.NotErrorIs(t, err, ErrGenerationUnavailable)
	})

	t.Run("rate limiter wait beyond deadline is unavailable", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
		require.True(t, limiter.Allow())

		called := false
		chat := &mockChatClient{
			completeFunc: func(context.Context, string, string) (string, error) {
				called = true

				return `{"recommended_game_names": []}`, nil
			},
		}
		gen := NewRecommendationGenerator(RecommendationGeneratorParams{
			Chat: chat, Limiter: limiter, Timeout: 50 * time.Millisecond,
		})

		_, err := gen.Generate(context.Background(), "x", "ctx", 1)
		require.ErrorIs(t, err, ErrGenerationUnavailable)
		assert.False(t, called)
	})
}
