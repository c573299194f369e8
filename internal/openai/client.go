// Package openai provides a thin wrapper around the official OpenAI Go SDK for chat completions and embeddings.
// Any OpenAI-compatible endpoint works via WithBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
)

var (
	// ErrEmptyInput is returned when CreateEmbedding is called with empty input.
	ErrEmptyInput = errors.New("openai: input text is empty")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("openai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("openai: embedding dimension mismatch")
	// ErrNoChoices is returned when a chat completion contains no choices.
	ErrNoChoices = errors.New("openai: no choices in chat completion")
)

const (
	defaultEmbeddingModel = "text-embedding-ada-002"
	defaultTemperature    = 0.2
)

// Client calls the OpenAI chat completions and embeddings APIs via the official SDK.
type Client struct {
	sdk            openaisdk.Client
	chatModel      string
	embeddingModel string
	dimensions     int
	temperature    float64
}

type clientSettings struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client, *clientSettings)

// WithBaseURL points the client at an OpenAI-compatible endpoint (e.g. https://api.openai.com/v1).
func WithBaseURL(baseURL string) ClientOption {
	return func(_ *Client, s *clientSettings) {
		s.baseURL = baseURL
	}
}

// WithHTTPClient sets the transport. Retries belong to this client; the SDK's own retries are disabled.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(_ *Client, s *clientSettings) {
		s.httpClient = httpClient
	}
}

// WithChatModel sets the chat completion model (e.g. gpt-4o-mini).
func WithChatModel(model string) ClientOption {
	return func(c *Client, _ *clientSettings) {
		c.chatModel = model
	}
}

// WithEmbeddingModel sets the embedding model. Empty uses text-embedding-ada-002.
func WithEmbeddingModel(model string) ClientOption {
	return func(c *Client, _ *clientSettings) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

// WithDimensions requests a specific embedding dimension. Zero keeps the model's native dimension;
// text-embedding-ada-002 does not accept the parameter.
func WithDimensions(dim int) ClientOption {
	return func(c *Client, _ *clientSettings) {
		c.dimensions = dim
	}
}

// NewClient creates an OpenAI client using the official SDK.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		embeddingModel: defaultEmbeddingModel,
		temperature:    defaultTemperature,
	}
	settings := &clientSettings{}

	for _, opt := range opts {
		opt(client, settings)
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if settings.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(settings.baseURL))
	}

	if settings.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(settings.httpClient))
	}

	client.sdk = openaisdk.NewClient(sdkOpts...)

	return client
}

// EmbeddingModel returns the model used by CreateEmbedding. Index rows are keyed by it.
func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}

// CreateEmbedding returns the embedding vector for the given text using the configured embedding model.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(input),
		},
		Model: openaisdk.EmbeddingModel(c.embeddingModel),
	}
	if c.dimensions > 0 {
		params.Dimensions = param.NewOpt(int64(c.dimensions))
	}

	resp, err := c.sdk.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrNoEmbeddingInResponse
	}

	emb := resp.Data[0].Embedding
	if c.dimensions > 0 && len(emb) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), c.dimensions)
	}

	out := make([]float32, len(emb))
	for i := range emb {
		out[i] = float32(emb[i])
	}

	return out, nil
}

// CompleteJSON sends a system and a user message and returns the assistant content.
// The request uses the JSON-object response format, so the content should be a single JSON object,
// but callers must still validate it.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(c.chatModel),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(systemPrompt),
			openaisdk.UserMessage(userPrompt),
		},
		ResponseFormat: openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: param.NewOpt(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}
