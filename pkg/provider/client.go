package provider

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is the provider's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// audioModelMarker identifies transcription models in the provider catalog.
// Those are not chat-capable and are filtered out of model listings.
const audioModelMarker = "whisper"

// Client wraps the provider SDK for a single API key. The key is held only
// for the lifetime of the client and is never logged.
type Client struct {
	api *openai.Client
}

// NewClient creates a provider client for the given key. An empty baseURL
// falls back to DefaultBaseURL.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = newHTTPClient()

	return &Client{api: openai.NewClientWithConfig(cfg)}
}

// Stream opens a streaming completion. The returned stream yields deltas in
// the provider's emission order; the caller owns closing it.
func (c *Client) Stream(ctx context.Context, req Request) (*openai.ChatCompletionStream, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, c.convert(req))
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return stream, nil
}

// Complete performs a non-streaming completion and returns the reply text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.convert(req))
	if err != nil {
		return "", fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from provider")
	}
	return resp.Choices[0].Message.Content, nil
}

// Model is one entry of the provider's model catalog.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ListChatModels fetches the provider's model catalog with audio-only
// models filtered out. Order of the remaining entries is preserved.
func (c *Client) ListChatModels(ctx context.Context) ([]Model, error) {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	models := make([]Model, 0, len(list.Models))
	for _, m := range list.Models {
		if strings.Contains(m.ID, audioModelMarker) {
			continue
		}
		models = append(models, Model{
			ID:      m.ID,
			Object:  m.Object,
			Created: m.CreatedAt,
			OwnedBy: m.OwnedBy,
		})
	}
	return models, nil
}

func (c *Client) convert(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, turn := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		}
	}

	out := openai.ChatCompletionRequest{
		Model:           req.Model,
		Messages:        messages,
		Temperature:     req.Temperature,
		MaxTokens:       req.MaxTokens,
		Stream:          req.Stream,
		ReasoningEffort: req.ReasoningEffort,
	}

	// o-series and gpt-5 models take their output budget through
	// max_completion_tokens and fix temperature at 1; the SDK rejects
	// the legacy knobs for these families before any network call.
	if fixedSamplingModel(req.Model) {
		out.MaxCompletionTokens = out.MaxTokens
		out.MaxTokens = 0
		out.Temperature = 1
	}

	return out
}

// fixedSamplingModel reports whether the model belongs to a family that
// only accepts max_completion_tokens and the default temperature.
func fixedSamplingModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func newHTTPClient() *http.Client {
	return &http.Client{
		// Generation can be slow; the per-request context carries the
		// real deadline.
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
