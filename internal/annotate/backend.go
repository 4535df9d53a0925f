package annotate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrCapacityExhausted marks a backend error as transient capacity exhaustion.
// Backends wrap it so the client retries the call.
var ErrCapacityExhausted = errors.New("annotate: capacity exhausted")

// Backend is a single text-completion call against a model.
type Backend interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// capacityCodes are provider error codes that signal quota or rate limiting.
var capacityCodes = map[string]struct{}{
	"RESOURCE_EXHAUSTED":  {},
	"insufficient_quota":  {},
	"rate_limit_exceeded": {},
}

// IsCapacityExhausted reports whether err is a transient capacity error worth
// retrying.
func IsCapacityExhausted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCapacityExhausted) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if isCapacityStatus(apiErr.HTTPStatusCode) {
			return true
		}
		if _, ok := capacityCodes[fmt.Sprint(apiErr.Code)]; ok {
			return true
		}
		if _, ok := capacityCodes[apiErr.Type]; ok {
			return true
		}
		return strings.Contains(apiErr.Message, "RESOURCE_EXHAUSTED")
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return isCapacityStatus(reqErr.HTTPStatusCode)
	}
	return false
}

func isCapacityStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// OpenAIBackend calls a chat-completions endpoint through go-openai.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend creates a backend for cfg. An empty BaseURL keeps the
// library default.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	httpClient := &http.Client{}
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}
	conf.HTTPClient = httpClient
	return &OpenAIBackend{client: openai.NewClientWithConfig(conf)}
}

// Complete sends prompt as a single user message and returns the first
// choice's content.
func (b *OpenAIBackend) Complete(ctx context.Context, model, prompt string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
