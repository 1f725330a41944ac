package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "silent-partners/backend/pkg/errors"
	"silent-partners/backend/pkg/logger"
)

const (
	defaultTemperature = 0.3
	defaultMaxRetries  = 3
)

// LLMAdapter handles communication with an OpenAI-compatible completion API
type LLMAdapter struct {
	client     *openai.Client
	model      string
	mu         sync.RWMutex // Protects model field for concurrent access
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewLLMAdapter creates a new LLM adapter. baseURL must include the API
// version prefix (e.g. https://api.openai.com/v1).
func NewLLMAdapter(baseURL, apiKey, modelID string) *LLMAdapter {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &LLMAdapter{
		client:     openai.NewClientWithConfig(config),
		model:      modelID,
		maxRetries: defaultMaxRetries,
		backoff:    time.Second,
		logger:     logger.Named("llm"),
	}
}

// SetModel updates the default model used by this adapter
func (a *LLMAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("LLM adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the current default model
func (a *LLMAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// SetRetryPolicy overrides the attempt count and the linear backoff step.
func (a *LLMAdapter) SetRetryPolicy(attempts int, backoff time.Duration) {
	if attempts < 1 {
		attempts = 1
	}
	a.maxRetries = attempts
	a.backoff = backoff
}

// Completion is the text of a JSON-mode completion plus its token usage
type Completion struct {
	Content     string
	Model       string
	TotalTokens int
}

// CompleteJSON sends a system + user prompt in JSON response mode. An empty
// model falls back to the adapter default.
func (a *LLMAdapter) CompleteJSON(ctx context.Context, systemPrompt, userPrompt, model string) (*Completion, error) {
	if model == "" {
		model = a.GetModel()
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		Temperature: defaultTemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	// Retry logic with linear backoff
	var resp openai.ChatCompletionResponse
	var err error
	attempts := 0
	for attempts < a.maxRetries {
		if attempts > 0 {
			backoff := time.Duration(attempts) * a.backoff
			a.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempts+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, apperrors.NewContextCancelled("llm completion", ctx.Err())
			case <-time.After(backoff):
			}
		}
		attempts++

		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.String("model", model),
		)

		if ctx.Err() != nil {
			return nil, apperrors.NewContextCancelled("llm completion", err)
		}
		if !retryable(err) {
			break
		}
	}

	if err != nil {
		return nil, apperrors.NewLLMFailed(model, attempts, retryable(err), err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, apperrors.ErrLLMNoResponse
	}

	out := &Completion{
		Content:     resp.Choices[0].Message.Content,
		Model:       model,
		TotalTokens: resp.Usage.TotalTokens,
	}

	a.logger.Debug("LLM response generated",
		zap.String("model", model),
		zap.Int("tokens", out.TotalTokens),
		zap.Int("attempts", attempts),
	)

	return out, nil
}

// retryable reports whether a failed request is worth repeating. Client
// errors other than rate limiting will fail the same way again.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	// Transport errors and non-JSON error bodies
	return true
}
