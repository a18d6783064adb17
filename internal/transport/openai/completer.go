package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/procurekit/policyrag/internal/domain"
	"github.com/procurekit/policyrag/internal/metrics"
)

// Completer is an LLM completion provider using the OpenAI-compatible chat API.
type Completer struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	provider    string
	logger      *zap.Logger
}

// CompleterConfig holds the completion provider settings.
type CompleterConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Provider    string
	Logger      *zap.Logger
}

// NewCompleter creates an OpenAI-compatible completion provider.
func NewCompleter(cfg *CompleterConfig) *Completer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	return &Completer{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		timeout:     cfg.Timeout,
		provider:    provider,
		logger:      cfg.Logger,
	}
}

// Complete implements domain.Completer. maxTokens of zero leaves the limit to
// the provider.
func (c *Completer) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, "error").Inc()
		c.logger.Error("completion request failed",
			zap.String("provider", c.provider),
			zap.String("model", c.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", parseAPIError("completion", err)
	}

	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrExternalService)
	}

	metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(c.provider, c.model).Observe(duration.Seconds())

	c.logger.Debug("completion request completed",
		zap.String("provider", c.provider),
		zap.String("model", c.model),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}
