// Package openai adapts the OpenAI-compatible API to the domain Embedder and
// Completer contracts.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/procurekit/policyrag/internal/domain"
	"github.com/procurekit/policyrag/internal/metrics"
)

// Embedder is an embedding provider using the OpenAI-compatible API.
type Embedder struct {
	client       *openai.Client
	model        openai.EmbeddingModel
	dimensions   int
	maxBatchSize int
	timeout      time.Duration
	provider     string
	logger       *zap.Logger
}

// EmbedderConfig holds the embedding provider settings.
type EmbedderConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Dimensions   int
	MaxBatchSize int
	Timeout      time.Duration
	Provider     string
	Logger       *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *EmbedderConfig) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 64
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	return &Embedder{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        openai.EmbeddingModel(cfg.Model),
		dimensions:   cfg.Dimensions,
		maxBatchSize: maxBatch,
		timeout:      cfg.Timeout,
		provider:     provider,
		logger:       cfg.Logger,
	}
}

// Embed implements domain.Embedder. Returns the vector and token usage.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.request(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder. Input is split into API-sized
// sub-batches; result order matches input order.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	var out domain.BatchEmbeddingResult
	for offset := 0; offset < len(texts); offset += e.maxBatchSize {
		if err := ctx.Err(); err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed (offset %d): %w", offset, err)
		}
		end := offset + e.maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		res, err := e.request(ctx, texts[offset:end])
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed (offset %d): %w", offset, err)
		}
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// request performs a single embeddings API call for one sub-batch.
func (e *Embedder) request(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	model := string(e.model)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "error").Inc()
		e.logger.Error("embedding request failed",
			zap.String("provider", e.provider),
			zap.String("model", model),
			zap.Int("batch_size", len(texts)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.BatchEmbeddingResult{}, parseAPIError("embedding", err)
	}

	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "error").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"embedding response count mismatch: sent %d, got %d: %w",
			len(texts), len(resp.Data), domain.ErrExternalService,
		)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, model).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	// The API may return items out of order; restore input order by Index.
	data := make([]openai.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([][]float32, len(data))
	for i, d := range data {
		embeddings[i] = d.Embedding
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError maps provider failures onto the domain sentinels: timeouts
// and cancellations get ErrExternalServiceTimeout, everything else
// ErrExternalService.
func parseAPIError(kind string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s request timed out: %w", kind, domain.ErrExternalServiceTimeout)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w",
			kind, reqErr.HTTPStatusCode, detail, domain.ErrExternalService)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w",
			kind, apiErr.HTTPStatusCode, apiErr.Message, domain.ErrExternalService)
	}

	return fmt.Errorf("%s request failed: %v: %w", kind, err, domain.ErrExternalService)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
