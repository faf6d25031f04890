// Package ollama implements domain.Embedder against an Ollama-compatible
// embedding service.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/examdex/examdex/internal/domain"
	"github.com/examdex/examdex/internal/metrics"
)

// Embedder calls the embedding service over HTTP. When the service is down
// or answers garbage it degrades to a deterministic local vector instead of
// failing the request; callers can tell the two apart via Fallback.
type Embedder struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
	logger     *zap.Logger
}

// Config holds the embedding service settings.
type Config struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
	Logger     *zap.Logger
}

// NewEmbedder creates an embedding service client.
func NewEmbedder(cfg *Config) *Embedder {
	return &Embedder{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed implements domain.Embedder. It never returns an error for service
// failures: any transport error, non-2xx status or malformed vector is
// logged and answered with the local fallback embedding.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()

	vec, err := e.callService(ctx, text)
	if err != nil {
		e.logger.Warn("Embedding service unavailable, using fallback",
			zap.String("model", e.model),
			zap.Error(err))
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.model, "error").Inc()
		metrics.EmbeddingFallbackTotal.WithLabelValues(e.model, "service_error").Inc()
		return e.fallback(text), nil
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.model).Observe(time.Since(start).Seconds())

	return domain.EmbeddingResult{Vector: vec, Model: e.model}, nil
}

func (e *Embedder) callService(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, fmt.Errorf("embedding service status %d: %w", resp.StatusCode, domain.ErrEmbeddingProviderError)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding: %w", domain.ErrEmbeddingProviderError)
	}
	if e.dimensions > 0 && len(parsed.Embedding) != e.dimensions {
		return nil, fmt.Errorf("embedding dimension %d, want %d: %w",
			len(parsed.Embedding), e.dimensions, domain.ErrEmbeddingProviderError)
	}

	vec := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (e *Embedder) fallback(text string) domain.EmbeddingResult {
	return domain.EmbeddingResult{
		Vector:   domain.FallbackVector(text, e.dimensions),
		Model:    e.model,
		Fallback: true,
	}
}

// HealthCheck probes the service base URL.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding service unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return nil
}
