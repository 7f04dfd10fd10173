package domain

import (
	"context"
	"fmt"
)

// Embedder is the shared text vectorization contract between layers.
// Implementations must be deterministic for identical input within a process.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// NormalizingEmbedder validates provider output against the process-wide
// dimension and returns unit-length vectors.
type NormalizingEmbedder struct {
	inner Embedder
	dim   int
}

// NewNormalizingEmbedder wraps inner with dimension validation and normalization.
func NewNormalizingEmbedder(inner Embedder, dim int) *NormalizingEmbedder {
	return &NormalizingEmbedder{inner: inner, dim: dim}
}

// Embed delegates to the inner embedder, then validates and normalizes.
func (e *NormalizingEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	res, err := e.inner.Embed(ctx, text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("normalized embed: %w", err)
	}
	if err := ValidateVector(res.Embedding, e.dim); err != nil {
		return EmbeddingResult{}, fmt.Errorf("provider vector: %w", err)
	}
	res.Embedding = Normalize(res.Embedding)
	return res, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (e *NormalizingEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
