package oracle

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/kailas-cloud/triage/internal/domain"
)

// HashingEmbedder is a deterministic local embedder. Word unigrams and bigrams
// are hashed into signed buckets of a fixed-size vector, which is then normalized.
// It needs no credentials and is used when no embedding provider is configured.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates a hashing embedder of the given dimension.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashingEmbedder{dim: dim}
}

// Dimensions returns the vector length.
func (e *HashingEmbedder) Dimensions() int { return e.dim }

// Embed implements domain.Embedder. Text without any word yields ErrMalformedVector.
func (e *HashingEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	words := tokenize(text)
	if len(words) == 0 {
		return domain.EmbeddingResult{}, &domain.VectorError{Reason: "no tokens to embed", Err: domain.ErrMalformedVector}
	}

	acc := make([]float64, e.dim)
	for i, w := range words {
		e.add(acc, w, 1)
		if i > 0 {
			e.add(acc, words[i-1]+" "+w, 0.5)
		}
	}

	var sum float64
	for _, x := range acc {
		sum += x * x
	}
	if sum == 0 {
		return domain.EmbeddingResult{}, &domain.VectorError{Reason: "all features cancelled", Err: domain.ErrMalformedVector}
	}
	norm := math.Sqrt(sum)
	vec := make([]float32, e.dim)
	for i, x := range acc {
		vec[i] = float32(x / norm)
	}
	return domain.EmbeddingResult{Embedding: vec, PromptTokens: len(words), TotalTokens: len(words)}, nil
}

// HealthCheck always succeeds.
func (e *HashingEmbedder) HealthCheck(context.Context) error { return nil }

func (e *HashingEmbedder) add(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := sum % uint64(len(acc))
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[bucket] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
