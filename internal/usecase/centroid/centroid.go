// Package centroid recomputes an issue's representative vector from its earliest
// substantive messages.
package centroid

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/message"
)

// Config controls member selection and weighting.
type Config struct {
	MaxMessages int     // N qualifying messages used
	MinWords    int     // messages with fewer words are ignored
	ScanLimit   int     // messages fetched per recompute
	MaxWeight   float64 // weight of the earliest message
	MinWeight   float64 // weight of the N-th message
	Dimensions  int     // expected vector length, 0 = any
}

// minNorm below which a weighted sum has no direction.
const minNorm = 1e-9

// DefaultConfig returns N=5, min words 5, scan 50, weights 1.0 -> 0.3.
func DefaultConfig() Config {
	return Config{MaxMessages: 5, MinWords: 5, ScanLimit: 50, MaxWeight: 1.0, MinWeight: 0.3}
}

// messageSource is the consumer interface for member messages.
type messageSource interface {
	MessagesForIssue(ctx context.Context, issueID string, limit int) ([]message.Message, error)
}

// Maintainer recomputes centroids.
type Maintainer struct {
	messages messageSource
	cfg      Config
	logger   *zap.Logger
}

// New creates a Maintainer.
func New(messages messageSource, cfg Config, logger *zap.Logger) *Maintainer {
	def := DefaultConfig()
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = def.ScanLimit
	}
	if cfg.MaxWeight == 0 && cfg.MinWeight == 0 {
		cfg.MaxWeight, cfg.MinWeight = def.MaxWeight, def.MinWeight
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Maintainer{messages: messages, cfg: cfg, logger: logger}
}

// Recompute returns the new unit-length centroid for an issue. changed is false
// when no member qualifies; the caller then keeps the current vector.
func (m *Maintainer) Recompute(ctx context.Context, issueID string) ([]float32, bool, error) {
	msgs, err := m.messages.MessagesForIssue(ctx, issueID, m.cfg.ScanLimit)
	if err != nil {
		return nil, false, fmt.Errorf("load members of %s: %w", issueID, err)
	}

	vectors := make([][]float32, 0, m.cfg.MaxMessages)
	for i := range msgs {
		if len(vectors) == m.cfg.MaxMessages {
			break
		}
		if msgs[i].WordCount() < m.cfg.MinWords {
			continue
		}
		v := msgs[i].Vector()
		if err := domain.ValidateVector(v, m.cfg.Dimensions); err != nil {
			m.logger.Warn("skipping malformed member vector",
				zap.String("issue_id", issueID), zap.String("message_id", msgs[i].ID()), zap.Error(err))
			continue
		}
		vectors = append(vectors, v)
	}

	c := Weighted(vectors, m.cfg.MaxWeight, m.cfg.MinWeight)
	if c == nil {
		return nil, false, nil
	}
	return c, true, nil
}

// Weighted averages vectors with weights falling linearly from first to last
// and normalizes the result. It returns nil for no input or a zero-norm sum.
func Weighted(vectors [][]float32, first, last float64) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	n := len(vectors)
	for i, v := range vectors {
		if len(v) != dim {
			continue
		}
		w := first
		if n > 1 {
			w = first - (first-last)*float64(i)/float64(n-1)
		}
		for j, x := range v {
			sum[j] += w * float64(x)
		}
	}

	var norm float64
	for _, x := range sum {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm < minNorm || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil
	}
	out := make([]float32, dim)
	for j, x := range sum {
		out[j] = float32(x / norm)
	}
	return out
}
