package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/logger"
	"github.com/kailas-cloud/triage/internal/metrics"
)

// DefaultMaxInputRunes keeps pasted stack traces under provider input limits.
const DefaultMaxInputRunes = 8000

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	Publish(g *prometheus.GaugeVec)
}

// InstrumentedEmbedder guards the message embedder with the provider token budget.
// Provider request metrics live in transport/openai; this layer owns the budget.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	budget   BudgetChecker
	maxRunes int
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder. A nil budget disables enforcement.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		maxRunes: DefaultMaxInputRunes,
		logger:   logger,
	}
}

// WithMaxInputRunes truncates message text before embedding. n <= 0 disables truncation.
func (p *InstrumentedEmbedder) WithMaxInputRunes(n int) *InstrumentedEmbedder {
	p.maxRunes = n
	return p
}

// Embed returns the message vector. Blank text is rejected without a provider call;
// the ingest pipeline then stores the message without a vector.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	log := logger.FromContextOr(ctx, p.logger).With(
		zap.String("provider", p.provider),
		zap.String("model", p.model),
	)

	text = strings.TrimSpace(text)
	if text == "" {
		return domain.EmbeddingResult{}, fmt.Errorf("embed blank text: %w", domain.ErrEmbeddingProviderError)
	}
	text, truncated := truncateRunes(text, p.maxRunes)

	if p.budget != nil {
		if err := p.budget.Check(ctx); err != nil {
			metrics.EmbeddingErrorsTotal.WithLabelValues(p.provider, p.model, errorKind(err)).Inc()
			log.Warn("Embedding skipped, message stored without vector", zap.Error(err))
			return domain.EmbeddingResult{}, fmt.Errorf("budget check: %w: %w", domain.ErrEmbeddingProviderError, err)
		}
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)
	if err != nil {
		log.Error("Embedding request failed", zap.Duration("duration", duration), zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	if p.budget != nil && result.TotalTokens > 0 {
		p.budget.Record(int64(result.TotalTokens))
		p.budget.Publish(metrics.EmbeddingBudgetTokensRemaining)
	}

	log.Debug("Message embedded",
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
		zap.Bool("truncated", truncated),
	)
	return result, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func errorKind(err error) string {
	if errors.Is(err, domain.ErrBudgetExceeded) {
		return "budget"
	}
	return "budget_check"
}

func truncateRunes(s string, n int) (string, bool) {
	if n <= 0 || len(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
