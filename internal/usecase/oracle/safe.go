package oracle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/logger"
	"github.com/kailas-cloud/triage/internal/metrics"
)

// SafeClassifier never fails: errors and a missing inner classifier yield
// domain.ClassificationFallback.
type SafeClassifier struct {
	inner  domain.Classifier
	logger *zap.Logger
}

// NewSafeClassifier wraps inner. A nil inner always falls back.
func NewSafeClassifier(inner domain.Classifier, log *zap.Logger) *SafeClassifier {
	return &SafeClassifier{inner: inner, logger: log}
}

// Classify implements domain.Classifier.
func (s *SafeClassifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	if s.inner == nil {
		return domain.ClassificationFallback, nil
	}
	c, err := s.inner.Classify(ctx, text)
	if err != nil {
		fallback(ctx, s.logger, "classifier", err)
		return domain.ClassificationFallback, nil
	}
	return c, nil
}

// SafeFollowupDetector never fails: errors yield domain.FollowupFallback,
// so a broken oracle never merges.
type SafeFollowupDetector struct {
	inner  domain.FollowupDetector
	logger *zap.Logger
}

// NewSafeFollowupDetector wraps inner. A nil inner always falls back.
func NewSafeFollowupDetector(inner domain.FollowupDetector, log *zap.Logger) *SafeFollowupDetector {
	return &SafeFollowupDetector{inner: inner, logger: log}
}

// IsFollowup implements domain.FollowupDetector.
func (s *SafeFollowupDetector) IsFollowup(
	ctx context.Context, newText string, newAt time.Time, priorText string, priorAt time.Time,
) (domain.Followup, error) {
	if s.inner == nil {
		return domain.FollowupFallback, nil
	}
	f, err := s.inner.IsFollowup(ctx, newText, newAt, priorText, priorAt)
	if err != nil {
		fallback(ctx, s.logger, "followup", err)
		return domain.FollowupFallback, nil
	}
	return f, nil
}

// SafeDisambiguator never fails: errors yield no pick, so the caller creates a new issue.
type SafeDisambiguator struct {
	inner  domain.Disambiguator
	logger *zap.Logger
}

// NewSafeDisambiguator wraps inner. A nil inner always answers none.
func NewSafeDisambiguator(inner domain.Disambiguator, log *zap.Logger) *SafeDisambiguator {
	return &SafeDisambiguator{inner: inner, logger: log}
}

// SelectIssue implements domain.Disambiguator.
func (s *SafeDisambiguator) SelectIssue(
	ctx context.Context, text string, candidates []domain.Candidate, at time.Time,
) (string, error) {
	if s.inner == nil {
		return "", nil
	}
	id, err := s.inner.SelectIssue(ctx, text, candidates, at)
	if err != nil {
		fallback(ctx, s.logger, "disambiguator", err)
		return "", nil
	}
	return id, nil
}

func fallback(ctx context.Context, base *zap.Logger, oracle string, err error) {
	metrics.OracleCallsTotal.WithLabelValues(oracle, "fallback").Inc()
	logger.FromContextOr(ctx, base).Warn("Oracle failed, using fallback",
		zap.String("oracle", oracle),
		zap.Error(err),
	)
}
