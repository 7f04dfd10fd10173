package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/metrics"
)

// BudgetChecker is the local interface for token budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	Publish(g *prometheus.GaugeVec)
}

// GuardConfig bounds the calls a Guard lets through.
type GuardConfig struct {
	Name              string // metric label, e.g. "classifier", "judge"
	Timeout           time.Duration
	MaxConcurrent     int
	RequestsPerSecond float64 // 0 = unlimited
	Burst             int
}

// Guard wraps a Completer with a per-call timeout, a concurrency bound,
// a rate limit and an optional token budget.
type Guard struct {
	inner   Completer
	name    string
	timeout time.Duration
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	budget  BudgetChecker
	logger  *zap.Logger
}

// NewGuard creates a guard around inner.
func NewGuard(inner Completer, cfg GuardConfig, logger *zap.Logger) *Guard {
	g := &Guard{
		inner:   inner,
		name:    cfg.Name,
		timeout: cfg.Timeout,
		logger:  logger,
	}
	if cfg.MaxConcurrent > 0 {
		g.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(cfg.Burst, 1)
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g
}

// WithBudget attaches a token budget. Spent tokens are recorded after every successful call.
func (g *Guard) WithBudget(b BudgetChecker) *Guard {
	g.budget = b
	return g
}

// Complete implements Completer.
func (g *Guard) Complete(ctx context.Context, system, user string) (Completion, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if g.budget != nil {
		if err := g.budget.Check(ctx); err != nil {
			g.count("budget")
			return Completion{}, fmt.Errorf("%s: %w: %w", g.name, domain.ErrOracleBudgetExceeded, err)
		}
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.count("rate_limited")
			return Completion{}, fmt.Errorf("%s: %w: %w", g.name, domain.ErrRateLimited, err)
		}
	}
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			g.count("timeout")
			return Completion{}, fmt.Errorf("%s: acquire slot: %w", g.name, err)
		}
		defer g.sem.Release(1)
	}

	start := time.Now()
	resp, err := g.inner.Complete(ctx, system, user)
	duration := time.Since(start)
	metrics.OracleCallDuration.WithLabelValues(g.name).Observe(duration.Seconds())

	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = "timeout"
		}
		g.count(status)
		g.logger.Debug("Oracle call failed",
			zap.String("oracle", g.name),
			zap.String("status", status),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return Completion{}, fmt.Errorf("%s: %w", g.name, err)
	}

	g.count("ok")
	if g.budget != nil {
		g.budget.Record(int64(resp.TotalTokens()))
		g.budget.Publish(metrics.OracleBudgetTokensRemaining)
	}
	g.logger.Debug("Oracle call completed",
		zap.String("oracle", g.name),
		zap.Duration("duration", duration),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens),
	)
	return resp, nil
}

func (g *Guard) count(status string) {
	metrics.OracleCallsTotal.WithLabelValues(g.name, status).Inc()
}
