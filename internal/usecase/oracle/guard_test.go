package oracle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/metrics"
)

func TestGuard_PassesThroughAndRecordsBudget(t *testing.T) {
	b := &mockBudget{}
	g := NewGuard(replying(`{}`), GuardConfig{Name: "guard-ok", Timeout: time.Second, MaxConcurrent: 2}, zap.NewNop()).
		WithBudget(b)

	resp, err := g.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.TotalTokens() != 15 {
		t.Errorf("TotalTokens = %d", resp.TotalTokens())
	}
	if b.recorded != 15 {
		t.Errorf("budget recorded %d tokens, want 15", b.recorded)
	}
	if v := testutil.ToFloat64(metrics.OracleCallsTotal.WithLabelValues("guard-ok", "ok")); v != 1 {
		t.Errorf("ok counter = %v", v)
	}
}

func TestGuard_BudgetExceeded(t *testing.T) {
	mc := replying(`{}`)
	b := &mockBudget{checkErr: domain.ErrBudgetExceeded}
	g := NewGuard(mc, GuardConfig{Name: "guard-budget"}, zap.NewNop()).WithBudget(b)

	_, err := g.Complete(context.Background(), "sys", "user")
	if !errors.Is(err, domain.ErrOracleBudgetExceeded) {
		t.Fatalf("expected ErrOracleBudgetExceeded, got %v", err)
	}
	if mc.callCount() != 0 {
		t.Error("inner completer must not be called over budget")
	}
}

func TestGuard_Timeout(t *testing.T) {
	mc := &mockCompleter{fn: func(ctx context.Context, _, _ string) (Completion, error) {
		<-ctx.Done()
		return Completion{}, ctx.Err()
	}}
	g := NewGuard(mc, GuardConfig{Name: "guard-timeout", Timeout: 20 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	_, err := g.Complete(context.Background(), "sys", "user")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not enforced")
	}
	if v := testutil.ToFloat64(metrics.OracleCallsTotal.WithLabelValues("guard-timeout", "timeout")); v != 1 {
		t.Errorf("timeout counter = %v", v)
	}
}

func TestGuard_ConcurrencyBound(t *testing.T) {
	var inFlight, peak int32
	release := make(chan struct{})
	mc := &mockCompleter{fn: func(context.Context, string, string) (Completion, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		return Completion{Text: "{}"}, nil
	}}
	g := NewGuard(mc, GuardConfig{Name: "guard-sem", MaxConcurrent: 2}, zap.NewNop())

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Complete(context.Background(), "s", "u")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	if mc.callCount() != 6 {
		t.Errorf("calls = %d, want 6", mc.callCount())
	}
}

func TestGuard_RateLimitedByContext(t *testing.T) {
	g := NewGuard(replying(`{}`), GuardConfig{Name: "guard-rate", RequestsPerSecond: 0.001, Burst: 1}, zap.NewNop())

	if _, err := g.Complete(context.Background(), "s", "u"); err != nil {
		t.Fatalf("first call uses the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Complete(ctx, "s", "u")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestGuard_InnerError(t *testing.T) {
	b := &mockBudget{}
	g := NewGuard(failing(errors.New("503")), GuardConfig{Name: "guard-err"}, zap.NewNop()).WithBudget(b)

	if _, err := g.Complete(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error")
	}
	if b.recorded != 0 {
		t.Errorf("failed calls must not spend budget, recorded %d", b.recorded)
	}
	if v := testutil.ToFloat64(metrics.OracleCallsTotal.WithLabelValues("guard-err", "error")); v != 1 {
		t.Errorf("error counter = %v", v)
	}
}
