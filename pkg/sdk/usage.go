package triage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/triage/internal/domain/usage"
)

// UsagePeriod is the aggregation granularity for usage reports.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
)

// UsageReport contains embedding token usage for a time period.
type UsageReport struct {
	Period      UsagePeriod
	PeriodStart time.Time
	PeriodEnd   time.Time
	TotalTokens int64
	Budgets     []BudgetStatus
}

// BudgetStatus tracks one provider's token quota state.
// TokensLimit 0 means unlimited and TokensRemaining is then -1.
type BudgetStatus struct {
	Provider        string
	TokensLimit     int64
	TokensUsed      int64
	TokensRemaining int64
	IsExhausted     bool
	ResetsAt        time.Time
}

// Usage returns an embedding usage report for the given period.
// Observer always records success: the underlying use-case is in-memory
// and does not produce errors.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) UsageReport {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, nil) }()

	report := c.usageSvc.GetReport(ctx, domusage.ParsePeriod(string(period)))
	budgets := make([]BudgetStatus, 0, len(report.Budgets()))
	for _, b := range report.Budgets() {
		budgets = append(budgets, BudgetStatus{
			Provider:        b.Provider(),
			TokensLimit:     b.Limit(),
			TokensUsed:      b.Used(),
			TokensRemaining: b.Remaining(),
			IsExhausted:     b.IsExhausted(),
			ResetsAt:        b.ResetsAt(),
		})
	}

	return UsageReport{
		Period:      UsagePeriod(report.Period()),
		PeriodStart: report.PeriodStart(),
		PeriodEnd:   report.PeriodEnd(),
		TotalTokens: report.TotalUsed(),
		Budgets:     budgets,
	}
}

// usageUseCase is the internal interface for usage reports.
type usageUseCase interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}
