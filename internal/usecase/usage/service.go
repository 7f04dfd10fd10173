// Package usage reports token consumption across LLM and embedding providers.
package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/triage/internal/domain/usage"
)

// Service handles usage reporting.
type Service struct {
	readers []BudgetReader
	now     func() time.Time
}

// New creates a Service over the given trackers. Nil readers are skipped.
func New(readers ...BudgetReader) *Service {
	s := &Service{now: time.Now}
	for _, r := range readers {
		if r != nil {
			s.readers = append(s.readers, r)
		}
	}
	return s
}

// GetReport builds a usage report for the period containing now.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	start, end := period.Bounds(s.now())

	budgets := make([]domusage.Budget, 0, len(s.readers))
	for _, r := range s.readers {
		var limit, used, remaining int64
		if period == domusage.PeriodMonth {
			limit, used, remaining = r.MonthlyLimit(), r.MonthlyUsed(), r.RemainingMonthly()
		} else {
			limit, used, remaining = r.DailyLimit(), r.DailyUsed(), r.RemainingDaily()
		}
		budgets = append(budgets, domusage.NewBudget(r.Provider(), limit, used, remaining, end))
	}
	return domusage.NewReport(period, start, end, budgets)
}
