// Package usage describes per-provider token consumption reports.
package usage

import "time"

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod maps "month" to PeriodMonth and everything else to PeriodDay.
func ParsePeriod(s string) Period {
	if Period(s) == PeriodMonth {
		return PeriodMonth
	}
	return PeriodDay
}

// Bounds returns the UTC start and end of the period containing now.
func (p Period) Bounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	if p == PeriodMonth {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Budget is one provider's token budget snapshot. Limit 0 means unlimited
// and Remaining is then -1.
type Budget struct {
	provider  string
	limit     int64
	used      int64
	remaining int64
	resetsAt  time.Time
}

// NewBudget creates a budget snapshot.
func NewBudget(provider string, limit, used, remaining int64, resetsAt time.Time) Budget {
	return Budget{provider: provider, limit: limit, used: used, remaining: remaining, resetsAt: resetsAt}
}

// Provider returns the provider name.
func (b Budget) Provider() string { return b.provider }

// Limit returns the token cap, 0 when unlimited.
func (b Budget) Limit() int64 { return b.limit }

// Used returns the tokens consumed in the period.
func (b Budget) Used() int64 { return b.used }

// Remaining returns tokens left, -1 when unlimited.
func (b Budget) Remaining() int64 { return b.remaining }

// IsExhausted reports whether a limited budget is spent.
func (b Budget) IsExhausted() bool { return b.limit > 0 && b.remaining <= 0 }

// ResetsAt returns when the period rolls over.
func (b Budget) ResetsAt() time.Time { return b.resetsAt }

// Report is a usage report over all tracked providers.
type Report struct {
	period  Period
	start   time.Time
	end     time.Time
	budgets []Budget
}

// NewReport creates a usage report.
func NewReport(period Period, start, end time.Time, budgets []Budget) Report {
	return Report{period: period, start: start, end: end, budgets: budgets}
}

// Period returns the aggregation granularity.
func (r Report) Period() Period { return r.period }

// PeriodStart returns the period start.
func (r Report) PeriodStart() time.Time { return r.start }

// PeriodEnd returns the period end.
func (r Report) PeriodEnd() time.Time { return r.end }

// Budgets returns one snapshot per provider.
func (r Report) Budgets() []Budget { return r.budgets }

// TotalUsed sums tokens used across providers.
func (r Report) TotalUsed() int64 {
	var n int64
	for _, b := range r.budgets {
		n += b.used
	}
	return n
}
