package usage

// BudgetReader is one provider's token tracker as the usage report sees it:
// limits, spend, and what is left in the current day and month.
type BudgetReader interface {
	Provider() string

	DailyLimit() int64
	DailyUsed() int64
	RemainingDaily() int64

	MonthlyLimit() int64
	MonthlyUsed() int64
	RemainingMonthly() int64
}
