package usage

import (
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in   string
		want Period
	}{
		{"day", PeriodDay},
		{"month", PeriodMonth},
		{"", PeriodDay},
		{"year", PeriodDay},
	}
	for _, tt := range tests {
		if got := ParsePeriod(tt.in); got != tt.want {
			t.Errorf("ParsePeriod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPeriodBounds(t *testing.T) {
	now := time.Date(2024, 12, 31, 15, 4, 5, 0, time.UTC)

	start, end := PeriodDay.Bounds(now)
	if !start.Equal(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day bounds = %v .. %v", start, end)
	}

	start, end = PeriodMonth.Bounds(now)
	if !start.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("month bounds = %v .. %v", start, end)
	}
}

func TestBudget_IsExhausted(t *testing.T) {
	if NewBudget("openai", 0, 500, -1, time.Time{}).IsExhausted() {
		t.Error("unlimited budget cannot be exhausted")
	}
	if NewBudget("openai", 1000, 400, 600, time.Time{}).IsExhausted() {
		t.Error("budget with tokens left is not exhausted")
	}
	if !NewBudget("openai", 1000, 1000, 0, time.Time{}).IsExhausted() {
		t.Error("spent budget must be exhausted")
	}
}

func TestReport_TotalUsed(t *testing.T) {
	r := NewReport(PeriodDay, time.Time{}, time.Time{}, []Budget{
		NewBudget("openai", 0, 300, -1, time.Time{}),
		NewBudget("anthropic", 1000, 200, 800, time.Time{}),
	})
	if r.TotalUsed() != 500 {
		t.Errorf("TotalUsed = %d", r.TotalUsed())
	}
	if len(r.Budgets()) != 2 || r.Budgets()[1].Provider() != "anthropic" {
		t.Errorf("budgets = %+v", r.Budgets())
	}
}
