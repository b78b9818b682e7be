package usage

// BudgetReader exposes the token budget counters a usage report is built
// from. *embedding.BudgetTracker satisfies it; the composition root passes
// nil when no budget is configured.
type BudgetReader interface {
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsed() int64
	MonthlyUsed() int64
	RemainingDaily() int64
	RemainingMonthly() int64
}
