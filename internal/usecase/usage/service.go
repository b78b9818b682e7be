// Package usage reports embedding token consumption against configured budgets.
package usage

import (
	"context"
	"time"
)

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// Report is a token usage report for one period.
type Report struct {
	Period      Period
	PeriodStart int64 // unix millis
	PeriodEnd   int64 // unix millis
	TokensLimit int64 // 0 = unlimited
	TokensUsed  int64
	Remaining   int64 // -1 = unlimited
	Exhausted   bool
}

// Service handles usage reporting.
type Service struct {
	br BudgetReader
}

// New creates a Service. br can be nil (unlimited mode).
func New(br BudgetReader) *Service {
	return &Service{br: br}
}

// GetReport builds a usage report for the given period. Unknown periods
// report the day.
func (s *Service) GetReport(_ context.Context, period Period) Report {
	now := time.Now().UTC()

	var r Report
	switch period {
	case PeriodMonth:
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		monthEnd := monthStart.AddDate(0, 1, 0)
		r = Report{
			Period:      PeriodMonth,
			PeriodStart: monthStart.UnixMilli(),
			PeriodEnd:   monthEnd.UnixMilli(),
		}
		if s.br != nil {
			r.TokensLimit = s.br.MonthlyLimit()
			r.TokensUsed = s.br.MonthlyUsed()
			r.Remaining = s.br.RemainingMonthly()
		}
	default:
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		dayEnd := dayStart.Add(24 * time.Hour)
		r = Report{
			Period:      PeriodDay,
			PeriodStart: dayStart.UnixMilli(),
			PeriodEnd:   dayEnd.UnixMilli(),
		}
		if s.br != nil {
			r.TokensLimit = s.br.DailyLimit()
			r.TokensUsed = s.br.DailyUsed()
			r.Remaining = s.br.RemainingDaily()
		}
	}

	if s.br == nil {
		r.Remaining = -1
	}
	r.Exhausted = r.TokensLimit > 0 && r.Remaining == 0

	return r
}
