package usage

import (
	"context"
	"testing"
	"time"
)

type mockBudgetReader struct {
	dailyLimit       int64
	monthlyLimit     int64
	dailyUsed        int64
	monthlyUsed      int64
	remainingDaily   int64
	remainingMonthly int64
}

func (m *mockBudgetReader) DailyLimit() int64       { return m.dailyLimit }
func (m *mockBudgetReader) MonthlyLimit() int64     { return m.monthlyLimit }
func (m *mockBudgetReader) DailyUsed() int64        { return m.dailyUsed }
func (m *mockBudgetReader) MonthlyUsed() int64      { return m.monthlyUsed }
func (m *mockBudgetReader) RemainingDaily() int64   { return m.remainingDaily }
func (m *mockBudgetReader) RemainingMonthly() int64 { return m.remainingMonthly }

func TestGetReport_DailyPeriod(t *testing.T) {
	br := &mockBudgetReader{
		dailyLimit:       10000,
		dailyUsed:        3000,
		remainingDaily:   7000,
		monthlyLimit:     100000,
		monthlyUsed:      50000,
		remainingMonthly: 50000,
	}
	svc := New(br)
	r := svc.GetReport(context.Background(), PeriodDay)

	if r.Period != PeriodDay {
		t.Errorf("expected period %q, got %q", PeriodDay, r.Period)
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if r.PeriodStart != dayStart.UnixMilli() {
		t.Errorf("expected period start %d, got %d", dayStart.UnixMilli(), r.PeriodStart)
	}

	dayEnd := dayStart.Add(24 * time.Hour)
	if r.PeriodEnd != dayEnd.UnixMilli() {
		t.Errorf("expected period end %d, got %d", dayEnd.UnixMilli(), r.PeriodEnd)
	}

	if r.TokensLimit != 10000 {
		t.Errorf("expected limit 10000, got %d", r.TokensLimit)
	}
	if r.TokensUsed != 3000 {
		t.Errorf("expected used 3000, got %d", r.TokensUsed)
	}
	if r.Remaining != 7000 {
		t.Errorf("expected remaining 7000, got %d", r.Remaining)
	}
	if r.Exhausted {
		t.Error("expected not exhausted")
	}
}

func TestGetReport_MonthlyPeriod(t *testing.T) {
	br := &mockBudgetReader{
		monthlyLimit:     100000,
		monthlyUsed:      100000,
		remainingMonthly: 0,
	}
	svc := New(br)
	r := svc.GetReport(context.Background(), PeriodMonth)

	if r.Period != PeriodMonth {
		t.Errorf("expected period %q, got %q", PeriodMonth, r.Period)
	}
	if r.TokensUsed != 100000 {
		t.Errorf("expected used 100000, got %d", r.TokensUsed)
	}
	if !r.Exhausted {
		t.Error("expected exhausted budget")
	}
}

func TestGetReport_UnknownPeriodDefaultsToDay(t *testing.T) {
	svc := New(&mockBudgetReader{dailyLimit: 1, remainingDaily: 1})
	r := svc.GetReport(context.Background(), Period("quarter"))

	if r.Period != PeriodDay {
		t.Errorf("expected fallback to day, got %q", r.Period)
	}
}

func TestGetReport_NilReaderUnlimited(t *testing.T) {
	svc := New(nil)
	r := svc.GetReport(context.Background(), PeriodDay)

	if r.TokensLimit != 0 {
		t.Errorf("expected zero limit, got %d", r.TokensLimit)
	}
	if r.Remaining != -1 {
		t.Errorf("expected remaining -1 (unlimited), got %d", r.Remaining)
	}
	if r.Exhausted {
		t.Error("expected not exhausted in unlimited mode")
	}
}
