package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// BudgetAction defines what happens when the token budget runs out.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but lets the request through.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// persistTimeout bounds the write-behind store call so a slow backend
// never stalls an embedding request.
const persistTimeout = 2 * time.Second

// BudgetStore persists budget counters across restarts.
// Implementations must tolerate repeated IncrBy calls.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// BudgetTracker tracks token consumption against day and month caps.
// Check runs purely in memory; Record updates the in-memory counters first
// and writes behind to the store when one is attached. Counters roll over
// at UTC day and month boundaries, matching the usage report periods.
type BudgetTracker struct {
	mu        sync.Mutex
	used      map[Period]int64
	limits    map[Period]int64
	lastReset map[Period]time.Time
	action    BudgetAction
	provider  string
	store     BudgetStore
	logger    *zap.Logger
}

// Period names one budget window. Shares values with the usage endpoint.
type Period string

// Budget periods.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// NewBudgetTracker creates a tracker for one provider. A zero limit means
// the corresponding period is unlimited.
func NewBudgetTracker(
	provider string, dayLimit, monthLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	now := time.Now().UTC()
	return &BudgetTracker{
		used: map[Period]int64{PeriodDay: 0, PeriodMonth: 0},
		limits: map[Period]int64{
			PeriodDay:   dayLimit,
			PeriodMonth: monthLimit,
		},
		lastReset: map[Period]time.Time{
			PeriodDay:   startOfDay(now),
			PeriodMonth: startOfMonth(now),
		},
		action:   action,
		provider: provider,
		logger:   logger,
	}
}

// WithStore attaches persistence and loads the current counters, so restarts
// do not grant a fresh budget.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.store = store
	b.loadFromStore(ctx)
	return b
}

func (b *BudgetTracker) loadFromStore(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	for _, p := range []Period{PeriodDay, PeriodMonth} {
		key := b.key(p, now)
		val, err := b.store.Get(ctx, key)
		if err != nil {
			b.logger.Warn("Failed to load budget counter",
				zap.String("period", string(p)), zap.Error(err))
			continue
		}
		b.used[p] = val
	}

	b.logger.Info("Budget counters loaded",
		zap.String("provider", b.provider),
		zap.Int64("day_used", b.used[PeriodDay]),
		zap.Int64("month_used", b.used[PeriodMonth]),
	)
}

// key builds the persistence key for one period window, for example
// semdex:budget:openai:day:2026-08-25.
func (b *BudgetTracker) key(p Period, t time.Time) string {
	layout := "2006-01-02"
	if p == PeriodMonth {
		layout = "2006-01"
	}
	return fmt.Sprintf("%sbudget:%s:%s:%s", domain.KeyPrefix, b.provider, p, t.Format(layout))
}

// Check reports whether the budget allows another request. In-memory only.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetIfNeeded()

	exceeded := false
	for p, limit := range b.limits {
		if limit > 0 && b.used[p] >= limit {
			exceeded = true
		}
	}
	if !exceeded {
		return nil
	}

	if b.action == BudgetActionReject {
		return domain.ErrEmbeddingQuotaExceeded
	}

	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("day_used", b.used[PeriodDay]),
		zap.Int64("day_limit", b.limits[PeriodDay]),
		zap.Int64("month_used", b.used[PeriodMonth]),
		zap.Int64("month_limit", b.limits[PeriodMonth]),
	)
	return nil
}

// Record registers consumed tokens: in-memory counters first, then a
// write-behind increment to the store when one is attached.
func (b *BudgetTracker) Record(tokens int64) {
	b.mu.Lock()
	b.resetIfNeeded()
	b.used[PeriodDay] += tokens
	b.used[PeriodMonth] += tokens
	store := b.store
	now := time.Now().UTC()
	dayKey := b.key(PeriodDay, now)
	monthKey := b.key(PeriodMonth, now)
	b.mu.Unlock()

	if store == nil {
		return
	}

	// Background context: store writes must not block or inherit the
	// caller's cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	for _, key := range []string{dayKey, monthKey} {
		if err := store.IncrBy(ctx, key, tokens); err != nil {
			b.logger.Warn("Failed to persist budget counter",
				zap.String("key", key), zap.Error(err))
		}
	}
}

// RemainingDaily returns tokens left today, or -1 when unlimited.
func (b *BudgetTracker) RemainingDaily() int64 { return b.remaining(PeriodDay) }

// RemainingMonthly returns tokens left this month, or -1 when unlimited.
func (b *BudgetTracker) RemainingMonthly() int64 { return b.remaining(PeriodMonth) }

func (b *BudgetTracker) remaining(p Period) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetIfNeeded()
	limit := b.limits[p]
	if limit == 0 {
		return -1
	}
	if left := limit - b.used[p]; left > 0 {
		return left
	}
	return 0
}

// DailyLimit returns the day token cap.
func (b *BudgetTracker) DailyLimit() int64 { return b.limits[PeriodDay] }

// MonthlyLimit returns the month token cap.
func (b *BudgetTracker) MonthlyLimit() int64 { return b.limits[PeriodMonth] }

// DailyUsed returns tokens consumed today.
func (b *BudgetTracker) DailyUsed() int64 { return b.usedFor(PeriodDay) }

// MonthlyUsed returns tokens consumed this month.
func (b *BudgetTracker) MonthlyUsed() int64 { return b.usedFor(PeriodMonth) }

func (b *BudgetTracker) usedFor(p Period) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	return b.used[p]
}

// resetIfNeeded zeroes counters when the UTC day or month rolls over.
func (b *BudgetTracker) resetIfNeeded() {
	now := time.Now().UTC()

	if today := startOfDay(now); today.After(b.lastReset[PeriodDay]) {
		b.used[PeriodDay] = 0
		b.lastReset[PeriodDay] = today
	}
	if month := startOfMonth(now); month.After(b.lastReset[PeriodMonth]) {
		b.used[PeriodMonth] = 0
		b.lastReset[PeriodMonth] = month
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
