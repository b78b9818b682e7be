package embedding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
)

func TestBudgetTracker_Check(t *testing.T) {
	tests := []struct {
		name       string
		dayLimit   int64
		monthLimit int64
		action     BudgetAction
		record     int64
		wantErr    bool
	}{
		{"reject at day limit", 100, 0, BudgetActionReject, 100, true},
		{"warn lets the request through", 100, 0, BudgetActionWarn, 200, false},
		{"reject at month limit", 0, 500, BudgetActionReject, 500, true},
		{"zero limits mean unlimited", 0, 0, BudgetActionReject, 999999999, false},
		{"below limit allows", 1000, 10000, BudgetActionReject, 500, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bt := NewBudgetTracker("test", tc.dayLimit, tc.monthLimit, tc.action, zap.NewNop())
			bt.Record(tc.record)

			err := bt.Check(context.Background())
			if tc.wantErr {
				if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
					t.Fatalf("expected domain.ErrEmbeddingQuotaExceeded, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestBudgetTracker_Remaining(t *testing.T) {
	bt := NewBudgetTracker("test", 1000, 10000, BudgetActionWarn, zap.NewNop())

	bt.Record(300)

	if got := bt.RemainingDaily(); got != 700 {
		t.Errorf("expected day remaining 700, got %d", got)
	}
	if got := bt.RemainingMonthly(); got != 9700 {
		t.Errorf("expected month remaining 9700, got %d", got)
	}
}

func TestBudgetTracker_RemainingUnlimited(t *testing.T) {
	bt := NewBudgetTracker("test", 0, 0, BudgetActionWarn, zap.NewNop())

	if got := bt.RemainingDaily(); got != -1 {
		t.Errorf("expected -1 for unlimited day budget, got %d", got)
	}
	if got := bt.RemainingMonthly(); got != -1 {
		t.Errorf("expected -1 for unlimited month budget, got %d", got)
	}
}

func TestBudgetTracker_RemainingNeverNegative(t *testing.T) {
	bt := NewBudgetTracker("test", 100, 0, BudgetActionWarn, zap.NewNop())

	bt.Record(250)

	if got := bt.RemainingDaily(); got != 0 {
		t.Errorf("expected 0 when overspent, got %d", got)
	}
}

func TestBudgetTracker_KeyFormat(t *testing.T) {
	bt := NewBudgetTracker("openai", 0, 0, BudgetActionWarn, zap.NewNop())
	at := time.Date(2026, 3, 7, 15, 4, 5, 0, time.UTC)

	if got := bt.key(PeriodDay, at); got != "semdex:budget:openai:day:2026-03-07" {
		t.Errorf("unexpected day key: %s", got)
	}
	if got := bt.key(PeriodMonth, at); got != "semdex:budget:openai:month:2026-03" {
		t.Errorf("unexpected month key: %s", got)
	}
}

// --- Mock BudgetStore ---

type mockBudgetStore struct {
	mu     sync.Mutex
	data   map[string]int64
	getErr error
	setErr error
}

func newMockBudgetStore() *mockBudgetStore {
	return &mockBudgetStore{data: make(map[string]int64)}
}

func (m *mockBudgetStore) IncrBy(_ context.Context, key string, val int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] += val
	return nil
}

func (m *mockBudgetStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.data[key], nil
}

func (m *mockBudgetStore) value(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

// --- Persistence tests ---

func TestBudgetTracker_WithStore_LoadsCounters(t *testing.T) {
	store := newMockBudgetStore()

	bt := NewBudgetTracker("prov", 1000, 10000, BudgetActionReject, zap.NewNop())
	now := time.Now().UTC()
	store.data[bt.key(PeriodDay, now)] = 300
	store.data[bt.key(PeriodMonth, now)] = 5000

	bt.WithStore(context.Background(), store)

	if bt.DailyUsed() != 300 {
		t.Errorf("expected day_used=300, got %d", bt.DailyUsed())
	}
	if bt.MonthlyUsed() != 5000 {
		t.Errorf("expected month_used=5000, got %d", bt.MonthlyUsed())
	}
}

func TestBudgetTracker_Record_WritesBehind(t *testing.T) {
	store := newMockBudgetStore()
	bt := NewBudgetTracker("prov", 10000, 100000, BudgetActionWarn, zap.NewNop())
	bt.WithStore(context.Background(), store)

	bt.Record(100)
	bt.Record(200)
	bt.Record(300)

	if bt.DailyUsed() != 600 {
		t.Errorf("expected day_used=600, got %d", bt.DailyUsed())
	}

	now := time.Now().UTC()
	if got := store.value(bt.key(PeriodDay, now)); got != 600 {
		t.Errorf("expected stored day counter 600, got %d", got)
	}
	if got := store.value(bt.key(PeriodMonth, now)); got != 600 {
		t.Errorf("expected stored month counter 600, got %d", got)
	}
}

func TestBudgetTracker_WithStore_LoadErrorStartsAtZero(t *testing.T) {
	store := newMockBudgetStore()
	store.getErr = errors.New("connection refused")

	bt := NewBudgetTracker("prov", 1000, 10000, BudgetActionReject, zap.NewNop())
	bt.WithStore(context.Background(), store)

	if bt.DailyUsed() != 0 || bt.MonthlyUsed() != 0 {
		t.Errorf("expected zero counters on load error, got %d/%d",
			bt.DailyUsed(), bt.MonthlyUsed())
	}
}

func TestBudgetTracker_Record_StoreWriteError(t *testing.T) {
	store := newMockBudgetStore()
	bt := NewBudgetTracker("prov", 1000, 10000, BudgetActionWarn, zap.NewNop())
	bt.WithStore(context.Background(), store)

	store.mu.Lock()
	store.setErr = errors.New("write timeout")
	store.mu.Unlock()

	// In-memory counters still advance; the store error is only logged.
	bt.Record(50)

	if bt.DailyUsed() != 50 {
		t.Errorf("expected day_used=50 despite store error, got %d", bt.DailyUsed())
	}
}

func TestBudgetTracker_CheckStaysInMemory(t *testing.T) {
	store := newMockBudgetStore()
	bt := NewBudgetTracker("prov", 100, 0, BudgetActionReject, zap.NewNop())
	bt.WithStore(context.Background(), store)

	bt.Record(100)

	// Check never round-trips to the store; breaking it must not matter.
	store.mu.Lock()
	store.getErr = errors.New("down")
	store.mu.Unlock()

	err := bt.Check(context.Background())
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected domain.ErrEmbeddingQuotaExceeded, got %v", err)
	}
}

func TestBudgetTracker_NoStore_RecordWorks(t *testing.T) {
	bt := NewBudgetTracker("prov", 1000, 10000, BudgetActionWarn, zap.NewNop())

	bt.Record(42)

	if bt.DailyUsed() != 42 {
		t.Errorf("expected day_used=42, got %d", bt.DailyUsed())
	}
}

func TestBudgetTracker_KeysShareNamespace(t *testing.T) {
	bt := NewBudgetTracker("gemini", 0, 0, BudgetActionWarn, zap.NewNop())
	now := time.Now().UTC()

	for _, p := range []Period{PeriodDay, PeriodMonth} {
		if key := bt.key(p, now); !strings.HasPrefix(key, domain.KeyPrefix+"budget:gemini:") {
			t.Errorf("key %q escapes the budget namespace", key)
		}
	}
}
