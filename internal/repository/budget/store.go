// Package budget persists token budget counters in the cache backend.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/semdex/internal/db"
)

// store is the slice of db.Store the budget counters need.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store implements embedding.BudgetStore with INCRBY plus a TTL, so stale
// windows clean themselves up without a sweeper.
type Store struct {
	store    store
	dayTTL   time.Duration
	monthTTL time.Duration
}

// New creates a budget store. dayTTL covers day keys (48h leaves the
// previous day readable across midnight), monthTTL covers month keys
// (62 days outlives the longest month).
func New(s store, dayTTL, monthTTL time.Duration) *Store {
	return &Store{
		store:    s,
		dayTTL:   dayTTL,
		monthTTL: monthTTL,
	}
}

// IncrBy atomically increments the counter and arms its TTL.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if err := s.store.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("budget INCRBY %s: %w", key, err)
	}

	// NX: only arm the TTL on first write, keeping the original window.
	if err := s.store.Expire(ctx, key, s.ttlForKey(key), true); err != nil {
		return fmt.Errorf("budget EXPIRE %s: %w", key, err)
	}

	return nil
}

// Get returns the current counter value, or 0 when the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("budget GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget GET %s parse: %w", key, err)
	}
	return val, nil
}

// ttlForKey picks the TTL from the key's period segment. Keys follow
// semdex:budget:{provider}:day:... or semdex:budget:{provider}:month:...
func (s *Store) ttlForKey(key string) time.Duration {
	if strings.Contains(key, ":day:") {
		return s.dayTTL
	}
	return s.monthTTL
}
