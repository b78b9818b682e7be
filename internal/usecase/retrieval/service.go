package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/index"
	"github.com/kailas-cloud/semdex/internal/snapshot"
)

const (
	// DefaultThreshold filters out weak matches on the first pass.
	DefaultThreshold = 0.4
	// DefaultFallbackThreshold widens the search when the first pass is empty.
	DefaultFallbackThreshold = 0.3
	// DefaultTopK is how many candidates each scan fetches before filtering.
	DefaultTopK = 15
)

// Service runs semantic search over the active snapshot.
//
// The snapshot loads lazily on first use and stays in memory until Reload
// swaps it. Queries running during a reload keep the snapshot they started
// with.
type Service struct {
	loader   SnapshotLoader
	embedder Embedder
	logger   *zap.Logger

	threshold float64
	fallback  float64
	topK      int

	mu   sync.RWMutex
	snap *snapshot.Snapshot
}

// New creates a retrieval service with default thresholds.
func New(loader SnapshotLoader, embedder Embedder, logger *zap.Logger) *Service {
	return &Service{
		loader:    loader,
		embedder:  embedder,
		logger:    logger,
		threshold: DefaultThreshold,
		fallback:  DefaultFallbackThreshold,
		topK:      DefaultTopK,
	}
}

// WithThresholds overrides the primary and fallback score thresholds.
func (s *Service) WithThresholds(primary, fallback float64) *Service {
	s.threshold = primary
	s.fallback = fallback
	return s
}

// WithTopK overrides how many candidates each scan fetches.
func (s *Service) WithTopK(k int) *Service {
	if k > 0 {
		s.topK = k
	}
	return s
}

// Threshold returns the primary score threshold.
func (s *Service) Threshold() float64 { return s.threshold }

// TopK returns the candidate fetch size.
func (s *Service) TopK() int { return s.topK }

// Retrieve embeds the query and returns documents scoring at or above
// threshold, ordered by score descending. topK <= 0 uses the service default.
func (s *Service) Retrieve(ctx context.Context, query string, threshold float64, topK int) ([]domain.ScoredDocument, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.topK
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	vec := append([]float32(nil), res.Embedding...)
	index.Normalize(vec)

	candidates, err := snap.Search(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search snapshot: %w", err)
	}

	results := make([]domain.ScoredDocument, 0, len(candidates))
	for _, c := range candidates {
		if c.Score < threshold {
			continue
		}
		doc, ok := snap.Document(c.Row)
		if !ok {
			s.logger.Debug("Candidate row out of document range",
				zap.Int("row", c.Row), zap.Int("documents", snap.Len()))
			continue
		}
		results = append(results, domain.ScoredDocument{Document: doc, Score: c.Score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	s.logger.Debug("Query answered",
		zap.String("query", query),
		zap.Float64("threshold", threshold),
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// RetrieveWithFallback runs Retrieve at the primary threshold and, when that
// returns nothing, re-runs the whole pipeline at the fallback threshold.
func (s *Service) RetrieveWithFallback(ctx context.Context, query string) ([]domain.ScoredDocument, error) {
	results, err := s.Retrieve(ctx, query, s.threshold, s.topK)
	if err != nil || len(results) > 0 {
		return results, err
	}

	s.logger.Debug("No results at primary threshold, widening",
		zap.String("query", query),
		zap.Float64("primary", s.threshold),
		zap.Float64("fallback", s.fallback),
	)
	return s.Retrieve(ctx, query, s.fallback, s.topK)
}

// FanOut answers every query in sequence and merges the results, keeping the
// first occurrence per URL. Documents without a URL are never deduplicated.
// A query that fails is skipped with a warning; a missing index or cancelled
// context aborts the whole fan-out.
func (s *Service) FanOut(ctx context.Context, queries []string) ([]domain.ScoredDocument, error) {
	var merged []domain.ScoredDocument
	seen := make(map[string]struct{})

	for _, q := range queries {
		results, err := s.RetrieveWithFallback(ctx, q)
		if err != nil {
			if errors.Is(err, domain.ErrNoIndex) || ctx.Err() != nil {
				return nil, err
			}
			s.logger.Warn("Query failed during fan-out", zap.String("query", q), zap.Error(err))
			continue
		}

		for _, r := range results {
			if r.URL != "" {
				if _, dup := seen[r.URL]; dup {
					continue
				}
				seen[r.URL] = struct{}{}
			}
			merged = append(merged, r)
		}
	}
	return merged, nil
}

// Reload forces a fresh load of the active snapshot. On failure the previous
// snapshot stays in service.
func (s *Service) Reload(ctx context.Context) error {
	snap, err := s.loader.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	s.logger.Info("Snapshot reloaded",
		zap.String("timestamp", snap.Info().Timestamp),
		zap.Int("documents", snap.Len()),
	)
	return nil
}

// SnapshotInfo reports the descriptor of the snapshot queries run against,
// loading it on first use.
func (s *Service) SnapshotInfo(ctx context.Context) (domain.SnapshotInfo, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return domain.SnapshotInfo{}, err
	}
	return snap.Info(), nil
}

// snapshot returns the in-memory snapshot, loading it on first use.
func (s *Service) snapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap != nil {
		return s.snap, nil
	}

	snap, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.snap = snap

	s.logger.Info("Snapshot loaded",
		zap.String("timestamp", snap.Info().Timestamp),
		zap.Int("documents", snap.Len()),
	)
	return snap, nil
}
