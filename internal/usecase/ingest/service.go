package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/index"
	"github.com/kailas-cloud/semdex/internal/metrics"
)

const (
	// DefaultBatchSize is how many documents one embedding call carries.
	DefaultBatchSize = 32
	// DefaultKeepSnapshots is how many snapshot versions survive pruning.
	DefaultKeepSnapshots = 2
)

// Summary reports what one ingestion run produced.
type Summary struct {
	Documents      int
	Tickets        int
	WikiPages      int
	TextArtifacts  int
	TabularRows    int
	SkippedFiles   int
	SkippedRecords int
	Batches        int
	Dimensions     int
	PromptTokens   int
	TotalTokens    int
	Duration       time.Duration
	Snapshot       domain.SnapshotInfo
	Written        bool
}

// Service runs the corpus-to-snapshot pipeline: load, embed in batches,
// build the index, write and activate the snapshot.
type Service struct {
	loader   CorpusLoader
	embedder domain.BatchEmbedder
	store    SnapshotWriter
	logger   *zap.Logger

	batchSize int
	keep      int
	metrics   *metrics.IngestMetrics
}

// New creates an ingestion service with default batch size and retention.
func New(loader CorpusLoader, embedder domain.BatchEmbedder, store SnapshotWriter, logger *zap.Logger) *Service {
	return &Service{
		loader:    loader,
		embedder:  embedder,
		store:     store,
		logger:    logger,
		batchSize: DefaultBatchSize,
		keep:      DefaultKeepSnapshots,
	}
}

// WithBatchSize overrides the embedding batch size.
func (s *Service) WithBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// WithKeep overrides how many snapshot versions survive pruning.
func (s *Service) WithKeep(n int) *Service {
	if n > 0 {
		s.keep = n
	}
	return s
}

// WithMetrics attaches run instrumentation.
func (s *Service) WithMetrics(m *metrics.IngestMetrics) *Service {
	s.metrics = m
	return s
}

// Run executes one full ingestion. A run that produces zero documents writes
// nothing and leaves the active snapshot untouched; any embedding or write
// failure aborts before the pointer is swapped.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	started := time.Now()

	documents, stats, err := s.loader.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load corpus: %w", err)
	}

	summary := Summary{
		Documents:      len(documents),
		Tickets:        stats.Tickets,
		WikiPages:      stats.WikiPages,
		TextArtifacts:  stats.TextArtifacts,
		TabularRows:    stats.TabularRows,
		SkippedFiles:   stats.SkippedFiles,
		SkippedRecords: stats.SkippedRecords,
	}
	if s.metrics != nil {
		s.metrics.DocumentsTotal.WithLabelValues(string(domain.SourceTicket)).Add(float64(stats.Tickets))
		s.metrics.DocumentsTotal.WithLabelValues(string(domain.SourceWikiPage)).Add(float64(stats.WikiPages))
		s.metrics.DocumentsTotal.WithLabelValues(string(domain.SourceTextArtifact)).Add(float64(stats.TextArtifacts))
		s.metrics.DocumentsTotal.WithLabelValues(string(domain.SourceTabularRow)).Add(float64(stats.TabularRows))
		s.metrics.SkippedTotal.Add(float64(stats.SkippedFiles + stats.SkippedRecords))
	}

	if len(documents) == 0 {
		summary.Duration = time.Since(started)
		s.logger.Warn("No documents produced, snapshot not written",
			zap.Int("skipped_files", stats.SkippedFiles),
			zap.Int("skipped_records", stats.SkippedRecords),
		)
		return summary, nil
	}

	idx, err := s.buildIndex(ctx, documents, &summary)
	if err != nil {
		summary.Duration = time.Since(started)
		return summary, err
	}

	info, err := s.store.Write(idx, documents)
	if err != nil {
		summary.Duration = time.Since(started)
		return summary, fmt.Errorf("write snapshot: %w", err)
	}
	summary.Snapshot = info
	summary.Written = true
	if s.metrics != nil {
		s.metrics.SnapshotDocuments.Set(float64(info.TotalDocuments))
	}

	if removed, err := s.store.Prune(s.keep); err != nil {
		s.logger.Warn("Pruning old snapshots failed", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("Old snapshots pruned", zap.Int("removed", removed))
	}

	summary.Duration = time.Since(started)
	s.logger.Info("Ingestion completed",
		zap.Int("documents", summary.Documents),
		zap.Int("tickets", summary.Tickets),
		zap.Int("wiki_pages", summary.WikiPages),
		zap.Int("text_artifacts", summary.TextArtifacts),
		zap.Int("tabular_rows", summary.TabularRows),
		zap.Int("dimensions", summary.Dimensions),
		zap.Int("total_tokens", summary.TotalTokens),
		zap.Duration("took", summary.Duration),
		zap.String("timestamp", info.Timestamp),
	)
	return summary, nil
}

// buildIndex embeds documents in batches and adds the normalized vectors in
// document order. The index dimension comes from the first vector.
func (s *Service) buildIndex(ctx context.Context, documents []domain.Document, summary *Summary) (*index.Flat, error) {
	var idx *index.Flat

	for start := 0; start < len(documents); start += s.batchSize {
		end := start + s.batchSize
		if end > len(documents) {
			end = len(documents)
		}

		texts := make([]string, 0, end-start)
		for _, doc := range documents[start:end] {
			texts = append(texts, doc.Text)
		}

		batchStarted := time.Now()
		res, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d..%d: %w", start, end, err)
		}
		if len(res.Embeddings) != len(texts) {
			return nil, fmt.Errorf("embed batch %d..%d: got %d vectors for %d texts",
				start, end, len(res.Embeddings), len(texts))
		}

		summary.Batches++
		summary.PromptTokens += res.PromptTokens
		summary.TotalTokens += res.TotalTokens
		if s.metrics != nil {
			s.metrics.BatchDuration.Observe(time.Since(batchStarted).Seconds())
			s.metrics.TokensTotal.Add(float64(res.TotalTokens))
		}

		for i, vec := range res.Embeddings {
			if idx == nil {
				idx, err = index.New(len(vec))
				if err != nil {
					return nil, fmt.Errorf("create index: %w", err)
				}
				summary.Dimensions = len(vec)
			}

			normalized := append([]float32(nil), vec...)
			index.Normalize(normalized)
			if err := idx.Add(normalized); err != nil {
				if errors.Is(err, index.ErrDimensionMismatch) {
					return nil, fmt.Errorf("vector %d: %w", start+i, domain.ErrVectorDimMismatch)
				}
				return nil, fmt.Errorf("add vector %d: %w", start+i, err)
			}
		}

		s.logger.Debug("Batch embedded",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Duration("took", time.Since(batchStarted)),
		)
	}

	return idx, nil
}
