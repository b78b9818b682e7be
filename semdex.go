// Package semdex embeds the semantic retrieval engine into Go programs.
//
// Build ingests a corpus directory into a versioned index snapshot; Open
// wires an Engine that answers similarity queries against the active
// snapshot. Both take the same functional options, so one option slice can
// drive an ingest-then-serve cycle.
package semdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/corpus"
	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/snapshot"
	ingestuc "github.com/kailas-cloud/semdex/internal/usecase/ingest"
	retrievaluc "github.com/kailas-cloud/semdex/internal/usecase/retrieval"
)

// Default storage locations, matching the service configuration defaults.
const (
	DefaultDataDir   = "data"
	DefaultCorpusDir = "corpus"
)

// Sentinel errors surfaced by Engine and Build. They are the same values
// the internal layers return, so errors.Is works across the facade.
var (
	// ErrNoIndex reports that no snapshot is active in the data directory.
	ErrNoIndex = domain.ErrNoIndex
	// ErrEmptyQuery reports a blank or whitespace-only query.
	ErrEmptyQuery = domain.ErrEmptyQuery
	// ErrCorpusNotFound reports a missing corpus directory at Build time.
	ErrCorpusNotFound = domain.ErrCorpusNotFound
	// ErrEmbedderNotConfigured reports an embedding call without an injected
	// Embedder.
	ErrEmbedderNotConfigured = errors.New("semdex: embedder not configured (use WithEmbedder)")
)

// Embedder vectorizes text. The host application supplies one wired to
// whatever provider it already uses.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder is an optional extension of Embedder for providers with a
// native multi-text endpoint. Build uses it when present and falls back to
// one Embed call per text otherwise.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// EmbeddingResult carries one vector and its token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries the vectors for one batch, in input order,
// and the aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Result is one retrieved document with its similarity score.
type Result struct {
	Text     string
	Source   string
	SourceID string
	Title    string
	URL      string
	Metadata map[string]string
	Score    float64
}

// Snapshot describes an index/documents pair on disk.
type Snapshot struct {
	IndexPath      string
	DocumentsPath  string
	Timestamp      string
	TotalDocuments int
}

// BuildSummary reports what one Build produced.
type BuildSummary struct {
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
	Snapshot       Snapshot
	Written        bool
}

// Engine answers semantic queries against the active snapshot.
type Engine struct {
	retrieval *retrievaluc.Service
	store     *snapshot.Store
	logger    *zap.Logger
}

// Open wires an Engine over the snapshot store in the configured data
// directory. When a pointer file is already on disk the snapshot loads
// eagerly, so a corrupt pair fails here instead of on the first query; a
// data directory with no pointer opens empty and loads lazily after the
// first Build.
func Open(ctx context.Context, opts ...Option) (*Engine, error) {
	cfg := newEngineConfig(opts)

	store := snapshot.NewStore(cfg.dataDir, cfg.logger)
	svc := retrievaluc.New(store, cfg.embedding(), cfg.logger)
	if cfg.thresholdsSet {
		svc = svc.WithThresholds(cfg.threshold, cfg.fallback)
	}
	if cfg.topK > 0 {
		svc = svc.WithTopK(cfg.topK)
	}

	if _, err := store.Pointer(); err == nil {
		if err := svc.Reload(ctx); err != nil {
			return nil, fmt.Errorf("semdex: load active snapshot: %w", err)
		}
	}

	return &Engine{retrieval: svc, store: store, logger: cfg.logger}, nil
}

// Build runs one full ingestion: read the corpus, embed in batches, write a
// versioned snapshot and swap the pointer onto it. A corpus that produces
// zero documents writes nothing and leaves the active snapshot untouched.
func Build(ctx context.Context, opts ...Option) (BuildSummary, error) {
	cfg := newEngineConfig(opts)

	store := snapshot.NewStore(cfg.dataDir, cfg.logger)
	reader := corpus.NewReader(cfg.corpusDir, cfg.logger)

	svc := ingestuc.New(reader, cfg.embedding(), store, cfg.logger)
	if cfg.batchSize > 0 {
		svc = svc.WithBatchSize(cfg.batchSize)
	}
	if cfg.keep > 0 {
		svc = svc.WithKeep(cfg.keep)
	}

	sum, err := svc.Run(ctx)
	if err != nil {
		return BuildSummary{}, fmt.Errorf("semdex: build: %w", err)
	}
	return fromIngestSummary(sum), nil
}

// Search answers one query at the primary threshold, ordered by score
// descending.
func (e *Engine) Search(ctx context.Context, query string) ([]Result, error) {
	docs, err := e.retrieval.Retrieve(ctx, query, e.retrieval.Threshold(), 0)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return fromScoredDocuments(docs), nil
}

// SearchWithFallback answers one query at the primary threshold and, when
// that returns nothing, retries at the fallback threshold.
func (e *Engine) SearchWithFallback(ctx context.Context, query string) ([]Result, error) {
	docs, err := e.retrieval.RetrieveWithFallback(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search with fallback: %w", err)
	}
	return fromScoredDocuments(docs), nil
}

// FanOut answers every query in sequence and merges the results, keeping
// the first occurrence per URL. Results without a URL are never merged.
func (e *Engine) FanOut(ctx context.Context, queries []string) ([]Result, error) {
	docs, err := e.retrieval.FanOut(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("fan out: %w", err)
	}
	return fromScoredDocuments(docs), nil
}

// Reload swaps in the currently active snapshot. On failure the previous
// snapshot stays in service.
func (e *Engine) Reload(ctx context.Context) error {
	if err := e.retrieval.Reload(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// Snapshot reports the descriptor of the snapshot queries run against,
// loading it on first use.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	info, err := e.retrieval.SnapshotInfo(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return fromSnapshotInfo(info), nil
}

// PointerPath returns the location of the active-snapshot pointer file,
// for callers wiring their own change watchers.
func (e *Engine) PointerPath() string {
	return e.store.PointerPath()
}

// Close releases the engine. The snapshot store holds no connections, so
// Close only exists for symmetry with other resource handles.
func (e *Engine) Close() {}

// embeddingPort is what the internal services need from a vectorizer.
type embeddingPort interface {
	domain.Embedder
	domain.BatchEmbedder
}

// embedderAdapter wraps the public Embedder to satisfy the internal
// embedding contracts.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// BatchEmbed uses the inner batch endpoint when available and falls back
// to one Embed call per text otherwise.
func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	be, ok := a.inner.(BatchEmbedder)
	if !ok {
		return domain.BatchFallback(ctx, a, texts)
	}

	r, err := be.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// noopEmbedder fails every call. Installed when no embedder is configured
// so wiring succeeds and only embedding use errors.
type noopEmbedder struct{}

func (noopEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, ErrEmbedderNotConfigured
}

func (noopEmbedder) BatchEmbed(context.Context, []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchEmbeddingResult{}, ErrEmbedderNotConfigured
}

func fromScoredDocuments(docs []domain.ScoredDocument) []Result {
	out := make([]Result, len(docs))
	for i, d := range docs {
		out[i] = Result{
			Text:     d.Text,
			Source:   string(d.Source),
			SourceID: d.SourceID,
			Title:    d.Title,
			URL:      d.URL,
			Metadata: d.Metadata,
			Score:    d.Score,
		}
	}
	return out
}

func fromSnapshotInfo(info domain.SnapshotInfo) Snapshot {
	return Snapshot{
		IndexPath:      info.IndexPath,
		DocumentsPath:  info.DocumentsPath,
		Timestamp:      info.Timestamp,
		TotalDocuments: info.TotalDocuments,
	}
}

func fromIngestSummary(sum ingestuc.Summary) BuildSummary {
	return BuildSummary{
		Documents:      sum.Documents,
		Tickets:        sum.Tickets,
		WikiPages:      sum.WikiPages,
		TextArtifacts:  sum.TextArtifacts,
		TabularRows:    sum.TabularRows,
		SkippedFiles:   sum.SkippedFiles,
		SkippedRecords: sum.SkippedRecords,
		Batches:        sum.Batches,
		Dimensions:     sum.Dimensions,
		PromptTokens:   sum.PromptTokens,
		TotalTokens:    sum.TotalTokens,
		Duration:       sum.Duration,
		Snapshot:       fromSnapshotInfo(sum.Snapshot),
		Written:        sum.Written,
	}
}
