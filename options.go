package semdex

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/config"
)

// Option configures Open and Build.
type Option func(*engineConfig)

type engineConfig struct {
	dataDir   string
	corpusDir string
	embedder  Embedder
	logger    *zap.Logger

	threshold     float64
	fallback      float64
	thresholdsSet bool
	topK          int

	batchSize int
	keep      int
}

func newEngineConfig(opts []Option) *engineConfig {
	cfg := &engineConfig{
		dataDir:   DefaultDataDir,
		corpusDir: DefaultCorpusDir,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// embedding returns the wired vectorizer: the injected embedder behind an
// adapter, or a noop that errors on first use.
func (c *engineConfig) embedding() embeddingPort {
	if c.embedder != nil {
		return &embedderAdapter{inner: c.embedder}
	}
	return noopEmbedder{}
}

// WithConfig applies a loaded service configuration: storage locations,
// retrieval tuning, batch size and snapshot retention. Later options
// override individual fields.
func WithConfig(cfg config.Config) Option {
	return func(c *engineConfig) {
		c.dataDir = cfg.Storage.DataDir
		c.corpusDir = cfg.Storage.CorpusDir
		c.keep = cfg.Storage.KeepSnapshots
		c.threshold = cfg.Retrieval.Threshold
		c.fallback = cfg.Retrieval.FallbackThreshold
		c.thresholdsSet = true
		c.topK = cfg.Retrieval.TopK
		c.batchSize = cfg.Embedding.Vectorizer.BatchSize
	}
}

// WithDataDir sets the snapshot root. The pointer file and versioned
// snapshot directories live under it.
func WithDataDir(dir string) Option {
	return func(c *engineConfig) {
		c.dataDir = dir
	}
}

// WithCorpusDir sets the directory Build reads raw exports from.
func WithCorpusDir(dir string) Option {
	return func(c *engineConfig) {
		c.corpusDir = dir
	}
}

// WithEmbedder injects the text vectorizer. Without one, Open and Build
// succeed but the first embedding call returns ErrEmbedderNotConfigured.
func WithEmbedder(e Embedder) Option {
	return func(c *engineConfig) {
		c.embedder = e
	}
}

// WithLogger routes internal logging. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *engineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithThresholds overrides the primary and fallback score thresholds. Any
// values are honored, including zero and negatives; a primary of -1 admits
// every candidate.
func WithThresholds(primary, fallback float64) Option {
	return func(c *engineConfig) {
		c.threshold = primary
		c.fallback = fallback
		c.thresholdsSet = true
	}
}

// WithTopK overrides how many candidates each scan fetches.
func WithTopK(k int) Option {
	return func(c *engineConfig) {
		c.topK = k
	}
}

// WithBatchSize overrides how many documents one embedding call carries
// during Build.
func WithBatchSize(n int) Option {
	return func(c *engineConfig) {
		c.batchSize = n
	}
}

// WithKeepSnapshots overrides how many snapshot versions survive pruning
// after Build.
func WithKeepSnapshots(n int) Option {
	return func(c *engineConfig) {
		c.keep = n
	}
}
