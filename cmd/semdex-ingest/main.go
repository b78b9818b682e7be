// Semdex corpus ingest pipeline. Reads knowledge-base exports from the
// corpus directory, embeds them in batches and activates a fresh snapshot
// with an atomic pointer swap.
//
// Usage:
//
//	semdex-ingest -corpus ./corpus -data ./data -batch 32
//
// Flags override the storage settings of the environment config file.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/config"
	"github.com/kailas-cloud/semdex/internal/corpus"
	"github.com/kailas-cloud/semdex/internal/db"
	dbRedis "github.com/kailas-cloud/semdex/internal/db/redis"
	"github.com/kailas-cloud/semdex/internal/domain"
	logpkg "github.com/kailas-cloud/semdex/internal/logger"
	"github.com/kailas-cloud/semdex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/semdex/internal/repository/budget"
	"github.com/kailas-cloud/semdex/internal/repository/embcache"
	"github.com/kailas-cloud/semdex/internal/snapshot"
	"github.com/kailas-cloud/semdex/internal/transport/gemini"
	openaiEmb "github.com/kailas-cloud/semdex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/semdex/internal/usecase/embedding"
	ingestuc "github.com/kailas-cloud/semdex/internal/usecase/ingest"
	"github.com/kailas-cloud/semdex/internal/version"
)

type flags struct {
	corpusDir   string
	dataDir     string
	batchSize   int
	keep        int
	metricsPort string
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.corpusDir, "corpus", "", "corpus directory (overrides config)")
	flag.StringVar(&f.dataDir, "data", "", "snapshot data directory (overrides config)")
	flag.IntVar(&f.batchSize, "batch", 0, "embedding batch size (overrides config)")
	flag.IntVar(&f.keep, "keep", 0, "snapshot versions to keep (overrides config)")
	flag.StringVar(&f.metricsPort, "metrics-port", "",
		"serve Prometheus metrics on this port for the duration of the run")
	flag.Parse()
	return f
}

func applyFlags(cfg *config.Config, f flags) {
	if f.corpusDir != "" {
		cfg.Storage.CorpusDir = f.corpusDir
	}
	if f.dataDir != "" {
		cfg.Storage.DataDir = f.dataDir
	}
	if f.batchSize > 0 {
		cfg.Embedding.Vectorizer.BatchSize = f.batchSize
	}
	if f.keep > 0 {
		cfg.Storage.KeepSnapshots = f.keep
	}
}

func main() {
	f := parseFlags()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	applyFlags(&cfg, f)

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting semdex ingest",
		zap.String("version", version.Version),
		zap.String("env", env),
		zap.String("corpus_dir", cfg.Storage.CorpusDir),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	started := time.Now()
	sum, err := run(ctx, cfg, f, logger)
	if err != nil {
		logger.Fatal("Ingestion failed", zap.Error(err))
	}
	if !sum.Written {
		logger.Warn("No snapshot written",
			zap.Int("skipped_files", sum.SkippedFiles),
			zap.Int("skipped_records", sum.SkippedRecords),
		)
		return
	}

	logger.Info("Done",
		zap.String("timestamp", sum.Snapshot.Timestamp),
		zap.Int("documents", sum.Snapshot.TotalDocuments),
		zap.Duration("took", time.Since(started)),
	)
}

func run(ctx context.Context, cfg config.Config, f flags, logger *zap.Logger) (ingestuc.Summary, error) {
	// Transport-level embedding counters live on the default registry; the
	// run metrics get their own so a scrape never mixes two concurrent runs.
	metrics.RegisterEmbeddingMetrics()
	reg := prometheus.NewRegistry()
	ingMetrics := metrics.NewIngestMetrics(reg)

	if f.metricsPort != "" {
		srv := serveMetrics(f.metricsPort, reg, logger)
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	// Optional cache backend. Rebuilds of an unchanged corpus become cheap:
	// every unchanged document resolves from cache without provider calls.
	var store db.Store
	if cfg.Cache.Enabled {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			return ingestuc.Summary{}, fmt.Errorf("create cache store: %w", err)
		}
		defer s.Close()

		timeout := time.Duration(cfg.Cache.ReadinessTimeout) * time.Second
		if err := s.WaitForReady(ctx, timeout); err != nil {
			return ingestuc.Summary{}, fmt.Errorf("cache backend not ready: %w", err)
		}
		store = s
	}

	provName := cfg.Embedding.Vectorizer.Provider
	provCfg := cfg.Embedding.Providers[provName]

	var budget *embeddinguc.BudgetTracker
	if provCfg.Budget.DailyTokenLimit > 0 || provCfg.Budget.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if provCfg.Budget.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			provName, provCfg.Budget.DailyTokenLimit, provCfg.Budget.MonthlyTokenLimit, action, logger,
		)
		if store != nil {
			budget.WithStore(ctx, budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour))
		}
	}
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	docEmbedder, err := buildDocumentEmbedder(ctx, cfg, store, budgetChecker, logger)
	if err != nil {
		return ingestuc.Summary{}, err
	}

	reader := corpus.NewReader(cfg.Storage.CorpusDir, logger)
	snapStore := snapshot.NewStore(cfg.Storage.DataDir, logger)

	svc := ingestuc.New(reader, docEmbedder, snapStore, logger).
		WithBatchSize(cfg.Embedding.Vectorizer.BatchSize).
		WithKeep(cfg.Storage.KeepSnapshots).
		WithMetrics(ingMetrics)

	return svc.Run(ctx)
}

// buildDocumentEmbedder assembles the document-side decorator chain:
// provider -> Cached -> Instrumented -> Instruction.
func buildDocumentEmbedder(
	ctx context.Context,
	cfg config.Config,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) (domain.BatchEmbedder, error) {
	vecCfg := cfg.Embedding.Vectorizer
	provCfg := cfg.Embedding.Providers[vecCfg.Provider]

	var base domain.Embedder
	switch vecCfg.Provider {
	case "gemini":
		g, err := gemini.NewEmbedder(ctx, &gemini.EmbedderConfig{
			APIKey:     provCfg.APIKey,
			Model:      vecCfg.Model,
			Dimensions: vecCfg.Dimensions,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini embedder: %w", err)
		}
		base = g
	default:
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     provCfg.APIKey,
			BaseURL:    provCfg.BaseURL,
			Model:      vecCfg.Model,
			Dimensions: vecCfg.Dimensions,
			Provider:   vecCfg.Provider,
			Logger:     logger,
		})
	}

	embedder := base
	if store != nil {
		ttl := time.Duration(cfg.Cache.TTLSec) * time.Second
		embedder = embcache.New(base, store, vecCfg.Model, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	instrumented := embeddinguc.NewInstrumentedEmbedder(
		embedder, vecCfg.Provider, vecCfg.Model, budget, logger,
	)

	if vecCfg.DocumentInstruction != "" {
		return domain.NewInstructionEmbedder(instrumented, vecCfg.DocumentInstruction), nil
	}
	return instrumented, nil
}

// serveMetrics exposes the run and transport metrics for Prometheus scrape.
func serveMetrics(port string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	gatherers := prometheus.Gatherers{reg, prometheus.DefaultGatherer}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("Metrics server error", zap.Error(err))
		}
	}()

	return srv
}
