// Semdex API server: semantic search over the active snapshot plus the
// requirement drafting workflow, behind a chi HTTP API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/config"
	"github.com/kailas-cloud/semdex/internal/db"
	dbredis "github.com/kailas-cloud/semdex/internal/db/redis"
	"github.com/kailas-cloud/semdex/internal/domain"
	logpkg "github.com/kailas-cloud/semdex/internal/logger"
	"github.com/kailas-cloud/semdex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/semdex/internal/repository/budget"
	"github.com/kailas-cloud/semdex/internal/repository/embcache"
	"github.com/kailas-cloud/semdex/internal/snapshot"
	"github.com/kailas-cloud/semdex/internal/transport/gemini"
	"github.com/kailas-cloud/semdex/internal/transport/httpapi"
	"github.com/kailas-cloud/semdex/internal/transport/jira"
	openaiemb "github.com/kailas-cloud/semdex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/semdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/semdex/internal/usecase/health"
	retrievaluc "github.com/kailas-cloud/semdex/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/semdex/internal/usecase/usage"
	workflowuc "github.com/kailas-cloud/semdex/internal/usecase/workflow"
	"github.com/kailas-cloud/semdex/internal/version"
	"github.com/kailas-cloud/semdex/internal/watch"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting semdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterTrackerMetrics()

	// One optional redis backend serves both the embedding cache and the
	// persisted budget counters.
	var store db.Store
	if cfg.Cache.Enabled {
		s, err := dbredis.NewStore(dbredis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			return fmt.Errorf("create cache store: %w", err)
		}
		defer s.Close()

		timeout := time.Duration(cfg.Cache.ReadinessTimeout) * time.Second
		if err := s.WaitForReady(ctx, timeout); err != nil {
			return fmt.Errorf("cache backend not ready: %w", err)
		}
		logger.Info("Connected to cache backend", zap.Strings("addrs", cfg.Cache.Addrs))
		store = s
	}

	budget := newBudgetTracker(ctx, cfg, store, logger)

	// An interface holding a nil *BudgetTracker is itself non-nil, so the
	// checker is only assigned when a tracker actually exists.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	queryEmbedder, err := buildQueryEmbedder(ctx, cfg, store, budgetChecker, logger)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	logger.Info("Query embedder created",
		zap.String("provider", cfg.Embedding.Vectorizer.Provider),
		zap.String("model", cfg.Embedding.Vectorizer.Model),
		zap.Int("dimensions", cfg.Embedding.Vectorizer.Dimensions),
	)

	// The snapshot itself loads lazily on the first query, so the server
	// starts fine before the first ingest run.
	snapStore := snapshot.NewStore(cfg.Storage.DataDir, logger)
	retrievalSvc := retrievaluc.New(snapStore, queryEmbedder, logger).
		WithThresholds(cfg.Retrieval.Threshold, cfg.Retrieval.FallbackThreshold).
		WithTopK(cfg.Retrieval.TopK)

	generator, err := gemini.NewGenerator(ctx, &gemini.GeneratorConfig{
		APIKey:      cfg.Generation.APIKey,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("create generator: %w", err)
	}

	workflowSvc := workflowuc.New(generator, retrievalSvc, logger)
	if cfg.Tracker.URL != "" {
		workflowSvc = workflowSvc.WithTracker(jira.New(&jira.Config{
			URL:             cfg.Tracker.URL,
			Username:        cfg.Tracker.Username,
			APIToken:        cfg.Tracker.APIToken,
			ProjectKey:      cfg.Tracker.ProjectKey,
			IncludePriority: cfg.Tracker.IncludePriority,
			Timeout:         time.Duration(cfg.Tracker.TimeoutSec) * time.Second,
			Logger:          logger,
		}))
		logger.Info("Tracker configured", zap.String("project", cfg.Tracker.ProjectKey))
	}

	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetReader = budget
	}
	usageSvc := usageuc.New(budgetReader)

	healthSvc := healthuc.New(snapStore, providerCheck(queryEmbedder))
	if store != nil {
		healthSvc = healthSvc.WithCache(store)
	}

	server := httpapi.NewServer(retrievalSvc, workflowSvc, usageSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(httpapi.Recoverer(logger))
	r.Use(chimiddleware.RequestID)
	r.Use(httpapi.RequestLogger(logger))
	r.Use(httpapi.BearerAuth(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

	if cfg.Storage.WatchPointer {
		w := watch.New(snapStore.PointerPath(), retrievalSvc, logger)
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Pointer watcher stopped", zap.Error(err))
			}
		}()
	}

	return serve(ctx, cfg, r, logger)
}

// serve blocks until the listener fails or ctx is cancelled, then drains
// in-flight requests within the configured shutdown window.
func serve(ctx context.Context, cfg config.Config, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newBudgetTracker wires the token budget for the active provider, or
// returns nil when no limit is configured.
func newBudgetTracker(ctx context.Context, cfg config.Config, store db.Store, logger *zap.Logger) *embeddinguc.BudgetTracker {
	provName := cfg.Embedding.Vectorizer.Provider
	provCfg := cfg.Embedding.Providers[provName]
	if provCfg.Budget.DailyTokenLimit <= 0 && provCfg.Budget.MonthlyTokenLimit <= 0 {
		return nil
	}

	action := embeddinguc.BudgetActionWarn
	if provCfg.Budget.Action == "reject" {
		action = embeddinguc.BudgetActionReject
	}
	budget := embeddinguc.NewBudgetTracker(
		provName, provCfg.Budget.DailyTokenLimit, provCfg.Budget.MonthlyTokenLimit, action, logger,
	)
	if store != nil {
		// Persisted counters survive restarts, so a redeploy never grants
		// a fresh budget.
		budget.WithStore(ctx, budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour))
	}
	return budget
}

// checkFunc adapts a closure to the health service's checker contract.
type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// providerCheck probes the embedding backend when the wired chain exposes
// a health check; decorators that hide it make the probe a no-op.
func providerCheck(e domain.Embedder) checkFunc {
	return func(ctx context.Context) error {
		hc, ok := e.(domain.HealthChecker)
		if !ok {
			return nil
		}
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding provider: %w", err)
		}
		return nil
	}
}

// newProvider builds the base embedding client for the configured backend.
func newProvider(ctx context.Context, cfg config.Config, logger *zap.Logger) (domain.Embedder, error) {
	vecCfg := cfg.Embedding.Vectorizer
	provCfg := cfg.Embedding.Providers[vecCfg.Provider]

	if vecCfg.Provider == "gemini" {
		return gemini.NewEmbedder(ctx, &gemini.EmbedderConfig{
			APIKey:     provCfg.APIKey,
			Model:      vecCfg.Model,
			Dimensions: vecCfg.Dimensions,
			Logger:     logger,
		})
	}

	// Anything else is treated as an OpenAI-compatible endpoint.
	return openaiemb.NewEmbedder(&openaiemb.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      vecCfg.Model,
		Dimensions: vecCfg.Dimensions,
		Provider:   vecCfg.Provider,
		Logger:     logger,
	}), nil
}

// buildQueryEmbedder stacks the query-side decorators onto the provider:
// cache, then budget instrumentation, then the query instruction prefix.
func buildQueryEmbedder(
	ctx context.Context,
	cfg config.Config,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) (domain.Embedder, error) {
	vecCfg := cfg.Embedding.Vectorizer

	embedder, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if store != nil {
		ttl := time.Duration(cfg.Cache.TTLSec) * time.Second
		embedder = embcache.New(embedder, store, vecCfg.Model, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, vecCfg.Provider, vecCfg.Model, budget, logger,
	)

	// The instruction wraps last: cache keys then carry the instructed
	// text, keeping query-side and document-side vectors apart.
	if vecCfg.QueryInstruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, vecCfg.QueryInstruction)
	}
	return embedder, nil
}
