package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Config holds the semdex service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Cache      CacheConfig      `yaml:"cache"`
	Tracker    TrackerConfig    `yaml:"tracker"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error; empty means per-env default
}

// AuthConfig lists the bearer keys the API accepts. Empty list disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig sets the listen port and server timeouts.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StorageConfig holds snapshot and corpus location settings.
type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`       // snapshot root; pointer file lives here
	CorpusDir     string `yaml:"corpus_dir"`     // raw export files read at ingest time
	KeepSnapshots int    `yaml:"keep_snapshots"` // versions surviving a prune
	WatchPointer  bool   `yaml:"watch_pointer"`  // reload automatically when the pointer file changes
}

// EmbeddingConfig pairs the provider credentials with the active vectorizer.
type EmbeddingConfig struct {
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Vectorizer VectorizerConfig          `yaml:"vectorizer"`
}

// BudgetConfig caps token spend per provider.
type BudgetConfig struct {
	DailyTokenLimit      int64   `yaml:"daily_token_limit"`       // 0 = unlimited
	MonthlyTokenLimit    int64   `yaml:"monthly_token_limit"`     // 0 = unlimited
	CostPerMillionTokens float64 `yaml:"cost_per_million_tokens"` // reporting only
	Action               string  `yaml:"action"`                  // "reject" | "warn" (default)
}

// ProviderConfig carries one embedding provider's credentials and budget.
type ProviderConfig struct {
	APIKey  string       `yaml:"api_key"`
	BaseURL string       `yaml:"base_url"`
	Budget  BudgetConfig `yaml:"budget"`
}

// VectorizerConfig holds the active vectorizer settings. Query and document
// sides must use the same provider and model, otherwise scores lose meaning.
type VectorizerConfig struct {
	Provider            string `yaml:"provider"` // key into embedding.providers
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	BatchSize           int    `yaml:"batch_size"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// GenerationConfig holds text-generation settings for the drafting workflow.
type GenerationConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// RetrievalConfig holds similarity search tuning.
type RetrievalConfig struct {
	Threshold         float64 `yaml:"threshold"`          // minimum score on the first pass
	FallbackThreshold float64 `yaml:"fallback_threshold"` // second pass when the first is empty
	TopK              int     `yaml:"top_k"`              // candidates fetched per scan
}

// CacheConfig holds the optional embedding cache backend settings.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	TTLSec           int      `yaml:"ttl_sec"` // 0 = cache entries never expire
}

// TrackerConfig holds issue tracker settings. Leaving url empty disables
// ticket creation; drafting still works.
type TrackerConfig struct {
	URL             string `yaml:"url"`
	Username        string `yaml:"username"`
	APIToken        string `yaml:"api_token"`
	ProjectKey      string `yaml:"project_key"`
	IncludePriority bool   `yaml:"include_priority"`
	TimeoutSec      int    `yaml:"timeout_sec"`
}

// Load reads the YAML config for the named environment (local, dev, prod),
// expands ${VAR} references, applies defaults and validates the result.
func Load(env string) (Config, error) {
	path := findConfigPath(env)

	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expandEnv(raw), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// GetEnv returns the environment name from ENV, or "local" when unset.
func GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "local"
	}
	return env
}

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Search endpoints embed remotely before scanning; give them headroom.
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.CorpusDir == "" {
		c.Storage.CorpusDir = "corpus"
	}
	if c.Storage.KeepSnapshots <= 0 {
		c.Storage.KeepSnapshots = 2
	}
	if c.Embedding.Vectorizer.Provider == "" {
		c.Embedding.Vectorizer.Provider = "openai"
	}
	vec := domain.DefaultVectorConfig()
	if c.Embedding.Vectorizer.Model == "" {
		c.Embedding.Vectorizer.Model = vec.Model
		// Width only follows the model when both are defaulted; a custom
		// model with zero dimensions keeps the provider's native width.
		if c.Embedding.Vectorizer.Dimensions <= 0 {
			c.Embedding.Vectorizer.Dimensions = vec.Dimensions
		}
	}
	if c.Embedding.Vectorizer.BatchSize <= 0 {
		c.Embedding.Vectorizer.BatchSize = vec.BatchSize
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gemini-2.0-flash"
	}
	if c.Retrieval.Threshold <= 0 {
		c.Retrieval.Threshold = 0.4
	}
	if c.Retrieval.FallbackThreshold <= 0 {
		c.Retrieval.FallbackThreshold = 0.3
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 15
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Tracker.TimeoutSec <= 0 {
		c.Tracker.TimeoutSec = 15
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d outside range 1-65535", c.HTTP.Port)
	}
	if c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold must be at most 1, got %g", c.Retrieval.Threshold)
	}
	if c.Retrieval.FallbackThreshold > c.Retrieval.Threshold {
		return fmt.Errorf("retrieval.fallback_threshold %g must not exceed retrieval.threshold %g",
			c.Retrieval.FallbackThreshold, c.Retrieval.Threshold)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache is enabled")
	}
	if _, ok := c.Embedding.Providers[c.Embedding.Vectorizer.Provider]; !ok {
		return fmt.Errorf("embedding.vectorizer.provider %q has no matching entry in embedding.providers",
			c.Embedding.Vectorizer.Provider)
	}
	for name, p := range c.Embedding.Providers {
		if a := p.Budget.Action; a != "" && a != "warn" && a != "reject" {
			return fmt.Errorf("embedding.providers.%s.budget.action: unknown value %q (use \"warn\" or \"reject\")",
				name, a)
		}
	}
	if c.Tracker.URL != "" {
		if c.Tracker.Username == "" || c.Tracker.APIToken == "" {
			return fmt.Errorf("tracker.username and tracker.api_token are required when tracker.url is set")
		}
		if c.Tracker.ProjectKey == "" {
			return fmt.Errorf("tracker.project_key is required when tracker.url is set")
		}
	}
	return nil
}

// findConfigPath locates the config file. SEMDEX_CONFIG overrides the search
// entirely, which is the way to run from a container with a mounted config.
// Otherwise the working directory is tried first, then the repository root
// so tests and `go run ./cmd/...` work from any package directory.
func findConfigPath(env string) string {
	if path := os.Getenv("SEMDEX_CONFIG"); path != "" {
		return path
	}

	filename := env + ".yaml"
	if path := filepath.Join("config", filename); isRegularFile(path) {
		return path
	}

	_, src, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filepath.Dir(src))) // two levels above internal/config
	if path := filepath.Join(root, "config", filename); isRegularFile(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func isRegularFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv substitutes ${VAR} and ${VAR:-default} references with values
// from the environment before the YAML is parsed. An unset variable without
// a default expands to the empty string.
func expandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		name, fallback, hasFallback := strings.Cut(string(ref[2:len(ref)-1]), ":-")
		if v := os.Getenv(name); v != "" {
			return []byte(v)
		}
		if hasFallback {
			return []byte(fallback)
		}
		return nil
	})
}
