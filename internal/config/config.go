// Package config provides configuration management for Recall.
// It loads settings from environment variables with the RECALL_ prefix
// and provides sensible defaults for all configuration options.
//
// Deployment-level settings that are awkward as env vars (the module
// descriptor list, fusion weights) can additionally be read from a YAML
// file; file values take precedence over the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/recall/pkg/types"
)

// Config holds all configuration settings for the Recall application.
type Config struct {
	Storage   StorageConfig            `yaml:"storage"`
	Embedding EmbeddingConfig          `yaml:"embedding"`
	Search    SearchConfig             `yaml:"search"`
	Modules   []types.ModuleDescriptor `yaml:"modules"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Storage engine: sqlite, postgres (default: sqlite)
	DataPath    string `yaml:"data_path"`    // Path to data directory for sqlite (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // Connection string for the postgres engine
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	ProviderURL       string        `yaml:"provider_url"`        // Provider API URL (default: http://localhost:11434)
	Model             string        `yaml:"model"`               // Embedding model name (default: nomic-embed-text)
	Timeout           time.Duration `yaml:"timeout"`             // Per-request timeout (default: 10s)
	RequestsPerSecond float64       `yaml:"requests_per_second"` // Local rate limit (default: 10)
	MaxRetries        int           `yaml:"max_retries"`         // Transient-failure retries per call (default: 3)
	FullDimensions    int           `yaml:"full_dimensions"`     // Full embedding size (default: 1536)
	IndexDimensions   int           `yaml:"index_dimensions"`    // Compressed index embedding size (default: 512)
}

// SearchConfig contains federated search tuning.
type SearchConfig struct {
	Weights         FusionWeights `yaml:"weights"`           // Score fusion weights
	RouterTopK      int           `yaml:"router_top_k"`      // Max modules searched per query (default: 3)
	CandidateTopN   int           `yaml:"candidate_top_n"`   // Index candidates fetched for routing (default: 50)
	ModuleTimeout   time.Duration `yaml:"module_timeout"`    // Per-module search deadline (default: 2s)
	OverallTimeout  time.Duration `yaml:"overall_timeout"`   // Whole-query deadline (default: 5s)
	RecencyHalfLife time.Duration `yaml:"recency_half_life"` // Half-life of the recency decay (default: 168h)
}

// FusionWeights are the linear combination coefficients for result scoring.
// Normalize scales them to sum to 1 so a fused score stays in [0, 1].
type FusionWeights struct {
	Similarity float64 `yaml:"similarity"`
	Importance float64 `yaml:"importance"`
	Recency    float64 `yaml:"recency"`
}

// Validate rejects weights that cannot produce a meaningful ranking.
func (w FusionWeights) Validate() error {
	if w.Similarity < 0 || w.Importance < 0 || w.Recency < 0 {
		return fmt.Errorf("config: fusion weights must be non-negative, got %+v", w)
	}
	if w.Similarity+w.Importance+w.Recency == 0 {
		return fmt.Errorf("config: fusion weights must not all be zero")
	}
	return nil
}

// Normalized returns the weights scaled to sum to 1.
func (w FusionWeights) Normalized() FusionWeights {
	sum := w.Similarity + w.Importance + w.Recency
	if sum == 0 {
		return w
	}
	return FusionWeights{
		Similarity: w.Similarity / sum,
		Importance: w.Importance / sum,
		Recency:    w.Recency / sum,
	}
}

// DefaultFusionWeights weight semantic similarity highest, with importance
// and recency as secondary signals.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Similarity: 0.6, Importance: 0.25, Recency: 0.15}
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the RECALL_ prefix.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.Search.Weights.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromFile loads the environment-based configuration and overlays
// it with the YAML file at path. The file is the usual place for the module
// descriptor list and tuned fusion weights.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := buildBaseConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := cfg.Search.Weights.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(cfg.Modules))
	for _, desc := range cfg.Modules {
		if desc.ModuleID == "" {
			return nil, fmt.Errorf("config: module descriptor with empty module_id in %s", path)
		}
		if seen[desc.ModuleID] {
			return nil, fmt.Errorf("config: duplicate module descriptor %q in %s", desc.ModuleID, path)
		}
		seen[desc.ModuleID] = true
	}

	return cfg, nil
}

// buildBaseConfig constructs a Config from environment variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:      getEnv("RECALL_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("RECALL_DATA_PATH", "./data"),
			PostgresDSN: getEnv("RECALL_POSTGRES_DSN", ""),
		},
		Embedding: EmbeddingConfig{
			ProviderURL:       getEnv("RECALL_EMBEDDING_URL", "http://localhost:11434"),
			Model:             getEnv("RECALL_EMBEDDING_MODEL", "nomic-embed-text"),
			Timeout:           getEnvDuration("RECALL_EMBEDDING_TIMEOUT", 10*time.Second),
			RequestsPerSecond: getEnvFloat("RECALL_EMBEDDING_RPS", 10),
			MaxRetries:        getEnvInt("RECALL_EMBEDDING_MAX_RETRIES", 3),
			FullDimensions:    getEnvInt("RECALL_FULL_DIMENSIONS", 1536),
			IndexDimensions:   getEnvInt("RECALL_INDEX_DIMENSIONS", 512),
		},
		Search: SearchConfig{
			Weights:         DefaultFusionWeights(),
			RouterTopK:      getEnvInt("RECALL_ROUTER_TOP_K", 3),
			CandidateTopN:   getEnvInt("RECALL_CANDIDATE_TOP_N", 50),
			ModuleTimeout:   getEnvDuration("RECALL_MODULE_TIMEOUT", 2*time.Second),
			OverallTimeout:  getEnvDuration("RECALL_OVERALL_TIMEOUT", 5*time.Second),
			RecencyHalfLife: getEnvDuration("RECALL_RECENCY_HALF_LIFE", 168*time.Hour),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "2s", "5m") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
