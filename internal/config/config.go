// Package config provides configuration loading and structs for the soulsync server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Matching  MatchingConfig  `yaml:"matching"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig selects the relational backend and the vector store.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
	DSN          string `yaml:"dsn"`
	// VectorStore is "memory", "sqlite" or "pgvector".
	VectorStore string `yaml:"vector_store"`
	// VectorIndexPath is the snapshot file for the memory vector store.
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig holds text-embedding provider settings.
type EmbeddingConfig struct {
	// Provider is "openai", "onnx" or "mock".
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Dimensions        int           `yaml:"dimensions"`
	ModelPath         string        `yaml:"model_path"`
	MaxTokens         int           `yaml:"max_tokens"`
	CacheSize         int           `yaml:"cache_size"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// MatchingConfig holds ranking limits and the re-embedding policy.
type MatchingConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	MinAnswers   int `yaml:"min_answers"`
	// Recompute is "every_answer" or "threshold_only".
	Recompute    string        `yaml:"recompute"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// Load reads and parses the config file at path, applies environment overrides,
// expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(&cfg)
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Storage.VectorIndexPath != "" {
		cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}

	return &cfg, nil
}

// Validate rejects unknown enum values. It expects defaults to be applied.
func Validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver: %s (supported: sqlite, postgres)", cfg.Storage.Driver)
	}
	switch cfg.Storage.VectorStore {
	case "memory", "sqlite", "pgvector":
	default:
		return fmt.Errorf("unknown vector store: %s (supported: memory, sqlite, pgvector)", cfg.Storage.VectorStore)
	}
	if cfg.Storage.VectorStore == "pgvector" && cfg.Storage.Driver != DriverPostgres {
		return fmt.Errorf("vector store pgvector requires the postgres storage driver")
	}
	if cfg.Storage.VectorStore == "sqlite" && cfg.Storage.Driver != DriverSQLite {
		return fmt.Errorf("vector store sqlite requires the sqlite storage driver")
	}
	switch cfg.Matching.Recompute {
	case RecomputeEveryAnswer, RecomputeThresholdOnly:
	default:
		return fmt.Errorf("unknown recompute policy: %s (supported: every_answer, threshold_only)", cfg.Matching.Recompute)
	}
	if cfg.Matching.DefaultLimit > cfg.Matching.MaxLimit {
		return fmt.Errorf("matching.default_limit (%d) exceeds matching.max_limit (%d)", cfg.Matching.DefaultLimit, cfg.Matching.MaxLimit)
	}
	return nil
}

// applyEnv lets deployments keep secrets out of the YAML file.
func applyEnv(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = key
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = dsn
		if cfg.Storage.Driver == "" {
			cfg.Storage.Driver = DriverPostgres
		}
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. ":memory:" is kept as is.
func expandPath(path string, configDir string) string {
	if path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
