package config

import "time"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Re-embedding policies.
const (
	RecomputeEveryAnswer   = "every_answer"
	RecomputeThresholdOnly = "threshold_only"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/soulsync/data/soulsync.db"
	}
	if cfg.Storage.VectorStore == "" {
		if cfg.Storage.Driver == DriverPostgres {
			cfg.Storage.VectorStore = "pgvector"
		} else {
			cfg.Storage.VectorStore = "sqlite"
		}
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 20 * time.Second
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 5
	}
	if cfg.Embedding.Burst == 0 {
		cfg.Embedding.Burst = 5
	}
	if cfg.Matching.DefaultLimit == 0 {
		cfg.Matching.DefaultLimit = 20
	}
	if cfg.Matching.MaxLimit == 0 {
		cfg.Matching.MaxLimit = 100
	}
	if cfg.Matching.MinAnswers == 0 {
		cfg.Matching.MinAnswers = 3
	}
	if cfg.Matching.Recompute == "" {
		cfg.Matching.Recompute = RecomputeEveryAnswer
	}
	if cfg.Matching.QueryTimeout == 0 {
		cfg.Matching.QueryTimeout = 10 * time.Second
	}
}
