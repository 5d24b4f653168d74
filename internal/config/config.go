// Package config provides configuration management for clinsearch.
// Settings come from three layers: built-in defaults, an optional YAML file,
// and environment variables with the CLINSEARCH_ prefix. Later layers win.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the clinsearch pipeline.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Temporal  TemporalConfig  `yaml:"temporal"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Entity    EntityConfig    `yaml:"entity"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	// Engine selects the backend: sqlite or postgres (default: sqlite).
	Engine string `yaml:"engine"`

	// SQLitePath is the database file path for the sqlite engine
	// (default: ./data/clinsearch.db).
	SQLitePath string `yaml:"sqlite_path"`

	// PostgresDSN is the connection string for the postgres engine.
	PostgresDSN string `yaml:"postgres_dsn"`

	// RankMultiplier scales raw full-text rank scores before the [0, 1] cap
	// (default: 10).
	RankMultiplier float64 `yaml:"rank_multiplier"`
}

// EmbeddingConfig contains embedding provider and cache configuration.
type EmbeddingConfig struct {
	// OllamaURL is the embedding API base URL (default: http://localhost:11434).
	OllamaURL string `yaml:"ollama_url"`

	// Model is the embedding model name (default: nomic-embed-text).
	Model string `yaml:"model"`

	// TimeoutSeconds bounds a single embedding call (default: 10).
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// LocalCacheSize is the in-process LRU entry count (default: 1024).
	LocalCacheSize int `yaml:"local_cache_size"`

	// RedisAddr enables the shared Redis cache tier when non-empty.
	RedisAddr string `yaml:"redis_addr"`

	// RedisTTLHours is the Redis entry lifetime (default: 24).
	RedisTTLHours int `yaml:"redis_ttl_hours"`

	// RateLimitPerSecond throttles calls to the embedding API; zero disables
	// throttling (default: 10).
	RateLimitPerSecond int `yaml:"rate_limit_per_second"`

	// BreakerMaxFailures trips the circuit breaker (default: 3).
	BreakerMaxFailures int `yaml:"breaker_max_failures"`

	// BreakerTimeoutSeconds is the open-state cooldown (default: 30).
	BreakerTimeoutSeconds int `yaml:"breaker_timeout_seconds"`
}

// TemporalConfig tunes the recency decay model.
type TemporalConfig struct {
	HalfLifeDays float64 `yaml:"half_life_days"` // default: 180
	DecayFloor   float64 `yaml:"decay_floor"`    // default: 0.5
	DecayCeiling float64 `yaml:"decay_ceiling"`  // default: 0.95
}

// FeedbackConfig tunes the relevance boost formula.
type FeedbackConfig struct {
	MinVotesForBoost int     `yaml:"min_votes_for_boost"` // default: 3
	FlagPenalty      float64 `yaml:"flag_penalty"`        // default: 0.5
	MaxBoost         float64 `yaml:"max_boost"`           // default: 0.3
}

// EntityConfig tunes entity deduplication thresholds.
type EntityConfig struct {
	FuzzyMatchThreshold     float64 `yaml:"fuzzy_match_threshold"`     // default: 0.9
	EmbeddingMatchThreshold float64 `yaml:"embedding_match_threshold"` // default: 0.85
}

// LoggingConfig contains logger construction settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string `yaml:"level"`

	// Format is json or console (default: json).
	Format string `yaml:"format"`

	// FilePath enables rotating file output when non-empty; stderr otherwise.
	FilePath string `yaml:"file_path"`

	// MaxSizeMB, MaxBackups and MaxAgeDays control file rotation.
	MaxSizeMB  int `yaml:"max_size_mb"`  // default: 100
	MaxBackups int `yaml:"max_backups"`  // default: 3
	MaxAgeDays int `yaml:"max_age_days"` // default: 28
}

// LoadConfig loads configuration from environment variables over the built-in
// defaults. If CLINSEARCH_CONFIG names a YAML file, it is applied between the
// two layers.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(os.Getenv("CLINSEARCH_CONFIG"))
}

// LoadConfigFile loads configuration with an explicit YAML file path. An
// empty path skips the file layer entirely; a named file that cannot be read
// or parsed is an error.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres engine requires a DSN")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:         "sqlite",
			SQLitePath:     "./data/clinsearch.db",
			RankMultiplier: 10,
		},
		Embedding: EmbeddingConfig{
			OllamaURL:             "http://localhost:11434",
			Model:                 "nomic-embed-text",
			TimeoutSeconds:        10,
			LocalCacheSize:        1024,
			RedisTTLHours:         24,
			RateLimitPerSecond:    10,
			BreakerMaxFailures:    3,
			BreakerTimeoutSeconds: 30,
		},
		Temporal: TemporalConfig{
			HalfLifeDays: 180,
			DecayFloor:   0.5,
			DecayCeiling: 0.95,
		},
		Feedback: FeedbackConfig{
			MinVotesForBoost: 3,
			FlagPenalty:      0.5,
			MaxBoost:         0.3,
		},
		Entity: EntityConfig{
			FuzzyMatchThreshold:     0.9,
			EmbeddingMatchThreshold: 0.85,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// applyEnv overlays CLINSEARCH_ environment variables onto cfg.
func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("CLINSEARCH_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.SQLitePath = getEnv("CLINSEARCH_SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.PostgresDSN = getEnv("CLINSEARCH_POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Storage.RankMultiplier = getEnvFloat("CLINSEARCH_RANK_MULTIPLIER", cfg.Storage.RankMultiplier)

	cfg.Embedding.OllamaURL = getEnv("CLINSEARCH_OLLAMA_URL", cfg.Embedding.OllamaURL)
	cfg.Embedding.Model = getEnv("CLINSEARCH_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.TimeoutSeconds = getEnvInt("CLINSEARCH_EMBEDDING_TIMEOUT_SECONDS", cfg.Embedding.TimeoutSeconds)
	cfg.Embedding.LocalCacheSize = getEnvInt("CLINSEARCH_EMBEDDING_CACHE_SIZE", cfg.Embedding.LocalCacheSize)
	cfg.Embedding.RedisAddr = getEnv("CLINSEARCH_REDIS_ADDR", cfg.Embedding.RedisAddr)
	cfg.Embedding.RedisTTLHours = getEnvInt("CLINSEARCH_REDIS_TTL_HOURS", cfg.Embedding.RedisTTLHours)
	cfg.Embedding.RateLimitPerSecond = getEnvInt("CLINSEARCH_EMBEDDING_RATE_LIMIT", cfg.Embedding.RateLimitPerSecond)
	cfg.Embedding.BreakerMaxFailures = getEnvInt("CLINSEARCH_BREAKER_MAX_FAILURES", cfg.Embedding.BreakerMaxFailures)
	cfg.Embedding.BreakerTimeoutSeconds = getEnvInt("CLINSEARCH_BREAKER_TIMEOUT_SECONDS", cfg.Embedding.BreakerTimeoutSeconds)

	cfg.Temporal.HalfLifeDays = getEnvFloat("CLINSEARCH_HALF_LIFE_DAYS", cfg.Temporal.HalfLifeDays)
	cfg.Temporal.DecayFloor = getEnvFloat("CLINSEARCH_DECAY_FLOOR", cfg.Temporal.DecayFloor)
	cfg.Temporal.DecayCeiling = getEnvFloat("CLINSEARCH_DECAY_CEILING", cfg.Temporal.DecayCeiling)

	cfg.Feedback.MinVotesForBoost = getEnvInt("CLINSEARCH_MIN_VOTES_FOR_BOOST", cfg.Feedback.MinVotesForBoost)
	cfg.Feedback.FlagPenalty = getEnvFloat("CLINSEARCH_FLAG_PENALTY", cfg.Feedback.FlagPenalty)
	cfg.Feedback.MaxBoost = getEnvFloat("CLINSEARCH_MAX_BOOST", cfg.Feedback.MaxBoost)

	cfg.Entity.FuzzyMatchThreshold = getEnvFloat("CLINSEARCH_FUZZY_MATCH_THRESHOLD", cfg.Entity.FuzzyMatchThreshold)
	cfg.Entity.EmbeddingMatchThreshold = getEnvFloat("CLINSEARCH_EMBEDDING_MATCH_THRESHOLD", cfg.Entity.EmbeddingMatchThreshold)

	cfg.Logging.Level = getEnv("CLINSEARCH_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("CLINSEARCH_LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.FilePath = getEnv("CLINSEARCH_LOG_FILE", cfg.Logging.FilePath)
	cfg.Logging.MaxSizeMB = getEnvInt("CLINSEARCH_LOG_MAX_SIZE_MB", cfg.Logging.MaxSizeMB)
	cfg.Logging.MaxBackups = getEnvInt("CLINSEARCH_LOG_MAX_BACKUPS", cfg.Logging.MaxBackups)
	cfg.Logging.MaxAgeDays = getEnvInt("CLINSEARCH_LOG_MAX_AGE_DAYS", cfg.Logging.MaxAgeDays)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. An unparseable value falls back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. An unparseable value falls back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
