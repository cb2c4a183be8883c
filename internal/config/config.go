// Package config defines service configuration structures and loading hooks.
//
// Values are layered: defaults from New, an optional .env file, an optional
// YAML file and finally RANKREADY_ prefixed environment variables.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Store drivers accepted by store_driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// RankingYear is used when a request does not name a year.
	RankingYear int `koanf:"ranking_year"`

	// QueueSize bounds the in-memory recommendation job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recommendation workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	RetrievalTopK int `koanf:"retrieval_top_k"`

	RecommendationCacheTTLSeconds int `koanf:"recommendation_cache_ttl_seconds"`
	CacheMaxEntries               int `koanf:"cache_max_entries"`

	// Generation settings; when disabled recommendations always use the fallback table.
	GenerationEnabled         bool    `koanf:"generation_enabled"`
	GenerationBaseURL         string  `koanf:"generation_base_url"`
	GenerationModel           string  `koanf:"generation_model"`
	GenerationTimeoutSeconds  int     `koanf:"generation_timeout_seconds"`
	GenerationMaxAttempts     int     `koanf:"generation_max_attempts"`
	GenerationBaseDelayMS     int     `koanf:"generation_base_delay_ms"`
	GenerationMaxDelaySeconds int     `koanf:"generation_max_delay_seconds"`
	GenerationRatePerSecond   float64 `koanf:"generation_rate_per_second"`
	GenerationBurst           int     `koanf:"generation_burst"`

	// BenchmarkDivisors overrides normalization divisors per indicator code.
	BenchmarkDivisors map[string]float64 `koanf:"benchmark_divisors"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                      "info",
		LogFormat:                     "text",
		Addr:                          ":9080",
		StoreDriver:                   DriverMemory,
		SQLitePath:                    "rankready.db",
		RankingYear:                   time.Now().Year(),
		QueueSize:                     1024,
		WorkerCount:                   runtime.NumCPU(),
		MaxLeaderboardLimit:           100,
		RetrievalTopK:                 3,
		RecommendationCacheTTLSeconds: 3600,
		CacheMaxEntries:               1024,
		GenerationBaseURL:             "http://localhost:11434",
		GenerationModel:               "llama3.1",
		GenerationTimeoutSeconds:      60,
		GenerationMaxAttempts:         3,
		GenerationBaseDelayMS:         1000,
		GenerationMaxDelaySeconds:     60,
		GenerationRatePerSecond:       1,
		GenerationBurst:               1,
	}
}

// RecommendationCacheTTL returns the cache TTL as a duration.
func (c *Config) RecommendationCacheTTL() time.Duration {
	return time.Duration(c.RecommendationCacheTTLSeconds) * time.Second
}

// GenerationTimeout returns the per-request HTTP timeout of the generation client.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

// GenerationBaseDelay returns the first retry delay.
func (c *Config) GenerationBaseDelay() time.Duration {
	return time.Duration(c.GenerationBaseDelayMS) * time.Millisecond
}

// GenerationMaxDelay returns the retry delay cap.
func (c *Config) GenerationMaxDelay() time.Duration {
	return time.Duration(c.GenerationMaxDelaySeconds) * time.Second
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case !validLevel(c.LogLevel):
		return invalid("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format %q is not one of text, json", c.LogFormat)
	case c.RankingYear < 1:
		return invalid("ranking_year must be positive")
	case c.QueueSize < 1:
		return invalid("queue_size must be positive")
	case c.MaxLeaderboardLimit < 1:
		return invalid("max_leaderboard_limit must be positive")
	case c.RetrievalTopK < 1:
		return invalid("retrieval_top_k must be positive")
	case c.RecommendationCacheTTLSeconds < 0:
		return invalid("recommendation_cache_ttl_seconds must not be negative")
	case c.CacheMaxEntries < 1:
		return invalid("cache_max_entries must be positive")
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return invalid("sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return invalid("postgres_dsn is required for the postgres driver")
		}
	default:
		return invalid("store_driver %q is not one of memory, sqlite, postgres", c.StoreDriver)
	}

	if c.GenerationEnabled && c.GenerationBaseURL == "" {
		return invalid("generation_base_url is required when generation is enabled")
	}
	switch {
	case c.GenerationMaxAttempts < 1:
		return invalid("generation_max_attempts must be at least 1")
	case c.GenerationBaseDelayMS < 1:
		return invalid("generation_base_delay_ms must be positive")
	case c.GenerationMaxDelay() < c.GenerationBaseDelay():
		return invalid("generation_max_delay_seconds must not be below the base delay")
	case c.GenerationTimeoutSeconds < 1:
		return invalid("generation_timeout_seconds must be positive")
	case c.GenerationRatePerSecond <= 0:
		return invalid("generation_rate_per_second must be positive")
	case c.GenerationBurst < 1:
		return invalid("generation_burst must be at least 1")
	}

	for code, d := range c.BenchmarkDivisors {
		if d <= 0 {
			return invalid("benchmark_divisors.%s must be positive", code)
		}
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
