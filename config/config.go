/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L4
Logic:       Runtime configuration for the concurrent processor,
             LLM coordinator, and multi-level cache. Loaded from
             environment variables with an optional .env file.
Root Cause:  Every core component needs its tunables (worker
             counts, budgets, cache sizing, eviction strategy)
             sourced from one place at process start.
Suitability: L4 model used for budget/limits-bearing config.
──────────────────────────────────────────────────────────────
*/

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// CacheStrategy selects the eviction policy used by the multi-level cache.
type CacheStrategy string

const (
	StrategyLRU      CacheStrategy = "LRU"
	StrategyLFU      CacheStrategy = "LFU"
	StrategyFIFO     CacheStrategy = "FIFO"
	StrategyAdaptive CacheStrategy = "ADAPTIVE"
)

// Config holds every tunable named in the configuration surface, plus the
// ambient process settings (environment name, log level, graceful shutdown
// grace period) that every component built on the reference stack carries.
type Config struct {
	Env             string
	LogLevel        string
	GracefulTimeout time.Duration

	// Concurrent processor (C6)
	MaxWorkers          int
	MaxConcurrentTasks  int
	QueueTimeout        time.Duration

	// LLM coordinator (C7)
	MaxBatchSize            int
	BatchTimeout            time.Duration
	BatchPriorityThreshold  float64
	MaxTurnTime             time.Duration
	HourlyBudget            float64
	DailyBudget             float64

	// Multi-level cache (C4)
	L1MaxSize        int
	L2MaxSize        int
	L3MaxSize        int
	DefaultTTL       time.Duration
	CacheStrategy    CacheStrategy
	CacheDirectory   string
	MaxCacheSizeBytes int64

	// Optional external collaborators
	RedisURL string
}

// Load reads configuration from environment variables and an optional .env
// file, falling back to the documented defaults for every option.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		GracefulTimeout: time.Duration(getEnvInt("GRACEFUL_TIMEOUT_SEC", 5)) * time.Second,

		MaxWorkers:         getEnvInt("MAX_WORKERS", 8),
		MaxConcurrentTasks: getEnvInt("MAX_CONCURRENT_TASKS", 100),
		QueueTimeout:       getEnvDuration("QUEUE_TIMEOUT_MS", 2*time.Second),

		MaxBatchSize:           getEnvInt("MAX_BATCH_SIZE", 5),
		BatchTimeout:           getEnvDuration("BATCH_TIMEOUT_MS", 2*time.Second),
		BatchPriorityThreshold: getEnvFloat("BATCH_PRIORITY_THRESHOLD", 0.4),
		MaxTurnTime:            getEnvDuration("MAX_TURN_TIME_MS", 5*time.Second),
		HourlyBudget:           getEnvFloat("HOURLY_BUDGET", 2.0),
		DailyBudget:            getEnvFloat("DAILY_BUDGET", 20.0),

		L1MaxSize:         getEnvInt("L1_MAX_SIZE", 1000),
		L2MaxSize:         getEnvInt("L2_MAX_SIZE", 5000),
		L3MaxSize:         getEnvInt("L3_MAX_SIZE", 20000),
		DefaultTTL:        getEnvDuration("DEFAULT_TTL_MS", 30*time.Minute),
		CacheStrategy:     CacheStrategy(getEnv("CACHE_STRATEGY", string(StrategyAdaptive))),
		CacheDirectory:    getEnv("CACHE_DIRECTORY", "./data/cache"),
		MaxCacheSizeBytes: int64(getEnvInt("MAX_CACHE_SIZE_BYTES", 512*1024*1024)),

		RedisURL: getEnv("REDIS_URL", ""),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
