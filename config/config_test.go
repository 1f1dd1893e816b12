package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/agentruntime/coordinator/config"
)

func TestLoadConfigFromEnv(t *testing.T) {
	os.Setenv("ENV", "test")
	os.Setenv("MAX_WORKERS", "16")
	os.Setenv("HOURLY_BUDGET", "5.5")
	os.Setenv("CACHE_STRATEGY", "LFU")
	os.Setenv("BATCH_TIMEOUT_MS", "250")
	defer func() {
		os.Unsetenv("ENV")
		os.Unsetenv("MAX_WORKERS")
		os.Unsetenv("HOURLY_BUDGET")
		os.Unsetenv("CACHE_STRATEGY")
		os.Unsetenv("BATCH_TIMEOUT_MS")
	}()

	cfg := config.Load()
	if cfg.Env != "test" {
		t.Fatalf("expected ENV=test, got %s", cfg.Env)
	}
	if cfg.MaxWorkers != 16 {
		t.Fatalf("expected MaxWorkers=16, got %d", cfg.MaxWorkers)
	}
	if cfg.HourlyBudget != 5.5 {
		t.Fatalf("expected HourlyBudget=5.5, got %v", cfg.HourlyBudget)
	}
	if cfg.CacheStrategy != config.StrategyLFU {
		t.Fatalf("expected CacheStrategy=LFU, got %s", cfg.CacheStrategy)
	}
	if cfg.BatchTimeout != 250*time.Millisecond {
		t.Fatalf("expected BatchTimeout=250ms, got %v", cfg.BatchTimeout)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := config.Load()
	if cfg.MaxBatchSize != 5 {
		t.Fatalf("expected default MaxBatchSize=5, got %d", cfg.MaxBatchSize)
	}
	if cfg.CacheStrategy != config.StrategyAdaptive {
		t.Fatalf("expected default strategy ADAPTIVE, got %s", cfg.CacheStrategy)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected default env to be development")
	}
}
