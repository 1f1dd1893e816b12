/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Process entry point. Wires config → logger → resource
             monitor → cost/performance budgets → cache → response
             cache → prefetcher → concurrent processor → LLM
             coordinator, starts every background loop, and shuts
             them all down in dependency order on SIGINT/SIGTERM.
Root Cause:  Every component above is independently testable, but
             something has to own construction order and lifetime.
Suitability: L3 model for process wiring and graceful shutdown.
──────────────────────────────────────────────────────────────
*/

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentruntime/coordinator/budget"
	"github.com/agentruntime/coordinator/cache"
	"github.com/agentruntime/coordinator/config"
	"github.com/agentruntime/coordinator/coordinator"
	"github.com/agentruntime/coordinator/httpprovider"
	"github.com/agentruntime/coordinator/llmcache"
	"github.com/agentruntime/coordinator/logger"
	"github.com/agentruntime/coordinator/prefetch"
	"github.com/agentruntime/coordinator/pricing"
	"github.com/agentruntime/coordinator/processor"
	"github.com/agentruntime/coordinator/redisclient"
	"github.com/agentruntime/coordinator/resource"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	monitor := resource.New(log, resource.NewDefaultSampler())

	costTracker := budget.NewCostTracker(cfg.HourlyBudget, cfg.DailyBudget)
	perfBudget := budget.NewPerformanceBudget(cfg.MaxTurnTime, 5*time.Second, 2*time.Second)
	perfBudget.StartTurn()

	tieredCache, err := cache.New(log, cache.Config{
		L1MaxSize:  cfg.L1MaxSize,
		L2MaxSize:  cfg.L2MaxSize,
		L3MaxSize:  cfg.L3MaxSize,
		DefaultTTL: cfg.DefaultTTL,
		Strategy:   cache.Strategy(cfg.CacheStrategy),
		Directory:  cfg.CacheDirectory,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache")
	}
	tieredCache.Start()
	defer tieredCache.Stop()

	responseCache := llmcache.New(tieredCache)
	prefetcher := prefetch.New(log, tieredCache)

	proc := processor.New(log, processor.Config{
		MaxWorkers:         cfg.MaxWorkers,
		MaxConcurrentTasks: cfg.MaxConcurrentTasks,
		QueueTimeout:       cfg.QueueTimeout,
	}, monitor)
	proc.Start()
	defer proc.Stop()

	var redisHealth *redisclient.Client
	if cfg.RedisURL != "" {
		redisHealth, err = redisclient.New(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis health probe unavailable")
		} else {
			defer redisHealth.Close()
			if err := redisHealth.Ping(); err != nil {
				log.Warn().Err(err).Msg("redis liveness probe failed")
			} else {
				log.Info().Msg("redis liveness probe succeeded")
			}
		}
	}

	providerBackend := httpprovider.New(log, os.Getenv("LLM_BASE_URL"), os.Getenv("LLM_API_KEY"), os.Getenv("LLM_MODEL"), cfg.MaxTurnTime, httpprovider.DefaultPoolConfig())
	providerBackend.StartHealthPolling(30 * time.Second)
	defer providerBackend.StopHealthPolling()

	coord := coordinator.New(log, coordinator.Config{
		MaxBatchSize:           cfg.MaxBatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		BatchPriorityThreshold: cfg.BatchPriorityThreshold,
		Pricing:                pricing.Default(),
		ProviderName:           "openai",
		Model:                  os.Getenv("LLM_MODEL"),
	}, providerBackend, costTracker, perfBudget, responseCache, monitor)
	coord.Start()
	defer coord.Stop()

	tuner := coordinator.NewTuner(log, coord)
	tuner.Start()
	defer tuner.Stop()

	// prefetcher.Observe is driven by the caller's per-turn observation loop,
	// which lives outside this process boundary; wiring it here only
	// constructs and starts its dependency, the tiered cache.
	_ = prefetcher

	log.Info().Msg("agent runtime coordinator started")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutdown signal received, draining components")
}
