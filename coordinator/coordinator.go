/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       LLM coordinator. Decides immediate dispatch vs batch
             assembly per request, fabricates combined prompts for
             same-type sub-batches, dispatches one provider call
             per sub-batch, and parses per-item results back out.
Root Cause:  Many simultaneous agent requests for the same kind of
             LLM call are cheaper as one combined call than N
             separate ones, but latency-sensitive requests must
             still bypass the batching window entirely.
Suitability: L2 — one lock for the batch queue, one background
             batch-processor goroutine, cost/perf guarded by their
             own locks (never nested under the queue lock).
──────────────────────────────────────────────────────────────
*/

package coordinator

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentruntime/coordinator/budget"
	"github.com/agentruntime/coordinator/concurrency"
	"github.com/agentruntime/coordinator/llmcache"
	"github.com/agentruntime/coordinator/priority"
	"github.com/agentruntime/coordinator/pricing"
	"github.com/agentruntime/coordinator/resource"
	"github.com/agentruntime/coordinator/runtimeerr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config configures a Coordinator. The batch-tuning fields are mutated at
// runtime by the optional Tuner within the bounds set by the constants in
// tuner.go.
type Config struct {
	MaxBatchSize           int
	BatchTimeout           time.Duration
	BatchPriorityThreshold float64

	// UnitCostPerToken is the fallback cost estimate used when Pricing is
	// nil or the named Model/ProviderName isn't in its table.
	UnitCostPerToken float64
	Pricing          *pricing.Table
	ProviderName     string
	Model            string
}

// Coordinator implements the LLM Coordination Layer (C7).
type Coordinator struct {
	logger   zerolog.Logger
	cfg      Config
	cfgMu    sync.RWMutex // guards the mutable tuning fields only

	provider Provider
	cost     *budget.CostTracker
	perf     *budget.PerformanceBudget
	cache    *llmcache.Cache
	monitor  *resource.Monitor

	qmu   sync.Mutex
	queue requestHeap

	dedup *concurrency.Deduplicator

	stats stats

	cancel context.CancelFunc
	done   chan struct{}
	stopped int32
}

type stats struct {
	immediateRequests int64
	batchedRequests   int64
	totalCalls        int64
	budgetViolations  int64
	costSavingsMilli  int64 // cost savings accumulated, stored as cost*1e6 for atomic int64 ops
	batchCountSamples int64
	batchSizeSum      int64
}

// New creates a Coordinator. Call Start to begin the batch processor.
func New(logger zerolog.Logger, cfg Config, provider Provider, cost *budget.CostTracker, perf *budget.PerformanceBudget, cache *llmcache.Cache, monitor *resource.Monitor) *Coordinator {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 5
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 2 * time.Second
	}
	if cfg.UnitCostPerToken <= 0 {
		cfg.UnitCostPerToken = 0.000002
	}
	return &Coordinator{
		logger:   logger.With().Str("component", "coordinator").Logger(),
		cfg:      cfg,
		provider: provider,
		cost:     cost,
		perf:     perf,
		cache:    cache,
		monitor:  monitor,
		dedup:    concurrency.NewDeduplicator(),
		done:     make(chan struct{}),
	}
}

func (c *Coordinator) snapshotConfig() Config {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// Start begins the background batch-processor loop.
func (c *Coordinator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.batchLoop(ctx)
	c.logger.Info().Msg("coordinator started")
}

// Stop cancels the batch processor after attempting one final drain of the
// queue, then waits for the loop to exit.
func (c *Coordinator) Stop() {
	if !atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		return
	}
	c.drainFinalBatch()
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
	c.logger.Info().Msg("coordinator stopped")
}

// QueueRequest is the coordinator's sole entry point (§4.7). It estimates
// cost, checks budgets, and either dispatches immediately or enqueues the
// request for batch assembly, blocking the caller until a result or
// timeout.
func (c *Coordinator) QueueRequest(ctx context.Context, requestType, prompt string, reqContext map[string]interface{}, pr priority.Priority, timeout time.Duration) LLMResult {
	if atomic.LoadInt32(&c.stopped) == 1 {
		return LLMResult{OK: false, Error: runtimeerr.ShuttingDown.Error()}
	}

	requestID := uuid.NewString()
	tokens := estimateTokens(prompt)
	cfg := c.snapshotConfig()
	estCost := c.estimateCost(cfg, tokens)

	if !c.cost.CanAfford(estCost) {
		return LLMResult{RequestID: requestID, OK: false, Error: runtimeerr.BudgetExceeded.Error()}
	}

	if c.perf.Exceeded() {
		c.perf.RecordViolation()
		atomic.AddInt64(&c.stats.budgetViolations, 1)
		return LLMResult{RequestID: requestID, OK: false, Error: runtimeerr.PerformanceBudgetExceeded.Error()}
	}

	req := &batchRequest{
		requestID:       requestID,
		priority:        pr,
		requestType:     requestType,
		prompt:          prompt,
		context:         reqContext,
		createdAt:       time.Now(),
		timeout:         c.clampTimeout(timeout),
		estimatedCost:   estCost,
		estimatedTokens: tokens,
	}

	if c.bypassesBatching(pr, cfg) {
		atomic.AddInt64(&c.stats.immediateRequests, 1)
		return c.dispatchImmediate(ctx, req)
	}

	atomic.AddInt64(&c.stats.batchedRequests, 1)
	return c.enqueueAndWait(req)
}

// estimateCost prices a request via the pricing table when one is
// configured and the model is known, charging the token estimate once as
// input and once more as output (a reply as long as the prompt). Falls back
// to the flat per-token rate otherwise.
func (c *Coordinator) estimateCost(cfg Config, tokens int) float64 {
	if cfg.Pricing != nil {
		if cost, ok := cfg.Pricing.EstimateCost(cfg.ProviderName, cfg.Model, tokens, tokens); ok {
			return cost
		}
	}
	return float64(tokens) * cfg.UnitCostPerToken
}

// bypassesBatching implements §4.7 step 4: CRITICAL/HIGH priorities whose
// normalized value is within the batch_priority_threshold skip the queue.
func (c *Coordinator) bypassesBatching(pr priority.Priority, cfg Config) bool {
	if pr != priority.Critical && pr != priority.High {
		return false
	}
	return pr.Normalized() <= cfg.BatchPriorityThreshold
}

// clampTimeout bounds a caller's requested timeout to what remains of the
// current turn, minus a 0.5s safety margin, per §4.7.1.
func (c *Coordinator) clampTimeout(callerTimeout time.Duration) time.Duration {
	remaining := c.perf.Remaining() - 500*time.Millisecond
	if remaining <= 0 {
		return 0
	}
	if callerTimeout <= 0 || callerTimeout > remaining {
		return remaining
	}
	return callerTimeout
}

func (c *Coordinator) dispatchImmediate(ctx context.Context, req *batchRequest) LLMResult {
	key := llmcache.Key(agentID(req.context), req.prompt, stringifyContext(req.context))
	if cached, ok := c.cache.Get(key); ok {
		if content, ok := cached.(string); ok {
			return LLMResult{RequestID: req.requestID, OK: true, Content: content, WasBatched: false}
		}
	}

	// Collapse concurrent immediate requests sharing the same normalized
	// cache key into one provider call; followers ride the leader's result
	// and keep their own requestID.
	entry, isLeader := c.dedup.TryStart(key)
	if !isLeader {
		<-entry.Done()
		value, err := entry.Result()
		if err != nil {
			return LLMResult{RequestID: req.requestID, OK: false, Error: err.Error(), WasBatched: false}
		}
		result := value.(LLMResult)
		result.RequestID = req.requestID
		return result
	}

	result := c.callProviderForImmediate(ctx, req, key)
	c.dedup.Complete(key, result, nil)
	result.RequestID = req.requestID
	return result
}

// callProviderForImmediate issues one provider call and, on success, updates
// the cost/performance trackers, writes through to the response cache, and
// accrues cost savings. Its returned RequestID is meaningless to the caller
// (dedup followers overwrite it with their own) and is left zero-valued.
func (c *Coordinator) callProviderForImmediate(ctx context.Context, req *batchRequest, key string) LLMResult {
	dctx := ctx
	var cancel context.CancelFunc
	if req.timeout > 0 {
		dctx, cancel = context.WithTimeout(ctx, req.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := c.provider.Generate(dctx, GenerateRequest{Prompt: req.prompt, Temperature: 0.8, Requester: req.requestID})
	duration := time.Since(start)

	atomic.AddInt64(&c.stats.totalCalls, 1)

	if err != nil {
		return LLMResult{OK: false, Error: fmt.Sprintf("%s: %v", runtimeerr.ProviderFailure, err)}
	}
	if result.Error != "" {
		return LLMResult{OK: false, Error: result.Error}
	}

	c.cost.Update(req.requestType, result.Cost, result.TokensUsed)
	c.perf.RecordCall(duration)
	c.cache.Put(key, result.Content, 0)
	c.recordCostSavings(req.estimatedCost, result.Cost)

	return LLMResult{
		OK: true, Content: result.Content,
		Cost: result.Cost, Tokens: result.TokensUsed, Duration: duration,
	}
}

// recordCostSavings folds the heuristic cost_savings metric (§9):
// 1.5x the estimated cost of a hypothetical avoided batch, minus actual
// cost, clamped at zero.
func (c *Coordinator) recordCostSavings(estimatedBatchCost, actualCost float64) {
	savings := 1.5*estimatedBatchCost - actualCost
	if savings < 0 {
		savings = 0
	}
	atomic.AddInt64(&c.stats.costSavingsMilli, int64(savings*1_000_000))
}

func (c *Coordinator) enqueueAndWait(req *batchRequest) LLMResult {
	req.resultCh = make(chan LLMResult, 1)

	c.qmu.Lock()
	heap.Push(&c.queue, req)
	c.qmu.Unlock()

	timeout := req.timeout
	if timeout <= 0 {
		timeout = c.cfg.BatchTimeout * 4
	}

	select {
	case res := <-req.resultCh:
		return res
	case <-time.After(timeout):
		return LLMResult{RequestID: req.requestID, OK: false, Error: "Request timeout"}
	}
}

func stringifyContext(context map[string]interface{}) map[string]string {
	out := make(map[string]string, len(context))
	for k, v := range context {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// agentID pulls the requesting agent's identity out of the request context
// for cache-key derivation (§4.5's Key(agent_id, prompt, context_map)).
// Requests with no agent_id share the anonymous bucket, which still lets
// identical concurrent anonymous requests hit the same key and dedup.
func agentID(context map[string]interface{}) string {
	if v, ok := context["agent_id"]; ok {
		return fmt.Sprintf("%v", v)
	}
	return "anonymous"
}

// Stats is an immutable snapshot of coordinator-wide counters.
type Stats struct {
	ImmediateRequests int64
	BatchedRequests   int64
	TotalCalls        int64
	BudgetViolations  int64
	CostSavings       float64
	AverageBatchSize  float64
}

// Snapshot returns current coordinator statistics.
func (c *Coordinator) Snapshot() Stats {
	samples := atomic.LoadInt64(&c.stats.batchCountSamples)
	var avg float64
	if samples > 0 {
		avg = float64(atomic.LoadInt64(&c.stats.batchSizeSum)) / float64(samples)
	}
	return Stats{
		ImmediateRequests: atomic.LoadInt64(&c.stats.immediateRequests),
		BatchedRequests:   atomic.LoadInt64(&c.stats.batchedRequests),
		TotalCalls:        atomic.LoadInt64(&c.stats.totalCalls),
		BudgetViolations:  atomic.LoadInt64(&c.stats.budgetViolations),
		CostSavings:       float64(atomic.LoadInt64(&c.stats.costSavingsMilli)) / 1_000_000,
		AverageBatchSize:  avg,
	}
}
