package coordinator

import (
	"container/heap"
	"context"
	"sync/atomic"
	"time"

	"github.com/agentruntime/coordinator/runtimeerr"
)

const batchPollInterval = 50 * time.Millisecond

// batchLoop is the single persistent batch-processor goroutine (§4.7.3). It
// waits for the queue to fill to max_batch_size or for batch_timeout_ms to
// elapse, whichever comes first, then dispatches whatever it collected.
func (c *Coordinator) batchLoop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(batchPollInterval)
	defer ticker.Stop()

	var windowStart time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.monitor != nil && c.monitor.ShouldThrottle() {
				continue
			}

			cfg := c.snapshotConfig()
			n := c.queueLen()
			if n == 0 {
				windowStart = time.Time{}
				continue
			}
			if windowStart.IsZero() {
				windowStart = time.Now()
			}

			full := n >= cfg.MaxBatchSize
			windowExpired := time.Since(windowStart) >= cfg.BatchTimeout
			if !full && !windowExpired {
				continue
			}

			c.dispatchBatch(ctx, cfg)
			windowStart = time.Time{}
		}
	}
}

func (c *Coordinator) queueLen() int {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	return len(c.queue)
}

// drainFinalBatch dispatches whatever remains queued, once, for shutdown.
func (c *Coordinator) drainFinalBatch() {
	for c.queueLen() > 0 {
		c.dispatchBatch(context.Background(), c.snapshotConfig())
	}
}

// dispatchBatch pops up to MaxBatchSize highest-priority items, groups them
// by request_type preserving submission order, and issues one provider call
// per same-type sub-batch.
func (c *Coordinator) dispatchBatch(ctx context.Context, cfg Config) {
	items := c.popBatch(cfg.MaxBatchSize)
	if len(items) == 0 {
		return
	}

	groups := groupByType(items)
	start := time.Now()
	for _, g := range groups {
		c.dispatchSubBatch(ctx, g.requestType, g.items)
	}
	c.perf.RecordBatch(time.Since(start))

	atomic.AddInt64(&c.stats.batchCountSamples, 1)
	atomic.AddInt64(&c.stats.batchSizeSum, int64(len(items)))
}

func (c *Coordinator) popBatch(max int) []*batchRequest {
	c.qmu.Lock()
	defer c.qmu.Unlock()

	var items []*batchRequest
	for len(c.queue) > 0 && len(items) < max {
		item := heap.Pop(&c.queue).(*batchRequest)
		items = append(items, item)
	}
	return items
}

type typeGroup struct {
	requestType string
	items       []*batchRequest
}

// groupByType clusters items by request_type while preserving the relative
// submission order both across and within groups.
func groupByType(items []*batchRequest) []typeGroup {
	index := make(map[string]int)
	var groups []typeGroup
	for _, it := range items {
		if i, ok := index[it.requestType]; ok {
			groups[i].items = append(groups[i].items, it)
			continue
		}
		index[it.requestType] = len(groups)
		groups = append(groups, typeGroup{requestType: it.requestType, items: []*batchRequest{it}})
	}
	return groups
}

func (c *Coordinator) dispatchSubBatch(ctx context.Context, requestType string, items []*batchRequest) {
	prompt := buildPrompt(requestType, items)

	dctx, cancel := context.WithTimeout(ctx, c.subBatchTimeout(items))
	defer cancel()

	start := time.Now()
	result, err := c.provider.Generate(dctx, GenerateRequest{Prompt: prompt, Temperature: 0.8, Requester: "batch:" + requestType})
	duration := time.Since(start)
	atomic.AddInt64(&c.stats.totalCalls, 1)

	if err != nil || result.Error != "" {
		errMsg := runtimeerr.ProviderFailure.Error()
		if result.Error != "" {
			errMsg = result.Error
		}
		c.failAll(items, errMsg)
		return
	}

	c.perf.RecordCall(duration)
	c.distributeResult(items, requestType, result)
}

// subBatchTimeout bounds a sub-batch call to the shortest timeout among its
// members, capped at (and falling back to) four times the coordinator's
// batch timeout.
func (c *Coordinator) subBatchTimeout(items []*batchRequest) time.Duration {
	min := c.cfg.BatchTimeout * 4
	for _, it := range items {
		if it.timeout > 0 && it.timeout < min {
			min = it.timeout
		}
	}
	if min <= 0 {
		min = c.cfg.BatchTimeout * 4
	}
	return min
}

// distributeResult parses the combined response per item and deterministically
// splits cost/tokens across the sub-batch proportional to each item's estimate.
func (c *Coordinator) distributeResult(items []*batchRequest, requestType string, result GenerateResult) {
	bodies := parseBatchResponse(requestType, result.Content, len(items))

	totalEstimated := 0
	for _, it := range items {
		totalEstimated += it.estimatedTokens
	}
	if totalEstimated == 0 {
		totalEstimated = len(items)
	}

	for i, it := range items {
		share := float64(it.estimatedTokens) / float64(totalEstimated)
		if it.estimatedTokens == 0 {
			share = 1.0 / float64(len(items))
		}
		itemCost := result.Cost * share
		itemTokens := int(float64(result.TokensUsed) * share)

		if !markerFound(requestType, result.Content, i+1) {
			it.resultCh <- LLMResult{
				RequestID: it.requestID, OK: false,
				Error: runtimeerr.ParseFailure.Error(), WasBatched: true,
				Response: result.Content,
			}
			continue
		}

		c.cost.Update(requestType, itemCost, itemTokens)
		c.recordCostSavings(it.estimatedCost, itemCost)

		it.resultCh <- LLMResult{
			RequestID: it.requestID, OK: true, Content: bodies[i],
			Cost: itemCost, Tokens: itemTokens, WasBatched: true,
		}
	}
}

func (c *Coordinator) failAll(items []*batchRequest, errMsg string) {
	for _, it := range items {
		it.resultCh <- LLMResult{RequestID: it.requestID, OK: false, Error: errMsg, WasBatched: true}
	}
}
