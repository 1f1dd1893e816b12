/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Predictive prefetcher. Observes per-agent request
             history and, once enough signal exists, predicts
             likely-next cache keys and warms them in the
             background with a short-TTL placeholder.
Root Cause:  Reactive cache-only warming leaves the first request
             for a predictable next key paying full cache-miss
             cost; prefetching overlaps that cost with idle time.
Suitability: L2 — background population, best-effort, no caller
             blocking.
──────────────────────────────────────────────────────────────
*/

package prefetch

import (
	"encoding/gob"
	"fmt"
	"sync"
	"time"

	"github.com/agentruntime/coordinator/concurrency"
	"github.com/rs/zerolog"
)

func init() {
	gob.Register(placeholder{})
}

const (
	historyLimit               = 100
	minHistoryToPredict        = 3
	maxPrefetchTTL             = 30 * time.Minute
	topCoOccurring             = 3
	maxConcurrentWarmsPerAgent = 4
)

// Cache is the subset of cache.Cache the prefetcher depends on. Declared
// narrowly here so the prefetcher depends one-directionally on the cache,
// never the reverse.
type Cache interface {
	Has(key string) bool
	Put(key string, value interface{}, ttl time.Duration) bool
}

// Request is one observed world-state request for an agent.
type Request struct {
	CurrentTurn      int
	HasCurrentTurn   bool
	RequestingAgent  string
}

type agentPattern struct {
	history []Request
}

// Prefetcher records per-agent request history and speculatively warms the
// cache with predicted next keys.
type Prefetcher struct {
	logger zerolog.Logger
	cache  Cache

	mapMu    sync.Mutex
	patterns map[string]*agentPattern

	// locks serializes Observe per agent_id instead of behind one global
	// mutex, so unrelated agents' history updates never contend.
	locks *concurrency.KeyedMutex
	// warmLimit bounds how many prefetch warms run concurrently for a
	// single agent, so a tight burst of Observe calls can't pile up an
	// unbounded number of background goroutines for one agent.
	warmLimit *concurrency.Semaphore

	wg sync.WaitGroup
}

// New creates a Prefetcher that warms entries into cache.
func New(logger zerolog.Logger, cache Cache) *Prefetcher {
	return &Prefetcher{
		logger:    logger.With().Str("component", "prefetcher").Logger(),
		cache:     cache,
		patterns:  make(map[string]*agentPattern),
		locks:     concurrency.NewKeyedMutex(),
		warmLimit: concurrency.NewSemaphore(maxConcurrentWarmsPerAgent),
	}
}

// Observe records req against agentID's history and, if enough history has
// accumulated, spawns background prefetch activities for predicted keys.
// Cache writes happen in those goroutines, never on the caller's path;
// concurrent Observe calls for the same agent are serialized.
func (p *Prefetcher) Observe(agentID string, req Request) {
	unlock := p.locks.Lock(agentID)
	defer unlock()

	pat := p.patternFor(agentID)
	pat.history = append(pat.history, req)
	if len(pat.history) > historyLimit {
		pat.history = pat.history[len(pat.history)-historyLimit:]
	}

	if len(pat.history) < minHistoryToPredict {
		return
	}

	predicted := p.predictLocked(pat, req)

	for _, key := range predicted {
		if p.cache.Has(key) {
			continue
		}
		if !p.warmLimit.Acquire(agentID, 0) {
			continue
		}
		p.wg.Add(1)
		go p.warm(agentID, key)
	}
}

func (p *Prefetcher) patternFor(agentID string) *agentPattern {
	p.mapMu.Lock()
	defer p.mapMu.Unlock()
	pat, ok := p.patterns[agentID]
	if !ok {
		pat = &agentPattern{}
		p.patterns[agentID] = pat
	}
	return pat
}

// predictLocked derives candidate keys to prefetch. Caller must hold the
// agent's key lock (see locks.Lock).
func (p *Prefetcher) predictLocked(pat *agentPattern, req Request) []string {
	var keys []string

	if req.HasCurrentTurn {
		keys = append(keys, fmt.Sprintf("world_state_turn_%d", req.CurrentTurn+1))
	}

	if req.RequestingAgent != "" {
		counts := make(map[string]int)
		for _, r := range pat.history {
			if r.RequestingAgent != "" {
				counts[r.RequestingAgent]++
			}
		}
		for _, id := range topN(counts, topCoOccurring) {
			keys = append(keys, fmt.Sprintf("agent_state_%s", id))
		}
	}

	return keys
}

func topN(counts map[string]int, n int) []string {
	type kv struct {
		key   string
		count int
	}
	var list []kv
	for k, v := range counts {
		list = append(list, kv{k, v})
	}
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			if list[j].count > list[i].count {
				list[i], list[j] = list[j], list[i]
			}
		}
	}
	if len(list) > n {
		list = list[:n]
	}
	out := make([]string, len(list))
	for i, kv := range list {
		out[i] = kv.key
	}
	return out
}

func (p *Prefetcher) warm(agentID, key string) {
	defer p.wg.Done()
	defer p.warmLimit.Release(agentID)
	p.cache.Put(key, placeholder{Key: key, GeneratedAt: time.Now()}, maxPrefetchTTL)
	p.logger.Debug().Str("key", key).Msg("prefetched placeholder")
}

// placeholder is the synthesized value written for a predicted key until
// the real value is computed and overwrites it.
type placeholder struct {
	Key         string
	GeneratedAt time.Time
}

// Wait blocks until all in-flight prefetch activities finish. Intended for
// tests and graceful shutdown, not the request hot path.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}
