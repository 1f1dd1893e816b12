/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Multi-level cache: L1 in-memory hot tier, L2
             compressed warm tier, L3 on-disk cold tier, with
             promotion on hit, demotion on eviction, adaptive
             eviction scoring, TTL enforcement, and a background
             maintenance sweep.
Root Cause:  A single in-memory map cannot bound memory use while
             still retaining warm/cold data cheaply; promotion and
             demotion let hot keys stay fast without discarding
             everything else.
Suitability: L2 — one cache-wide lock, O(1) hot-path lookups, O(n)
             eviction scans bounded by configured level sizes.
──────────────────────────────────────────────────────────────
*/

package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const accessHistoryLimit = 100

// Config configures a Cache instance.
type Config struct {
	L1MaxSize      int
	L2MaxSize      int
	L3MaxSize      int
	DefaultTTL     time.Duration
	Strategy       Strategy
	Directory      string
	MaintenanceInterval time.Duration
}

// Cache is a three-tier, promotion/demotion cache with adaptive eviction.
// One mutex guards all three level maps, the access-time history, and disk
// I/O bookkeeping; hot-path operations keep their critical sections to O(1)
// plus, at most, one bounded eviction scan.
type Cache struct {
	logger zerolog.Logger
	cfg    Config

	mu          sync.Mutex
	l1          map[string]*entry
	l2          map[string]*entry
	l3          map[string]*entry // metadata stubs only
	accessTimes map[string][]time.Time

	hits      int64
	misses    int64
	evictions int64

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Cache. The cache directory is created if it does not exist
// and is thereafter owned exclusively by this Cache.
func New(logger zerolog.Logger, cfg Config) (*Cache, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = Adaptive
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = 5 * time.Minute
	}
	if cfg.Directory != "" {
		if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
			return nil, err
		}
	}
	return &Cache{
		logger:      logger.With().Str("component", "cache").Logger(),
		cfg:         cfg,
		l1:          make(map[string]*entry),
		l2:          make(map[string]*entry),
		l3:          make(map[string]*entry),
		accessTimes: make(map[string][]time.Time),
		done:        make(chan struct{}),
	}, nil
}

// Get consults L1, then L2, then L3, promoting on any hit. Expired entries
// encountered along the way are removed and treated as a miss.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.recordAccessLocked(key, now)

	if e, ok := c.l1[key]; ok {
		if e.expired(now) {
			delete(c.l1, key)
			atomic.AddInt64(&c.misses, 1)
			return nil, false
		}
		e.lastAccessed = now
		atomic.AddInt64(&c.hits, 1)
		return e.value, true
	}

	if e, ok := c.l2[key]; ok {
		if e.expired(now) {
			delete(c.l2, key)
			atomic.AddInt64(&c.misses, 1)
			return nil, false
		}
		raw, err := decompress(e.compressed)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("l2 decompress failed, treating as miss")
			delete(c.l2, key)
			atomic.AddInt64(&c.misses, 1)
			return nil, false
		}
		value, err := deserialize(raw)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("l2 deserialize failed, treating as miss")
			delete(c.l2, key)
			atomic.AddInt64(&c.misses, 1)
			return nil, false
		}
		delete(c.l2, key)
		c.promoteToL1Locked(key, value, e, now)
		atomic.AddInt64(&c.hits, 1)
		return value, true
	}

	if e, ok := c.l3[key]; ok {
		if e.expired(now) {
			c.removeFromDiskLocked(key)
			delete(c.l3, key)
			atomic.AddInt64(&c.misses, 1)
			return nil, false
		}
		raw, err := os.ReadFile(filepath.Join(c.cfg.Directory, diskFilename(key)))
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("l3 read failed, treating as miss")
			delete(c.l3, key)
			atomic.AddInt64(&c.misses, 1)
			return nil, false
		}
		value, err := deserialize(raw)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("l3 deserialize failed, treating as miss")
			delete(c.l3, key)
			atomic.AddInt64(&c.misses, 1)
			return nil, false
		}
		delete(c.l3, key)
		c.removeFromDiskLocked(key)
		c.promoteToL1Locked(key, value, e, now)
		atomic.AddInt64(&c.hits, 1)
		return value, true
	}

	atomic.AddInt64(&c.misses, 1)
	return nil, false
}

// promoteToL1Locked installs value at L1 under the metadata carried by the
// demoted entry — access_count and created_at are preserved exactly, per
// the promotion invariant (§4.4.3): promotion must not reset either field.
func (c *Cache) promoteToL1Locked(key string, value interface{}, old *entry, now time.Time) {
	promoted := &entry{
		key:          key,
		value:        value,
		createdAt:    old.createdAt,
		lastAccessed: now,
		accessCount:  old.accessCount,
		sizeBytes:    old.sizeBytes,
		ttl:          old.ttl,
		level:        L1,
	}
	if len(c.l1) >= c.cfg.L1MaxSize && c.cfg.L1MaxSize > 0 {
		c.evictLocked(L1)
	}
	c.l1[key] = promoted
}

// Put inserts value at L1 under key with an optional TTL override (zero uses
// the configured default). If L1 is full, one entry is evicted per the
// configured strategy and demoted to L2.
func (c *Cache) Put(key string, value interface{}, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	now := time.Now()

	size, err := serialize(value)
	sizeBytes := int64(64)
	if err == nil {
		sizeBytes = int64(len(size))
	}

	if existing, ok := c.l1[key]; ok {
		existing.value = value
		existing.lastAccessed = now
		existing.sizeBytes = sizeBytes
		existing.ttl = ttl
		return true
	}

	if c.cfg.L1MaxSize > 0 && len(c.l1) >= c.cfg.L1MaxSize {
		c.evictLocked(L1)
	}

	c.l1[key] = &entry{
		key:          key,
		value:        value,
		createdAt:    now,
		lastAccessed: now,
		accessCount:  1,
		sizeBytes:    sizeBytes,
		ttl:          ttl,
		level:        L1,
	}
	return true
}

// evictLocked selects a victim from the given level using the configured
// strategy, removes it, and demotes it to the next tier: every L1 victim goes
// to L2, an L2 victim goes to L3 only when access_count > 3, and an L3
// victim's disk file is deleted. Caller must hold c.mu.
func (c *Cache) evictLocked(level Level) {
	now := time.Now()

	var table map[string]*entry
	switch level {
	case L1:
		table = c.l1
	case L2:
		table = c.l2
	case L3:
		table = c.l3
	}
	if len(table) == 0 {
		return
	}

	victimKey := chooseEviction(table, c.cfg.Strategy, c.accessTimes, now)
	if victimKey == "" {
		return
	}
	victim := table[victimKey]
	delete(table, victimKey)
	atomic.AddInt64(&c.evictions, 1)

	switch level {
	case L1:
		// Every evicted L1 entry is demoted to L2 unconditionally. See
		// DESIGN.md ("L1→L2 demotion eligibility") for why this is
		// resolved unconditionally rather than gated on access_count.
		c.demoteToL2Locked(victim)
	case L2:
		if victim.accessCount > 3 {
			c.demoteToL3Locked(victim)
		}
	case L3:
		c.removeFromDiskLocked(victimKey)
	}
}

func (c *Cache) demoteToL2Locked(e *entry) {
	raw, err := serialize(e.value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", e.key).Msg("l2 serialize failed, dropping entry")
		return
	}
	compressed, err := compress(raw)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", e.key).Msg("l2 compress failed, dropping entry")
		return
	}

	if c.cfg.L2MaxSize > 0 && len(c.l2) >= c.cfg.L2MaxSize {
		c.evictLocked(L2)
	}

	c.l2[e.key] = &entry{
		key:          e.key,
		compressed:   compressed,
		createdAt:    e.createdAt,
		lastAccessed: e.lastAccessed,
		accessCount:  e.accessCount,
		sizeBytes:    int64(len(compressed)),
		ttl:          e.ttl,
		level:        L2,
	}
}

func (c *Cache) demoteToL3Locked(e *entry) {
	if c.cfg.Directory == "" {
		return
	}
	raw, err := serialize(e.value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", e.key).Msg("l3 serialize failed, dropping entry")
		return
	}

	if c.cfg.L3MaxSize > 0 && len(c.l3) >= c.cfg.L3MaxSize {
		c.evictLocked(L3)
	}

	path := filepath.Join(c.cfg.Directory, diskFilename(e.key))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		c.logger.Warn().Err(err).Str("key", e.key).Msg("l3 disk write failed, dropping entry")
		return
	}

	c.l3[e.key] = &entry{
		key:          e.key,
		createdAt:    e.createdAt,
		lastAccessed: e.lastAccessed,
		accessCount:  e.accessCount,
		sizeBytes:    int64(len(raw)),
		ttl:          e.ttl,
		level:        L3,
	}
}

func (c *Cache) removeFromDiskLocked(key string) {
	if c.cfg.Directory == "" {
		return
	}
	path := filepath.Join(c.cfg.Directory, diskFilename(key))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn().Err(err).Str("key", key).Msg("l3 disk remove failed")
	}
}

// recordAccessLocked appends now to key's bounded access-time ring, used by
// ADAPTIVE eviction and the prefetcher. Caller must hold c.mu.
func (c *Cache) recordAccessLocked(key string, now time.Time) {
	ring := append(c.accessTimes[key], now)
	if len(ring) > accessHistoryLimit {
		ring = ring[len(ring)-accessHistoryLimit:]
	}
	c.accessTimes[key] = ring

	if e, ok := c.l1[key]; ok {
		e.accessCount++
	} else if e, ok := c.l2[key]; ok {
		e.accessCount++
	} else if e, ok := c.l3[key]; ok {
		e.accessCount++
	}
}

// Clear removes entries from the named level(s). Clearing L3 also deletes
// the corresponding disk files. An empty levels list clears everything.
func (c *Cache) Clear(levels ...Level) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(levels) == 0 {
		levels = []Level{L1, L2, L3}
	}
	for _, lvl := range levels {
		switch lvl {
		case L1:
			c.l1 = make(map[string]*entry)
		case L2:
			c.l2 = make(map[string]*entry)
		case L3:
			for key := range c.l3 {
				c.removeFromDiskLocked(key)
			}
			c.l3 = make(map[string]*entry)
		}
	}
}

// Stats is an immutable snapshot of cache statistics.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	L1Entries int
	L2Entries int
	L3Entries int
	HitRate   float64
}

// Snapshot returns the current cache statistics.
func (c *Cache) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)

	var hitRate float64
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	return Stats{
		Hits:      hits,
		Misses:    misses,
		Evictions: atomic.LoadInt64(&c.evictions),
		L1Entries: len(c.l1),
		L2Entries: len(c.l2),
		L3Entries: len(c.l3),
		HitRate:   hitRate,
	}
}

// Start begins the background maintenance loop, which periodically drops
// expired entries across all levels. Call Stop to shut it down.
func (c *Cache) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.maintenanceLoop(ctx)
}

// Stop cancels the maintenance loop and waits for it to finish.
func (c *Cache) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
}

func (c *Cache) maintenanceLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

// sweepExpired drops expired entries across all three levels. SweepExpired
// exposes it to tests that don't want to wait a full maintenance interval.
func (c *Cache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, e := range c.l1 {
		if e.expired(now) {
			delete(c.l1, k)
		}
	}
	for k, e := range c.l2 {
		if e.expired(now) {
			delete(c.l2, k)
		}
	}
	for k, e := range c.l3 {
		if e.expired(now) {
			c.removeFromDiskLocked(k)
			delete(c.l3, k)
		}
	}
	c.logger.Debug().
		Int("l1", len(c.l1)).Int("l2", len(c.l2)).Int("l3", len(c.l3)).
		Msg("cache maintenance sweep complete")
}

// SweepExpired runs one maintenance pass immediately, synchronously.
func (c *Cache) SweepExpired() {
	c.sweepExpired()
}

// L1Keys returns a snapshot of the keys currently resident in L1. Used by
// the specialized LLM-response cache's bounded similarity scan.
func (c *Cache) L1Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.l1))
	for k := range c.l1 {
		keys = append(keys, k)
	}
	return keys
}

// Has reports whether key currently resides in any level (L1, L2 or L3),
// without affecting stats or access history. Used by the prefetcher to avoid
// warming keys that are already cached.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.l1[key]
	if ok {
		return true
	}
	_, ok = c.l2[key]
	if ok {
		return true
	}
	_, ok = c.l3[key]
	return ok
}
