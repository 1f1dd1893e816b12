package cache_test

import (
	"os"
	"testing"
	"time"

	"github.com/agentruntime/coordinator/cache"
	"github.com/rs/zerolog"
)

func newTestCache(t *testing.T, l1, l2, l3 int, strategy cache.Strategy) *cache.Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := cache.New(zerolog.Nop(), cache.Config{
		L1MaxSize: l1, L2MaxSize: l2, L3MaxSize: l3,
		Strategy: strategy, Directory: dir,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestRoundTrip(t *testing.T) {
	c := newTestCache(t, 10, 10, 10, cache.LRU)
	c.Put("k1", "v1", 0)
	v, ok := c.Get("k1")
	if !ok || v != "v1" {
		t.Fatalf("expected round trip hit, got %v %v", v, ok)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t, 10, 10, 10, cache.LRU)
	c.Put("k1", "v1", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k1"); ok {
		t.Fatalf("expected miss after ttl expiry")
	}
}

// TestCacheHierarchyScenario mirrors the reference end-to-end scenario:
// l1=2, l2=2, l3=2, LRU. Put(a,1), Put(b,2), Put(c,3) -> L1={b,c}, L2={a}.
// Get(a) promotes a back to L1 and demotes the LRU of {b,c} to L2.
func TestCacheHierarchyScenario(t *testing.T) {
	c := newTestCache(t, 2, 2, 2, cache.LRU)

	c.Put("a", 1, 0)
	time.Sleep(time.Millisecond)
	c.Put("b", 2, 0)
	time.Sleep(time.Millisecond)
	c.Put("c", 3, 0)

	snap := c.Snapshot()
	if snap.L1Entries != 2 || snap.L2Entries != 1 {
		t.Fatalf("expected L1=2 L2=1 after fill, got %+v", snap)
	}

	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("expected a to be a hit from L2, got %v %v", v, ok)
	}

	snap = c.Snapshot()
	if snap.L1Entries != 2 {
		t.Fatalf("expected L1 still at capacity after promotion, got %+v", snap)
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("expected b to still be retrievable (demoted to L2), got miss")
	}
}

func TestRepeatedPromotionPreservesValue(t *testing.T) {
	c := newTestCache(t, 1, 5, 5, cache.LRU)

	c.Put("a", "va", 0)
	c.Put("b", "vb", 0) // evicts a to L2

	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a retrievable from L2")
	}
	// a is now promoted back to L1. Evict it again by inserting c, and
	// confirm it is retrievable with its value intact across another L2
	// round trip.
	c.Put("c", "vc", 0)
	v, ok := c.Get("a")
	if !ok || v != "va" {
		t.Fatalf("expected a value preserved through repeated promotion/demotion, got %v %v", v, ok)
	}
}

func TestAdaptiveEvictionOrdering(t *testing.T) {
	// Three same-size entries; A has later last_accessed and higher
	// access_count than B. ADAPTIVE must never evict A before B.
	c := newTestCache(t, 2, 5, 5, cache.Adaptive)

	c.Put("b", "vb", 0)
	time.Sleep(2 * time.Millisecond)
	c.Put("a", "va", 0)
	// Access a several times so its access_count and last_accessed both
	// exceed b's.
	for i := 0; i < 5; i++ {
		c.Get("a")
		time.Sleep(time.Millisecond)
	}

	c.Put("x", "vx", 0) // forces one eviction from {a, b}

	if _, ok := c.Get("a"); !ok {
		t.Fatalf("adaptive eviction evicted the fresher, more-accessed entry")
	}
}

func TestClearL3RemovesDiskFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.New(zerolog.Nop(), cache.Config{
		L1MaxSize: 1, L2MaxSize: 1, L3MaxSize: 5, Strategy: cache.LRU, Directory: dir,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Put("a", "va", 0)
	// Three hits raise a's access_count from 1 to 4, so it qualifies for
	// L2->L3 demotion (access_count > 3).
	for i := 0; i < 3; i++ {
		c.Get("a")
	}
	c.Put("b", "vb", 0) // evicts a -> L2
	c.Put("c", "vc", 0) // evicts b -> L2, L2 full(1) evicts a -> L3 on disk

	if entries, _ := os.ReadDir(dir); len(entries) != 1 {
		t.Fatalf("expected one L3 file before Clear(L3), found %d", len(entries))
	}

	c.Clear(cache.L3)
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files left after Clear(L3), found %d", len(entries))
	}
}
