package llmcache_test

import (
	"testing"
	"time"

	"github.com/agentruntime/coordinator/cache"
	"github.com/agentruntime/coordinator/llmcache"
	"github.com/rs/zerolog"
)

func newBacking(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(zerolog.Nop(), cache.Config{
		L1MaxSize: 50, L2MaxSize: 50, L3MaxSize: 50,
		Strategy: cache.LRU, Directory: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	return c
}

func TestKeyIsDeterministicAndNormalizes(t *testing.T) {
	ctx := map[string]string{"b": "2", "a": "1"}
	k1 := llmcache.Key("agent-1", "Hello ,  World !", ctx)
	k2 := llmcache.Key("agent-1", "hello, world!", map[string]string{"a": "1", "b": "2"})
	if k1 != k2 {
		t.Fatalf("expected normalized prompt and sorted context to produce identical keys, got %s vs %s", k1, k2)
	}
}

func TestKeyDiffersByAgent(t *testing.T) {
	k1 := llmcache.Key("agent-1", "same prompt", nil)
	k2 := llmcache.Key("agent-2", "same prompt", nil)
	if k1 == k2 {
		t.Fatalf("expected different agents to produce different keys")
	}
}

func TestExactLookupRoundTrips(t *testing.T) {
	backing := newBacking(t)
	c := llmcache.New(backing)

	key := llmcache.Key("agent-1", "what is the weather", nil)
	c.Put(key, "sunny", time.Minute)

	v, ok := c.Get(key)
	if !ok || v != "sunny" {
		t.Fatalf("expected exact lookup hit, got %v %v", v, ok)
	}
}

func TestGetSimilarFindsCloseKeys(t *testing.T) {
	backing := newBacking(t)
	c := llmcache.New(backing)

	keyA := "alpha bravo charlie delta"
	keyB := "alpha bravo charlie echo"
	c.Put(keyA, "response-a", time.Minute)

	v, ok := c.GetSimilar(keyB, 0.5)
	if !ok || v != "response-a" {
		t.Fatalf("expected similarity hit, got %v %v", v, ok)
	}
}

func TestGetSimilarRespectsThreshold(t *testing.T) {
	backing := newBacking(t)
	c := llmcache.New(backing)

	c.Put("completely different tokens here", "response-a", time.Minute)

	if _, ok := c.GetSimilar("nothing in common at all", 0.9); ok {
		t.Fatalf("did not expect similarity hit below threshold")
	}
}
