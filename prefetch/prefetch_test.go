package prefetch_test

import (
	"sync"
	"testing"
	"time"

	"github.com/agentruntime/coordinator/prefetch"
	"github.com/rs/zerolog"
)

type fakeCache struct {
	mu    sync.Mutex
	store map[string]interface{}
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string]interface{})}
}

func (f *fakeCache) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.store[key]
	return ok
}

func (f *fakeCache) Put(key string, value interface{}, ttl time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[key] = value
	return true
}

func TestObserveWarmsPredictedTurnKey(t *testing.T) {
	c := newFakeCache()
	p := prefetch.New(zerolog.Nop(), c)

	for i := 0; i < 3; i++ {
		p.Observe("agent-1", prefetch.Request{CurrentTurn: 5, HasCurrentTurn: true})
	}
	p.Wait()

	if !c.Has("world_state_turn_6") {
		t.Fatalf("expected prefetcher to warm predicted next-turn key")
	}
}

func TestObserveWarmsCoOccurringAgents(t *testing.T) {
	c := newFakeCache()
	p := prefetch.New(zerolog.Nop(), c)

	for i := 0; i < 4; i++ {
		p.Observe("agent-1", prefetch.Request{RequestingAgent: "agent-2"})
	}
	p.Wait()

	if !c.Has("agent_state_agent-2") {
		t.Fatalf("expected prefetcher to warm co-occurring agent key")
	}
}

func TestObserveSkipsBelowMinHistory(t *testing.T) {
	c := newFakeCache()
	p := prefetch.New(zerolog.Nop(), c)

	p.Observe("agent-1", prefetch.Request{CurrentTurn: 5, HasCurrentTurn: true})
	p.Wait()

	if c.Has("world_state_turn_6") {
		t.Fatalf("did not expect prefetch before minimum history reached")
	}
}
