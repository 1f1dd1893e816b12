package concurrency_test

import (
	"sync"
	"testing"
	"time"

	"github.com/agentruntime/coordinator/concurrency"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := concurrency.NewKeyedMutex()

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("agent-1")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected at most 1 concurrent holder for the same key, saw %d", maxActive)
	}
}

func TestKeyedMutexAllowsDifferentKeysConcurrently(t *testing.T) {
	km := concurrency.NewKeyedMutex()

	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make(chan string, 2)

	for _, key := range []string{"agent-1", "agent-2"} {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			unlock := km.Lock(key)
			defer unlock()
			results <- key
			time.Sleep(20 * time.Millisecond)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	close(start)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locks on distinct keys should not serialize")
	}
	close(results)

	count := 0
	for range results {
		count++
	}
	if count != 2 {
		t.Fatalf("expected both goroutines to acquire their own key, got %d", count)
	}
}

func TestSemaphoreBoundsConcurrencyPerKey(t *testing.T) {
	sem := concurrency.NewSemaphore(2)

	if !sem.Acquire("k", 0) {
		t.Fatal("expected first acquire to succeed")
	}
	if !sem.Acquire("k", 0) {
		t.Fatal("expected second acquire to succeed")
	}
	if sem.Acquire("k", 10*time.Millisecond) {
		t.Fatal("expected third acquire to fail once the limit is reached")
	}
	if got := sem.ActiveCount("k"); got != 2 {
		t.Fatalf("expected ActiveCount 2, got %d", got)
	}

	sem.Release("k")
	if !sem.Acquire("k", 0) {
		t.Fatal("expected acquire to succeed again after a release")
	}
}

func TestDeduplicatorCollapsesConcurrentCalls(t *testing.T) {
	d := concurrency.NewDeduplicator()

	entry, isLeader := d.TryStart("fp")
	if !isLeader {
		t.Fatal("expected first TryStart to be the leader")
	}

	_, isLeaderAgain := d.TryStart("fp")
	if isLeaderAgain {
		t.Fatal("expected second TryStart for the same fingerprint to follow")
	}

	go func() {
		d.Complete("fp", "result", nil)
	}()

	<-entry.Done()
	value, err := entry.Result()
	if err != nil || value != "result" {
		t.Fatalf("expected followers to observe the leader's result, got %v, %v", value, err)
	}

	if d.InFlightCount() != 0 {
		t.Fatalf("expected in-flight count 0 after completion, got %d", d.InFlightCount())
	}
}
