package processor_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentruntime/coordinator/priority"
	"github.com/agentruntime/coordinator/processor"
	"github.com/agentruntime/coordinator/resource"
	"github.com/rs/zerolog"
)

type fakeSampler struct{ cpu, mem float64 }

func (f fakeSampler) Sample() (float64, float64, error) { return f.cpu, f.mem, nil }

func newProc(t *testing.T, maxWorkers, maxTasks int) *processor.Processor {
	t.Helper()
	mon := resource.New(zerolog.Nop(), fakeSampler{cpu: 10, mem: 10})
	p := processor.New(zerolog.Nop(), processor.Config{
		MaxWorkers: maxWorkers, MaxConcurrentTasks: maxTasks, QueueTimeout: time.Second,
	}, mon)
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

// TestPriorityOrdering mirrors S1: HIGH priority enters RUNNING before
// NORMAL even when submitted second, with max_workers=2. Load 0.75 scales
// the worker target down to 1, so the two tasks run one after the other,
// and both are queued before Start so the scheduler sees them together.
func TestPriorityOrdering(t *testing.T) {
	mon := resource.New(zerolog.Nop(), fakeSampler{cpu: 75, mem: 75})
	p := processor.New(zerolog.Nop(), processor.Config{
		MaxWorkers: 2, MaxConcurrentTasks: 10, QueueTimeout: time.Second,
	}, mon)
	t.Cleanup(p.Stop)

	var order []string
	ch := make(chan string, 2)

	slow := func(name string) processor.Func {
		return func(ctx context.Context) (interface{}, error) {
			time.Sleep(20 * time.Millisecond)
			ch <- name
			return "ok", nil
		}
	}

	id1, err := p.Submit(slow("t1"), processor.Async, priority.Normal, time.Second)
	if err != nil {
		t.Fatalf("submit t1: %v", err)
	}
	id2, err := p.Submit(slow("t2"), processor.Async, priority.High, time.Second)
	if err != nil {
		t.Fatalf("submit t2: %v", err)
	}
	p.Start()

	results := p.WaitBatch([]string{id1, id2}, 2*time.Second)
	for _, r := range results {
		if r.Status != processor.Completed {
			t.Fatalf("expected both tasks completed, got %+v", r)
		}
	}

	close(ch)
	for name := range ch {
		order = append(order, name)
	}
	if len(order) != 2 || order[0] != "t2" || order[1] != "t1" {
		t.Fatalf("expected run order [t2 t1], got %v", order)
	}
}

// TestTimeout mirrors S2: a task sleeping past its timeout fails with a
// timeout error.
func TestTimeout(t *testing.T) {
	p := newProc(t, 2, 10)

	id, err := p.Submit(func(ctx context.Context) (interface{}, error) {
		select {
		case <-time.After(time.Second):
			return "too slow", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, processor.Async, priority.Normal, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	m, err := p.Wait(id, time.Second)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if m.Status != processor.Failed {
		t.Fatalf("expected FAILED status, got %v", m.Status)
	}
}

// TestBoundedRetention mirrors property 2: after processing k > 1000 tasks,
// completed retention stays at or below 1000.
func TestBoundedRetention(t *testing.T) {
	p := newProc(t, 8, 2000)

	var ids []string
	for i := 0; i < 1200; i++ {
		id, err := p.Submit(func(ctx context.Context) (interface{}, error) {
			return "ok", nil
		}, processor.Async, priority.Normal, time.Second)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	p.WaitBatch(ids, 5*time.Second)

	snap := p.Snapshot()
	if snap.Completed+snap.Failed < 1200 {
		t.Fatalf("expected all 1200 tasks to finish, got completed=%d failed=%d", snap.Completed, snap.Failed)
	}

	retained := 0
	for _, id := range ids {
		if _, ok := p.GetTaskStatus(id); ok {
			retained++
		}
	}
	if retained > 1000 {
		t.Fatalf("expected at most 1000 retained tasks, got %d", retained)
	}

	// Confirm the most recent tasks are still resolvable.
	for _, id := range ids[len(ids)-5:] {
		if _, ok := p.GetTaskStatus(id); !ok {
			t.Fatalf("expected recent task %s to still be retained", id)
		}
	}
}

func TestQueueFullReturnsError(t *testing.T) {
	mon := resource.New(zerolog.Nop(), fakeSampler{cpu: 99, mem: 99})
	p := processor.New(zerolog.Nop(), processor.Config{
		MaxWorkers: 1, MaxConcurrentTasks: 1, QueueTimeout: 20 * time.Millisecond,
	}, mon)
	// Do not Start(): nothing drains the queue, so the second submission
	// must hit admission timeout.
	defer p.Stop()

	noop := func(ctx context.Context) (interface{}, error) { return nil, nil }

	_, err := p.Submit(noop, processor.Async, priority.Normal, time.Second)
	if err != nil {
		t.Fatalf("first submit should succeed: %v", err)
	}

	_, err = p.Submit(noop, processor.Async, priority.Normal, time.Second)
	if err == nil {
		t.Fatalf("expected queue full error")
	}
}
