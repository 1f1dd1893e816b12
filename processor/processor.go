/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Priority-scheduled concurrent task processor. Bounded
             admission queue, resource-adaptive worker count, per-
             task timeout enforcement, and a stuck-task monitor.
Root Cause:  Work arriving from many simultaneous agents must be
             ordered by priority, capped in flight, and prevented
             from exceeding its own deadline without blocking the
             scheduler on any single slow task.
Suitability: L2 — one lock per shared map, bounded admission via
             semaphore, cooperative scheduling loop.
──────────────────────────────────────────────────────────────
*/

package processor

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentruntime/coordinator/priority"
	"github.com/agentruntime/coordinator/resource"
	"github.com/agentruntime/coordinator/runtimeerr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxCompletedRetention = 1000
	pruneBatchSize        = 100
	stuckThreshold         = 5 * time.Minute
	monitorInterval        = 30 * time.Second
	schedulerTick          = 10 * time.Millisecond
	throttleBackoff        = 50 * time.Millisecond
	waitPollInterval       = 10 * time.Millisecond
)

// Config configures a Processor.
type Config struct {
	MaxWorkers         int
	MaxConcurrentTasks int
	QueueTimeout       time.Duration
}

// Processor is a priority-scheduled task executor.
type Processor struct {
	logger  zerolog.Logger
	cfg     Config
	monitor *resource.Monitor

	admission chan struct{} // capacity = MaxConcurrentTasks

	qmu   sync.Mutex
	queue taskHeap

	amu    sync.Mutex
	active map[string]*Metrics

	cmu       sync.Mutex
	completed map[string]*Metrics
	completedOrder []string

	activeCount int64
	peakActive  int64
	timeoutCount int64
	completedCount int64
	failedCount    int64

	workerSem chan struct{} // bounds Blocking callables

	cancel context.CancelFunc
	done   chan struct{}
	stopped int32
}

// New creates a Processor. Call Start to begin scheduling.
func New(logger zerolog.Logger, cfg Config, monitor *resource.Monitor) *Processor {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 100
	}
	return &Processor{
		logger:    logger.With().Str("component", "processor").Logger(),
		cfg:       cfg,
		monitor:   monitor,
		admission: make(chan struct{}, cfg.MaxConcurrentTasks),
		active:    make(map[string]*Metrics),
		completed: make(map[string]*Metrics),
		workerSem: make(chan struct{}, cfg.MaxWorkers*4),
		done:      make(chan struct{}),
	}
}

// Submit enqueues fn for execution at the given priority. It blocks up to
// cfg.QueueTimeout for admission space; if none frees up, it returns
// runtimeerr.QueueFull.
func (p *Processor) Submit(fn Func, kind Kind, pr priority.Priority, timeout time.Duration) (string, error) {
	if atomic.LoadInt32(&p.stopped) == 1 {
		return "", runtimeerr.ShuttingDown
	}

	select {
	case p.admission <- struct{}{}:
	case <-time.After(p.cfg.QueueTimeout):
		return "", runtimeerr.QueueFull
	}

	id := uuid.NewString()
	t := &task{
		id:        id,
		kind:      kind,
		fn:        fn,
		priority:  pr,
		timeout:   timeout,
		createdAt: time.Now(),
	}

	p.qmu.Lock()
	heap.Push(&p.queue, t)
	p.qmu.Unlock()

	p.amu.Lock()
	p.active[id] = &Metrics{TaskID: id, Status: Pending}
	p.amu.Unlock()

	return id, nil
}

// SubmitBatch submits each item and returns their task ids in order, or the
// first error encountered (earlier submissions are not rolled back).
func (p *Processor) SubmitBatch(items []struct {
	Fn       Func
	Kind     Kind
	Priority priority.Priority
	Timeout  time.Duration
}) ([]string, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		id, err := p.Submit(it.Fn, it.Kind, it.Priority, it.Timeout)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Wait polls for taskID's terminal metrics until timeout elapses.
func (p *Processor) Wait(taskID string, timeout time.Duration) (*Metrics, error) {
	deadline := time.Now().Add(timeout)
	for {
		p.cmu.Lock()
		m, ok := p.completed[taskID]
		p.cmu.Unlock()
		if ok {
			if m.Status == Failed || m.Status == Cancelled {
				return m, fmt.Errorf("%s", m.Error)
			}
			return m, nil
		}
		if time.Now().After(deadline) {
			return nil, runtimeerr.Timeout
		}
		time.Sleep(waitPollInterval)
	}
}

// WaitBatch waits for each id in parallel and collects results in order.
func (p *Processor) WaitBatch(ids []string, timeout time.Duration) []*Metrics {
	results := make([]*Metrics, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			m, err := p.Wait(id, timeout)
			if m == nil && err != nil {
				m = &Metrics{TaskID: id, Status: Failed, Error: err.Error()}
			}
			results[i] = m
		}(i, id)
	}
	wg.Wait()
	return results
}

// GetTaskStatus returns the current metrics for a task id, checking both
// the active and completed stores.
func (p *Processor) GetTaskStatus(taskID string) (*Metrics, bool) {
	p.amu.Lock()
	if m, ok := p.active[taskID]; ok {
		cp := *m
		p.amu.Unlock()
		return &cp, true
	}
	p.amu.Unlock()

	p.cmu.Lock()
	defer p.cmu.Unlock()
	if m, ok := p.completed[taskID]; ok {
		cp := *m
		return &cp, true
	}
	return nil, false
}

// Start begins the scheduling and monitor loops.
func (p *Processor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.schedulerLoop(ctx)
	go p.monitorLoop(ctx)
	p.logger.Info().Int("max_workers", p.cfg.MaxWorkers).Msg("processor started")
}

// Stop cancels the scheduler and monitor loops. It does not forcibly kill
// running tasks; it waits briefly for them to wind down.
func (p *Processor) Stop() {
	if !atomic.CompareAndSwapInt32(&p.stopped, 0, 1) {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	time.Sleep(1 * time.Second)
	close(p.done)
	p.logger.Info().Msg("processor stopped")
}

func (p *Processor) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.monitor.Sample()
			if p.monitor.ShouldThrottle() {
				time.Sleep(throttleBackoff)
				continue
			}

			target := p.monitor.OptimalWorkers(p.cfg.MaxWorkers)
			for atomic.LoadInt64(&p.activeCount) < int64(target) {
				t := p.dequeue()
				if t == nil {
					break
				}
				atomic.AddInt64(&p.activeCount, 1)
				if c := atomic.LoadInt64(&p.activeCount); c > atomic.LoadInt64(&p.peakActive) {
					atomic.StoreInt64(&p.peakActive, c)
				}
				go p.execute(t)
			}
		}
	}
}

func (p *Processor) dequeue() *task {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	if p.queue.Len() == 0 {
		return nil
	}
	return heap.Pop(&p.queue).(*task)
}

func (p *Processor) execute(t *task) {
	defer func() { <-p.admission }()
	defer atomic.AddInt64(&p.activeCount, -1)

	p.amu.Lock()
	m := p.active[t.id]
	m.Status = Running
	m.StartTime = time.Now()
	p.amu.Unlock()

	ctx := context.Background()
	var cancel context.CancelFunc
	if t.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	run := func() (interface{}, error) {
		if t.kind == Blocking {
			p.workerSem <- struct{}{}
			defer func() { <-p.workerSem }()
		}
		return t.fn(ctx)
	}

	type outcome struct {
		value interface{}
		err   error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		v, err := run()
		resultCh <- outcome{v, err}
	}()

	var res outcome
	select {
	case res = <-resultCh:
	case <-ctx.Done():
		res = outcome{nil, fmt.Errorf("%s", runtimeerr.Timeout.Error())}
		atomic.AddInt64(&p.timeoutCount, 1)
	}

	p.finish(t, res.value, res.err)
}

func (p *Processor) finish(t *task, value interface{}, err error) {
	end := time.Now()

	p.amu.Lock()
	m := p.active[t.id]
	delete(p.active, t.id)
	p.amu.Unlock()

	if m == nil {
		m = &Metrics{TaskID: t.id, StartTime: end}
	}
	m.EndTime = end
	m.Value = value
	m.ResultSize = resultSize(value)

	switch {
	case err == nil:
		m.Status = Completed
		atomic.AddInt64(&p.completedCount, 1)
	case err.Error() == runtimeerr.Timeout.Error():
		m.Status = Failed
		m.Error = runtimeerr.Timeout.Error()
		atomic.AddInt64(&p.failedCount, 1)
	default:
		m.Status = Failed
		m.Error = err.Error()
		atomic.AddInt64(&p.failedCount, 1)
	}

	p.cmu.Lock()
	p.completed[t.id] = m
	p.completedOrder = append(p.completedOrder, t.id)
	if len(p.completedOrder) > maxCompletedRetention {
		toPrune := p.completedOrder[:pruneBatchSize]
		p.completedOrder = p.completedOrder[pruneBatchSize:]
		for _, id := range toPrune {
			delete(p.completed, id)
		}
	}
	p.cmu.Unlock()
}

func resultSize(v interface{}) int {
	switch val := v.(type) {
	case nil:
		return 0
	case string:
		return len(val)
	case []byte:
		return len(val)
	case fmt.Stringer:
		return len(val.String())
	default:
		return len(fmt.Sprintf("%v", val))
	}
}

func (p *Processor) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.scanStuck()
		}
	}
}

func (p *Processor) scanStuck() {
	now := time.Now()
	p.amu.Lock()
	defer p.amu.Unlock()
	for id, m := range p.active {
		if m.Status == Running && now.Sub(m.StartTime) > stuckThreshold {
			p.logger.Warn().Str("task_id", id).Dur("running_for", now.Sub(m.StartTime)).
				Msg("task potentially stuck")
		}
	}
}

// Stats is an immutable snapshot of processor-wide counters.
type Stats struct {
	Active       int64
	PeakActive   int64
	Completed    int64
	Failed       int64
	Timeouts     int64
	QueueDepth   int
}

// Snapshot returns current processor statistics.
func (p *Processor) Snapshot() Stats {
	p.qmu.Lock()
	depth := p.queue.Len()
	p.qmu.Unlock()

	return Stats{
		Active:     atomic.LoadInt64(&p.activeCount),
		PeakActive: atomic.LoadInt64(&p.peakActive),
		Completed:  atomic.LoadInt64(&p.completedCount),
		Failed:     atomic.LoadInt64(&p.failedCount),
		Timeouts:   atomic.LoadInt64(&p.timeoutCount),
		QueueDepth: depth,
	}
}
