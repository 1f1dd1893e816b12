/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Adaptive resource monitor. Samples CPU/memory load,
             keeps a bounded history, and derives the optimal
             worker count and throttle signal the scheduler
             consults on every pass.
Root Cause:  The concurrent processor must widen or narrow its
             worker pool as system load changes instead of
             running a fixed pool size.
Suitability: L2 — background sampling with derived heuristics.
──────────────────────────────────────────────────────────────
*/

package resource

import (
	"sync"

	"github.com/rs/zerolog"
)

const historyLimit = 100

// Sampler reports the current CPU and memory utilization as percentages in
// [0,100]. Implementations are platform-specific; Sample must never block
// indefinitely and should return an error rather than hang on a stuck OS
// call.
type Sampler interface {
	Sample() (cpuPercent, memPercent float64, err error)
}

// Monitor tracks combined system load over time and derives scheduling
// hints from it. All exported methods are safe for concurrent use.
type Monitor struct {
	logger  zerolog.Logger
	sampler Sampler

	mu      sync.Mutex
	history []float64 // combined load in [0,1], bounded to historyLimit
	current float64
	peak    float64
}

// New creates a Monitor using the given Sampler. If sampler is nil, the
// platform default sampler is used.
func New(logger zerolog.Logger, sampler Sampler) *Monitor {
	if sampler == nil {
		sampler = NewDefaultSampler()
	}
	return &Monitor{
		logger:  logger.With().Str("component", "resource_monitor").Logger(),
		sampler: sampler,
	}
}

// Sample observes CPU% and memory% and folds the combined load — defined as
// (cpu% + mem%) / 200, giving a value in [0,1] — into the bounded history.
// OS sampling failures are swallowed; the monitor keeps its previous values.
func (m *Monitor) Sample() {
	cpu, mem, err := m.sampler.Sample()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.logger.Debug().Err(err).Msg("resource sample failed, keeping previous load")
		return
	}

	load := (cpu + mem) / 200.0
	if load < 0 {
		load = 0
	}
	if load > 1 {
		load = 1
	}

	m.current = load
	if load > m.peak {
		m.peak = load
	}

	m.history = append(m.history, load)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
}

// meanLoad returns the mean of the recorded history, or the current load if
// no history has been recorded yet. Caller must hold m.mu.
func (m *Monitor) meanLoad() float64 {
	if len(m.history) == 0 {
		return m.current
	}
	var sum float64
	for _, v := range m.history {
		sum += v
	}
	return sum / float64(len(m.history))
}

// OptimalWorkers returns the recommended worker count given base, scaling up
// when mean load is low and down when it is high.
func (m *Monitor) OptimalWorkers(base int) int {
	m.mu.Lock()
	mean := m.meanLoad()
	m.mu.Unlock()

	switch {
	case mean < 0.3:
		return base * 2
	case mean < 0.7:
		return base
	default:
		if base/2 < 1 {
			return 1
		}
		return base / 2
	}
}

// ShouldThrottle reports whether current (not mean) load exceeds 0.85.
func (m *Monitor) ShouldThrottle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current > 0.85
}

// Stats is an immutable snapshot of the monitor's state.
type Stats struct {
	CurrentLoad float64
	PeakLoad    float64
	MeanLoad    float64
	SampleCount int
}

// Snapshot returns the current monitor stats.
func (m *Monitor) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		CurrentLoad: m.current,
		PeakLoad:    m.peak,
		MeanLoad:    m.meanLoad(),
		SampleCount: len(m.history),
	}
}
