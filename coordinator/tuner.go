/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Adaptive batch tuning. Nudges max_batch_size,
             batch_timeout_ms, and batch_priority_threshold toward
             whichever direction the recent performance-budget
             history suggests, bounded per SPEC_FULL.md §4.7.7.
Root Cause:  A fixed batch window is either too eager (wasting the
             batching discount) or too patient (blowing the turn
             budget) depending on load; this adjusts it gradually.
Suitability: L3 — a periodic read-adjust-clamp loop over one
             mutable config snapshot guarded by its own lock.
──────────────────────────────────────────────────────────────
*/

package coordinator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	minBatchSize = 3
	maxBatchSize = 7

	minBatchTimeout = 1 * time.Second
	maxBatchTimeout = 3 * time.Second

	minPriorityThreshold = 0.5
	maxPriorityThreshold = 0.9

	tuneInterval = 10 * time.Second
)

// Tuner periodically adjusts a Coordinator's batch parameters within the
// bounds above, based on the performance budget's recent history. It is
// optional: a Coordinator works fine with a static Config.
type Tuner struct {
	logger zerolog.Logger
	coord  *Coordinator

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTuner creates a Tuner bound to coord.
func NewTuner(logger zerolog.Logger, coord *Coordinator) *Tuner {
	return &Tuner{
		logger: logger.With().Str("component", "batch-tuner").Logger(),
		coord:  coord,
		done:   make(chan struct{}),
	}
}

// Start begins the periodic tuning loop.
func (t *Tuner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.loop(ctx)
}

// Stop halts the tuning loop.
func (t *Tuner) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	<-t.done
}

func (t *Tuner) loop(ctx context.Context) {
	defer close(t.done)
	ticker := time.NewTicker(tuneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tune()
		}
	}
}

// score combines how close recent batches ran to their cap with how often
// violations occurred, in [0,1]; higher means the system is under more
// time pressure, and above 0.6 tune tightens batching (smaller batches, a
// shorter window, and a lower bypass threshold, which narrows the set of
// priorities that skip batching).
func (t *Tuner) score() float64 {
	perf := t.coord.perf.Snapshot()

	var timeFraction float64
	if perf.Remaining > 0 {
		// AverageBatchTime relative to the per-batch portion of a turn; a
		// coarse proxy since the budget doesn't expose the per-batch cap
		// directly. A batch near 500ms against a multi-second turn is
		// treated as comfortable; scaled against a nominal 500ms baseline.
		timeFraction = float64(perf.AverageBatchTime) / float64(500*time.Millisecond)
	}
	if timeFraction > 1 {
		timeFraction = 1
	}

	violationPressure := 0.0
	if perf.Violations > 0 {
		violationPressure = 1.0
	}

	return 0.7*timeFraction + 0.3*violationPressure
}

func (t *Tuner) tune() {
	s := t.score()

	t.coord.cfgMu.Lock()
	defer t.coord.cfgMu.Unlock()

	cfg := &t.coord.cfg

	switch {
	case s > 0.6:
		cfg.MaxBatchSize--
		cfg.BatchTimeout -= 250 * time.Millisecond
		cfg.BatchPriorityThreshold -= 0.05
	case s < 0.3:
		cfg.MaxBatchSize++
		cfg.BatchTimeout += 250 * time.Millisecond
		cfg.BatchPriorityThreshold += 0.05
	default:
		return
	}

	cfg.MaxBatchSize = clampInt(cfg.MaxBatchSize, minBatchSize, maxBatchSize)
	cfg.BatchTimeout = clampDuration(cfg.BatchTimeout, minBatchTimeout, maxBatchTimeout)
	cfg.BatchPriorityThreshold = clampFloat(cfg.BatchPriorityThreshold, minPriorityThreshold, maxPriorityThreshold)

	t.logger.Debug().
		Float64("score", s).
		Int("max_batch_size", cfg.MaxBatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Float64("batch_priority_threshold", cfg.BatchPriorityThreshold).
		Msg("batch parameters tuned")
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
