/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Per-hour / per-day monetary budget tracker with
             automatic rollover at wall-clock boundaries and a
             per-request-type cost breakdown.
Root Cause:  The LLM coordinator must refuse requests once the
             hourly or daily spend cap is reached, and must reset
             those caps automatically as time advances.
Suitability: L3 — financial accounting logic, single aggregate
             lock, no external state.
──────────────────────────────────────────────────────────────
*/

package budget

import (
	"sync"
	"time"
)

// CostTracker accounts LLM spend against hourly and daily budgets. All
// methods are safe for concurrent use; the tracker is guarded by its own
// lock and is never nested under any other component's lock.
type CostTracker struct {
	mu sync.Mutex

	hourlyBudget float64
	dailyBudget  float64

	currentHourSpend float64
	currentDaySpend  float64
	hourEpoch        int // hour-of-day at last reset check
	dayEpoch         int // day-of-year at last reset check

	totalRequests int64
	totalTokens   int64
	byType        map[string]float64

	now func() time.Time // injectable for tests
}

// NewCostTracker creates a tracker with the given hourly/daily caps.
func NewCostTracker(hourlyBudget, dailyBudget float64) *CostTracker {
	return newCostTracker(hourlyBudget, dailyBudget, time.Now)
}

func newCostTracker(hourlyBudget, dailyBudget float64, clock func() time.Time) *CostTracker {
	n := clock()
	return &CostTracker{
		hourlyBudget: hourlyBudget,
		dailyBudget:  dailyBudget,
		hourEpoch:    n.Hour(),
		dayEpoch:     n.YearDay(),
		byType:       make(map[string]float64),
		now:          clock,
	}
}

func (c *CostTracker) rollover(t time.Time) {
	if h := t.Hour(); h != c.hourEpoch {
		c.currentHourSpend = 0
		c.hourEpoch = h
	}
	if d := t.YearDay(); d != c.dayEpoch {
		c.currentDaySpend = 0
		c.dayEpoch = d
	}
}

// Update folds cost/tokens into the tracker and returns whether the spend is
// still within both the hourly and daily budgets after the update.
func (c *CostTracker) Update(requestType string, cost float64, tokens int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollover(c.now())

	c.currentHourSpend += cost
	c.currentDaySpend += cost
	c.totalRequests++
	c.totalTokens += int64(tokens)
	c.byType[requestType] += cost

	return c.currentHourSpend <= c.hourlyBudget && c.currentDaySpend <= c.dailyBudget
}

// CanAfford reports whether estimatedCost would fit within the remaining
// hour and day budgets, without mutating any accumulator. It applies the
// same rollover logic a real Update would, against a local copy.
func (c *CostTracker) CanAfford(estimatedCost float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	hourSpend, daySpend := c.currentHourSpend, c.currentDaySpend
	t := c.now()
	if t.Hour() != c.hourEpoch {
		hourSpend = 0
	}
	if t.YearDay() != c.dayEpoch {
		daySpend = 0
	}

	return hourSpend+estimatedCost <= c.hourlyBudget && daySpend+estimatedCost <= c.dailyBudget
}

// Stats is an immutable snapshot of cost-tracker state.
type Stats struct {
	HourlyBudget     float64
	DailyBudget      float64
	CurrentHourSpend float64
	CurrentDaySpend  float64
	TotalRequests    int64
	TotalTokens      int64
	CostByType       map[string]float64
	AverageCost      float64
}

// Snapshot returns an immutable copy of the current tracker state.
func (c *CostTracker) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	byType := make(map[string]float64, len(c.byType))
	for k, v := range c.byType {
		byType[k] = v
	}

	var avg float64
	if c.totalRequests > 0 {
		avg = c.currentDaySpend / float64(c.totalRequests)
	}

	return Stats{
		HourlyBudget:     c.hourlyBudget,
		DailyBudget:      c.dailyBudget,
		CurrentHourSpend: c.currentHourSpend,
		CurrentDaySpend:  c.currentDaySpend,
		TotalRequests:    c.totalRequests,
		TotalTokens:      c.totalTokens,
		CostByType:       byType,
		AverageCost:      avg,
	}
}
