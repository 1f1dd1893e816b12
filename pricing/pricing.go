/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L1
Logic:       Provider pricing table for cost estimation. Maps
             model names to input/output token rates in USD.
Root Cause:  The coordinator needs a real per-token cost to feed
             CostTracker.CanAfford and Update instead of a flat
             guess, when the caller names a model.
Suitability: L1 for static config data.
──────────────────────────────────────────────────────────────
*/

package pricing

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
)

// ModelPricing holds per-model token pricing in USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64 `json:"input_per_1m"`
	OutputPer1M float64 `json:"output_per_1m"`
	Free        bool    `json:"free,omitempty"`
}

// Table holds provider/model pricing data, safe for concurrent reads and
// rare writes (SetPricing, LoadFromFile).
type Table struct {
	mu      sync.RWMutex
	pricing map[string]ModelPricing // key: "provider/model" or just "model"
}

// Default returns the built-in pricing table.
func Default() *Table {
	return &Table{
		pricing: map[string]ModelPricing{
			"openai/gpt-4o":                  {InputPer1M: 2.50, OutputPer1M: 10.00},
			"openai/gpt-4o-mini":              {InputPer1M: 0.15, OutputPer1M: 0.60},
			"openai/gpt-4-turbo":              {InputPer1M: 10.00, OutputPer1M: 30.00},
			"openai/gpt-4":                    {InputPer1M: 30.00, OutputPer1M: 60.00},
			"openai/gpt-3.5-turbo":            {InputPer1M: 0.50, OutputPer1M: 1.50},
			"openai/o1":                       {InputPer1M: 15.00, OutputPer1M: 60.00},
			"openai/o1-mini":                  {InputPer1M: 3.00, OutputPer1M: 12.00},

			"anthropic/claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
			"anthropic/claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
			"anthropic/claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
			"anthropic/claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},

			"google/gemini-2.0-flash":      {InputPer1M: 0.10, OutputPer1M: 0.40},
			"google/gemini-1.5-pro":        {InputPer1M: 1.25, OutputPer1M: 5.00},
			"google/gemini-1.5-flash":      {InputPer1M: 0.075, OutputPer1M: 0.30},
			"google/gemini-2.0-flash-lite": {InputPer1M: 0.0, OutputPer1M: 0.0, Free: true},

			"mistral/mistral-large-latest": {InputPer1M: 2.00, OutputPer1M: 6.00},
			"mistral/mistral-small-latest": {InputPer1M: 0.20, OutputPer1M: 0.60},

			"groq/llama-3.1-70b-versatile": {InputPer1M: 0.59, OutputPer1M: 0.79},
			"groq/llama-3.1-8b-instant":    {InputPer1M: 0.05, OutputPer1M: 0.08},
		},
	}
}

// LoadFromFile merges pricing overrides from a JSON file into the table.
func (t *Table) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pricing file: %w", err)
	}

	var overrides map[string]ModelPricing
	if err := json.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse pricing file: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range overrides {
		t.pricing[k] = v
	}
	return nil
}

// Get returns the pricing for a model, trying "provider/model" first and
// falling back to a bare model-name match across all providers.
func (t *Table) Get(providerName, model string) (ModelPricing, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	key := providerName + "/" + model
	if p, ok := t.pricing[key]; ok {
		return p, true
	}

	lowerModel := strings.ToLower(model)
	for k, p := range t.pricing {
		parts := strings.SplitN(k, "/", 2)
		if len(parts) == 2 && strings.ToLower(parts[1]) == lowerModel {
			return p, true
		}
	}
	return ModelPricing{}, false
}

// EstimateCost computes a cost estimate from token counts, rounded to 8
// decimal places. Returns (cost, false) when the model is unknown so the
// caller can fall back to a flat unit-cost heuristic.
func (t *Table) EstimateCost(providerName, model string, inputTokens, outputTokens int) (float64, bool) {
	pricing, found := t.Get(providerName, model)
	if !found {
		return 0, false
	}
	if pricing.Free {
		return 0, true
	}

	inputCost := (float64(inputTokens) / 1_000_000.0) * pricing.InputPer1M
	outputCost := (float64(outputTokens) / 1_000_000.0) * pricing.OutputPer1M
	total := inputCost + outputCost
	return math.Round(total*1e8) / 1e8, true
}

// SetPricing adds or overrides pricing for a model key ("provider/model").
func (t *Table) SetPricing(key string, pricing ModelPricing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pricing[key] = pricing
}
