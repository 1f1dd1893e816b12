package coordinator

import (
	"fmt"
	"strconv"
	"strings"
)

// marker returns the per-item marker prefix for requestType, matching the
// mandatory shape in SPEC_FULL.md §4.7.5.
func marker(requestType string, i int) string {
	switch requestType {
	case "dialogue":
		return fmt.Sprintf("SCENARIO_%d_RESPONSE:", i)
	case "coordination":
		return fmt.Sprintf("SITUATION_%d_ANALYSIS:", i)
	default:
		return fmt.Sprintf("REQUEST_%d_RESPONSE:", i)
	}
}

// buildPrompt fabricates one combined prompt for a same-type sub-batch.
func buildPrompt(requestType string, items []*batchRequest) string {
	var b strings.Builder

	switch requestType {
	case "dialogue":
		b.WriteString("Generate character dialogues for the following scenarios:\n\n")
		for i, it := range items {
			n := i + 1
			commType := stringField(it.context, "communication_type", "conversation")
			participants := stringField(it.context, "participants", "the agents")
			maxExchanges := stringField(it.context, "max_exchanges", "3")
			fmt.Fprintf(&b, "Scenario %d: %s between %s\n", n, commType, participants)
			fmt.Fprintf(&b, "Context: %s\n", it.prompt)
			fmt.Fprintf(&b, "Required exchanges: %s\n\n", maxExchanges)
		}
		b.WriteString("Respond to each scenario in order. Prefix each reply on its own line with ")
		b.WriteString("SCENARIO_i_RESPONSE: (e.g. SCENARIO_1_RESPONSE:) before the generated dialogue.\n")

	case "coordination":
		b.WriteString("Analyze the following coordination situations:\n\n")
		for i, it := range items {
			n := i + 1
			participants := stringField(it.context, "participants", "the agents")
			fmt.Fprintf(&b, "Situation %d: coordination between %s\n", n, participants)
			fmt.Fprintf(&b, "Context: %s\n\n", it.prompt)
		}
		b.WriteString("Respond to each situation in order. Prefix each reply on its own line with ")
		b.WriteString("SITUATION_i_ANALYSIS: (e.g. SITUATION_1_ANALYSIS:) before the analysis.\n")

	default:
		fmt.Fprintf(&b, "Process the following %d requests:\n\n", len(items))
		for i, it := range items {
			n := i + 1
			fmt.Fprintf(&b, "Request %d: %s\n\n", n, it.prompt)
		}
		b.WriteString("Respond to each request in order. Prefix each reply on its own line with ")
		b.WriteString("REQUEST_i_RESPONSE: (e.g. REQUEST_1_RESPONSE:) before the response.\n")
	}

	return b.String()
}

func stringField(context map[string]interface{}, key, fallback string) string {
	if context == nil {
		return fallback
	}
	v, ok := context[key]
	if !ok {
		return fallback
	}
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []string:
		return strings.Join(val, ", ")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// parseBatchResponse splits raw on the per-item markers for requestType and
// returns n slots: slot i holds the trimmed body text following marker i+1,
// or the empty string if that marker was not found in raw (markerFound
// tells a missing marker apart from an empty body).
func parseBatchResponse(requestType, raw string, n int) []string {
	type hit struct {
		index int
		end   int
	}
	hits := make([]*hit, n)
	for i := 0; i < n; i++ {
		m := marker(requestType, i+1)
		idx := strings.Index(raw, m)
		if idx >= 0 {
			hits[i] = &hit{index: idx, end: idx + len(m)}
		}
	}

	// Determine, for each found marker, where its body ends: the start of
	// the next found marker (in document order) or end of string.
	type ordered struct {
		slot int
		h    *hit
	}
	var present []ordered
	for i, h := range hits {
		if h != nil {
			present = append(present, ordered{slot: i, h: h})
		}
	}
	for i := 0; i < len(present); i++ {
		for j := i + 1; j < len(present); j++ {
			if present[j].h.index < present[i].h.index {
				present[i], present[j] = present[j], present[i]
			}
		}
	}

	bodies := make([]string, n)
	found := make([]bool, n)
	for idx, p := range present {
		end := len(raw)
		if idx+1 < len(present) {
			end = present[idx+1].h.index
		}
		body := raw[p.h.end:end]
		bodies[p.slot] = strings.TrimSpace(body)
		found[p.slot] = true
	}

	out := make([]string, n)
	for i := range out {
		if found[i] {
			out[i] = bodies[i]
		} else {
			out[i] = ""
		}
	}
	return out
}

// markerFound reports whether marker i (1-indexed within requestType) was
// present in raw.
func markerFound(requestType, raw string, i int) bool {
	return strings.Contains(raw, marker(requestType, i))
}
