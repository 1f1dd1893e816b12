package coordinator

import (
	"strings"
	"testing"
)

func TestBuildPromptDialogueIncludesAllScenarios(t *testing.T) {
	items := []*batchRequest{
		{prompt: "agents meet at the gate", context: map[string]interface{}{"participants": "Alice, Bob"}},
		{prompt: "agents argue over resources", context: map[string]interface{}{"participants": "Carol, Dave"}},
	}
	p := buildPrompt("dialogue", items)
	if !strings.Contains(p, "Scenario 1:") || !strings.Contains(p, "Scenario 2:") {
		t.Fatalf("expected both scenarios present, got:\n%s", p)
	}
	if !strings.Contains(p, "SCENARIO_1_RESPONSE:") {
		t.Fatalf("expected marker instruction, got:\n%s", p)
	}
}

func TestBuildPromptCoordination(t *testing.T) {
	items := []*batchRequest{{prompt: "allocate the warehouse", context: nil}}
	p := buildPrompt("coordination", items)
	if !strings.Contains(p, "Situation 1:") {
		t.Fatalf("expected situation heading, got:\n%s", p)
	}
	if !strings.Contains(p, "SITUATION_1_ANALYSIS:") {
		t.Fatalf("expected marker instruction, got:\n%s", p)
	}
}

func TestParseBatchResponseSplitsOnMarkers(t *testing.T) {
	raw := "preamble\nSCENARIO_1_RESPONSE: hello there\nSCENARIO_2_RESPONSE: general kenobi\n"
	bodies := parseBatchResponse("dialogue", raw, 2)
	if bodies[0] != "hello there" {
		t.Fatalf("item 0 = %q", bodies[0])
	}
	if bodies[1] != "general kenobi" {
		t.Fatalf("item 1 = %q", bodies[1])
	}
}

func TestParseBatchResponseMissingMarkerLeavesEmptyBody(t *testing.T) {
	raw := "SCENARIO_1_RESPONSE: only one here\n"
	bodies := parseBatchResponse("dialogue", raw, 2)
	if bodies[0] != "only one here" {
		t.Fatalf("item 0 = %q", bodies[0])
	}
	if bodies[1] != "" {
		t.Fatalf("item 1 expected empty body for missing marker, got %q", bodies[1])
	}
	if markerFound("dialogue", raw, 2) {
		t.Fatalf("expected marker 2 to be reported missing")
	}
	if !markerFound("dialogue", raw, 1) {
		t.Fatalf("expected marker 1 to be reported present")
	}
}

func TestParseBatchResponseOutOfOrderMarkers(t *testing.T) {
	// The model may emit replies out of the requested order; the parser
	// must still slot bodies by marker number, not by text position.
	raw := "SCENARIO_2_RESPONSE: second reply\nSCENARIO_1_RESPONSE: first reply\n"
	bodies := parseBatchResponse("dialogue", raw, 2)
	if bodies[0] != "first reply" {
		t.Fatalf("item 0 = %q", bodies[0])
	}
	if bodies[1] != "second reply" {
		t.Fatalf("item 1 = %q", bodies[1])
	}
}

func TestEstimateTokensScalesWithWordCount(t *testing.T) {
	short := estimateTokens("a few words here")
	long := estimateTokens(strings.Repeat("word ", 50))
	if long <= short {
		t.Fatalf("expected longer prompt to estimate more tokens: short=%d long=%d", short, long)
	}
}
