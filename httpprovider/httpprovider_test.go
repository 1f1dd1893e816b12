package httpprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentruntime/coordinator/coordinator"
	"github.com/rs/zerolog"
)

func TestGenerateParsesChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hi there"}},
			},
			"usage": map[string]int{"total_tokens": 42},
		})
	}))
	defer srv.Close()

	p := New(zerolog.Nop(), srv.URL, "", "test-model", 2*time.Second, DefaultPoolConfig())
	res, err := p.Generate(context.Background(), coordinator.GenerateRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != "hi there" {
		t.Fatalf("content = %q", res.Content)
	}
	if res.TokensUsed != 42 {
		t.Fatalf("tokens = %d", res.TokensUsed)
	}
}

func TestGenerateSurfacesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := New(zerolog.Nop(), srv.URL, "", "test-model", 2*time.Second, DefaultPoolConfig())
	_, err := p.Generate(context.Background(), coordinator.GenerateRequest{Prompt: "hello"})
	if err == nil {
		t.Fatal("expected an error for 5xx upstream response")
	}
}

func TestHealthPollingMarksUpstreamHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(zerolog.Nop(), srv.URL, "", "test-model", time.Second, DefaultPoolConfig())
	p.StartHealthPolling(5 * time.Second)
	defer p.StopHealthPolling()

	time.Sleep(200 * time.Millisecond)
	if !p.Status().Healthy {
		t.Fatal("expected provider to be reported healthy after initial poll")
	}
}
