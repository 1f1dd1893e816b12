/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Reference coordinator.Provider backed by one
             OpenAI-compatible chat-completion endpoint over a
             shared, pooled HTTP client.
Root Cause:  QueueRequest needs a real Provider to call; most
             deployments front an OpenAI-compatible gateway
             regardless of the actual upstream model vendor.
Suitability: L3 — pooled transport plus background health polling,
             no per-vendor branching (out of this system's scope).
──────────────────────────────────────────────────────────────
*/

package httpprovider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentruntime/coordinator/coordinator"
	"github.com/rs/zerolog"
)

// PoolConfig tunes the shared HTTP transport.
type PoolConfig struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	ResponseHeaderTimeout time.Duration
	ExpectContinueTimeout time.Duration
	ForceHTTP2            bool
}

// DefaultPoolConfig returns production-grade pool defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		DialTimeout:           10 * time.Second,
		KeepAlive:             30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceHTTP2:            true,
	}
}

func newTransport(cfg PoolConfig) *http.Transport {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: cfg.KeepAlive}
	t := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
	}
	if cfg.ForceHTTP2 {
		t.TLSClientConfig = &tls.Config{NextProtos: []string{"h2", "http/1.1"}, MinVersion: tls.VersionTLS12}
		t.ForceAttemptHTTP2 = true
	}
	return t
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// HealthStatus is the last-known reachability of the upstream endpoint.
type HealthStatus struct {
	Healthy   bool
	Latency   time.Duration
	LastCheck time.Time
	Error     string
}

// Provider implements coordinator.Provider against one OpenAI-compatible
// chat-completion endpoint.
type Provider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client

	requests int64
	errors   int64

	mu     sync.RWMutex
	status HealthStatus

	logger zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Provider. timeout bounds every Generate call.
func New(logger zerolog.Logger, baseURL, apiKey, model string, timeout time.Duration, pool PoolConfig) *Provider {
	return &Provider{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Transport: newTransport(pool), Timeout: timeout},
		logger:  logger.With().Str("component", "httpprovider").Logger(),
		done:    make(chan struct{}),
	}
}

var _ coordinator.Provider = (*Provider)(nil)

// Generate satisfies coordinator.Provider.
func (p *Provider) Generate(ctx context.Context, req coordinator.GenerateRequest) (coordinator.GenerateResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	})
	if err != nil {
		return coordinator.GenerateResult{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return coordinator.GenerateResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	atomic.AddInt64(&p.requests, 1)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		atomic.AddInt64(&p.errors, 1)
		return coordinator.GenerateResult{}, fmt.Errorf("call upstream: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		atomic.AddInt64(&p.errors, 1)
		return coordinator.GenerateResult{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		atomic.AddInt64(&p.errors, 1)
		return coordinator.GenerateResult{}, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(payload))
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		atomic.AddInt64(&p.errors, 1)
		return coordinator.GenerateResult{}, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return coordinator.GenerateResult{Error: "upstream returned no choices"}, nil
	}

	return coordinator.GenerateResult{
		Content:    parsed.Choices[0].Message.Content,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}

// StartHealthPolling begins a background loop that pings the upstream at
// interval (minimum 5s) and caches the result for Status/IsHealthy.
func (p *Provider) StartHealthPolling(interval time.Duration) {
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.pollLoop(ctx, interval)
}

// StopHealthPolling halts the background polling loop started above.
func (p *Provider) StopHealthPolling() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *Provider) pollLoop(ctx context.Context, interval time.Duration) {
	defer close(p.done)
	p.checkHealth(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkHealth(ctx)
		}
	}
}

func (p *Provider) checkHealth(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(pollCtx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		p.recordHealth(false, 0, err.Error())
		return
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		p.recordHealth(false, latency, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		p.recordHealth(false, latency, fmt.Sprintf("status %d", resp.StatusCode))
		return
	}
	p.recordHealth(true, latency, "")
}

func (p *Provider) recordHealth(healthy bool, latency time.Duration, errMsg string) {
	p.mu.Lock()
	wasHealthy := p.status.Healthy
	p.status = HealthStatus{Healthy: healthy, Latency: latency, LastCheck: time.Now(), Error: errMsg}
	p.mu.Unlock()

	if wasHealthy != healthy {
		transition := "recovered"
		if !healthy {
			transition = "degraded"
		}
		p.logger.Warn().Str("transition", transition).Str("error", errMsg).Dur("latency", latency).Msg("provider status change")
	}
}

// Status returns the last polled health status.
func (p *Provider) Status() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Metrics returns cumulative request/error counters.
func (p *Provider) Metrics() (requests, errors int64) {
	return atomic.LoadInt64(&p.requests), atomic.LoadInt64(&p.errors)
}

// Close releases idle connections held by the pool.
func (p *Provider) Close() {
	if t, ok := p.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}
