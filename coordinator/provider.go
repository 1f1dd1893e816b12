package coordinator

import "context"

// GenerateRequest is the single call shape the provider port accepts.
type GenerateRequest struct {
	Prompt      string
	Temperature float64
	Requester   string
}

// GenerateResult is what the provider port returns for one call.
type GenerateResult struct {
	Content    string
	TokensUsed int
	Cost       float64
	Error      string
}

// Provider is the external LLM provider port (§6.1). The coordinator only
// assumes bounded latency and that retries, if any, are the adapter's own
// responsibility.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}
