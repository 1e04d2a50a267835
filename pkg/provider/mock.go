package provider

import (
	"context"
	"fmt"
)

// MockProvider is a deterministic in-process stand-in for a CLI backend,
// swapped in when AUTOMATOSX_MOCK_PROVIDERS is set so tests and local
// development never shell out to a real LLM CLI.
type MockProvider struct {
	descriptor Descriptor

	// Respond, if set, computes the response content for a request.
	// Defaults to echoing the prompt when nil.
	Respond func(ExecutionRequest) (string, error)

	// Available, if set, overrides IsAvailable. Defaults to true.
	Available func() bool

	calls int
}

// NewMockProvider wraps descriptor as a MockProvider.
func NewMockProvider(descriptor Descriptor) *MockProvider {
	return &MockProvider{descriptor: descriptor}
}

func (p *MockProvider) Name() string          { return p.descriptor.Name }
func (p *MockProvider) Descriptor() Descriptor { return p.descriptor }

func (p *MockProvider) Execute(ctx context.Context, req ExecutionRequest) (ExecutionResponse, error) {
	p.calls++

	select {
	case <-ctx.Done():
		return ExecutionResponse{}, ctx.Err()
	default:
	}

	content := fmt.Sprintf("[mock:%s] %s", p.descriptor.Name, req.Prompt)
	if p.Respond != nil {
		out, err := p.Respond(req)
		if err != nil {
			return ExecutionResponse{}, classifyProviderError(p.descriptor.Name, err)
		}
		content = out
	}

	if req.OnToken != nil {
		req.OnToken(content)
	}

	return ExecutionResponse{
		Content:      content,
		Model:        req.Model,
		ProviderName: p.descriptor.Name,
		TokensUsed:   TokensUsed{Prompt: len(req.Prompt), Completion: len(content), Total: len(req.Prompt) + len(content)},
		LatencyMs:    1,
		FinishReason: "stop",
	}, nil
}

func (p *MockProvider) IsAvailable(ctx context.Context) bool {
	if p.Available != nil {
		return p.Available()
	}
	return true
}

func (p *MockProvider) Close() error { return nil }

// CallCount returns how many times Execute has been invoked, for assertions
// in tests that exercise router fallback behavior.
func (p *MockProvider) CallCount() int { return p.calls }

// MockProvidersEnabled reports whether an AUTOMATOSX_MOCK_PROVIDERS value
// requests the mock provider stubs in place of real subprocess dispatch:
// any value other than "", "0" or "false" does. The entry point parses the
// variable itself and does not call this helper.
func MockProvidersEnabled(value string) bool {
	return value != "" && value != "0" && value != "false"
}
