// Package provider implements the Provider Router: health-tracked dispatch
// to external LLM command-line backends, priority-ordered fallback, and
// retry classification.
//
// A Provider is always an opaque subprocess with a {prompt -> text}
// contract; the router never speaks a backend's wire protocol directly.
package provider

import (
	"context"
	"time"
)

// TokensUsed reports token accounting for one execution, when the backend
// surfaces it.
type TokensUsed struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// ExecutionRequest is one dispatch to a provider.
type ExecutionRequest struct {
	Prompt       string
	SystemPrompt string
	Model        string
	// ProviderName, if set, pins dispatch to a single named provider; the
	// router falls back to others only if FallbackEnabled is also true.
	ProviderName    string
	FallbackEnabled bool
	// OnToken, if set, receives best-effort streamed output chunks as they
	// arrive. Providers that cannot stream never call it.
	OnToken func(chunk string)
}

// ExecutionResponse is the result of a successful dispatch.
type ExecutionResponse struct {
	Content      string
	Model        string
	ProviderName string
	TokensUsed   TokensUsed
	LatencyMs    int64
	FinishReason string
}

// Health is the router's current view of a provider's health, refreshed by
// the background monitor.
type Health struct {
	Available           bool
	LatencyMs           int64
	ErrorRate           float64
	ConsecutiveFailures int
	LastCheckedAt       time.Time
}

// Descriptor configures one provider instance owned by the router.
type Descriptor struct {
	Name     string
	Priority int // smaller = preferred
	Timeout  time.Duration

	// Command is the subprocess path and any fixed leading arguments (e.g.
	// ["claude", "-p"]). The prompt is appended or piped per Provider impl.
	Command []string

	// Detection hints, consulted by Detect (see detect.go).
	CustomPath string
	VersionArg string
	MinVersion string

	// ProbeInterval is how often the health monitor probes this provider.
	// The router's overall tick uses the minimum across all providers.
	ProbeInterval time.Duration

	// AvailabilityTTL is how long a cached availability result is trusted
	// before the monitor's next tick refreshes it.
	AvailabilityTTL time.Duration

	MaxRetries     int
	InitialBackoff time.Duration
}

// Provider is an external command-line LLM backend.
type Provider interface {
	Name() string
	Descriptor() Descriptor

	// Execute dispatches req and blocks until the subprocess produces a
	// response, fails, or ctx is cancelled.
	Execute(ctx context.Context, req ExecutionRequest) (ExecutionResponse, error)

	// IsAvailable is a cheap probe used by the health monitor; it must not
	// block on a full generation.
	IsAvailable(ctx context.Context) bool

	// Close releases any resources (e.g. a warm subprocess pool). Safe to
	// call multiple times.
	Close() error
}
