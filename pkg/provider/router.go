package provider

import (
	"context"
	"sort"
	"time"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

// Router selects a provider for each request, tracks provider health in the
// background, and retries/falls back on transient failure.
type Router struct {
	providers []Provider // sorted by ascending Descriptor.Priority
	byName    map[string]Provider

	cache   *healthCache
	monitor *monitor
	metrics *Metrics
}

// NewRouter creates a Router over providers, sorted by ascending priority.
// The background health monitor is not started until Start is called.
func NewRouter(providers []Provider) *Router {
	sorted := append([]Provider(nil), providers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Descriptor().Priority < sorted[j].Descriptor().Priority
	})

	byName := make(map[string]Provider, len(sorted))
	for _, p := range sorted {
		byName[p.Name()] = p
	}

	metrics := NewMetrics()
	cache := newHealthCache()
	interval := minProbeInterval(sorted)
	ttl := minAvailabilityTTL(sorted, interval)

	return &Router{
		providers: sorted,
		byName:    byName,
		cache:     cache,
		monitor:   newMonitor(sorted, cache, interval, ttl, metrics),
		metrics:   metrics,
	}
}

func minProbeInterval(providers []Provider) time.Duration {
	min := time.Duration(0)
	for _, p := range providers {
		iv := p.Descriptor().ProbeInterval
		if iv <= 0 {
			continue
		}
		if min == 0 || iv < min {
			min = iv
		}
	}
	if min == 0 {
		min = 30 * time.Second
	}
	return min
}

func minAvailabilityTTL(providers []Provider, fallback time.Duration) time.Duration {
	min := time.Duration(0)
	for _, p := range providers {
		ttl := p.Descriptor().AvailabilityTTL
		if ttl <= 0 {
			continue
		}
		if min == 0 || ttl < min {
			min = ttl
		}
	}
	if min == 0 {
		min = fallback
	}
	return min
}

// Warmup probes all providers in parallel once, before the router starts
// serving requests.
func (r *Router) Warmup(ctx context.Context) {
	r.monitor.warmup(ctx)
}

// Start launches the background health monitor.
func (r *Router) Start(ctx context.Context) {
	r.monitor.start(ctx)
}

// Destroy stops the background monitor and releases every provider. A fresh
// Router (with fresh metrics) must be constructed to resume dispatching.
func (r *Router) Destroy() error {
	r.monitor.stop()
	var firstErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Metrics returns a point-in-time snapshot of router activity.
func (r *Router) Metrics() Snapshot {
	return r.metrics.Snapshot()
}

// isAvailable consults the cache, probing directly on a cold cache miss so
// a never-yet-ticked provider isn't assumed available or unavailable
// without evidence.
func (r *Router) isAvailable(ctx context.Context, p Provider) bool {
	if h, ok := r.cache.get(p.Name()); ok {
		return h.Available
	}
	available := p.IsAvailable(ctx)
	ttl := p.Descriptor().AvailabilityTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	r.cache.set(p.Name(), Health{Available: available, LastCheckedAt: time.Now()}, ttl)
	return available
}

// Execute selects a provider (respecting ProviderName/FallbackEnabled),
// executes with per-provider retry, and falls back to the next
// priority-ordered provider when the current one's retry budget is
// exhausted and its last error was retryable.
func (r *Router) Execute(ctx context.Context, req ExecutionRequest) (ExecutionResponse, error) {
	candidates, err := r.candidates(req)
	if err != nil {
		return ExecutionResponse{}, err
	}

	var lastErr error
	attemptedAny := false
	for _, p := range candidates {
		if !r.isAvailable(ctx, p) {
			continue
		}
		attemptedAny = true

		resp, err := r.executeWithRetry(ctx, p, req)
		if err == nil {
			r.metrics.recordSuccess(p.Name())
			return resp, nil
		}
		lastErr = err
		r.metrics.recordFailure(p.Name())

		if !classify(err) {
			// Fatal or unclassified: no fallback to other providers.
			return ExecutionResponse{}, err
		}
		if req.ProviderName != "" && !req.FallbackEnabled {
			return ExecutionResponse{}, err
		}
		// retryable: fall through to the next candidate.
	}

	if !attemptedAny {
		return ExecutionResponse{}, apperrors.New(apperrors.CodeNoAvailableProviders, "no available providers")
	}
	if lastErr != nil {
		return ExecutionResponse{}, lastErr
	}
	return ExecutionResponse{}, apperrors.New(apperrors.CodeNoAvailableProviders, "no available providers")
}

// candidates resolves the ordered list of providers to attempt for req.
func (r *Router) candidates(req ExecutionRequest) ([]Provider, error) {
	if req.ProviderName == "" {
		return r.providers, nil
	}

	p, ok := r.byName[req.ProviderName]
	if !ok {
		return nil, apperrors.New(apperrors.CodeProviderNotFound, "provider not found").WithContext("provider", req.ProviderName)
	}
	if !req.FallbackEnabled {
		return []Provider{p}, nil
	}

	ordered := make([]Provider, 0, len(r.providers))
	ordered = append(ordered, p)
	for _, other := range r.providers {
		if other.Name() != p.Name() {
			ordered = append(ordered, other)
		}
	}
	return ordered, nil
}

// executeWithRetry runs p up to descriptor.MaxRetries+1 times with
// exponential backoff between attempts, stopping early on a fatal error.
func (r *Router) executeWithRetry(ctx context.Context, p Provider, req ExecutionRequest) (ExecutionResponse, error) {
	desc := p.Descriptor()
	maxAttempts := desc.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			r.metrics.recordRetry(p.Name())
			delay := retryDelay(desc.InitialBackoff, attempt-1)
			select {
			case <-ctx.Done():
				return ExecutionResponse{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := p.Execute(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !classify(err) {
			// Fatal: no point retrying against the same provider.
			return ExecutionResponse{}, err
		}
	}
	return ExecutionResponse{}, lastErr
}
