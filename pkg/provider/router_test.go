package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

func desc(name string, priority int) Descriptor {
	return Descriptor{Name: name, Priority: priority, MaxRetries: 1, InitialBackoff: time.Millisecond}
}

func TestRouterFallsBackAfterRetryableFailure(t *testing.T) {
	attempts := 0
	p1 := NewMockProvider(desc("p1", 1))
	p1.Respond = func(req ExecutionRequest) (string, error) {
		attempts++
		return "", errors.New("rate_limit exceeded")
	}
	p2 := NewMockProvider(desc("p2", 2))

	r := NewRouter([]Provider{p1, p2})
	resp, err := r.Execute(context.Background(), ExecutionRequest{Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "p2", resp.ProviderName)
	assert.Equal(t, 2, attempts, "p1 should have retried once before falling back")
}

func TestRouterFatalErrorAbortsImmediately(t *testing.T) {
	p1 := NewMockProvider(desc("p1", 1))
	p1.Respond = func(req ExecutionRequest) (string, error) {
		return "", errors.New("invalid api key")
	}
	p2 := NewMockProvider(desc("p2", 2))

	r := NewRouter([]Provider{p1, p2})
	_, err := r.Execute(context.Background(), ExecutionRequest{Prompt: "hi"})

	require.Error(t, err)
	assert.Equal(t, 0, p2.CallCount(), "fatal error on p1 must not fall back to p2")
}

func TestRouterFatalErrorAbortsForEveryFatalCategory(t *testing.T) {
	for _, msg := range []string{"invalid api key", "authentication failed", "resource not found", "permission denied"} {
		t.Run(msg, func(t *testing.T) {
			p1 := NewMockProvider(desc("p1", 1))
			p1.Respond = func(req ExecutionRequest) (string, error) {
				return "", errors.New(msg)
			}
			p2 := NewMockProvider(desc("p2", 2))

			r := NewRouter([]Provider{p1, p2})
			_, err := r.Execute(context.Background(), ExecutionRequest{Prompt: "hi"})

			require.Error(t, err)
			assert.Equal(t, 0, p2.CallCount(), "fatal error on p1 must not fall back to p2")
		})
	}
}

func TestRouterPinnedProviderWithoutFallback(t *testing.T) {
	p1 := NewMockProvider(desc("p1", 1))
	p1.Respond = func(req ExecutionRequest) (string, error) {
		return "", errors.New("rate_limit")
	}
	p2 := NewMockProvider(desc("p2", 2))

	r := NewRouter([]Provider{p1, p2})
	_, err := r.Execute(context.Background(), ExecutionRequest{Prompt: "hi", ProviderName: "p1", FallbackEnabled: false})

	require.Error(t, err)
	assert.Equal(t, 0, p2.CallCount())
}

func TestRouterAllProvidersUnavailableNeverCallsBackend(t *testing.T) {
	p1 := NewMockProvider(desc("p1", 1))
	p1.Available = func() bool { return false }
	p2 := NewMockProvider(desc("p2", 2))
	p2.Available = func() bool { return false }

	r := NewRouter([]Provider{p1, p2})
	_, err := r.Execute(context.Background(), ExecutionRequest{Prompt: "hi"})

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNoAvailableProviders, apperrors.CodeOf(err))
	assert.Equal(t, 0, p1.CallCount())
	assert.Equal(t, 0, p2.CallCount())
}

func TestRouterOrdersByPriority(t *testing.T) {
	low := NewMockProvider(desc("low-priority", 5))
	high := NewMockProvider(desc("high-priority", 1))

	r := NewRouter([]Provider{low, high})
	resp, err := r.Execute(context.Background(), ExecutionRequest{Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "high-priority", resp.ProviderName)
}

func TestWarmupPopulatesHealthCache(t *testing.T) {
	p1 := NewMockProvider(desc("p1", 1))
	r := NewRouter([]Provider{p1})
	r.Warmup(context.Background())

	h, ok := r.cache.get("p1")
	assert.True(t, ok)
	assert.True(t, h.Available)
}
