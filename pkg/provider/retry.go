package provider

import (
	"strings"
	"time"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

// retryableSubstrings classifies an error message as transient: worth
// retrying against the same provider, and worth falling back to the next
// provider once the retry budget is exhausted.
var retryableSubstrings = []string{
	"rate_limit",
	"rate limit",
	"overloaded",
	"timeout",
	"connection",
	"internal_server",
	"econnrefused",
	"econnreset",
	"etimedout",
	"enotfound",
}

// fatalSubstrings classifies an error message as terminal: the provider
// will never succeed for this request, so retry and fallback are both
// skipped.
var fatalSubstrings = []string{
	"authentication",
	"api key",
	"not found",
	"permission denied",
}

// classify reports whether err should be retried. Fatal errors return
// false even if they also happen to match a retryable substring; fatal
// classification takes precedence.
func classify(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	for _, s := range fatalSubstrings {
		if strings.Contains(msg, s) {
			return false
		}
	}
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// retryDelay computes the exponential backoff for the given zero-based
// attempt number, starting from initial.
func retryDelay(initial time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	return initial * time.Duration(1<<uint(attempt))
}

// classifyProviderError maps a raw backend error into the router's typed
// error surface for cases the caller needs to distinguish (auth vs rate
// limit vs generic exec failure), defaulting to ProviderExecError.
func classifyProviderError(providerName string, err error) *apperrors.Error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "authentication") || strings.Contains(msg, "api key") ||
		strings.Contains(msg, "not found") || strings.Contains(msg, "permission denied"):
		return apperrors.Wrap(apperrors.CodeProviderAuthError, err, "provider request rejected").WithContext("provider", providerName)
	case strings.Contains(msg, "rate_limit") || strings.Contains(msg, "rate limit"):
		return apperrors.Wrap(apperrors.CodeProviderRateLimit, err, "provider rate limited").WithContext("provider", providerName)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "etimedout"):
		return apperrors.Wrap(apperrors.CodeProviderTimeout, err, "provider timed out").WithContext("provider", providerName)
	default:
		return apperrors.Wrap(apperrors.CodeProviderExecError, err, "provider execution failed").WithContext("provider", providerName)
	}
}
