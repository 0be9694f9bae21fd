package providers

import (
	"errors"
	"fmt"
	"time"
)

// ProviderError is a failed call to the reasoning service. StatusCode is 0
// for transport failures that never produced a response.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("reasoning provider %q returned %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("reasoning provider %q: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// AuthError means the service rejected the API key (401 or 403).
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("reasoning provider %q rejected credentials: %s", e.Provider, e.Message)
}

// RateLimitError is a 429 that persisted through every retry. RetryAfter is
// the last hint the server sent, if any.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("reasoning provider %q throttled, retry after %s: %s", e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("reasoning provider %q throttled: %s", e.Provider, e.Message)
}

// TimeoutError is a round cancelled by its context, either the per-round
// deadline or a job cancellation.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("reasoning provider %q did not answer within %s", e.Provider, e.Timeout)
}

// ParseError is a response body that could not be decoded.
type ParseError struct {
	Provider    string
	RawResponse string
	Cause       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("reasoning provider %q sent an unreadable response: %v", e.Provider, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ValidationError is a request rejected locally before it was sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid completion request field %q: %s", e.Field, e.Message)
}

// ConfigError is an unusable provider configuration, most often a missing
// API key.
type ConfigError struct {
	Provider string
	Field    string
	Message  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("reasoning provider %q misconfigured (%s): %s", e.Provider, e.Field, e.Message)
}

// Retryable reports whether err is a transient provider failure that a
// caller may retry later.
func Retryable(err error) bool {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode == 0 || pe.StatusCode >= 500
	}
	return false
}
