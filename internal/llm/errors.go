package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured marks a missing backend (no credentials), which is
// permanent until an operator fixes it, unlike the transient failures
// below.
var ErrNotConfigured = errors.New("completion backend not configured")

// TimeoutError reports that the backend exceeded the resolved timeout. It
// carries the timeout so callers can suggest fast mode.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("model timed out after %s", e.Timeout)
}

// RateLimitedError reports an upstream 429; retry after backoff.
type RateLimitedError struct {
	Message string
}

func (e *RateLimitedError) Error() string {
	if e.Message == "" {
		return "rate limit reached"
	}
	return "rate limited: " + e.Message
}

// UpstreamError is any other backend failure. The message is truncated
// before it ever reaches a user.
type UpstreamError struct {
	Status    int
	Message   string
	Retryable bool
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
	}
	return "upstream error: " + e.Message
}

// IsRetryableStatus classifies retryable HTTP status codes.
func IsRetryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Error kinds surfaced to API callers.
const (
	KindNotConfigured = "not_configured"
	KindTimeout       = "timeout"
	KindRateLimited   = "rate_limited"
	KindUpstream      = "upstream_error"
)

// Kind maps an error from this package to its taxonomy name, or "" for
// errors that did not come from the completion backend.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return KindNotConfigured
	}
	var (
		timeout     *TimeoutError
		rateLimited *RateLimitedError
		upstream    *UpstreamError
	)
	switch {
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &rateLimited):
		return KindRateLimited
	case errors.As(err, &upstream):
		return KindUpstream
	}
	return ""
}

const maxUpstreamMessage = 100

func truncateMessage(s string) string {
	if len(s) > maxUpstreamMessage {
		return s[:maxUpstreamMessage]
	}
	return s
}
