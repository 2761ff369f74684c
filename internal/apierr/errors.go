// Package apierr provides shared error sentinels and retry infrastructure
// for the HTTP clients that talk to the transcription and feature services.
// Provider-specific failures are classified into these sentinels at the
// client boundary; callers check with errors.Is.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for remote service failures.
var (
	// ErrRateLimit indicates the service asked us to slow down (retryable).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates a billing or quota limit (not retryable).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout indicates a request timed out.
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed indicates the credentials were rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest indicates a 4xx that is not otherwise classified.
	ErrBadRequest = errors.New("bad request")

	// ErrUnavailable indicates a 5xx or a connection failure (retryable).
	ErrUnavailable = errors.New("service unavailable")
)

// maxBodyInError bounds how much of a response body is quoted in errors.
const maxBodyInError = 200

// FromStatus classifies a non-2xx HTTP response into a sentinel.
// A 2xx status returns nil.
func FromStatus(status int, body string) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := strings.TrimSpace(body)
	if len(msg) > maxBodyInError {
		msg = msg[:maxBodyInError] + "..."
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	var sentinel error
	switch {
	case status == http.StatusTooManyRequests:
		if strings.Contains(strings.ToLower(msg), "quota") {
			sentinel = ErrQuotaExceeded
		} else {
			sentinel = ErrRateLimit
		}
	case status == http.StatusPaymentRequired:
		sentinel = ErrQuotaExceeded
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		sentinel = ErrAuthFailed
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		sentinel = ErrTimeout
	case status >= 500:
		sentinel = ErrUnavailable
	default:
		sentinel = ErrBadRequest
	}
	return fmt.Errorf("HTTP %d: %s: %w", status, msg, sentinel)
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable)
}
