package api

import (
	"context"
	"errors"
	"net"

	"github.com/anthropics/anthropic-sdk-go"
)

// Retryable reports whether err is a transport-level failure worth a
// backoff retry: rate limits, request timeouts, server errors, and
// network timeouts. Schema problems never come through here; they are a
// separate retry class handled by the invoker.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 408:
			return true
		case apierr.StatusCode == 429:
			return true
		case apierr.StatusCode >= 500:
			return true
		case apierr.StatusCode == 529: // service overloaded
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Per-call deadline expiry is transport-class as long as the caller's
	// own context is still live; the invoker checks that before retrying.
	return errors.Is(err, context.DeadlineExceeded)
}

// StatusCode extracts the HTTP status from an API error, or 0.
func StatusCode(err error) int {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode
	}
	return 0
}
