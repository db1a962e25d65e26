package anthropic

import (
	"context"
	"errors"
	"net"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// StatusCode extracts the HTTP status code from an SDK error chain.
// Returns 0 when the error carries no status.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRateLimited reports whether the provider rejected the request for
// throttling (HTTP 429 or an overloaded_error response).
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	switch StatusCode(err) {
	case 429, 529:
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "overloaded_error")
}

// IsTimeout reports whether the call failed on a deadline or a network
// timeout. Timeouts are retryable: the request may simply have been slow.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
