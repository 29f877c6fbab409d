package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// IsStoreFailure reports whether err means the store itself is unhealthy: network and
// connection errors, and queries that ran into their deadline. Cancellation by the caller
// does not count.
func IsStoreFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Driver errors are often flattened to strings by the time they get here.
	msg := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"failed to connect",
		"closed pool",
		"connectivity",
		"serviceunavailable",
		"database is locked",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
