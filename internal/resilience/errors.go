// Package resilience provides retry and circuit breaker primitives for
// outbound page fetches.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// IsTransient returns true for network-level failures that are safe to
// retry: timeouts, connection resets, refused connections, DNS failures.
// HTTP status errors are deliberately not transient here; the fetcher
// surfaces them to the scheduler without retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String heuristics for errors wrapped by net/http.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
