package main

import (
	"context"
	"time"
)

// signalFreeContext returns a context detached from signal cancellation,
// used to give graceful shutdown its own deadline after SIGINT.
func signalFreeContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
