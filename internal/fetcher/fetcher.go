// Package fetcher retrieves product pages over HTTP with timeouts, bounded
// retries, and per-host rate limiting.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RawPage holds a fetched page body.
type RawPage struct {
	URL        string
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}

// ErrorKind classifies fetch failures.
type ErrorKind int

const (
	// ErrKindBadURL means the URL is malformed or not http/https.
	ErrKindBadURL ErrorKind = iota
	// ErrKindTimeout means the request exceeded its deadline.
	ErrKindTimeout
	// ErrKindConnectionFailed covers DNS failures, resets, and refusals.
	ErrKindConnectionFailed
	// ErrKindHTTPError means the server answered with a non-2xx status.
	ErrKindHTTPError
	// ErrKindTooManyRedirects means the redirect cap was exceeded.
	ErrKindTooManyRedirects
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindBadURL:
		return "bad_url"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindHTTPError:
		return "http_error"
	case ErrKindTooManyRedirects:
		return "too_many_redirects"
	default:
		return "unknown"
	}
}

// FetchError is the typed failure returned by Fetch.
type FetchError struct {
	Kind   ErrorKind
	URL    string
	Status int // set for ErrKindHTTPError
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == ErrKindHTTPError {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrKind extracts the FetchError kind from an error chain.
// The second return is false when the chain holds no FetchError.
func ErrKind(err error) (ErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*RawPage, error)
}
