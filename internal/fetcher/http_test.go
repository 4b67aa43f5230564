package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/dealwatch/dealwatch/internal/resilience"
)

func newTestFetcher(retries int) *HTTPFetcher {
	f := NewHTTPFetcher(HTTPOptions{
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
		HostRate:   rate.Inf,
		HostBurst:  1,
	})
	// Keep retry tests fast.
	f.retryCfg.InitialBackoff = time.Millisecond
	f.retryCfg.MaxBackoff = 5 * time.Millisecond
	return f
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		w.Write([]byte(`<html><span class="price">$9.99</span></html>`))
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	page, err := f.Fetch(context.Background(), srv.URL+"/product")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(page.Body), "$9.99")
	assert.Equal(t, srv.URL+"/product", page.URL)
	assert.False(t, page.FetchedAt.IsZero())
}

func TestFetch_RetriesConnectionFailure(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			// Drop the connection mid-response to force a network error.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(2)
	page, err := f.Fetch(context.Background(), srv.URL+"/flaky")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(page.Body))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetch_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer srv.Close()

	f := newTestFetcher(2)
	_, err := f.Fetch(context.Background(), srv.URL+"/down")
	require.Error(t, err)

	kind, ok := ErrKind(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindConnectionFailed, kind)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetch_HTTPErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(2)
	_, err := f.Fetch(context.Background(), srv.URL+"/gone")
	require.Error(t, err)

	kind, ok := ErrKind(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindHTTPError, kind)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.Equal(t, int32(1), attempts.Load(), "status errors must not retry")
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{
		Timeout:  50 * time.Millisecond,
		HostRate: rate.Inf,
	})
	f.retryCfg.MaxAttempts = 1

	_, err := f.Fetch(context.Background(), srv.URL+"/slow")
	require.Error(t, err)

	kind, ok := ErrKind(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindTimeout, kind)
}

func TestFetch_TooManyRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/next", http.StatusFound)
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	_, err := f.Fetch(context.Background(), srv.URL+"/loop")
	require.Error(t, err)

	kind, ok := ErrKind(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindTooManyRedirects, kind)
}

func TestFetch_BadURL(t *testing.T) {
	f := newTestFetcher(0)

	for _, raw := range []string{"ftp://example.com/file", "example.com/no-scheme", "https://"} {
		_, err := f.Fetch(context.Background(), raw)
		require.Error(t, err, raw)

		kind, ok := ErrKind(err)
		require.True(t, ok, raw)
		assert.Equal(t, ErrKindBadURL, kind, raw)
	}
}

func TestFetch_CharsetDecoded(t *testing.T) {
	// "preço" in ISO-8859-1: ç is 0xE7.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte{'p', 'r', 'e', 0xE7, 'o'})
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "preço", string(page.Body))
}

func TestFetch_CircuitOpenRejectsImmediately(t *testing.T) {
	breakers := resilience.NewHostBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{
		Timeout:  time.Second,
		HostRate: rate.Inf,
		Breakers: breakers,
	})
	f.retryCfg.MaxAttempts = 1

	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	before := attempts.Load()
	_, err = f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, before, attempts.Load(), "open circuit must not hit the host")
}

func TestFetch_HTTPErrorDoesNotTripBreaker(t *testing.T) {
	breakers := resilience.NewHostBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{
		Timeout:  time.Second,
		HostRate: rate.Inf,
		Breakers: breakers,
	})

	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	// A second fetch must still reach the host.
	_, err = f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	kind, ok := ErrKind(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindHTTPError, kind)
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "timeout", ErrKindTimeout.String())
	assert.Equal(t, "connection_failed", ErrKindConnectionFailed.String())
	assert.Equal(t, "http_error", ErrKindHTTPError.String())
	assert.Equal(t, "too_many_redirects", ErrKindTooManyRedirects.String())
}
