package fetcher

import (
	"context"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/dealwatch/dealwatch/internal/resilience"
)

// maxBodyBytes caps how much of a product page is read. Retailer pages
// carry their price well within the first half megabyte.
const maxBodyBytes = 512 * 1024

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int // retries after the first attempt
	MaxRedirects int
	HostRate     rate.Limit
	HostBurst    int
	Breakers     *resilience.HostBreakers
}

// HTTPFetcher implements Fetcher using net/http with retry, per-host rate
// limiting, and per-host circuit breaking.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	retryCfg resilience.RetryConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var errRedirectCap = errors.New("redirect cap exceeded")

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = 5
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "dealwatch/1.0"
	}
	if opts.HostRate == 0 {
		opts.HostRate = 1
	}
	if opts.HostBurst == 0 {
		opts.HostBurst = 2
	}
	if opts.Breakers == nil {
		opts.Breakers = resilience.NewHostBreakers(resilience.DefaultCircuitBreakerConfig())
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout: opts.Timeout,
		}).DialContext,
		TLSHandshakeTimeout: opts.Timeout,
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = opts.MaxRetries + 1
	retryCfg.ShouldRetry = func(err error) bool {
		// Network-level failures only; HTTP status errors are surfaced as-is.
		kind, ok := ErrKind(err)
		return ok && (kind == ErrKindTimeout || kind == ErrKindConnectionFailed)
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= opts.MaxRedirects {
					return errRedirectCap
				}
				return nil
			},
		},
		opts:     opts,
		retryCfg: retryCfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.opts.HostRate, f.opts.HostBurst)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch retrieves the page at rawURL. Failures are returned as *FetchError
// with a kind from the fetch taxonomy.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*RawPage, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &FetchError{Kind: ErrKindBadURL, URL: rawURL, Err: err}
	}

	breaker := f.opts.Breakers.For(u.Host)
	if err := breaker.Allow(); err != nil {
		return nil, &FetchError{Kind: ErrKindConnectionFailed, URL: rawURL, Err: err}
	}

	cfg := f.retryCfg
	cfg.OnRetry = func(attempt int, err error) {
		zap.L().Warn("fetch failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	page, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*RawPage, error) {
		return f.fetchOnce(ctx, u.Host, rawURL)
	})

	// Only network-level outcomes feed the breaker: an HTTP error status
	// still proves the host is reachable.
	if kind, ok := ErrKind(err); ok && (kind == ErrKindTimeout || kind == ErrKindConnectionFailed) {
		breaker.Record(err)
	} else {
		breaker.Record(nil)
	}

	return page, err
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, host, rawURL string) (*RawPage, error) {
	if err := f.limiterFor(host).Wait(ctx); err != nil {
		return nil, &FetchError{Kind: ErrKindConnectionFailed, URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: ErrKindBadURL, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Kind: ErrKindHTTPError, URL: rawURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransportError(rawURL, err)
	}

	body = decodeCharset(body, resp.Header.Get("Content-Type"))

	return &RawPage{
		URL:        rawURL,
		Body:       body,
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// classifyTransportError maps an error from http.Client.Do into the fetch
// taxonomy.
func classifyTransportError(rawURL string, err error) *FetchError {
	if errors.Is(err, errRedirectCap) {
		return &FetchError{Kind: ErrKindTooManyRedirects, URL: rawURL, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: ErrKindTimeout, URL: rawURL, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: ErrKindTimeout, URL: rawURL, Err: err}
	}

	return &FetchError{Kind: ErrKindConnectionFailed, URL: rawURL, Err: err}
}

// decodeCharset converts the body to UTF-8 when the Content-Type header
// declares a different charset. Unknown charsets pass through untouched.
func decodeCharset(body []byte, contentType string) []byte {
	if contentType == "" {
		return body
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	cs := strings.ToLower(params["charset"])
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return body
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}
