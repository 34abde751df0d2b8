// Package fetch retrieves web pages and reduces them to readable article text.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/credence/internal/retry"
)

// ErrDisallowed is returned when robots.txt forbids fetching a page.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// StatusError is a non-2xx response
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// Options configures a Fetcher
type Options struct {
	Timeout       time.Duration
	UserAgent     string
	MaxBytes      int64
	InsecureTLS   bool
	HTTPProxy     string
	HTTPSProxy    string
	NoProxy       string
	RespectRobots bool
	MaxAttempts   int
	AllowPrivate  bool // Permit loopback and private destinations
}

// Fetcher fetches HTML pages
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	attempts   int
	robots     *RobotsChecker
	guard      *addressGuard // nil when private destinations are allowed
}

// Result is a fetched page
type Result struct {
	HTML        string
	FinalURL    string
	StatusCode  int
	ContentType string
}

// fetchSleep waits between attempts; tests replace it.
var fetchSleep = retry.SleepContext

// NewFetcher creates a Fetcher. Redirect chains longer than 3 hops fail, and
// unless opts.AllowPrivate is set every hop must reach a public address.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 5 << 20
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = NewProxyFunc(opts.HTTPProxy, opts.HTTPSProxy, opts.NoProxy)
	if opts.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for broken certificate chains
	}

	var guard *addressGuard
	if !opts.AllowPrivate {
		guard = &addressGuard{proxy: transport.Proxy, resolver: net.DefaultResolver}
		if !proxyConfigured(opts) {
			dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second, Control: dialControl}
			transport.DialContext = dialer.DialContext
		}
	}

	f := &Fetcher{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				if guard != nil {
					return guard.check(req)
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		attempts:  opts.MaxAttempts,
		guard:     guard,
	}
	if opts.RespectRobots {
		f.robots = NewRobotsChecker(opts.UserAgent, opts.Timeout)
		f.robots.httpClient.Transport = transport
	}
	return f
}

// Fetch retrieves a page once.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "az,en-US;q=0.9,en;q=0.8,ru;q=0.7")

	if f.guard != nil {
		if err := f.guard.check(req); err != nil {
			return nil, err
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Result{
		HTML:        string(body),
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// FetchWithRetry retries transient failures (5xx, 429, network errors) with
// exponential backoff.
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*Result, error) {
	var result *Result
	_, err := retry.Do(ctx, retry.Config{
		MaxAttempts:  f.attempts,
		InitialDelay: time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2,
		IsRetryable:  isRetryableFetchError,
		Sleep:        fetchSleep,
	}, func(ctx context.Context) error {
		var err error
		result, err = f.Fetch(ctx, rawURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FetchText fetches a page and returns its readable text, prefixed by the
// article title when one is found.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	if f.guard != nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		if err := f.guard.check(req); err != nil {
			return "", err
		}
	}
	if f.robots != nil {
		allowed, _, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return "", err
		}
		if !allowed {
			return "", fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
	}

	result, err := f.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if ct := result.ContentType; ct != "" && !strings.Contains(ct, "html") && !strings.HasPrefix(ct, "text/") {
		return "", fmt.Errorf("unsupported content type %q", ct)
	}

	title, text := ExtractText(result.HTML, result.FinalURL)
	if title != "" && !strings.HasPrefix(text, title) {
		text = title + "\n\n" + text
	}
	return text, nil
}

// isRetryableFetchError reports whether a fetch error is transient.
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrPrivateAddress) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	if !strings.HasPrefix(msg, "fetch:") {
		return false
	}
	for _, pattern := range []string{"timeout", "deadline exceeded", "connection refused", "connection reset", "EOF"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
