// Package fetcher implements resilient HTTP GET with timeout, retry, and
// exponential backoff. It has no knowledge of page semantics; callers decide
// what a fetched body means.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/metrics"
)

// maxRetryAfter caps how long a server-provided Retry-After header can make
// us wait before the next attempt.
const maxRetryAfter = 15 * time.Second

// Options controls one Fetcher instance.
type Options struct {
	// Retries is the number of additional attempts after the first.
	Retries int
	// BackoffBase seeds the exponential schedule: base * 2^attempt.
	BackoffBase time.Duration
	// Timeout bounds each individual request. Timeouts are retryable.
	Timeout time.Duration
	// Headers are added to every request.
	Headers map[string]string
	// UserAgent is sent when no User-Agent header is provided above.
	UserAgent string
	// HostQPS throttles requests per host; zero disables throttling.
	HostQPS float64
}

// Fetcher performs HTTP GETs with retry and per-host politeness.
type Fetcher struct {
	opts    Options
	client  *http.Client
	limiter *hostLimiter
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *zap.Logger
}

// New builds a Fetcher. A nil logger is replaced with a no-op logger.
func New(opts Options, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	return &Fetcher{
		opts:    opts,
		client:  &http.Client{Transport: newTransport()},
		limiter: newHostLimiter(opts.HostQPS),
		sleep:   sleepContext,
		logger:  logger,
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// ExhaustedError is returned when every attempt against a URL failed with a
// retryable cause.
type ExhaustedError struct {
	URL      string
	Attempts int
	Cause    error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch exhausted after %d attempts for %s: %v", e.Attempts, e.URL, e.Cause)
}

// Unwrap exposes the last underlying cause.
func (e *ExhaustedError) Unwrap() error { return e.Cause }

// StatusError is returned for non-2xx responses that signal a content or
// client problem rather than transience. It is never retried.
type StatusError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// statusRetryable reports whether an HTTP status signals a transient server
// condition worth retrying.
func statusRetryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Fetch GETs url and returns the response body as a string. Timeouts,
// transport errors, and 429/5xx responses are retried on an exponential
// schedule; other non-2xx statuses fail immediately with a StatusError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	attempts := f.opts.Retries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := f.limiter.wait(ctx, url); err != nil {
			return "", err
		}

		body, retryable, wait, err := f.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err

		if attempt < attempts-1 {
			if wait <= 0 {
				wait = f.backoff(attempt)
			}
			f.logger.Debug("retrying fetch",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
			metrics.IncFetchRetry(url)
			if serr := f.sleep(ctx, wait); serr != nil {
				return "", serr
			}
		}
	}

	f.logger.Warn("fetch attempts exhausted",
		zap.String("url", url),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return "", &ExhaustedError{URL: url, Attempts: attempts, Cause: lastErr}
}

// attempt performs one GET. It returns the body on success, or the error with
// a retryable flag and an optional server-mandated wait before the next try.
func (f *Fetcher) attempt(ctx context.Context, url string) (body string, retryable bool, wait time.Duration, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, 0, fmt.Errorf("build request for %s: %w", url, err)
	}
	for k, v := range f.opts.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" && f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.ObserveFetch(url, "error", time.Since(start))
		// The per-request deadline shows up as context.DeadlineExceeded;
		// treat it as transient unless the parent context is done.
		if ctx.Err() != nil {
			return "", false, 0, ctx.Err()
		}
		return "", true, 0, fmt.Errorf("get %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveFetch(url, strconv.Itoa(resp.StatusCode), time.Since(start))
		if statusRetryable(resp.StatusCode) {
			return "", true, retryAfter(resp), fmt.Errorf("get %s: status %d", url, resp.StatusCode)
		}
		return "", false, 0, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveFetch(url, "error", time.Since(start))
		if ctx.Err() != nil {
			return "", false, 0, ctx.Err()
		}
		return "", true, 0, fmt.Errorf("read body of %s: %w", url, err)
	}
	metrics.ObserveFetch(url, "ok", time.Since(start))
	return string(data), false, 0, nil
}

// backoff returns base * 2^attempt.
func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.opts.BackoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// retryAfter parses a Retry-After header as delay seconds or HTTP date,
// capped at maxRetryAfter. Zero means no server guidance.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	var wait time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		wait = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		wait = time.Until(at)
	}
	if wait <= 0 {
		return 0
	}
	if wait > maxRetryAfter {
		return maxRetryAfter
	}
	return wait
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsExhausted reports whether err is a retries-exhausted fetch failure.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}
