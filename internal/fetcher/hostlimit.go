package fetcher

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter throttles requests per hostname using a token bucket.
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	qps      float64
}

func newHostLimiter(qps float64) *hostLimiter {
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		qps:      qps,
	}
}

// wait blocks until the host's bucket grants a token, or ctx finishes.
func (l *hostLimiter) wait(ctx context.Context, rawURL string) error {
	if l == nil || l.qps <= 0 {
		return nil
	}
	host := hostOf(rawURL)
	if host == "" {
		return nil
	}

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.qps), 1)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	return limiter.Wait(ctx)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
