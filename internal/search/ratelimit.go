package search

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// limiter applies per-host rate limiting so repeated queries against one
// backend stay polite.
type limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

func newLimiter(requestsPerSecond float64, burst int) *limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2.0
	}
	if burst <= 0 {
		burst = 5
	}
	return &limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// wait blocks until a request to rawURL's host is allowed.
func (l *limiter) wait(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	return l.hostLimiter(parsed.Host).Wait(ctx)
}

func (l *limiter) hostLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	rl, exists := l.limiters[host]
	l.mu.RUnlock()
	if exists {
		return rl
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if rl, exists := l.limiters[host]; exists {
		return rl
	}
	rl = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[host] = rl
	return rl
}
