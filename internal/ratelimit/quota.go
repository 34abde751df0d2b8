package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// QuotaLimiter throttles outbound calls per upstream (search API, oracle)
// so bursts of submissions do not exhaust metered quotas.
type QuotaLimiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewQuotaLimiter creates a limiter. A non-positive rate disables throttling.
func NewQuotaLimiter(callsPerSecond float64, burst int) *QuotaLimiter {
	if burst <= 0 {
		burst = 5
	}
	limit := rate.Limit(callsPerSecond)
	if callsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &QuotaLimiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait blocks until a call to upstream is allowed or ctx is done.
// A nil limiter never blocks.
func (l *QuotaLimiter) Wait(ctx context.Context, upstream string) error {
	if l == nil {
		return nil
	}
	return l.get(upstream).Wait(ctx)
}

// Allow reports whether a call may proceed now, consuming a token if so.
func (l *QuotaLimiter) Allow(upstream string) bool {
	if l == nil {
		return true
	}
	return l.get(upstream).Allow()
}

// SetRate overrides the rate for one upstream.
func (l *QuotaLimiter) SetRate(upstream string, callsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if burst <= 0 {
		burst = l.defaultBurst
	}
	l.limiters[upstream] = rate.NewLimiter(rate.Limit(callsPerSecond), burst)
}

func (l *QuotaLimiter) get(upstream string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[upstream]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[upstream]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[upstream] = limiter
	return limiter
}
