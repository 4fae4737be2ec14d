package marketdata

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter provides per-host rate limiting using a token bucket
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a limiter; rps <= 0 disables limiting
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) get(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[host] = limiter
	return limiter
}

// Wait blocks until a request to host is allowed or ctx is done
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if l == nil || l.rps <= 0 {
		return ctx.Err()
	}
	return l.get(host).Wait(ctx)
}

// Allow reports whether a request to host may proceed now
func (l *Limiter) Allow(host string) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	return l.get(host).Allow()
}
