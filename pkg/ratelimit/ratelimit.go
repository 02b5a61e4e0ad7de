package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter combines a global token bucket with one bucket per key (server
// name, client address)
type Limiter struct {
	global    *rate.Limiter
	perKey    map[string]*rate.Limiter
	mu        sync.RWMutex
	perKeyRPS float64
	burst     int
}

// New creates a limiter. A globalRPS of zero or less disables the global
// bucket.
func New(globalRPS, perKeyRPS float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	global := rate.NewLimiter(rate.Inf, burst)
	if globalRPS > 0 {
		global = rate.NewLimiter(rate.Limit(globalRPS), burst)
	}
	return &Limiter{
		global:    global,
		perKey:    make(map[string]*rate.Limiter),
		perKeyRPS: perKeyRPS,
		burst:     burst,
	}
}

// Wait blocks until both buckets grant a token for key
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if err := l.global.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limit: %w", err)
	}

	if err := l.limiterFor(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit for %s: %w", key, err)
	}

	return nil
}

// Allow reports whether a request for key may proceed now
func (l *Limiter) Allow(key string) bool {
	if !l.global.Allow() {
		return false
	}
	return l.limiterFor(key).Allow()
}

// Keys returns the number of tracked keys
func (l *Limiter) Keys() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.perKey)
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.perKey[key]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.perKey[key]; exists {
		return limiter
	}

	limit := rate.Inf
	if l.perKeyRPS > 0 {
		limit = rate.Limit(l.perKeyRPS)
	}
	limiter = rate.NewLimiter(limit, l.burst)
	l.perKey[key] = limiter
	return limiter
}
