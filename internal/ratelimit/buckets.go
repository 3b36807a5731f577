// Package ratelimit keeps per-key token buckets backed by
// golang.org/x/time/rate. It is shared by the HTTP middleware (keyed by user
// or client IP) and the connection gateway (keyed by session).
//
// Buckets are process-local. Idle buckets are evicted opportunistically so
// memory stays bounded without a background goroutine.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTTL   = 10 * time.Minute
	gcEveryCalls = 5000
)

// visitor holds a single rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Buckets is a per-key token-bucket store. Safe for concurrent use.
type Buckets struct {
	rps      rate.Limit
	burst    int
	ttl      time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
	calls    uint64
	now      func() time.Time
}

// New returns a store refilling rps tokens per second up to burst. A burst
// <= 0 is coerced to 1.
func New(rps float64, burst int) *Buckets {
	if burst <= 0 {
		burst = 1
	}
	return &Buckets{
		rps:      rate.Limit(rps),
		burst:    burst,
		ttl:      defaultTTL,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Limiter returns the bucket for key, creating it if absent.
//
// Cleanup runs before the requested entry is touched so an idle bucket can
// be evicted even when it is the one being fetched.
func (b *Buckets) Limiter(key string) *rate.Limiter {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls++
	if b.calls >= gcEveryCalls {
		for k, v := range b.visitors {
			if now.Sub(v.lastSeen) >= b.ttl {
				delete(b.visitors, k)
			}
		}
		b.calls = 0
	}

	if v, ok := b.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(b.rps, b.burst)
	b.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Allow consumes one token from key's bucket.
func (b *Buckets) Allow(key string) bool {
	return b.Limiter(key).Allow()
}

// Forget drops key's bucket.
func (b *Buckets) Forget(key string) {
	b.mu.Lock()
	delete(b.visitors, key)
	b.mu.Unlock()
}

// Len returns the number of live buckets.
func (b *Buckets) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.visitors)
}

// Burst returns the configured bucket size.
func (b *Buckets) Burst() int { return b.burst }
