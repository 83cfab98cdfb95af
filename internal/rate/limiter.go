// Package rate provides per-identifier request throttling backed by
// token buckets. Each identifier gets its own bucket; idle buckets are
// pruned so the map does not grow without bound.
package rate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter throttles operations per identifier, allowing at most burst
// operations per window.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	maxIdle time.Duration

	nowFunc func() time.Time
}

// NewLimiter allows burst operations per identifier within each window.
func NewLimiter(burst int, window time.Duration) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(window / time.Duration(burst)),
		burst:   burst,
		maxIdle: 2 * window,
		nowFunc: time.Now,
	}
}

// Allow reports whether the identifier may proceed, consuming one token
// when it can.
func (l *Limiter) Allow(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[identifier]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[identifier] = b
	}
	b.lastSeen = now

	return b.limiter.AllowN(now, 1)
}

// Prune drops buckets that have been idle longer than twice the window.
// Returns the number of buckets removed.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	removed := 0
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.maxIdle {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}

// Size reports the number of tracked identifiers.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
