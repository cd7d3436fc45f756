package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key. The registry uses it to keep a
// slow timer from flooding the log with limit warnings.
type Limiter struct {
	limiters map[string]*entry
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a new keyed limiter
// rps: events per second per key
// burst: maximum burst size per key
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*entry),
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// GetLimiter returns the rate limiter for the given key
func (l *Limiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.limiters[key]
	if !exists {
		e = &entry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = l.now()

	return e.limiter
}

// Allow reports whether an event for key may happen now
func (l *Limiter) Allow(key string) bool {
	return l.GetLimiter(key).AllowN(l.now(), 1)
}

// CleanupOldLimiters removes limiters that haven't been used for maxAge
func (l *Limiter) CleanupOldLimiters(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxAge)
	removed := 0
	for key, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
