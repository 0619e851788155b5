// Package ratelimit provides the per-tier token buckets behind the API's
// request throttling. Each tier (auth, upload, write, read) owns one Limiter;
// a Limiter keys its buckets by caller identity ("ip:..." or "user:...").
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepEvery is both the sweep interval and the idle age after which an
// untouched, refilled bucket is dropped.
const sweepEvery = 10 * time.Minute

// Result is the outcome of one rate limit check, carrying everything the
// X-RateLimit-* headers need.
type Result struct {
	Allowed    bool
	Limit      int           // requests per window
	Remaining  int           // requests left in current window
	ResetAt    time.Time     // when the bucket will be full again
	RetryAfter time.Duration // how long to wait before retrying (0 if allowed)
}

// Limiter holds one token bucket per caller key.
type Limiter struct {
	refill    rate.Limit
	burst     int
	perWindow int

	mu      sync.Mutex
	buckets map[string]*clientBucket
	done    chan struct{}
}

type clientBucket struct {
	tokens  *rate.Limiter
	touched time.Time
}

// NewLimiter allows requests per window with the given burst capacity.
func NewLimiter(requests int, window time.Duration, burst int) *Limiter {
	l := &Limiter{
		refill:    rate.Limit(float64(requests) / window.Seconds()),
		burst:     burst,
		perWindow: requests,
		buckets:   make(map[string]*clientBucket),
		done:      make(chan struct{}),
	}
	go l.janitor()
	return l
}

// take returns the key's bucket, creating it on first sight.
func (l *Limiter) take(key string) *clientBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buckets[key]
	if b == nil {
		b = &clientBucket{tokens: rate.NewLimiter(l.refill, l.burst)}
		l.buckets[key] = b
	}
	b.touched = time.Now()
	return b
}

// Allow checks whether a request under the given key may proceed now. The
// token is only consumed when the answer is yes.
func (l *Limiter) Allow(key string) Result {
	b := l.take(key)

	now := time.Now()
	rsv := b.tokens.ReserveN(now, 1)
	allowed := rsv.OK() && rsv.Delay() == 0
	if !allowed && rsv.OK() {
		rsv.Cancel()
	}

	remaining := max(int(b.tokens.Tokens()), 0)
	missing := float64(l.burst) - b.tokens.Tokens()
	resetAt := now.Add(time.Duration(missing/float64(l.refill)) * time.Second)

	var retryAfter time.Duration
	if !allowed {
		// One token's worth of refill, with a one second floor.
		retryAfter = max(time.Duration(1/float64(l.refill))*time.Second, time.Second)
	}

	return Result{
		Allowed:    allowed,
		Limit:      l.perWindow,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep(time.Now())
		case <-l.done:
			return
		}
	}
}

// sweep drops buckets that are idle and fully refilled. A bucket still owing
// tokens is kept so a busy caller cannot reset their budget by going quiet.
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := now.Add(-sweepEvery)
	for key, b := range l.buckets {
		if b.touched.Before(cutoff) && b.tokens.Tokens() >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// Close stops the sweep goroutine.
func (l *Limiter) Close() {
	close(l.done)
}
