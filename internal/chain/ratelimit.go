package chain

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per API host with a token bucket.
// Public Esplora instances ban clients that scan too fast.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing ratePerSecond requests with the given burst.
// A non-positive rate disables limiting.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    max(burst, 1),
	}
}

// DefaultRateLimiter allows 5 requests/second with a burst of 10.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(5, 10)
}

// Wait blocks until a request to host is allowed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, host string) error {
	return r.limiter(host).Wait(ctx)
}

// Allow reports whether a request to host may proceed now.
func (r *RateLimiter) Allow(host string) bool {
	return r.limiter(host).Allow()
}

func (r *RateLimiter) limiter(host string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[host]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[host] = l
	}
	return l
}
