package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxLimiterKeys caps the limiter table; past it the table is reset rather
// than grown.
const maxLimiterKeys = 10000

// keyedLimiter is a token-bucket limiter per key (client address or
// connection). It is safe for concurrent use.
type keyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// newKeyedLimiter returns nil, which allows everything, when limit is not
// positive.
func newKeyedLimiter(limit rate.Limit, burst int) *keyedLimiter {
	if limit <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &keyedLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether key may proceed now.
func (k *keyedLimiter) Allow(key string) bool {
	if k == nil {
		return true
	}
	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		if len(k.limiters) >= maxLimiterKeys {
			k.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = l
	}
	k.mu.Unlock()
	return l.Allow()
}

// Forget drops key's bucket.
func (k *keyedLimiter) Forget(key string) {
	if k == nil {
		return
	}
	k.mu.Lock()
	delete(k.limiters, key)
	k.mu.Unlock()
}
