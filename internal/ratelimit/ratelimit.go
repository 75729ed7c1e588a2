// Package ratelimit provides a keyed token-bucket limiter for outbound
// requests to the listing backend.
package ratelimit

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrStopped is returned by Wait once the limiter has been stopped.
var ErrStopped = errors.New("ratelimit: limiter stopped")

// KeyedRateLimiter manages per-key rate limiting.
// Each unique key (a resource name such as "listing" or "contact") gets its
// own bucket. A limiter built with rps <= 0 never delays.
type KeyedRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new keyed rate limiter.
// rps: requests per second allowed, <= 0 means unlimited.
// burst: maximum burst size (tokens available immediately).
func New(rps float64, burst int) *KeyedRateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	// A zero burst would reject every request even with tokens available.
	if burst < 1 {
		burst = 1
	}
	return &KeyedRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		done:     make(chan struct{}),
	}
}

// Allow checks if a request for the given key should be allowed now.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	if krl.stopped() {
		return false
	}
	return krl.getLimiter(key).Allow()
}

// Wait blocks until a request for the given key is allowed, the context is
// canceled, or the limiter is stopped.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	if krl.stopped() {
		return ErrStopped
	}

	// Stop must wake waiters blocked inside rate.Limiter.Wait, which only
	// watches its context. The goroutine exits when Wait returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-krl.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := krl.getLimiter(key).Wait(ctx); err != nil {
		// The cancel may have come from Stop rather than the caller.
		if krl.stopped() {
			return ErrStopped
		}
		return err
	}
	return nil
}

// getLimiter returns the limiter for a key, creating one if needed.
func (krl *KeyedRateLimiter) getLimiter(key string) *rate.Limiter {
	krl.mu.RLock()
	limiter, exists := krl.limiters[key]
	krl.mu.RUnlock()

	if exists {
		return limiter
	}

	krl.mu.Lock()
	defer krl.mu.Unlock()

	// Double-check after acquiring the write lock.
	if limiter, exists = krl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(krl.limit, krl.burst)
	krl.limiters[key] = limiter
	return limiter
}

// Stop releases waiters and makes every later Wait fail with ErrStopped.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

func (krl *KeyedRateLimiter) stopped() bool {
	select {
	case <-krl.done:
		return true
	default:
		return false
	}
}
