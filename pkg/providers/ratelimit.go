package providers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TokenBucket is a token bucket rate limiter.
//
// The bucket holds up to capacity tokens and refills at a constant rate.
// Each request consumes one token; Wait blocks until one is available.
// TokenBucket is safe for concurrent use.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a full bucket.
//
//	// 50 requests per minute, burst up to 50
//	bucket := NewTokenBucket(50, 50.0/60)
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Take consumes one token if available.
func (tb *TokenBucket) Take() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is consumed or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		delay := tb.reserve()
		if delay == 0 {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve consumes a token and returns 0, or returns how long until one is
// available.
func (tb *TokenBucket) reserve() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	if tb.tokens >= 1 {
		tb.tokens--
		return 0
	}
	missing := 1 - tb.tokens
	return time.Duration(missing / tb.refillRate * float64(time.Second))
}

// refillLocked adds tokens for the time elapsed since the last refill.
// Caller must hold tb.mu.
func (tb *TokenBucket) refillLocked() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// rateLimited throttles SendCompletion through a token bucket.
type rateLimited struct {
	Provider
	bucket *TokenBucket
}

// RateLimited wraps p so that at most requestsPerMinute completions are sent
// per minute on average. A non-positive rate returns p unchanged.
func RateLimited(p Provider, requestsPerMinute int) Provider {
	if requestsPerMinute <= 0 {
		return p
	}
	return &rateLimited{
		Provider: p,
		bucket:   NewTokenBucket(requestsPerMinute, float64(requestsPerMinute)/60),
	}
}

// SendCompletion waits for a token, then delegates. Time spent waiting
// counts against ctx.
func (r *rateLimited) SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := r.bucket.Wait(ctx); err != nil {
		return nil, fmt.Errorf("provider %q rate limit wait: %w", r.GetName(), err)
	}
	return r.Provider.SendCompletion(ctx, req)
}
