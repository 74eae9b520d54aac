package openai

import (
	"context"
	"sync"
	"time"
)

// rateLimiter is a token bucket: rate tokens refill evenly over window.
// It keeps request bursts to the API under the account limits.
type rateLimiter struct {
	mu       sync.Mutex // guards lastTime and tokens
	lastTime time.Time
	tokens   int

	window time.Duration
	rate   int
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		window:   window,
		rate:     rate,
		lastTime: time.Now(),
		tokens:   rate,
	}
}

// Acquire blocks until a token is available or ctx is done. A nil return
// means the caller may proceed.
func (rl *rateLimiter) Acquire(ctx context.Context) error {
	for {
		if rl.tryAcquire() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.window / time.Duration(rl.rate)):
			// The bucket was empty. Tokens accrue evenly across the
			// window, so after 1/rate of the window at least one more
			// should be available. Retry then.
		}
	}
}

func (rl *rateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Credit tokens for the time elapsed since the last call, capped at
	// the bucket size.
	now := time.Now()
	elapsed := now.Sub(rl.lastTime)
	rl.lastTime = now

	rl.tokens += int(elapsed.Nanoseconds() * int64(rl.rate) / rl.window.Nanoseconds())
	rl.tokens = min(rl.tokens, rl.rate)

	if rl.tokens <= 0 {
		return false
	}
	rl.tokens--
	return true
}
