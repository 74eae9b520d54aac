package openai

import (
	"context"
	"testing"
	"time"
)

func TestTryAcquire(t *testing.T) {
	rl := newRateLimiter(2, time.Hour)

	if !rl.tryAcquire() || !rl.tryAcquire() {
		t.Fatal("Expected the initial tokens to be available")
	}
	if rl.tryAcquire() {
		t.Error("Expected an empty bucket")
	}
}

func TestAcquireCanceled(t *testing.T) {
	rl := newRateLimiter(1, time.Hour)
	rl.tryAcquire() // drain

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := rl.Acquire(ctx); err == nil {
		t.Fatal("Expected a context error")
	}
}
