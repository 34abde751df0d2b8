package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestQuotaLimiter_New(t *testing.T) {
	l := NewQuotaLimiter(10, -1)
	if l.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l.defaultBurst)
	}
}

func TestQuotaLimiter_Exhaustion(t *testing.T) {
	l := NewQuotaLimiter(1, 1)
	ctx := context.Background()

	if err := l.Wait(ctx, "google-cse"); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}
	if l.Allow("google-cse") {
		t.Error("expected the single token to be consumed")
	}
	if !l.Allow("openai") {
		t.Error("upstreams have independent quotas")
	}
}

func TestQuotaLimiter_WaitHonoursContext(t *testing.T) {
	l := NewQuotaLimiter(0.01, 1)
	_ = l.Allow("slow")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "slow"); err == nil {
		t.Error("expected Wait to fail once the context cannot be satisfied")
	}
}

func TestQuotaLimiter_SetRate(t *testing.T) {
	l := NewQuotaLimiter(0.01, 1)
	l.SetRate("fast", 1000, 10)

	for i := range 10 {
		if !l.Allow("fast") {
			t.Fatalf("call %d should be allowed under the raised rate", i+1)
		}
	}
}

func TestQuotaLimiter_DisabledAndNil(t *testing.T) {
	l := NewQuotaLimiter(0, 1)
	for range 100 {
		if !l.Allow("any") {
			t.Fatal("a zero rate disables throttling")
		}
	}

	var nilLimiter *QuotaLimiter
	if err := nilLimiter.Wait(context.Background(), "x"); err != nil {
		t.Errorf("nil limiter should not block: %v", err)
	}
}
