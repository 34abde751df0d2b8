package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/ppiankov/credence/internal/retry"
)

type scriptedProvider struct {
	errs  []error
	calls int
}

func (s *scriptedProvider) Name() string                     { return "scripted" }
func (s *scriptedProvider) IsAvailable(context.Context) bool { return true }

func (s *scriptedProvider) Complete(_ context.Context, req CompletionRequest) (*Completion, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return &Completion{Text: "ok: " + req.Prompt}, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetrying_RecoversFromTransientErrors(t *testing.T) {
	inner := &scriptedProvider{errs: []error{
		statusError("scripted", http.StatusTooManyRequests, "slow down"),
		statusError("scripted", http.StatusBadGateway, "bad gateway"),
	}}
	p := NewRetrying(inner, 3, nil, nil).WithSleep(noSleep)

	resp, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "ok: x" {
		t.Errorf("Unexpected text: %s", resp.Text)
	}
	if inner.calls != 3 {
		t.Errorf("Expected 3 calls, got %d", inner.calls)
	}
}

func TestRetrying_StopsOnPermanentError(t *testing.T) {
	inner := &scriptedProvider{errs: []error{statusError("scripted", http.StatusUnauthorized, "bad key")}}
	p := NewRetrying(inner, 3, nil, nil).WithSleep(noSleep)

	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if inner.calls != 1 {
		t.Errorf("Expected 1 call, got %d", inner.calls)
	}
}

func TestRetrying_GivesUpAfterMaxAttempts(t *testing.T) {
	transient := statusError("scripted", http.StatusServiceUnavailable, "overloaded")
	inner := &scriptedProvider{errs: []error{transient, transient, transient, transient}}
	p := NewRetrying(inner, 2, nil, nil).WithSleep(noSleep)

	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	if !errors.Is(err, retry.ErrAttemptsExhausted) {
		t.Fatalf("Expected exhausted error, got %v", err)
	}
	var llmErr *Error
	if !errors.As(err, &llmErr) || llmErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected last provider error to be preserved, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("Expected 2 calls, got %d", inner.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true},
		{errors.New("plain"), false},
		{statusError("x", 500, "boom"), true},
		{statusError("x", 404, "missing"), false},
		{&Error{Provider: "x", Err: ErrEmptyResponse}, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

type countingObserver struct {
	calls map[string]int
}

func (c *countingObserver) ObserveOracle(purpose, status string) {
	c.calls[purpose+"/"+status]++
}

func TestRetrying_ReportsOutcomes(t *testing.T) {
	obs := &countingObserver{calls: map[string]int{}}
	inner := &scriptedProvider{errs: []error{statusError("scripted", http.StatusUnauthorized, "bad key")}}
	p := NewRetrying(inner, 3, nil, nil).WithSleep(noSleep).WithObserver(obs)

	_, _ = p.Complete(context.Background(), CompletionRequest{Prompt: "x", Purpose: "extract"})
	_, _ = p.Complete(context.Background(), CompletionRequest{Prompt: "x", Purpose: "extract"})

	if obs.calls["extract/error"] != 1 || obs.calls["extract/ok"] != 1 {
		t.Errorf("Unexpected observations: %v", obs.calls)
	}
}
