package llm

import (
	"context"
	"time"

	"github.com/ppiankov/credence/internal/logger"
	"github.com/ppiankov/credence/internal/ratelimit"
	"github.com/ppiankov/credence/internal/retry"
)

// Retrying wraps a Provider with bounded retries on transient failures and
// an optional outbound quota shared across callers.
type Retrying struct {
	inner Provider
	retry retry.Config
	quota *ratelimit.QuotaLimiter
	obs   CallObserver
	log   logger.Logger
}

// CallObserver is told the outcome of every Complete call ("ok" or "error").
type CallObserver interface {
	ObserveOracle(purpose, status string)
}

// NewRetrying wraps p. maxAttempts includes the first call.
func NewRetrying(p Provider, maxAttempts int, quota *ratelimit.QuotaLimiter, log logger.Logger) *Retrying {
	cfg := retry.DefaultConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	cfg.IsRetryable = IsRetryable
	return &Retrying{inner: p, retry: cfg, quota: quota, log: logger.OrNop(log)}
}

// WithSleep replaces the backoff sleep; tests use it to skip delays.
func (r *Retrying) WithSleep(sleep func(context.Context, time.Duration) error) *Retrying {
	r.retry.Sleep = sleep
	return r
}

// WithObserver reports call outcomes to o.
func (r *Retrying) WithObserver(o CallObserver) *Retrying {
	r.obs = o
	return r
}

// Name returns the wrapped provider's name
func (r *Retrying) Name() string { return r.inner.Name() }

// IsAvailable delegates to the wrapped provider
func (r *Retrying) IsAvailable(ctx context.Context) bool { return r.inner.IsAvailable(ctx) }

// Complete calls the wrapped provider until it succeeds, fails permanently,
// or attempts run out.
func (r *Retrying) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	var out *Completion
	attempts, err := retry.Do(ctx, r.retry, func(ctx context.Context) error {
		if err := r.quota.Wait(ctx, "llm:"+r.inner.Name()); err != nil {
			return err
		}
		c, err := r.inner.Complete(ctx, req)
		if err != nil {
			r.log.Debug("oracle call failed",
				logger.String("provider", r.inner.Name()),
				logger.String("purpose", req.Purpose),
				logger.Error(err))
			return err
		}
		out = c
		return nil
	})
	r.observe(req.Purpose, err)
	if err != nil {
		r.log.Warn("oracle unavailable",
			logger.String("provider", r.inner.Name()),
			logger.String("purpose", req.Purpose),
			logger.Int("attempts", attempts),
			logger.Error(err))
		return nil, err
	}
	return out, nil
}

func (r *Retrying) observe(purpose string, err error) {
	if r.obs == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.obs.ObserveOracle(purpose, status)
}
