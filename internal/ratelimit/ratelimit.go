// Package ratelimit admits or rejects submissions per actor using a sliding
// window, and throttles outbound calls to metered upstreams.
package ratelimit

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/ppiankov/credence/internal/model"
)

// ErrMissingActor is returned when a submission carries no actor identity.
var ErrMissingActor = errors.New("actor id is required")

// Decision is the outcome of an admission check
type Decision struct {
	Allowed    bool          // Whether the attempt was admitted
	Limit      int           // Effective limit for this actor and operation
	Remaining  int           // Admissions left in the current window
	RetryAfter time.Duration // Wait before the oldest recorded attempt leaves the window
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds. Denied decisions
// always report at least one second.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// Admitter decides whether an actor may start another analysis.
type Admitter interface {
	Admit(ctx context.Context, actorID string, op model.InputKind) (Decision, error)
}

// Config holds admission limits
type Config struct {
	MaxRequests       int                     // Per actor per window
	Window            time.Duration           // Sliding window length
	Operations        map[model.InputKind]int // Optional per input kind limits
	VIPActors         []string                // Actors whose limits are multiplied
	VIPMultiplier     int                     // Multiplier for VIP actors
	GlobalMaxRequests int                     // Across all actors, 0 disables
	IdleWindows       int                     // Idle windows before an actor is swept
}

// ConfigFrom converts the file configuration.
func ConfigFrom(c model.RateLimitConfig) Config {
	ops := make(map[model.InputKind]int, len(c.Operations))
	for k, v := range c.Operations {
		ops[model.InputKind(k)] = v
	}
	return Config{
		MaxRequests:       c.MaxRequests,
		Window:            c.Window(),
		Operations:        ops,
		VIPActors:         slices.Clone(c.VIPActors),
		VIPMultiplier:     c.VIPMultiplier,
		GlobalMaxRequests: c.GlobalMaxRequests,
		IdleWindows:       c.IdleWindows,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxRequests <= 0 {
		c.MaxRequests = 5
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.VIPMultiplier <= 0 {
		c.VIPMultiplier = 1
	}
	if c.IdleWindows <= 0 {
		c.IdleWindows = 10
	}
	return c
}

// limits returns the total and per-operation limit for an actor.
func (c Config) limits(vip bool, op model.InputKind) (total, perOp int) {
	mult := 1
	if vip {
		mult = c.VIPMultiplier
	}
	return c.MaxRequests * mult, c.Operations[op] * mult
}

// retryAfter is the time until oldest leaves the window.
func retryAfter(window time.Duration, now, oldest time.Time) time.Duration {
	d := window - now.Sub(oldest)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
