package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ppiankov/credence/internal/model"
	"golang.org/x/sync/singleflight"
)

// Stats are cumulative counters for a ReportCache
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Errors    int64 `json:"errors"`    // Failed writes and undecodable entries
	Coalesced int64 `json:"coalesced"` // Callers that waited on another caller's computation
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// ComputeFunc produces a report on a cache miss.
type ComputeFunc func(ctx context.Context) (*model.CredibilityReport, error)

// ReportCache maps fingerprints to finished reports and guarantees at most
// one in-flight computation per fingerprint.
type ReportCache struct {
	store Cache
	ttl   time.Duration
	group singleflight.Group

	hits, misses, sets, errs, coalesced atomic.Int64
}

// NewReportCache wraps a byte store. ttl applies to every stored report.
func NewReportCache(store Cache, ttl time.Duration) *ReportCache {
	return &ReportCache{store: store, ttl: ttl}
}

// Get returns the stored report for a fingerprint, or false on a miss or an
// expired entry.
func (c *ReportCache) Get(ctx context.Context, fingerprint string) (*model.CredibilityReport, bool) {
	data, ok := c.store.Get(ctx, ReportKey(fingerprint))
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	var report model.CredibilityReport
	if err := json.Unmarshal(data, &report); err != nil {
		c.errs.Add(1)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &report, true
}

// Put stores a report, replacing any previous entry for the fingerprint.
func (c *ReportCache) Put(ctx context.Context, fingerprint string, report *model.CredibilityReport) error {
	stored := *report
	stored.Cached = false

	data, err := json.Marshal(&stored)
	if err != nil {
		c.errs.Add(1)
		return fmt.Errorf("encode report: %w", err)
	}
	if err := c.store.Set(ctx, ReportKey(fingerprint), data, c.ttl); err != nil {
		c.errs.Add(1)
		return err
	}
	c.sets.Add(1)
	return nil
}

// Do runs compute for fingerprint unless an identical computation is already
// running, in which case it waits for that result. shared is true when the
// result came from another caller's computation.
//
// The computation is not cancelled with the caller that started it; it keeps
// that caller's deadline as its bound. A waiter whose ctx ends returns early
// without affecting the running computation, and a waiter whose ctx is still
// live retries when the shared computation ended on someone else's context.
func (c *ReportCache) Do(ctx context.Context, fingerprint string, compute ComputeFunc) (report *model.CredibilityReport, shared bool, err error) {
	for {
		// singleflight marks every caller as shared once there is a waiter,
		// so track which caller's function actually ran.
		var ran bool
		ch := c.group.DoChan(fingerprint, func() (any, error) {
			ran = true
			computeCtx, cancel := detach(ctx)
			defer cancel()
			return compute(computeCtx)
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case res = <-ch:
		}

		shared = !ran
		if shared && res.Err != nil && isContextErr(res.Err) && ctx.Err() == nil {
			continue
		}
		if shared {
			c.coalesced.Add(1)
		}
		if res.Err != nil {
			return nil, shared, res.Err
		}
		return res.Val.(*model.CredibilityReport), shared, nil
	}
}

// detach keeps ctx's values and deadline but not its cancellation.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return context.WithCancel(detached)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Stats returns a snapshot of the counters.
func (c *ReportCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Errors:    c.errs.Load(),
		Coalesced: c.coalesced.Load(),
	}
}
