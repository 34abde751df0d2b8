package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/credence/internal/model"
)

type attempt struct {
	at time.Time
	op model.InputKind
}

// actorWindow holds one actor's admitted attempts. It has its own lock so
// that checks for different actors never contend.
type actorWindow struct {
	mu       sync.Mutex
	attempts []attempt
	lastSeen time.Time
	removed  bool // set by the sweeper; holders must re-resolve the window
}

// prune drops attempts at or before cutoff.
func (w *actorWindow) prune(cutoff time.Time) {
	i := 0
	for i < len(w.attempts) && !w.attempts[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		w.attempts = append(w.attempts[:0], w.attempts[i:]...)
	}
}

// oldest returns the oldest attempt, optionally restricted to one operation.
func (w *actorWindow) oldest(op model.InputKind) (time.Time, int) {
	var first time.Time
	n := 0
	for _, a := range w.attempts {
		if op != "" && a.op != op {
			continue
		}
		if n == 0 {
			first = a.at
		}
		n++
	}
	return first, n
}

// Stats summarizes limiter activity
type Stats struct {
	Admitted     int64 `json:"admitted"`
	Denied       int64 `json:"denied"`
	ActiveActors int   `json:"active_actors"`
}

// ActorStats describes one actor's current window
type ActorStats struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// SlidingWindow is an in-process Admitter. Denied attempts are not recorded,
// so a denied actor regains capacity as soon as its oldest admitted attempt
// leaves the window.
type SlidingWindow struct {
	cfg Config
	now func() time.Time
	vip map[string]bool

	mu     sync.RWMutex
	actors map[string]*actorWindow

	global *actorWindow

	sweepMu   sync.Mutex
	lastSweep time.Time

	admitted atomic.Int64
	denied   atomic.Int64
}

// Option configures a SlidingWindow.
type Option func(*SlidingWindow)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindow) { l.now = now }
}

// NewSlidingWindow creates an in-memory limiter.
func NewSlidingWindow(cfg Config, opts ...Option) *SlidingWindow {
	cfg = cfg.withDefaults()
	l := &SlidingWindow{
		cfg:    cfg,
		now:    time.Now,
		vip:    make(map[string]bool, len(cfg.VIPActors)),
		actors: make(map[string]*actorWindow),
	}
	for _, a := range cfg.VIPActors {
		l.vip[a] = true
	}
	if cfg.GlobalMaxRequests > 0 {
		l.global = &actorWindow{}
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Admit records an attempt for actorID if it fits in the window.
func (l *SlidingWindow) Admit(_ context.Context, actorID string, op model.InputKind) (Decision, error) {
	if actorID == "" {
		return Decision{}, ErrMissingActor
	}

	now := l.now()
	l.maybeSweep(now)

	for {
		w := l.window(actorID)
		w.mu.Lock()
		if w.removed {
			w.mu.Unlock()
			continue
		}
		d := l.admitLocked(w, actorID, op, now)
		w.mu.Unlock()

		if d.Allowed {
			l.admitted.Add(1)
		} else {
			l.denied.Add(1)
		}
		return d, nil
	}
}

func (l *SlidingWindow) admitLocked(w *actorWindow, actorID string, op model.InputKind, now time.Time) Decision {
	cutoff := now.Add(-l.cfg.Window)
	w.prune(cutoff)
	w.lastSeen = now

	total, perOp := l.cfg.limits(l.vip[actorID], op)

	if len(w.attempts) >= total {
		oldest, _ := w.oldest("")
		return Decision{Limit: total, RetryAfter: retryAfter(l.cfg.Window, now, oldest)}
	}
	if perOp > 0 {
		if oldest, n := w.oldest(op); n >= perOp {
			return Decision{Limit: perOp, RetryAfter: retryAfter(l.cfg.Window, now, oldest)}
		}
	}

	if l.global != nil {
		l.global.mu.Lock()
		l.global.prune(cutoff)
		if len(l.global.attempts) >= l.cfg.GlobalMaxRequests {
			oldest, _ := l.global.oldest("")
			l.global.mu.Unlock()
			return Decision{Limit: l.cfg.GlobalMaxRequests, RetryAfter: retryAfter(l.cfg.Window, now, oldest)}
		}
		l.global.attempts = append(l.global.attempts, attempt{at: now, op: op})
		l.global.mu.Unlock()
	}

	w.attempts = append(w.attempts, attempt{at: now, op: op})
	return Decision{Allowed: true, Limit: total, Remaining: total - len(w.attempts)}
}

// window returns the actor's window, creating it on first use.
func (l *SlidingWindow) window(actorID string) *actorWindow {
	l.mu.RLock()
	w, ok := l.actors[actorID]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.actors[actorID]; ok {
		return w
	}
	w = &actorWindow{}
	l.actors[actorID] = w
	return w
}

// maybeSweep runs Sweep at most once per window, from whichever caller
// notices first.
func (l *SlidingWindow) maybeSweep(now time.Time) {
	if !l.sweepMu.TryLock() {
		return
	}
	due := now.Sub(l.lastSweep) >= l.cfg.Window
	if due {
		l.lastSweep = now
	}
	l.sweepMu.Unlock()
	if due {
		l.Sweep()
	}
}

// Sweep removes actors idle for more than IdleWindows windows and returns
// how many were removed.
func (l *SlidingWindow) Sweep() int {
	idleCutoff := l.now().Add(-time.Duration(l.cfg.IdleWindows) * l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.actors {
		w.mu.Lock()
		if w.lastSeen.Before(idleCutoff) {
			w.removed = true
			delete(l.actors, id)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Run sweeps idle actors every window until ctx is done.
func (l *SlidingWindow) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Reset forgets an actor's window.
func (l *SlidingWindow) Reset(actorID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.actors[actorID]; ok {
		w.mu.Lock()
		w.removed = true
		w.mu.Unlock()
		delete(l.actors, actorID)
	}
}

// Stats returns cumulative counters.
func (l *SlidingWindow) Stats() Stats {
	l.mu.RLock()
	active := len(l.actors)
	l.mu.RUnlock()
	return Stats{
		Admitted:     l.admitted.Load(),
		Denied:       l.denied.Load(),
		ActiveActors: active,
	}
}

// ActorStats reports an actor's usage without recording an attempt.
func (l *SlidingWindow) ActorStats(actorID string) ActorStats {
	total, _ := l.cfg.limits(l.vip[actorID], "")

	l.mu.RLock()
	w, ok := l.actors[actorID]
	l.mu.RUnlock()
	if !ok {
		return ActorStats{Limit: total, Remaining: total}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(l.now().Add(-l.cfg.Window))
	used := len(w.attempts)
	return ActorStats{Used: used, Limit: total, Remaining: max(total-used, 0)}
}
