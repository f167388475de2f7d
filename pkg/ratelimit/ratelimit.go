package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/webclipper/clipper-api/pkg/logger"
	"go.uber.org/zap"
)

const (
	// Airtable allows 5 requests per second per base
	defaultLimit  = 5
	defaultWindow = time.Second

	// safetyMargin is added to every computed wait so a request never lands
	// exactly on the window boundary
	safetyMargin = 10 * time.Millisecond

	// idleEviction drops per-key state that has seen no traffic for this long
	idleEviction = 5 * time.Minute
)

// Status describes the current window occupancy for a key.
type Status struct {
	RequestsInWindow   int  `json:"requestsInWindow"`
	RemainingCapacity  int  `json:"remainingCapacity"`
	CanSendImmediately bool `json:"canSendImmediately"`
}

// window is a bounded ring buffer of the most recent request-start timestamps
// for one key. Capacity equals the admission limit, so memory per key is fixed.
type window struct {
	mu     sync.Mutex
	stamps []time.Time
	head   int
	count  int
	last   time.Time
}

// Limiter performs sliding-window admission control per key. Keys are fully
// independent: saturating one never delays another. State is in-memory only;
// a fresh process starts with empty windows.
type Limiter struct {
	mu      sync.RWMutex
	keys    map[string]*window
	limit   int
	period  time.Duration
	done    chan struct{}
	now     func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error
}

// New creates a limiter with the Airtable defaults (5 requests / 1s window)
// and starts the idle-key janitor.
func New() *Limiter {
	return NewWithLimit(defaultLimit, defaultWindow)
}

// NewWithLimit creates a limiter with a custom limit and window.
func NewWithLimit(limit int, period time.Duration) *Limiter {
	l := &Limiter{
		keys:    make(map[string]*window),
		limit:   limit,
		period:  period,
		done:    make(chan struct{}),
		now:     time.Now,
		sleepFn: sleepCtx,
	}
	go l.evictIdle()
	return l
}

// Close stops the janitor goroutine.
func (l *Limiter) Close() {
	close(l.done)
}

// Throttle admits the call for key, waiting first if the window is full, then
// invokes op and propagates its result unchanged. The recorded slot is kept
// even when op fails, so retries cannot evade the limit.
func (l *Limiter) Throttle(ctx context.Context, key string, op func() error) error {
	w := l.window(key)

	for {
		wait, admitted := w.admit(l.now(), l.limit, l.period)
		if admitted {
			break
		}
		logger.Debug("rate limit reached, waiting",
			zap.String("key", key),
			zap.Duration("wait", wait))
		if err := l.sleepFn(ctx, wait); err != nil {
			return err
		}
	}

	return op()
}

// Status reports window occupancy for a key without consuming a slot.
func (l *Limiter) Status(key string) Status {
	l.mu.RLock()
	w, ok := l.keys[key]
	l.mu.RUnlock()

	if !ok {
		return Status{RemainingCapacity: l.limit, CanSendImmediately: true}
	}

	w.mu.Lock()
	w.prune(l.now(), l.period)
	n := w.count
	w.mu.Unlock()

	return Status{
		RequestsInWindow:   n,
		RemainingCapacity:  l.limit - n,
		CanSendImmediately: n < l.limit,
	}
}

// ClearKey discards all recorded timestamps for a key.
func (l *Limiter) ClearKey(key string) {
	l.mu.Lock()
	delete(l.keys, key)
	l.mu.Unlock()
}

func (l *Limiter) window(key string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.keys[key]
	if !ok {
		w = &window{stamps: make([]time.Time, l.limit)}
		l.keys[key] = w
	}
	return w
}

func (l *Limiter) evictIdle() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
		}

		cutoff := l.now().Add(-idleEviction)
		l.mu.Lock()
		for key, w := range l.keys {
			w.mu.Lock()
			idle := w.last.Before(cutoff)
			w.mu.Unlock()
			if idle {
				delete(l.keys, key)
			}
		}
		l.mu.Unlock()
	}
}

// admit tries to record a request start at now. It returns (0, true) when a
// slot was taken, or (wait, false) with the delay until the oldest stamp exits
// the window. The check and the write happen under one lock, so two callers
// can never both take the last slot.
func (w *window) admit(now time.Time, limit int, period time.Duration) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now, period)

	if w.count >= limit {
		oldest := w.stamps[w.head]
		wait := period - now.Sub(oldest) + safetyMargin
		if wait < safetyMargin {
			wait = safetyMargin
		}
		return wait, false
	}

	w.stamps[(w.head+w.count)%len(w.stamps)] = now
	w.count++
	w.last = now
	return 0, true
}

// prune discards timestamps that have left the trailing window.
func (w *window) prune(now time.Time, period time.Duration) {
	for w.count > 0 && now.Sub(w.stamps[w.head]) >= period {
		w.head = (w.head + 1) % len(w.stamps)
		w.count--
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
