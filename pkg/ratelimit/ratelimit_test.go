package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter deterministically: sleeps advance the clock
// instead of blocking, and every requested wait is recorded.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(clock *fakeClock) *Limiter {
	l := NewWithLimit(5, time.Second)
	l.now = clock.Now
	l.sleepFn = clock.Sleep
	return l
}

func TestThrottle_UnderLimitNeverWaits(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	calls := 0
	for i := 0; i < 5; i++ {
		err := l.Throttle(context.Background(), "appBase1", func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 5, calls)
	assert.Empty(t, clock.waits, "first 5 calls in a window must be admitted immediately")
}

func TestThrottle_SixthCallWaitsForOldestToExit(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Throttle(context.Background(), "appBase1", func() error { return nil }))
	}

	require.NoError(t, l.Throttle(context.Background(), "appBase1", func() error { return nil }))

	require.Len(t, clock.waits, 1)
	// All 5 stamps share one instant, so the wait is the full window plus margin
	assert.Equal(t, time.Second+10*time.Millisecond, clock.waits[0])
}

func TestThrottle_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Throttle(context.Background(), "appBaseA", func() error { return nil }))
	}

	// Base A is saturated; base B must still be admitted without waiting
	require.NoError(t, l.Throttle(context.Background(), "appBaseB", func() error { return nil }))
	assert.Empty(t, clock.waits)
}

func TestThrottle_WindowSlides(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Throttle(context.Background(), "appBase1", func() error { return nil }))
	}

	// After the window has fully passed, capacity is back
	clock.Advance(1100 * time.Millisecond)
	require.NoError(t, l.Throttle(context.Background(), "appBase1", func() error { return nil }))
	assert.Empty(t, clock.waits)
}

func TestThrottle_FailedOperationStillConsumesSlot(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		err := l.Throttle(context.Background(), "appBase1", func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	// All 5 failed, but their slots are consumed: the next call must wait
	require.NoError(t, l.Throttle(context.Background(), "appBase1", func() error { return nil }))
	assert.Len(t, clock.waits, 1)
}

func TestThrottle_PropagatesResultUnchanged(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	sentinel := errors.New("sentinel")
	err := l.Throttle(context.Background(), "appBase1", func() error { return sentinel })
	assert.Equal(t, sentinel, err)
}

func TestThrottle_ContextCancelledWhileWaiting(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Throttle(context.Background(), "appBase1", func() error { return nil }))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.sleepFn = sleepCtx // real sleep honors cancellation

	called := false
	err := l.Throttle(ctx, "appBase1", func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called, "operation must not run when the wait is cancelled")
}

func TestThrottle_ConcurrentAdmissionNeverOversubscribes(t *testing.T) {
	l := NewWithLimit(5, time.Second)
	defer l.Close()

	var mu sync.Mutex
	var starts []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Throttle(context.Background(), "appBase1", func() error {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	require.Len(t, starts, 12)
	// No rolling 1s window may contain more than 5 starts
	for _, anchor := range starts {
		n := 0
		for _, s := range starts {
			d := s.Sub(anchor)
			if d >= 0 && d < time.Second {
				n++
			}
		}
		assert.LessOrEqual(t, n, 5, "more than 5 operations started within one rolling window")
	}
}

func TestStatus(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	st := l.Status("appBase1")
	assert.True(t, st.CanSendImmediately)
	assert.Equal(t, 5, st.RemainingCapacity)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Throttle(context.Background(), "appBase1", func() error { return nil }))
	}

	st = l.Status("appBase1")
	assert.False(t, st.CanSendImmediately)
	assert.Equal(t, 5, st.RequestsInWindow)
	assert.Equal(t, 0, st.RemainingCapacity)
}

func TestClearKey(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Throttle(context.Background(), "appBase1", func() error { return nil }))
	}

	l.ClearKey("appBase1")
	require.NoError(t, l.Throttle(context.Background(), "appBase1", func() error { return nil }))
	assert.Empty(t, clock.waits)
}
