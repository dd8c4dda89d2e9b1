package gateway

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow admits at most maxCalls calls per rolling window. A
// caller over the limit waits until the oldest call in the window
// expires; calls are delayed, never dropped.
type SlidingWindow struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    []time.Time

	// now is swapped out by tests.
	now func() time.Time
	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSlidingWindow creates a limiter admitting maxCalls per window.
func NewSlidingWindow(maxCalls int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		maxCalls: maxCalls,
		window:   window,
		calls:    make([]time.Time, 0, maxCalls),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Wait blocks until the caller may proceed or the context is done. On
// success the call is recorded in the window.
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		sw.mu.Lock()
		now := sw.now()
		sw.evict(now)

		if len(sw.calls) < sw.maxCalls {
			sw.calls = append(sw.calls, now)
			sw.mu.Unlock()
			return nil
		}

		// Oldest call decides how long until a slot frees up.
		wait := sw.window - now.Sub(sw.calls[0])
		sw.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := sw.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Pending returns the number of calls currently inside the window.
func (sw *SlidingWindow) Pending() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.evict(sw.now())
	return len(sw.calls)
}

// evict drops calls older than the window. Caller holds the lock.
func (sw *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(sw.calls) && !sw.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		sw.calls = append(sw.calls[:0], sw.calls[i:]...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
