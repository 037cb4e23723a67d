package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default budget shared across every refresh schedule.
const (
	DefaultCap    = 8
	DefaultWindow = 60 * time.Second
)

// Governor enforces a global sliding-window cap on outbound quote provider
// calls. It is the single choke point shared by all tier refresh schedules:
// Acquire blocks until recording one more call would not push the count of
// calls inside the trailing window above the cap.
type Governor struct {
	cap    int
	window time.Duration

	mu    sync.Mutex
	calls []time.Time // ordered, oldest first; len never exceeds cap
	now   func() time.Time
}

// NewGovernor creates a governor with the given cap per window. Non-positive
// arguments fall back to the defaults (8 calls per 60 seconds).
func NewGovernor(callCap int, window time.Duration) *Governor {
	if callCap <= 0 {
		callCap = DefaultCap
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Governor{
		cap:    callCap,
		window: window,
		calls:  make([]time.Time, 0, callCap),
		now:    time.Now,
	}
}

// SetNowFunc overrides the time source. Intended for tests.
func (g *Governor) SetNowFunc(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

// Acquire blocks until a call slot is free inside the trailing window, then
// records the call and returns. If the context is cancelled while waiting it
// returns the context error and no slot is consumed.
func (g *Governor) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		g.mu.Lock()
		now := g.now()
		g.purgeLocked(now)
		if len(g.calls) < g.cap {
			g.calls = append(g.calls, now)
			g.mu.Unlock()
			return nil
		}
		// Wait until the oldest recorded call leaves the window.
		wait := g.calls[0].Add(g.window).Sub(now)
		g.mu.Unlock()

		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// CurrentLoad returns the number of calls recorded inside the trailing
// window. Read-only observability; the underlying structure is never
// exposed.
func (g *Governor) CurrentLoad() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.purgeLocked(g.now())
	return len(g.calls)
}

// Cap returns the configured window cap.
func (g *Governor) Cap() int {
	return g.cap
}

// Reset clears the recorded call window.
func (g *Governor) Reset() {
	g.mu.Lock()
	g.calls = g.calls[:0]
	g.mu.Unlock()
}

// purgeLocked drops calls older than the window. Caller holds g.mu.
func (g *Governor) purgeLocked(now time.Time) {
	cutoff := now.Add(-g.window)
	idx := 0
	for idx < len(g.calls) && !g.calls[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		g.calls = append(g.calls[:0], g.calls[idx:]...)
	}
}
