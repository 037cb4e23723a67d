package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireUpToCapDoesNotBlock(t *testing.T) {
	g := NewGovernor(8, time.Minute)

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		require.NoError(t, g.Acquire(ctx))
	}
	assert.Equal(t, 8, g.CurrentLoad())
}

func TestNinthCallBlocksUntilWindowSlides(t *testing.T) {
	window := 150 * time.Millisecond
	g := NewGovernor(3, window)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Acquire(ctx))
	}

	start := time.Now()
	require.NoError(t, g.Acquire(ctx))
	waited := time.Since(start)

	assert.GreaterOrEqual(t, waited, window/2, "fourth call should wait for the oldest to expire")
	assert.LessOrEqual(t, g.CurrentLoad(), 3)
}

func TestWindowSlidesWithInjectedClock(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	current := base
	g := NewGovernor(8, time.Minute)
	g.SetNowFunc(func() time.Time { return current })

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		require.NoError(t, g.Acquire(ctx))
	}
	assert.Equal(t, 8, g.CurrentLoad())

	// 61 seconds later every recorded call has left the window.
	current = base.Add(61 * time.Second)
	assert.Equal(t, 0, g.CurrentLoad())

	require.NoError(t, g.Acquire(ctx))
	assert.Equal(t, 1, g.CurrentLoad())
}

func TestCancelledAcquireConsumesNoSlot(t *testing.T) {
	g := NewGovernor(1, time.Minute)

	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := g.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.CurrentLoad(), "cancelled waiter must not consume a slot")
}

func TestNonPositiveConfigFallsBackToDefaults(t *testing.T) {
	g := NewGovernor(0, 0)
	assert.Equal(t, DefaultCap, g.Cap())
}

func TestReset(t *testing.T) {
	g := NewGovernor(4, time.Minute)
	require.NoError(t, g.Acquire(context.Background()))
	g.Reset()
	assert.Equal(t, 0, g.CurrentLoad())
}
