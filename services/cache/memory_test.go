package cache

import (
	"context"
	"testing"
	"time"

	"marketdata_backend/models"
	"marketdata_backend/services/symbols"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *symbols.Registry {
	t.Helper()
	r, err := symbols.NewRegistry(
		[]string{"AAPL"}, []string{"KO"}, []string{"IBM"},
		20*time.Minute, 60*time.Minute, 90*time.Minute,
	)
	require.NoError(t, err)
	return r
}

func testQuote(symbol string, price string, at time.Time) models.Quote {
	p := decimal.RequireFromString(price)
	return models.NewQuote(symbol, "", p, p, p, p, 100, p, at)
}

func TestGetMissOnEmptyCache(t *testing.T) {
	c := NewMemoryCache(newTestRegistry(t))

	_, hit, err := c.Get(context.Background(), symbols.TierPremium, "AAPL")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestPutThenGetWithinTTL(t *testing.T) {
	base := time.Date(2026, 3, 3, 15, 30, 0, 0, time.UTC)
	current := base

	c := NewMemoryCache(newTestRegistry(t))
	c.SetNowFunc(func() time.Time { return current })

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, symbols.TierPremium, "AAPL", testQuote("AAPL", "210", base)))

	// 19 minutes later the premium entry (20 min TTL) is still live.
	current = base.Add(19 * time.Minute)
	quote, hit, err := c.Get(ctx, symbols.TierPremium, "AAPL")
	require.NoError(t, err)
	require.True(t, hit)
	assert.True(t, quote.Close.Equal(decimal.RequireFromString("210")))

	// At exactly the TTL the entry has expired.
	current = base.Add(20 * time.Minute)
	_, hit, err = c.Get(ctx, symbols.TierPremium, "AAPL")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestTTLFollowsTier(t *testing.T) {
	base := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	current := base

	c := NewMemoryCache(newTestRegistry(t))
	c.SetNowFunc(func() time.Time { return current })

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, symbols.TierPremium, "AAPL", testQuote("AAPL", "210", base)))
	require.NoError(t, c.Put(ctx, symbols.TierStandard, "KO", testQuote("KO", "60", base)))

	current = base.Add(45 * time.Minute)

	_, hit, _ := c.Get(ctx, symbols.TierPremium, "AAPL")
	assert.False(t, hit, "premium entry expired after 20 minutes")

	_, hit, _ = c.Get(ctx, symbols.TierStandard, "KO")
	assert.True(t, hit, "standard entry lives for 60 minutes")
}

func TestInvalidateTierDropsOnlyThatTier(t *testing.T) {
	c := NewMemoryCache(newTestRegistry(t))
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, c.Put(ctx, symbols.TierPremium, "AAPL", testQuote("AAPL", "210", now)))
	require.NoError(t, c.Put(ctx, symbols.TierStandard, "KO", testQuote("KO", "60", now)))

	require.NoError(t, c.InvalidateTier(ctx, symbols.TierPremium))

	_, hit, _ := c.Get(ctx, symbols.TierPremium, "AAPL")
	assert.False(t, hit)

	_, hit, _ = c.Get(ctx, symbols.TierStandard, "KO")
	assert.True(t, hit)

	assert.Equal(t, 0, c.Len(symbols.TierPremium))
	assert.Equal(t, 1, c.Len(symbols.TierStandard))
}

// A premium quote cached at 15:30 must be served at 15:49 and gone by
// 15:51 even if no refresh cycle has run in between.
func TestEntryNeverOutlivesRefreshInterval(t *testing.T) {
	base := time.Date(2026, 3, 3, 15, 30, 0, 0, time.UTC)
	current := base

	c := NewMemoryCache(newTestRegistry(t))
	c.SetNowFunc(func() time.Time { return current })

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, symbols.TierPremium, "AAPL", testQuote("AAPL", "210", base)))

	current = base.Add(19 * time.Minute)
	_, hit, _ := c.Get(ctx, symbols.TierPremium, "AAPL")
	assert.True(t, hit)

	current = base.Add(21 * time.Minute)
	_, hit, _ = c.Get(ctx, symbols.TierPremium, "AAPL")
	assert.False(t, hit)
}
