package reader

import (
	"context"
	"testing"
	"time"

	"marketdata_backend/models"
	"marketdata_backend/services/cache"
	"marketdata_backend/services/store"
	"marketdata_backend/services/symbols"
	"marketdata_backend/services/timeseries"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSnapshots struct {
	quotes map[string]models.Quote
	loads  int
}

func (s *stubSnapshots) ReplaceTier(_ context.Context, tier symbols.Tier, qs []models.Quote) error {
	for _, q := range qs {
		s.quotes[q.Symbol] = q
	}
	return nil
}

func (s *stubSnapshots) Latest(_ context.Context, symbol string) (*models.Quote, error) {
	s.loads++
	q, ok := s.quotes[symbol]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := q
	return &out, nil
}

func newTestReader(t *testing.T) (*Reader, *stubSnapshots, *cache.MemoryCache, *timeseries.MemoryStore) {
	t.Helper()
	registry, err := symbols.NewRegistry(
		[]string{"AAPL"}, []string{"KO"}, []string{"IBM"},
		20*time.Minute, 60*time.Minute, 90*time.Minute,
	)
	require.NoError(t, err)

	snapshots := &stubSnapshots{quotes: make(map[string]models.Quote)}
	memCache := cache.NewMemoryCache(registry)
	series := timeseries.NewMemoryStore()

	return New(registry, memCache, snapshots, series, nil), snapshots, memCache, series
}

func storedQuote(symbol, price string) models.Quote {
	p := decimal.RequireFromString(price)
	return models.NewQuote(symbol, "", p, p, p, p, 100, p, time.Now().UTC())
}

func TestCurrentQuoteUnknownSymbol(t *testing.T) {
	r, _, _, _ := newTestReader(t)

	_, err := r.CurrentQuote(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestCurrentQuoteFallsThroughAndBackfills(t *testing.T) {
	r, snapshots, memCache, _ := newTestReader(t)
	snapshots.quotes["AAPL"] = storedQuote("AAPL", "205")

	ctx := context.Background()
	quote, err := r.CurrentQuote(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, quote.Close.Equal(decimal.RequireFromString("205")))
	assert.Equal(t, 1, snapshots.loads)

	// Backfilled: the second read is a cache hit and skips the store.
	_, hit, _ := memCache.Get(ctx, symbols.TierPremium, "AAPL")
	assert.True(t, hit)

	_, err = r.CurrentQuote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshots.loads)
}

func TestCurrentQuoteNoDataAnywhere(t *testing.T) {
	r, _, _, _ := newTestReader(t)

	_, err := r.CurrentQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCurrentQuotePrefersCache(t *testing.T) {
	r, snapshots, memCache, _ := newTestReader(t)
	snapshots.quotes["AAPL"] = storedQuote("AAPL", "205")

	cached := storedQuote("AAPL", "999")
	require.NoError(t, memCache.Put(context.Background(), symbols.TierPremium, "AAPL", cached))

	quote, err := r.CurrentQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, quote.Close.Equal(decimal.RequireFromString("999")))
	assert.Equal(t, 0, snapshots.loads)
}

func TestHistoryFromRollingWindow(t *testing.T) {
	r, _, _, series := newTestReader(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, series.Append(ctx, storedQuote("AAPL", "200")))

	bars, err := r.History(ctx, "AAPL", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].Close.Equal(decimal.RequireFromString("200")))
}

func TestHistoryUnknownSymbol(t *testing.T) {
	r, _, _, _ := newTestReader(t)

	_, err := r.History(context.Background(), "ZZZZ", time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestLatestPointsDescending(t *testing.T) {
	r, _, _, series := newTestReader(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-2 * time.Hour)
	for i := 0; i < 3; i++ {
		p := decimal.RequireFromString("200")
		q := models.NewQuote("AAPL", "", p, p, p, p, 100, p, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, series.Append(ctx, q))
	}

	points, err := r.LatestPoints(ctx, "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[0].Timestamp.After(points[1].Timestamp))
}

func TestUniverseListsAllTiers(t *testing.T) {
	r, _, _, _ := newTestReader(t)

	universe := r.Universe()
	assert.Contains(t, universe, "premium")
	assert.Contains(t, universe, "standard")
	assert.Contains(t, universe, "extended")
}
