package refresher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketdata_backend/models"
	"marketdata_backend/services/alerts"
	"marketdata_backend/services/cache"
	"marketdata_backend/services/marketclock"
	"marketdata_backend/services/notify"
	"marketdata_backend/services/quotes"
	"marketdata_backend/services/ratelimit"
	"marketdata_backend/services/symbols"
	"marketdata_backend/services/timeseries"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu      sync.Mutex
	prices  map[string]string // symbol -> close price; missing symbol fails
	fetches []string
}

func (f *fakeClient) Fetch(_ context.Context, symbol string) (*models.Quote, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, symbol)
	price, ok := f.prices[symbol]
	f.mu.Unlock()

	if !ok {
		return nil, &quotes.FetchError{Symbol: symbol, Reason: "provider unavailable"}
	}
	p := decimal.RequireFromString(price)
	q := models.NewQuote(symbol, "", p, p, p, p, 100, p, time.Now().UTC())
	return &q, nil
}

func (f *fakeClient) TimeSeries(_ context.Context, symbol string, days int) ([]quotes.Bar, error) {
	return nil, &quotes.FetchError{Symbol: symbol, Reason: "not implemented"}
}

func (f *fakeClient) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

type fakeSnapshots struct {
	mu       sync.Mutex
	replaced map[symbols.Tier][][]models.Quote
	failWith error
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{replaced: make(map[symbols.Tier][][]models.Quote)}
}

func (f *fakeSnapshots) ReplaceTier(_ context.Context, tier symbols.Tier, qs []models.Quote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	stored := make([]models.Quote, len(qs))
	copy(stored, qs)
	f.replaced[tier] = append(f.replaced[tier], stored)
	return nil
}

func (f *fakeSnapshots) Latest(_ context.Context, symbol string) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, batches := range f.replaced {
		for i := len(batches) - 1; i >= 0; i-- {
			for _, q := range batches[i] {
				if q.Symbol == symbol {
					out := q
					return &out, nil
				}
			}
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeSnapshots) writes(tier symbols.Tier) [][]models.Quote {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replaced[tier]
}

type fixture struct {
	orch      *Orchestrator
	client    *fakeClient
	snapshots *fakeSnapshots
	cache     *cache.MemoryCache
	series    *timeseries.MemoryStore
	repo      *alerts.MemoryRepository
	registry  *symbols.Registry
}

func newFixture(t *testing.T, marketOpen bool) *fixture {
	t.Helper()

	registry, err := symbols.NewRegistry(
		[]string{"AAPL", "MSFT"}, []string{"KO"}, []string{"IBM"},
		20*time.Minute, 60*time.Minute, 90*time.Minute,
	)
	require.NoError(t, err)

	clock, err := marketclock.New(9, 30, 16, 0, 15)
	require.NoError(t, err)
	loc, err := time.LoadLocation(marketclock.VenueTimezone)
	require.NoError(t, err)
	if marketOpen {
		clock.SetNowFunc(func() time.Time {
			return time.Date(2026, 3, 3, 12, 0, 0, 0, loc) // Tuesday noon
		})
	} else {
		clock.SetNowFunc(func() time.Time {
			return time.Date(2026, 3, 7, 12, 0, 0, 0, loc) // Saturday
		})
	}

	client := &fakeClient{prices: map[string]string{"AAPL": "205", "MSFT": "310", "KO": "60", "IBM": "150"}}
	snapshots := newFakeSnapshots()
	memCache := cache.NewMemoryCache(registry)
	series := timeseries.NewMemoryStore()
	repo := alerts.NewMemoryRepository()
	engine := alerts.NewEngine(repo, notify.NewLogNotifier())

	orch := New(registry, clock, ratelimit.NewGovernor(1000, time.Minute),
		client, memCache, snapshots, series).WithAlerts(engine)

	return &fixture{
		orch:      orch,
		client:    client,
		snapshots: snapshots,
		cache:     memCache,
		series:    series,
		repo:      repo,
		registry:  registry,
	}
}

func TestRefreshCommitsAllSymbols(t *testing.T) {
	f := newFixture(t, true)

	stats, err := f.orch.RefreshTier(context.Background(), symbols.TierPremium)
	require.NoError(t, err)

	assert.True(t, stats.Committed)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, stats.Succeeded)
	assert.Empty(t, stats.Failed)

	writes := f.snapshots.writes(symbols.TierPremium)
	require.Len(t, writes, 1)
	assert.Len(t, writes[0], 2)
	for _, q := range writes[0] {
		assert.Equal(t, symbols.TierPremium.String(), q.Tier)
	}

	// Cache warmed and series appended after the durable write.
	_, hit, _ := f.cache.Get(context.Background(), symbols.TierPremium, "AAPL")
	assert.True(t, hit)
	assert.Equal(t, 1, f.series.Size("AAPL"))
}

func TestPartialFailureCommitsOnlySucceeded(t *testing.T) {
	f := newFixture(t, true)
	delete(f.client.prices, "MSFT")

	stats, err := f.orch.RefreshTier(context.Background(), symbols.TierPremium)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL"}, stats.Succeeded)
	assert.Equal(t, []string{"MSFT"}, stats.Failed)
	assert.True(t, stats.Committed)

	writes := f.snapshots.writes(symbols.TierPremium)
	require.Len(t, writes, 1)
	require.Len(t, writes[0], 1)
	assert.Equal(t, "AAPL", writes[0][0].Symbol)

	_, hit, _ := f.cache.Get(context.Background(), symbols.TierPremium, "MSFT")
	assert.False(t, hit, "failed symbol must not be cached")
}

func TestAllFailuresWriteNothing(t *testing.T) {
	f := newFixture(t, true)
	f.client.prices = map[string]string{}

	stats, err := f.orch.RefreshTier(context.Background(), symbols.TierPremium)
	require.Error(t, err)

	assert.False(t, stats.Committed)
	assert.Len(t, stats.Failed, 2)
	assert.Empty(t, f.snapshots.writes(symbols.TierPremium))
	assert.Equal(t, 0, f.series.Size("AAPL"))
}

func TestClosedMarketSkipsEntirely(t *testing.T) {
	f := newFixture(t, false)

	stats, err := f.orch.RefreshTier(context.Background(), symbols.TierPremium)
	require.NoError(t, err)

	assert.True(t, stats.Skipped)
	assert.Equal(t, 0, f.client.fetchCount(), "no fetches outside market hours")
	assert.Empty(t, f.snapshots.writes(symbols.TierPremium))
}

func TestPersistenceFailureAbortsCommit(t *testing.T) {
	f := newFixture(t, true)
	f.snapshots.failWith = errors.New("connection reset")

	// An active rule whose condition would hold on the fetched price.
	rule := &models.AlertRule{
		OwnerID: 1, Symbol: "AAPL",
		Condition: models.ConditionGreaterOrEqual,
		Threshold: decimal.RequireFromString("200"),
	}
	require.NoError(t, f.repo.Create(context.Background(), rule))

	_, err := f.orch.RefreshTier(context.Background(), symbols.TierPremium)
	require.Error(t, err)

	_, hit, _ := f.cache.Get(context.Background(), symbols.TierPremium, "AAPL")
	assert.False(t, hit, "cache must not be warmed when the durable write fails")
	assert.Equal(t, 0, f.series.Size("AAPL"))

	stored, err := f.repo.ByID(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStateActive, stored.State,
		"alerts must not fire on prices that were never persisted")
}

func TestAlertsEvaluateOnCommittedPrices(t *testing.T) {
	f := newFixture(t, true)

	rule := &models.AlertRule{
		OwnerID: 1, Symbol: "AAPL",
		Condition: models.ConditionGreaterOrEqual,
		Threshold: decimal.RequireFromString("200"),
	}
	require.NoError(t, f.repo.Create(context.Background(), rule))

	_, err := f.orch.RefreshTier(context.Background(), symbols.TierPremium)
	require.NoError(t, err)

	stored, err := f.repo.ByID(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStateTriggered, stored.State)
}

func TestCycleStartEvictsStaleEntries(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	stale := models.NewQuote("AAPL", symbols.TierPremium.String(),
		decimal.RequireFromString("1"), decimal.RequireFromString("1"),
		decimal.RequireFromString("1"), decimal.RequireFromString("1"),
		1, decimal.RequireFromString("1"), time.Now())
	require.NoError(t, f.cache.Put(ctx, symbols.TierPremium, "AAPL", stale))

	_, err := f.orch.RefreshTier(ctx, symbols.TierPremium)
	require.NoError(t, err)

	quote, hit, _ := f.cache.Get(ctx, symbols.TierPremium, "AAPL")
	require.True(t, hit)
	assert.True(t, quote.Close.Equal(decimal.RequireFromString("205")),
		"cache must hold the freshly committed value, not the stale one")
}

func TestRefreshIndexesGroupsByTier(t *testing.T) {
	registry, err := symbols.NewRegistry(nil, nil, nil,
		20*time.Minute, 60*time.Minute, 90*time.Minute)
	require.NoError(t, err)

	clock, err := marketclock.New(9, 30, 16, 0, 15)
	require.NoError(t, err)

	prices := make(map[string]string)
	for _, s := range registry.IndexSymbols() {
		prices[s] = "100"
	}
	client := &fakeClient{prices: prices}
	snapshots := newFakeSnapshots()

	orch := New(registry, clock, ratelimit.NewGovernor(1000, time.Minute),
		client, cache.NewMemoryCache(registry), snapshots, timeseries.NewMemoryStore())

	require.NoError(t, orch.RefreshIndexes(context.Background()))

	total := 0
	for _, tier := range symbols.Tiers() {
		for _, batch := range snapshots.writes(tier) {
			total += len(batch)
		}
	}
	assert.Equal(t, len(registry.IndexSymbols()), total)
}

func TestLastStatsRecorded(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.orch.RefreshTier(context.Background(), symbols.TierPremium)
	require.NoError(t, err)

	stats := f.orch.LastStats()
	require.Contains(t, stats, symbols.TierPremium)
	assert.True(t, stats[symbols.TierPremium].Committed)
}
