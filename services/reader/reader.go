package reader

import (
	"context"
	"errors"
	"log"
	"time"

	"marketdata_backend/models"
	"marketdata_backend/services/archive"
	"marketdata_backend/services/cache"
	"marketdata_backend/services/store"
	"marketdata_backend/services/symbols"
	"marketdata_backend/services/timeseries"

	"github.com/shopspring/decimal"
)

// ErrUnknownSymbol is returned for symbols outside the configured universe.
var ErrUnknownSymbol = errors.New("symbol not in configured universe")

// HistoryBar is one history observation, shaped the same whether it came
// from the rolling time series or the long-horizon archive.
type HistoryBar struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

// Reader serves quote and history reads. Current-quote reads are
// cache-aside: cache hit wins, a miss falls through to the durable
// snapshot and backfills the cache. Reads never call the provider, so a
// degraded cache or an in-flight refresh only costs latency, not
// correctness.
type Reader struct {
	registry  *symbols.Registry
	cache     cache.TieredCache
	snapshots store.SnapshotStore
	series    timeseries.Store
	archive   *archive.Archive // optional
	now       func() time.Time
}

// New creates a reader. The archive may be nil; history reads are then
// limited to the rolling window.
func New(
	registry *symbols.Registry,
	tieredCache cache.TieredCache,
	snapshots store.SnapshotStore,
	series timeseries.Store,
	hist *archive.Archive,
) *Reader {
	return &Reader{
		registry:  registry,
		cache:     tieredCache,
		snapshots: snapshots,
		series:    series,
		archive:   hist,
		now:       time.Now,
	}
}

// SetNowFunc overrides the reader's clock. Used in tests.
func (r *Reader) SetNowFunc(now func() time.Time) {
	r.now = now
}

// CurrentQuote returns the latest known quote for a symbol.
func (r *Reader) CurrentQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	tier, ok := r.registry.TierOf(symbol)
	if !ok {
		return nil, ErrUnknownSymbol
	}

	if quote, hit, err := r.cache.Get(ctx, tier, symbol); err != nil {
		log.Printf("Cache read failed for %s, falling back to snapshot: %v", symbol, err)
	} else if hit {
		return quote, nil
	}

	quote, err := r.snapshots.Latest(ctx, symbol)
	if err != nil {
		return nil, err
	}

	// Backfill so the next read within the TTL is a hit. The refresh
	// cycle's commit-time eviction clears this entry before fresher
	// values land.
	if err := r.cache.Put(ctx, tier, symbol, *quote); err != nil {
		log.Printf("Cache backfill failed for %s: %v", symbol, err)
	}

	return quote, nil
}

// History returns bars for a symbol in [from, to], ascending. Ranges
// inside the rolling window come from the time series; older ranges come
// from the archive when one is configured.
func (r *Reader) History(ctx context.Context, symbol string, from, to time.Time) ([]HistoryBar, error) {
	if _, ok := r.registry.TierOf(symbol); !ok {
		return nil, ErrUnknownSymbol
	}

	windowStart := r.now().Add(-timeseries.RetentionWindow)
	if from.Before(windowStart) && r.archive != nil {
		bars, err := r.archive.Range(ctx, symbol, from, to)
		if err != nil {
			return nil, err
		}
		out := make([]HistoryBar, 0, len(bars))
		for _, bar := range bars {
			out = append(out, HistoryBar{
				Symbol:    symbol,
				Timestamp: bar.Date,
				Open:      bar.Open,
				High:      bar.High,
				Low:       bar.Low,
				Close:     bar.Close,
				Volume:    bar.Volume,
			})
		}
		return out, nil
	}

	points, err := r.series.RangeQuery(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryBar, 0, len(points))
	for _, point := range points {
		out = append(out, HistoryBar{
			Symbol:    symbol,
			Timestamp: point.Timestamp,
			Open:      point.Quote.Open,
			High:      point.Quote.High,
			Low:       point.Quote.Low,
			Close:     point.Quote.Close,
			Volume:    point.Quote.Volume,
		})
	}
	return out, nil
}

// LatestPoints returns the n most recent time-series points, descending.
func (r *Reader) LatestPoints(ctx context.Context, symbol string, n int) ([]timeseries.Point, error) {
	if _, ok := r.registry.TierOf(symbol); !ok {
		return nil, ErrUnknownSymbol
	}
	return r.series.Latest(ctx, symbol, n)
}

// Universe describes the configured symbol tiers for the listing endpoint.
func (r *Reader) Universe() map[string]interface{} {
	counts := r.registry.Counts()
	tiers := make(map[string]interface{}, len(counts))
	for _, tier := range symbols.Tiers() {
		tiers[tier.String()] = map[string]interface{}{
			"symbols":          r.registry.Symbols(tier),
			"count":            counts[tier],
			"refresh_interval": r.registry.RefreshInterval(tier).String(),
		}
	}
	return tiers
}
