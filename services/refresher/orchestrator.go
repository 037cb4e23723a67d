package refresher

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"marketdata_backend/models"
	"marketdata_backend/services/alerts"
	"marketdata_backend/services/archive"
	"marketdata_backend/services/cache"
	"marketdata_backend/services/marketclock"
	"marketdata_backend/services/quotes"
	"marketdata_backend/services/ratelimit"
	"marketdata_backend/services/store"
	"marketdata_backend/services/stream"
	"marketdata_backend/services/symbols"
	"marketdata_backend/services/timeseries"

	"github.com/shopspring/decimal"
)

// DefaultHistoryDays is how far back the historical reload pulls bars.
const DefaultHistoryDays = 30

// CycleStats summarizes one refresh cycle of a tier.
type CycleStats struct {
	Tier      symbols.Tier  `json:"tier"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Succeeded []string      `json:"succeeded"`
	Failed    []string      `json:"failed"`
	Skipped   bool          `json:"skipped"`
	Committed bool          `json:"committed"`
}

// Orchestrator drives the per-tier refresh cycles. Every cycle runs
// gate, fetch, commit in that order: a closed market produces no side
// effects at all, per-symbol fetch failures never abort the cycle, and
// the commit persists only the symbols that succeeded. Alert evaluation
// and cache warming happen strictly after the durable write.
type Orchestrator struct {
	registry *symbols.Registry
	clock    *marketclock.Clock
	governor *ratelimit.Governor
	client   quotes.Client
	cache    cache.TieredCache
	store    store.SnapshotStore
	series   timeseries.Store
	archive  *archive.Archive // optional
	alerts   *alerts.Engine   // optional
	hub      *stream.Hub      // optional

	mu        sync.RWMutex
	lastStats map[symbols.Tier]CycleStats
	now       func() time.Time
}

// New creates the orchestrator. Archive, alert engine and hub may be nil;
// the corresponding commit steps are then skipped.
func New(
	registry *symbols.Registry,
	clock *marketclock.Clock,
	governor *ratelimit.Governor,
	client quotes.Client,
	tieredCache cache.TieredCache,
	snapshots store.SnapshotStore,
	series timeseries.Store,
) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		clock:     clock,
		governor:  governor,
		client:    client,
		cache:     tieredCache,
		store:     snapshots,
		series:    series,
		lastStats: make(map[symbols.Tier]CycleStats),
		now:       time.Now,
	}
}

// WithArchive attaches the history archive.
func (o *Orchestrator) WithArchive(a *archive.Archive) *Orchestrator {
	o.archive = a
	return o
}

// WithAlerts attaches the alert engine.
func (o *Orchestrator) WithAlerts(engine *alerts.Engine) *Orchestrator {
	o.alerts = engine
	return o
}

// WithHub attaches the WebSocket stream hub.
func (o *Orchestrator) WithHub(hub *stream.Hub) *Orchestrator {
	o.hub = hub
	return o
}

// SetNowFunc overrides the orchestrator's clock. Used in tests.
func (o *Orchestrator) SetNowFunc(now func() time.Time) {
	o.now = now
}

// LastStats returns the most recent cycle summary per tier.
func (o *Orchestrator) LastStats() map[symbols.Tier]CycleStats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[symbols.Tier]CycleStats, len(o.lastStats))
	for tier, stats := range o.lastStats {
		out[tier] = stats
	}
	return out
}

// RefreshTier runs one full refresh cycle for a tier.
func (o *Orchestrator) RefreshTier(ctx context.Context, tier symbols.Tier) (CycleStats, error) {
	started := o.now()
	stats := CycleStats{Tier: tier, StartedAt: started}

	// Gate: outside trading hours the cycle ends with no fetches, no
	// writes and no evictions.
	if !o.clock.IsOpenNow() {
		stats.Skipped = true
		o.record(stats)
		log.Printf("Refresh %s: market closed, skipping (next open %s)",
			tier, o.clock.NextOpen(o.now()).Format(time.RFC3339))
		return stats, nil
	}

	// Entering a cycle means the tier's cached entries are stale by
	// definition. Evict before fetching so reads fall through to the
	// durable snapshot until fresh values are committed.
	if err := o.cache.InvalidateTier(ctx, tier); err != nil {
		log.Printf("Refresh %s: cache eviction failed: %v", tier, err)
	}

	fetched := o.fetchAll(ctx, tier, o.registry.Symbols(tier), &stats)

	if len(fetched) == 0 {
		stats.Duration = o.now().Sub(started)
		o.record(stats)
		log.Printf("Refresh %s: all %d fetches failed, nothing written", tier, len(stats.Failed))
		return stats, fmt.Errorf("refresh %s: all fetches failed", tier)
	}

	if err := o.commit(ctx, tier, fetched); err != nil {
		stats.Duration = o.now().Sub(started)
		o.record(stats)
		log.Printf("Refresh %s: commit aborted: %v", tier, err)
		return stats, err
	}

	stats.Committed = true
	stats.Duration = o.now().Sub(started)
	o.record(stats)

	log.Printf("Refresh %s complete: %d succeeded, %d failed in %s",
		tier, len(stats.Succeeded), len(stats.Failed), stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// fetchAll pulls every symbol through the rate governor. A failed symbol
// is recorded and the rest of the tier continues.
func (o *Orchestrator) fetchAll(ctx context.Context, tier symbols.Tier, symbolList []string, stats *CycleStats) []models.Quote {
	fetched := make([]models.Quote, 0, len(symbolList))

	for _, symbol := range symbolList {
		if err := o.governor.Acquire(ctx); err != nil {
			log.Printf("Refresh %s: rate slot for %s not acquired: %v", tier, symbol, err)
			stats.Failed = append(stats.Failed, symbol)
			continue
		}

		quote, err := o.client.Fetch(ctx, symbol)
		if err != nil {
			log.Printf("Refresh %s: fetch %s failed: %v", tier, symbol, err)
			stats.Failed = append(stats.Failed, symbol)
			continue
		}

		quote.Tier = tier.String()
		fetched = append(fetched, *quote)
		stats.Succeeded = append(stats.Succeeded, symbol)
	}

	return fetched
}

// commit makes the fetched quotes visible. The durable write comes
// first and its failure aborts everything downstream. Cache, series,
// archive and stream steps are best effort; alert evaluation runs last,
// only over prices that are now durably stored.
func (o *Orchestrator) commit(ctx context.Context, tier symbols.Tier, fetched []models.Quote) error {
	if err := o.store.ReplaceTier(ctx, tier, fetched); err != nil {
		return err
	}

	// Evict again before warming: reads during the fetch window may have
	// backfilled entries that are stale relative to the rows just written.
	if err := o.cache.InvalidateTier(ctx, tier); err != nil {
		log.Printf("Refresh %s: post-commit eviction failed: %v", tier, err)
	}

	prices := make(map[string]decimal.Decimal, len(fetched))
	for i := range fetched {
		quote := &fetched[i]
		prices[quote.Symbol] = quote.Close

		if err := o.cache.Put(ctx, tier, quote.Symbol, *quote); err != nil {
			log.Printf("Refresh %s: cache warm %s failed: %v", tier, quote.Symbol, err)
		}
		if err := o.series.Append(ctx, *quote); err != nil {
			log.Printf("Refresh %s: series append %s failed: %v", tier, quote.Symbol, err)
		}
		if o.archive != nil {
			if err := o.archive.AppendQuote(ctx, *quote); err != nil {
				log.Printf("Refresh %s: archive append %s failed: %v", tier, quote.Symbol, err)
			}
		}
		if o.hub != nil {
			o.hub.BroadcastQuote(*quote)
		}
	}

	if o.alerts != nil {
		if _, err := o.alerts.Evaluate(ctx, prices); err != nil {
			log.Printf("Refresh %s: alert evaluation failed: %v", tier, err)
		}
	}

	return nil
}

// RefreshIndexes refreshes the index subset after the close. It is not
// gated on market hours; the snapshot rows are grouped by tier so each
// replace stays a single transaction.
func (o *Orchestrator) RefreshIndexes(ctx context.Context) error {
	indexSymbols := o.registry.IndexSymbols()
	log.Printf("End-of-day index snapshot: refreshing %d symbols", len(indexSymbols))

	byTier := make(map[symbols.Tier][]models.Quote)
	failed := 0

	for _, symbol := range indexSymbols {
		if err := o.governor.Acquire(ctx); err != nil {
			log.Printf("Index snapshot: rate slot for %s not acquired: %v", symbol, err)
			failed++
			continue
		}
		quote, err := o.client.Fetch(ctx, symbol)
		if err != nil {
			log.Printf("Index snapshot: fetch %s failed: %v", symbol, err)
			failed++
			continue
		}

		tier, ok := o.registry.TierOf(symbol)
		if !ok {
			continue
		}
		quote.Tier = tier.String()
		byTier[tier] = append(byTier[tier], *quote)
	}

	for tier, tierQuotes := range byTier {
		if err := o.commit(ctx, tier, tierQuotes); err != nil {
			return fmt.Errorf("index snapshot commit %s: %w", tier, err)
		}
	}

	log.Printf("End-of-day index snapshot complete: %d stored, %d failed",
		len(indexSymbols)-failed, failed)
	return nil
}

// ReloadHistory rebuilds the archive's bars for the index subset from
// the provider's daily time series.
func (o *Orchestrator) ReloadHistory(ctx context.Context, days int) error {
	if o.archive == nil {
		return fmt.Errorf("history reload: no archive configured")
	}
	if days <= 0 {
		days = DefaultHistoryDays
	}

	indexSymbols := o.registry.IndexSymbols()
	log.Printf("Historical reload: rebuilding %d days for %d symbols", days, len(indexSymbols))

	reloaded := 0
	for _, symbol := range indexSymbols {
		if err := o.governor.Acquire(ctx); err != nil {
			log.Printf("Historical reload: rate slot for %s not acquired: %v", symbol, err)
			continue
		}
		bars, err := o.client.TimeSeries(ctx, symbol, days)
		if err != nil {
			log.Printf("Historical reload: time series %s failed: %v", symbol, err)
			continue
		}
		if err := o.archive.ReplaceSymbol(ctx, symbol, bars); err != nil {
			log.Printf("Historical reload: archive rebuild %s failed: %v", symbol, err)
			continue
		}
		reloaded++
	}

	log.Printf("Historical reload complete: %d of %d symbols rebuilt", reloaded, len(indexSymbols))
	return nil
}

func (o *Orchestrator) record(stats CycleStats) {
	o.mu.Lock()
	o.lastStats[stats.Tier] = stats
	o.mu.Unlock()
}
