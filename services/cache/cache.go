package cache

import (
	"context"

	"marketdata_backend/models"
	"marketdata_backend/services/symbols"
)

// TieredCache is a cache-aside store keyed by (tier, symbol). Entry TTLs
// are derived from each tier's refresh interval. On a miss the caller is
// responsible for reloading from durable storage; the cache never calls
// back into the refresh pipeline. The cache is an optimization only: all
// read paths must work when it is absent or unavailable.
type TieredCache interface {
	// Get returns the cached quote if present and unexpired.
	Get(ctx context.Context, tier symbols.Tier, symbol string) (*models.Quote, bool, error)

	// Put stores a quote with expiry = now + tier TTL. Failures are
	// best-effort for callers: log and continue.
	Put(ctx context.Context, tier symbols.Tier, symbol string, quote models.Quote) error

	// InvalidateTier removes every entry for the tier atomically relative
	// to concurrent reads.
	InvalidateTier(ctx context.Context, tier symbols.Tier) error
}
