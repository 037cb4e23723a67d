package timeseries

import (
	"context"
	"time"

	"marketdata_backend/models"
)

// RetentionWindow is the rolling horizon kept per symbol. A series never
// contains points older than this window relative to its newest point;
// pruning happens synchronously with every append.
const RetentionWindow = 24 * time.Hour

// Point is one time-series observation for a symbol, ordered by timestamp
// within the symbol's series.
type Point struct {
	Symbol    string       `json:"symbol"`
	Timestamp time.Time    `json:"timestamp"`
	Quote     models.Quote `json:"quote"`
}

// Store is a per-symbol rolling short-horizon quote store. Queries are
// logarithmic in series size; the series is maintained as an ordered
// structure keyed by timestamp. Absence of data for a symbol is not an
// error and yields empty results.
type Store interface {
	// Append inserts one point keyed by the quote's timestamp and prunes
	// everything older than the retention window in the same operation.
	Append(ctx context.Context, quote models.Quote) error

	// RangeQuery returns points with timestamp in [from, to], ascending.
	RangeQuery(ctx context.Context, symbol string, from, to time.Time) ([]Point, error)

	// Latest returns the n most recent points, descending.
	Latest(ctx context.Context, symbol string, n int) ([]Point, error)
}
