package timeseries

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketdata_backend/models"
)

// MemoryStore keeps each symbol's series as a slice sorted ascending by
// timestamp, so range and latest queries bound their scans with binary
// search instead of walking the whole series.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[string][]Point
}

// NewMemoryStore creates an in-memory time-series store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{series: make(map[string][]Point)}
}

// Append inserts the quote at its timestamp position and prunes points
// older than the retention window relative to the series' newest point.
// Insert and prune happen under one lock, so they are atomic per symbol.
func (s *MemoryStore) Append(_ context.Context, quote models.Quote) error {
	point := Point{Symbol: quote.Symbol, Timestamp: quote.Timestamp, Quote: quote}

	s.mu.Lock()
	defer s.mu.Unlock()

	series := s.series[quote.Symbol]
	idx := sort.Search(len(series), func(i int) bool {
		return series[i].Timestamp.After(point.Timestamp)
	})
	series = append(series, Point{})
	copy(series[idx+1:], series[idx:])
	series[idx] = point

	// Prune against the newest retained timestamp, which may differ from
	// the inserted one when points arrive out of order.
	cutoff := series[len(series)-1].Timestamp.Add(-RetentionWindow)
	start := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp.Before(cutoff)
	})
	if start > 0 {
		series = append(series[:0], series[start:]...)
	}

	s.series[quote.Symbol] = series
	return nil
}

// RangeQuery returns points with timestamp in [from, to], ascending.
func (s *MemoryStore) RangeQuery(_ context.Context, symbol string, from, to time.Time) ([]Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[symbol]
	lo := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(series), func(i int) bool {
		return series[i].Timestamp.After(to)
	})
	if lo >= hi {
		return []Point{}, nil
	}

	out := make([]Point, hi-lo)
	copy(out, series[lo:hi])
	return out, nil
}

// Latest returns the n most recent points, descending.
func (s *MemoryStore) Latest(_ context.Context, symbol string, n int) ([]Point, error) {
	if n <= 0 {
		return []Point{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[symbol]
	if n > len(series) {
		n = len(series)
	}

	out := make([]Point, 0, n)
	for i := len(series) - 1; i >= len(series)-n; i-- {
		out = append(out, series[i])
	}
	return out, nil
}

// Size returns the number of retained points for a symbol.
func (s *MemoryStore) Size(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[symbol])
}
