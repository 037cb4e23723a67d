package cache

import (
	"context"
	"sync"
	"time"

	"marketdata_backend/models"
	"marketdata_backend/services/symbols"
)

type memoryEntry struct {
	quote     models.Quote
	expiresAt time.Time
}

// MemoryCache is the in-process TieredCache implementation. One RWMutex
// guards all tiers; InvalidateTier swaps a tier's map wholesale so readers
// see either the full pre-invalidation set or the empty set.
type MemoryCache struct {
	registry *symbols.Registry

	mu      sync.RWMutex
	entries map[symbols.Tier]map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an in-memory tiered cache. TTLs come from the
// registry's refresh intervals.
func NewMemoryCache(registry *symbols.Registry) *MemoryCache {
	entries := make(map[symbols.Tier]map[string]memoryEntry, 3)
	for _, tier := range symbols.Tiers() {
		entries[tier] = make(map[string]memoryEntry)
	}
	return &MemoryCache{
		registry: registry,
		entries:  entries,
		now:      time.Now,
	}
}

// SetNowFunc overrides the time source. Intended for tests.
func (c *MemoryCache) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Get returns the cached quote if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, tier symbols.Tier, symbol string) (*models.Quote, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[tier][symbol]
	now := c.now()
	c.mu.RUnlock()

	if !ok || now.After(entry.expiresAt) || now.Equal(entry.expiresAt) {
		return nil, false, nil
	}
	quote := entry.quote
	return &quote, true, nil
}

// Put stores a quote with expiry derived from the tier's refresh interval.
func (c *MemoryCache) Put(_ context.Context, tier symbols.Tier, symbol string, quote models.Quote) error {
	ttl := c.registry.CacheTTL(tier)

	c.mu.Lock()
	defer c.mu.Unlock()

	tierEntries, ok := c.entries[tier]
	if !ok {
		tierEntries = make(map[string]memoryEntry)
		c.entries[tier] = tierEntries
	}
	tierEntries[symbol] = memoryEntry{
		quote:     quote,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// InvalidateTier drops all entries for the tier in one atomic swap.
func (c *MemoryCache) InvalidateTier(_ context.Context, tier symbols.Tier) error {
	c.mu.Lock()
	c.entries[tier] = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

// Len returns the number of live entries in a tier. Used by tests and the
// status endpoint.
func (c *MemoryCache) Len(tier symbols.Tier) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	now := c.now()
	for _, entry := range c.entries[tier] {
		if now.Before(entry.expiresAt) {
			count++
		}
	}
	return count
}
