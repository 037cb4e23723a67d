package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"marketdata_backend/models"
	"marketdata_backend/services/symbols"

	"github.com/redis/go-redis/v9"
)

// Redis key layout
const (
	quoteKeyPrefix = "quote:"
	tierSetPrefix  = "quote_symbols:"
)

// RedisCache is the Redis-backed TieredCache implementation. Each entry is
// a JSON-serialized quote with a per-key TTL; a per-tier set tracks the
// keys so InvalidateTier can drop them in one transaction.
type RedisCache struct {
	client   *redis.Client
	registry *symbols.Registry
}

// NewRedisCache creates a Redis tiered cache. TTLs come from the
// registry's refresh intervals.
func NewRedisCache(client *redis.Client, registry *symbols.Registry) *RedisCache {
	return &RedisCache{client: client, registry: registry}
}

func quoteKey(tier symbols.Tier, symbol string) string {
	return fmt.Sprintf("%s%s:%s", quoteKeyPrefix, tier, symbol)
}

func tierSetKey(tier symbols.Tier) string {
	return tierSetPrefix + tier.String()
}

// Get returns the cached quote if present and unexpired. Redis expires
// entries itself, so any value found is live.
func (c *RedisCache) Get(ctx context.Context, tier symbols.Tier, symbol string) (*models.Quote, bool, error) {
	data, err := c.client.Get(ctx, quoteKey(tier, symbol)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s/%s: %w", tier, symbol, err)
	}

	var quote models.Quote
	if err := json.Unmarshal(data, &quote); err != nil {
		return nil, false, fmt.Errorf("cache decode %s/%s: %w", tier, symbol, err)
	}
	return &quote, true, nil
}

// Put stores a quote with expiry derived from the tier's refresh interval.
func (c *RedisCache) Put(ctx context.Context, tier symbols.Tier, symbol string, quote models.Quote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("cache encode %s/%s: %w", tier, symbol, err)
	}

	ttl := c.registry.CacheTTL(tier)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, quoteKey(tier, symbol), data, ttl)
		pipe.SAdd(ctx, tierSetKey(tier), symbol)
		pipe.Expire(ctx, tierSetKey(tier), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache put %s/%s: %w", tier, symbol, err)
	}
	return nil
}

// InvalidateTier deletes every tracked entry for the tier in a single
// MULTI/EXEC transaction, so concurrent readers observe either the full
// set or none of it.
func (c *RedisCache) InvalidateTier(ctx context.Context, tier symbols.Tier) error {
	members, err := c.client.SMembers(ctx, tierSetKey(tier)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("cache invalidate %s: %w", tier, err)
	}
	if len(members) == 0 {
		return nil
	}

	keys := make([]string, 0, len(members)+1)
	for _, symbol := range members {
		keys = append(keys, quoteKey(tier, symbol))
	}
	keys = append(keys, tierSetKey(tier))

	if _, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		return nil
	}); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", tier, err)
	}
	return nil
}
