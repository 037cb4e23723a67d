package timeseries

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketdata_backend/models"

	"github.com/redis/go-redis/v9"
)

const seriesKeyPrefix = "series:"

// RedisStore keeps each symbol's series in a sorted set scored by unix
// millisecond timestamp, mirroring the native time-series shape Redis
// gives us: O(log n + m) range queries and cheap trimming of old scores.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed time-series store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func seriesKey(symbol string) string {
	return seriesKeyPrefix + symbol
}

// Append adds the quote to the symbol's sorted set and removes scores
// outside the retention window in the same MULTI/EXEC transaction.
func (s *RedisStore) Append(ctx context.Context, quote models.Quote) error {
	point := Point{Symbol: quote.Symbol, Timestamp: quote.Timestamp, Quote: quote}
	member, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("series encode %s: %w", quote.Symbol, err)
	}

	key := seriesKey(quote.Symbol)
	score := float64(quote.Timestamp.UnixMilli())

	// The window is anchored at the newest retained point, which may be a
	// previously stored one when appends arrive out of order.
	newest := score
	existing, err := s.client.ZRevRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("series head %s: %w", quote.Symbol, err)
	}
	if len(existing) > 0 && existing[0].Score > newest {
		newest = existing[0].Score
	}
	cutoff := newest - float64(RetentionWindow.Milliseconds())

	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
		pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%f", cutoff))
		pipe.Expire(ctx, key, RetentionWindow+time.Hour)
		return nil
	}); err != nil {
		return fmt.Errorf("series append %s: %w", quote.Symbol, err)
	}
	return nil
}

// RangeQuery returns points with timestamp in [from, to], ascending.
func (s *RedisStore) RangeQuery(ctx context.Context, symbol string, from, to time.Time) ([]Point, error) {
	members, err := s.client.ZRangeByScore(ctx, seriesKey(symbol), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from.UnixMilli()),
		Max: fmt.Sprintf("%d", to.UnixMilli()),
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("series range %s: %w", symbol, err)
	}
	return decodePoints(members)
}

// Latest returns the n most recent points, descending.
func (s *RedisStore) Latest(ctx context.Context, symbol string, n int) ([]Point, error) {
	if n <= 0 {
		return []Point{}, nil
	}
	members, err := s.client.ZRevRange(ctx, seriesKey(symbol), 0, int64(n-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("series latest %s: %w", symbol, err)
	}
	return decodePoints(members)
}

func decodePoints(members []string) ([]Point, error) {
	points := make([]Point, 0, len(members))
	for _, member := range members {
		var point Point
		if err := json.Unmarshal([]byte(member), &point); err != nil {
			// Skip undecodable members instead of failing the read.
			continue
		}
		points = append(points, point)
	}
	return points, nil
}
