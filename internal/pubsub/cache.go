package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pollpulse/pollpulse/pkg/logger"
)

// ErrCacheMiss is returned when no cached entry exists for the poll.
var ErrCacheMiss = errors.New("pubsub: cache miss")

// StatsCache caches poll stats payloads under a short TTL so hot polls do
// not hammer the database on every read.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache creates a stats cache with the given TTL.
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

func statsKey(pollID string) string {
	return "poll:stats:" + pollID
}

// Get fetches the cached stats payload for a poll.
func (c *StatsCache) Get(ctx context.Context, pollID string, dest interface{}) error {
	data, err := c.client.Get(ctx, statsKey(pollID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to read stats cache: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// Set stores a stats payload with the cache's TTL.
func (c *StatsCache) Set(ctx context.Context, pollID string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal stats payload: %w", err)
	}
	if err := c.client.Set(ctx, statsKey(pollID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write stats cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry after a mutation. Failures are logged
// and swallowed: a stale entry ages out on its TTL.
func (c *StatsCache) Invalidate(ctx context.Context, pollID string) {
	if err := c.client.Del(ctx, statsKey(pollID)).Err(); err != nil {
		logger.Warn("Failed to invalidate stats cache",
			logger.ErrorField(err),
			logger.String("poll_id", pollID),
		)
	}
}
