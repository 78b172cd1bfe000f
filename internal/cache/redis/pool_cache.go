package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mystquest/settler/internal/domain"
)

const defaultPoolTTL = 5 * time.Minute

// PoolCache implements domain.PoolCache using Redis. Pool totals are stored
// as a JSON-serialized outcome-to-amount map so display surfaces (bot,
// portal) can render live pools and implied odds without hitting Postgres.
//
// Key schema:
//
//	pools:{marketID} - JSON map outcome -> minor units
type PoolCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPoolCache creates a PoolCache backed by the given Client. A zero ttl
// falls back to the 5-minute default.
func NewPoolCache(c *Client, ttl time.Duration) *PoolCache {
	if ttl <= 0 {
		ttl = defaultPoolTTL
	}
	return &PoolCache{rdb: c.Underlying(), ttl: ttl}
}

func poolKey(marketID string) string { return "pools:" + marketID }

// Set stores a market's per-outcome pool totals with the configured TTL.
func (pc *PoolCache) Set(ctx context.Context, marketID string, pools map[string]int64) error {
	data, err := json.Marshal(pools)
	if err != nil {
		return fmt.Errorf("redis: marshal pools for market %s: %w", marketID, err)
	}

	if err := pc.rdb.Set(ctx, poolKey(marketID), data, pc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set pools for market %s: %w", marketID, err)
	}
	return nil
}

// Get retrieves a market's cached pool totals.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PoolCache) Get(ctx context.Context, marketID string) (map[string]int64, error) {
	data, err := pc.rdb.Get(ctx, poolKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get pools for market %s: %w", marketID, err)
	}

	var pools map[string]int64
	if err := json.Unmarshal(data, &pools); err != nil {
		return nil, fmt.Errorf("redis: unmarshal pools for market %s: %w", marketID, err)
	}
	return pools, nil
}

// Invalidate drops a market's cached pools. Called after settlement so stale
// pools never survive resolution.
func (pc *PoolCache) Invalidate(ctx context.Context, marketID string) error {
	if err := pc.rdb.Del(ctx, poolKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate pools for market %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PoolCache = (*PoolCache)(nil)
