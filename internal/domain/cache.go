package domain

import (
	"context"
	"time"
)

// PoolCache caches per-outcome pool totals for display surfaces (bot,
// portal). Entries expire on their own and are invalidated on settlement.
type PoolCache interface {
	Set(ctx context.Context, marketID string, pools map[string]int64) error
	Get(ctx context.Context, marketID string) (map[string]int64, error)
	Invalidate(ctx context.Context, marketID string) error
}

// LockManager provides distributed locks so resolution runs exactly once even
// when duplicate admin requests land on different instances.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function, or ErrLockHeld if another holder has it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
