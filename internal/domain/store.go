package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market aggregates.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]Market, error)
	ListResolved(ctx context.Context, opts ListOpts) ([]Market, error)
	// QueueResolution records the admin's winning-outcome decision; the
	// resolver worker settles the market once its close time has passed.
	QueueResolution(ctx context.Context, id, outcome string) error
	// ListDueForSettlement returns open markets whose close time is at or
	// before now and that have a queued resolution decision.
	ListDueForSettlement(ctx context.Context, now time.Time, limit int) ([]Market, error)
}

// BetStore reads bet records.
type BetStore interface {
	GetByID(ctx context.Context, id string) (Bet, error)
	ListByMarket(ctx context.Context, marketID string) ([]Bet, error)
	ListByBettor(ctx context.Context, bettorID string, opts ListOpts) ([]Bet, error)
}

// SettlementStore owns the transactional boundaries of the engine: stake
// acceptance and settlement application. Each method is a single atomic unit;
// on any error the database is left unchanged.
type SettlementStore interface {
	// PlaceBet accepts a stake under a row lock on the market: status check,
	// pool increment, bet insert, balance debit, and stake ledger entry all
	// commit together. Returns the market as of after the stake.
	PlaceBet(ctx context.Context, bet Bet) (Market, error)

	// ApplySettlement transitions the market open -> resolved via
	// compare-and-swap on status and version, stores the result, credits
	// every payout and fee share, and appends the ledger and audit rows.
	ApplySettlement(ctx context.Context, res SettlementResult, payouts []Payout, dust int64, dustPool string) error

	// ApplyCancellation transitions the market open -> cancelled and refunds
	// every stake 1:1 with no fee.
	ApplyCancellation(ctx context.Context, marketID string, refunds []Payout) error

	// GetSettlement returns the stored result for a resolved market, or
	// ErrNotFound.
	GetSettlement(ctx context.Context, marketID string) (SettlementResult, error)
}

// LedgerStore reads balances and the append-only ledger.
type LedgerStore interface {
	BettorBalance(ctx context.Context, bettorID string) (int64, error)
	CreditBettor(ctx context.Context, bettorID string, amount int64) error
	SubPoolBalance(ctx context.Context, name string) (int64, error)
	ListByMarket(ctx context.Context, marketID string) ([]LedgerEntry, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
