package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NoWinnersPolicy decides what happens to the distributable pool when nobody
// staked on the winning outcome.
type NoWinnersPolicy string

const (
	// NoWinnersToTreasury sweeps the entire distributable pool to the
	// treasury sub-pool.
	NoWinnersToTreasury NoWinnersPolicy = "treasury"
	// NoWinnersRefund refunds every stake 1:1 and charges no fee, as if the
	// market had been cancelled.
	NoWinnersRefund NoWinnersPolicy = "refund"
)

// SubPoolShare is one named destination of the platform fee with its fixed
// percentage, expressed as a decimal fraction (0.15 = 15%).
type SubPoolShare struct {
	Name    string
	Percent decimal.Decimal
}

// SettlementParams is the validated configuration the engine settles with.
// It is constructed once at startup from config and passed explicitly; the
// engine keeps no ambient fee state.
type SettlementParams struct {
	// FeeRate is charged on the losing pool only, in [0, 1).
	FeeRate decimal.Decimal
	// Split divides the platform fee across sub-pools in order. Percents
	// must sum to exactly 1; the last entry absorbs integer rounding.
	Split []SubPoolShare
	// TreasuryPool names the sub-pool that receives rounding dust and, under
	// NoWinnersToTreasury, the unclaimed distributable pool. It must appear
	// in Split.
	TreasuryPool string
	NoWinners    NoWinnersPolicy
}

// FeeShare is one sub-pool's settled portion of the platform fee.
type FeeShare struct {
	SubPool string
	Amount  int64
}

// SettlementResult is the engine's output for one resolved market. It is
// computed once and never mutated; the store applies it atomically.
//
// Invariants (checked by the engine, violation aborts settlement):
//
//	PlatformFee + Distributable == TotalPool
//	sum(FeeSplit amounts) == PlatformFee
type SettlementResult struct {
	MarketID       string
	WinningOutcome string
	WinningPool    int64
	LosingPool     int64
	TotalPool      int64
	PlatformFee    int64
	FeeSplit       []FeeShare
	Distributable  int64
	// MultiplierNum/MultiplierDen hold the exact payout multiplier
	// Distributable/WinningPool. Both are zero when NoWinners is set.
	MultiplierNum int64
	MultiplierDen int64
	NoWinners     bool
	ResolvedAt    time.Time
}

// Payout is one bettor's credited winnings (or refund) from a settlement.
type Payout struct {
	BetID    string
	BettorID string
	Amount   int64
}

// LedgerEntry is one append-only row in the value ledger. Every credit a
// settlement produces (payout, sub-pool share, dust sweep, refund) is
// recorded as its own auditable entry.
type LedgerEntry struct {
	ID        int64
	MarketID  string
	Kind      LedgerKind
	Account   string // bettor ID or sub-pool name
	Amount    int64
	CreatedAt time.Time
}

// LedgerKind classifies a ledger entry.
type LedgerKind string

const (
	LedgerStake        LedgerKind = "stake"
	LedgerPayout       LedgerKind = "payout"
	LedgerRefund       LedgerKind = "refund"
	LedgerFeeShare     LedgerKind = "fee_share"
	LedgerRoundingDust LedgerKind = "rounding_dust"
	LedgerUnclaimed    LedgerKind = "unclaimed_pool"
)
