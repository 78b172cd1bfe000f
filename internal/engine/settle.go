package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mystquest/settler/internal/domain"
)

// Params is the validated settlement configuration. Build it once at startup
// with NewParams and pass it explicitly into every settlement; there is no
// ambient fee state in this package.
type Params struct {
	FeeRate      decimal.Decimal
	Split        SplitConfig
	TreasuryPool string
	NoWinners    domain.NoWinnersPolicy
}

// NewParams validates raw settlement parameters from config. FeeRate must be
// in [0, 1), the split must pass NewSplitConfig, the treasury pool must be
// one of the configured sub-pools (defaulting to the last, the rounding
// absorber), and the no-winners policy must be known (defaulting to
// treasury).
func NewParams(p domain.SettlementParams) (Params, error) {
	if p.FeeRate.IsNegative() || p.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Params{}, fmt.Errorf("engine: fee rate %s outside [0, 1): %w", p.FeeRate, domain.ErrInvalidFee)
	}

	split, err := NewSplitConfig(p.Split)
	if err != nil {
		return Params{}, err
	}

	treasury := p.TreasuryPool
	if treasury == "" {
		treasury = split.Last()
	}
	if !split.Contains(treasury) {
		return Params{}, fmt.Errorf("engine: treasury pool %q not in fee split: %w",
			treasury, domain.ErrInvalidSplitConfig)
	}

	policy := p.NoWinners
	if policy == "" {
		policy = domain.NoWinnersToTreasury
	}
	switch policy {
	case domain.NoWinnersToTreasury, domain.NoWinnersRefund:
	default:
		return Params{}, fmt.Errorf("engine: unknown no-winners policy %q: %w",
			policy, domain.ErrInvalidSplitConfig)
	}

	return Params{
		FeeRate:      p.FeeRate,
		Split:        split,
		TreasuryPool: treasury,
		NoWinners:    policy,
	}, nil
}

// Settle computes the full settlement for a frozen pool snapshot. It is pure:
// given the same snapshot and params it always produces the same result, and
// it mutates nothing.
//
// The platform fee is charged on the losing pool only, never the winning
// side or the total. The result is checked against the conservation
// invariants before being returned; a violation aborts settlement with
// domain.ErrInvariantViolation rather than ever settling inconsistent
// numbers.
func (p Params) Settle(snap PoolSnapshot) (domain.SettlementResult, error) {
	if snap.WinningPool < 0 || snap.LosingPool < 0 || snap.WinningPool+snap.LosingPool != snap.TotalPool {
		return domain.SettlementResult{}, fmt.Errorf("engine: inconsistent snapshot for market %s: %w",
			snap.MarketID, domain.ErrInvariantViolation)
	}

	fee := decimal.NewFromInt(snap.LosingPool).Mul(p.FeeRate).Floor().IntPart()

	split, err := p.Split.Distribute(fee)
	if err != nil {
		return domain.SettlementResult{}, err
	}

	distributable := snap.TotalPool - fee
	mult := NewMultiplier(distributable, snap.WinningPool)

	res := domain.SettlementResult{
		MarketID:       snap.MarketID,
		WinningOutcome: snap.WinningOutcome,
		WinningPool:    snap.WinningPool,
		LosingPool:     snap.LosingPool,
		TotalPool:      snap.TotalPool,
		PlatformFee:    fee,
		FeeSplit:       split,
		Distributable:  distributable,
		MultiplierNum:  mult.Num(),
		MultiplierDen:  mult.Den(),
		NoWinners:      mult.NoWinners(),
		ResolvedAt:     time.Now().UTC(),
	}

	if err := CheckInvariants(res); err != nil {
		return domain.SettlementResult{}, err
	}
	return res, nil
}

// CheckInvariants verifies the conservation invariants of a settlement
// result. It is used both before a settlement is applied and by the audit
// mode when re-verifying stored settlements.
func CheckInvariants(res domain.SettlementResult) error {
	if res.PlatformFee < 0 {
		return fmt.Errorf("engine: market %s: negative fee %d: %w",
			res.MarketID, res.PlatformFee, domain.ErrInvariantViolation)
	}
	if got := SumShares(res.FeeSplit); got != res.PlatformFee {
		return fmt.Errorf("engine: market %s: fee split sums to %d, want %d: %w",
			res.MarketID, got, res.PlatformFee, domain.ErrInvariantViolation)
	}
	if res.Distributable+res.PlatformFee != res.TotalPool {
		return fmt.Errorf("engine: market %s: distributable %d + fee %d != total %d: %w",
			res.MarketID, res.Distributable, res.PlatformFee, res.TotalPool, domain.ErrInvariantViolation)
	}
	if res.WinningPool+res.LosingPool != res.TotalPool {
		return fmt.Errorf("engine: market %s: pools %d + %d != total %d: %w",
			res.MarketID, res.WinningPool, res.LosingPool, res.TotalPool, domain.ErrInvariantViolation)
	}
	return nil
}

// Equivalent reports whether two settlement results settle the same market
// identically, ignoring the resolution timestamp. Used to answer duplicate
// resolution attempts idempotently.
func Equivalent(a, b domain.SettlementResult) bool {
	if a.MarketID != b.MarketID ||
		a.WinningOutcome != b.WinningOutcome ||
		a.WinningPool != b.WinningPool ||
		a.LosingPool != b.LosingPool ||
		a.TotalPool != b.TotalPool ||
		a.PlatformFee != b.PlatformFee ||
		a.Distributable != b.Distributable ||
		a.MultiplierNum != b.MultiplierNum ||
		a.MultiplierDen != b.MultiplierDen ||
		a.NoWinners != b.NoWinners ||
		len(a.FeeSplit) != len(b.FeeSplit) {
		return false
	}
	for i := range a.FeeSplit {
		if a.FeeSplit[i] != b.FeeSplit[i] {
			return false
		}
	}
	return true
}
