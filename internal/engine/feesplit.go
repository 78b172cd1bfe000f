package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mystquest/settler/internal/domain"
)

// SplitConfig is a validated, ordered fee split. Construct it with
// NewSplitConfig; the zero value is unusable and Distribute rejects it.
type SplitConfig struct {
	shares []domain.SubPoolShare
}

// NewSplitConfig validates the ordered sub-pool shares: at least one entry,
// distinct non-empty names, every percent positive, and percents summing to
// exactly 1. Any violation returns domain.ErrInvalidSplitConfig.
func NewSplitConfig(shares []domain.SubPoolShare) (SplitConfig, error) {
	if len(shares) == 0 {
		return SplitConfig{}, fmt.Errorf("engine: empty fee split: %w", domain.ErrInvalidSplitConfig)
	}

	seen := make(map[string]bool, len(shares))
	sum := decimal.Zero
	for _, s := range shares {
		if s.Name == "" {
			return SplitConfig{}, fmt.Errorf("engine: unnamed sub-pool: %w", domain.ErrInvalidSplitConfig)
		}
		if seen[s.Name] {
			return SplitConfig{}, fmt.Errorf("engine: duplicate sub-pool %q: %w", s.Name, domain.ErrInvalidSplitConfig)
		}
		seen[s.Name] = true

		if !s.Percent.IsPositive() {
			return SplitConfig{}, fmt.Errorf("engine: sub-pool %q percent %s is not positive: %w",
				s.Name, s.Percent, domain.ErrInvalidSplitConfig)
		}
		sum = sum.Add(s.Percent)
	}

	if !sum.Equal(decimal.NewFromInt(1)) {
		return SplitConfig{}, fmt.Errorf("engine: fee split percents sum to %s, want 1: %w",
			sum, domain.ErrInvalidSplitConfig)
	}

	cp := make([]domain.SubPoolShare, len(shares))
	copy(cp, shares)
	return SplitConfig{shares: cp}, nil
}

// Shares returns a copy of the ordered sub-pool shares.
func (sc SplitConfig) Shares() []domain.SubPoolShare {
	cp := make([]domain.SubPoolShare, len(sc.shares))
	copy(cp, sc.shares)
	return cp
}

// Contains reports whether a sub-pool with the given name is configured.
func (sc SplitConfig) Contains(name string) bool {
	for _, s := range sc.shares {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Last returns the name of the final sub-pool in configuration order, the
// one that absorbs integer rounding.
func (sc SplitConfig) Last() string {
	if len(sc.shares) == 0 {
		return ""
	}
	return sc.shares[len(sc.shares)-1].Name
}

// Distribute splits fee across the configured sub-pools. Every sub-pool but
// the last receives floor(fee * percent); the last receives the remainder, so
// the shares always sum to fee exactly regardless of rounding. A fee of one
// minor unit across four pools yields 0/0/0/1.
func (sc SplitConfig) Distribute(fee int64) ([]domain.FeeShare, error) {
	if len(sc.shares) == 0 {
		return nil, fmt.Errorf("engine: distribute with empty split: %w", domain.ErrInvalidSplitConfig)
	}
	if fee < 0 {
		return nil, fmt.Errorf("engine: negative fee %d: %w", fee, domain.ErrInvalidFee)
	}

	out := make([]domain.FeeShare, len(sc.shares))
	feeDec := decimal.NewFromInt(fee)

	var assigned int64
	for i, s := range sc.shares[:len(sc.shares)-1] {
		share := feeDec.Mul(s.Percent).Floor().IntPart()
		out[i] = domain.FeeShare{SubPool: s.Name, Amount: share}
		assigned += share
	}
	out[len(out)-1] = domain.FeeShare{
		SubPool: sc.shares[len(sc.shares)-1].Name,
		Amount:  fee - assigned,
	}

	return out, nil
}

// SumShares returns the total of the given fee shares.
func SumShares(shares []domain.FeeShare) int64 {
	var sum int64
	for _, s := range shares {
		sum += s.Amount
	}
	return sum
}
