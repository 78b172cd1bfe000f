// Package engine implements the pari-mutuel settlement engine: fixed-point
// currency handling, per-outcome pool accounting, platform fee distribution
// across sub-pools, and payout calculation. Everything in this package is a
// pure computation over int64 MYST minor units; persistence and transaction
// boundaries live in the store layer.
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mystquest/settler/internal/domain"
)

const (
	// minorUnitScale is the number of decimal places in a MYST amount.
	// 1 MYST = 100 minor units.
	minorUnitScale = 2

	// MaxMinorUnits bounds every stake, pool, and payout. Kept well under
	// math.MaxInt64 so pool sums and fee arithmetic cannot overflow int64.
	MaxMinorUnits int64 = 1_000_000_000_000_000_000 / 2
)

// ToMinorUnits converts a MYST amount to int64 minor units. It rejects
// negative amounts, amounts with sub-minor-unit precision, and amounts above
// the supported range.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("engine: amount %s is negative: %w", amount, domain.ErrInvalidAmount)
	}

	shifted := amount.Shift(minorUnitScale)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("engine: amount %s has sub-minor-unit precision: %w", amount, domain.ErrInvalidAmount)
	}
	if shifted.GreaterThan(decimal.NewFromInt(MaxMinorUnits)) {
		return 0, fmt.Errorf("engine: amount %s exceeds supported range: %w", amount, domain.ErrInvalidAmount)
	}

	return shifted.IntPart(), nil
}

// ParseAmount parses a decimal MYST amount string ("12.34") into minor units.
// This is the entry point for amounts arriving from external callers.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("engine: parse amount %q: %w", s, domain.ErrInvalidAmount)
	}
	return ToMinorUnits(d)
}

// FromMinorUnits formats minor units as a MYST decimal string for display.
// The round-trip FromMinorUnits -> ParseAmount is lossless; the string must
// never be fed back into pool arithmetic.
func FromMinorUnits(v int64) string {
	return decimal.New(v, -minorUnitScale).StringFixed(minorUnitScale)
}

// FiatValue formats the fiat value of a MYST minor-unit amount at the given
// exchange rate (fiat per 1 MYST). Display and withdrawal reporting only;
// pool math never converts through fiat.
func FiatValue(v int64, rate decimal.Decimal) string {
	return decimal.New(v, -minorUnitScale).Mul(rate).StringFixed(2)
}
