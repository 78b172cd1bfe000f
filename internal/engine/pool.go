package engine

import (
	"fmt"

	"github.com/mystquest/settler/internal/domain"
)

// PoolSnapshot is the frozen pool state a market is settled from. Losing is
// the sum of every non-winning pool, which generalizes the yes/no case to N
// outcomes.
type PoolSnapshot struct {
	MarketID       string
	WinningOutcome string
	WinningPool    int64
	LosingPool     int64
	TotalPool      int64
}

// RecordStake appends a stake to one outcome pool of an open market. This is
// the only pool mutation before resolution: append-only, never decremented.
// The caller is responsible for running it under the market's transactional
// boundary so no stake lands after the resolution snapshot.
func RecordStake(m *domain.Market, outcome string, amount int64) error {
	if m.Status != domain.MarketStatusOpen {
		return fmt.Errorf("engine: market %s is %s: %w", m.ID, m.Status, domain.ErrMarketClosed)
	}
	if amount <= 0 {
		return fmt.Errorf("engine: stake %d is not positive: %w", amount, domain.ErrInvalidAmount)
	}
	if !m.HasOutcome(outcome) {
		return fmt.Errorf("engine: market %s has no outcome %q: %w", m.ID, outcome, domain.ErrInvalidOutcome)
	}
	if amount > MaxMinorUnits-m.TotalPool() {
		return fmt.Errorf("engine: stake %d would overflow pool: %w", amount, domain.ErrInvalidAmount)
	}

	if m.PoolByOutcome == nil {
		m.PoolByOutcome = make(map[string]int64, len(m.Outcomes))
	}
	m.PoolByOutcome[outcome] += amount
	return nil
}

// Resolve freezes the pools, transitions the market to resolved, and records
// the winning outcome. It fails with ErrAlreadyResolved on a market that has
// left the open state, so a second call can never re-settle.
func Resolve(m *domain.Market, winner string) (PoolSnapshot, error) {
	if m.Status != domain.MarketStatusOpen {
		return PoolSnapshot{}, fmt.Errorf("engine: market %s is %s: %w", m.ID, m.Status, domain.ErrAlreadyResolved)
	}
	if !m.HasOutcome(winner) {
		return PoolSnapshot{}, fmt.Errorf("engine: market %s has no outcome %q: %w", m.ID, winner, domain.ErrInvalidOutcome)
	}

	total := m.TotalPool()
	winning := m.PoolByOutcome[winner]

	m.Status = domain.MarketStatusResolved
	w := winner
	m.WinningOutcome = &w
	m.Version++

	return PoolSnapshot{
		MarketID:       m.ID,
		WinningOutcome: winner,
		WinningPool:    winning,
		LosingPool:     total - winning,
		TotalPool:      total,
	}, nil
}

// Cancel transitions an open market to cancelled. Cancellation is the
// degenerate settlement: no fee, every stake refunded 1:1.
func Cancel(m *domain.Market) error {
	if m.Status != domain.MarketStatusOpen {
		return fmt.Errorf("engine: market %s is %s: %w", m.ID, m.Status, domain.ErrAlreadyResolved)
	}
	m.Status = domain.MarketStatusCancelled
	m.Version++
	return nil
}
