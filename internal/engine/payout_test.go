package engine

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mystquest/settler/internal/domain"
)

func TestMultiplier(t *testing.T) {
	m := NewMultiplier(9600, 6000)

	assert.False(t, m.NoWinners())
	assert.Equal(t, "1.6", m.Decimal().String())
	assert.Equal(t, int64(1600), m.Payout(1000))
	assert.Equal(t, int64(9600), m.Payout(6000))
}

func TestMultiplierFloors(t *testing.T) {
	// 100/3: every payout rounds down.
	m := NewMultiplier(100, 3)
	assert.Equal(t, int64(33), m.Payout(1))
	assert.Equal(t, int64(66), m.Payout(2))
	assert.Equal(t, int64(100), m.Payout(3))
}

func TestMultiplierNoWinners(t *testing.T) {
	m := NewMultiplier(9600, 0)
	assert.True(t, m.NoWinners())
	assert.Equal(t, int64(0), m.Payout(1000))
	assert.True(t, m.Decimal().IsZero())
}

func TestMultiplierLargeStakes(t *testing.T) {
	// Products near the pool bound must not overflow.
	m := NewMultiplier(MaxMinorUnits, MaxMinorUnits-1)
	assert.Equal(t, MaxMinorUnits-2, m.Payout(MaxMinorUnits-2))
	assert.Equal(t, MaxMinorUnits, m.Payout(MaxMinorUnits-1))
}

func TestPayouts(t *testing.T) {
	res := domain.SettlementResult{
		MarketID:       "mkt-1",
		WinningOutcome: "NO",
		WinningPool:    6000,
		LosingPool:     4000,
		TotalPool:      10000,
		PlatformFee:    400,
		Distributable:  9600,
		MultiplierNum:  9600,
		MultiplierDen:  6000,
	}
	bets := []domain.Bet{
		{ID: "b1", BettorID: "alice", Outcome: "NO", Amount: 1000},
		{ID: "b2", BettorID: "bob", Outcome: "NO", Amount: 5000},
		{ID: "b3", BettorID: "carol", Outcome: "YES", Amount: 4000},
	}

	payouts, dust := Payouts(res, bets)
	require.Len(t, payouts, 2)
	assert.Equal(t, domain.Payout{BetID: "b1", BettorID: "alice", Amount: 1600}, payouts[0])
	assert.Equal(t, domain.Payout{BetID: "b2", BettorID: "bob", Amount: 8000}, payouts[1])
	assert.Equal(t, int64(0), dust)
}

func TestPayoutsDust(t *testing.T) {
	// Distributable 100 over a winning pool of 3 split into three 1-unit
	// bets: each floors to 33, leaving 1 unit of dust for the treasury.
	res := domain.SettlementResult{
		WinningOutcome: "YES",
		WinningPool:    3,
		TotalPool:      3,
		Distributable:  100,
		MultiplierNum:  100,
		MultiplierDen:  3,
	}
	bets := []domain.Bet{
		{ID: "b1", BettorID: "a", Outcome: "YES", Amount: 1},
		{ID: "b2", BettorID: "b", Outcome: "YES", Amount: 1},
		{ID: "b3", BettorID: "c", Outcome: "YES", Amount: 1},
	}

	payouts, dust := Payouts(res, bets)
	var paid int64
	for _, p := range payouts {
		assert.Equal(t, int64(33), p.Amount)
		paid += p.Amount
	}
	assert.Equal(t, int64(1), dust)
	assert.Equal(t, res.Distributable, paid+dust)
}

func TestPayoutsNoWinners(t *testing.T) {
	res := domain.SettlementResult{
		WinningOutcome: "YES",
		Distributable:  9600,
		NoWinners:      true,
	}
	payouts, dust := Payouts(res, []domain.Bet{
		{ID: "b1", BettorID: "a", Outcome: "NO", Amount: 9600},
	})
	assert.Empty(t, payouts)
	assert.Equal(t, int64(9600), dust)
}

// Property: however the winning pool is partitioned into individual bets,
// the floored payouts never sum to more than the distributable pool, and the
// dust closes the gap exactly.
func TestPayoutNonOverpaymentProperty(t *testing.T) {
	property := func(stakes []uint16, extra uint32) bool {
		var winning int64
		bets := make([]domain.Bet, 0, len(stakes))
		for i, s := range stakes {
			if s == 0 {
				continue
			}
			bets = append(bets, domain.Bet{
				ID:       string(rune('a' + i%26)),
				BettorID: "bettor",
				Outcome:  "YES",
				Amount:   int64(s),
			})
			winning += int64(s)
		}
		if winning == 0 {
			return true
		}

		losing := int64(extra)
		total := winning + losing
		fee := losing / 10
		distributable := total - fee

		res := domain.SettlementResult{
			WinningOutcome: "YES",
			WinningPool:    winning,
			LosingPool:     losing,
			TotalPool:      total,
			PlatformFee:    fee,
			Distributable:  distributable,
			MultiplierNum:  distributable,
			MultiplierDen:  winning,
		}

		payouts, dust := Payouts(res, bets)
		var paid int64
		for _, p := range payouts {
			if p.Amount < 0 {
				return false
			}
			paid += p.Amount
		}
		return paid <= distributable && dust >= 0 && paid+dust == distributable
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 300}); err != nil {
		t.Errorf("payout non-overpayment property failed: %v", err)
	}
}

func TestRefunds(t *testing.T) {
	bets := []domain.Bet{
		{ID: "b1", BettorID: "a", Outcome: "YES", Amount: 100},
		{ID: "b2", BettorID: "b", Outcome: "NO", Amount: 250},
	}
	refunds := Refunds(bets)
	require.Len(t, refunds, 2)
	assert.Equal(t, domain.Payout{BetID: "b1", BettorID: "a", Amount: 100}, refunds[0])
	assert.Equal(t, domain.Payout{BetID: "b2", BettorID: "b", Amount: 250}, refunds[1])
}
