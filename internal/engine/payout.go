package engine

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/mystquest/settler/internal/domain"
)

// Multiplier is the exact payout ratio distributablePool/winningPoolTotal.
// It stays a rational the whole way: each bettor's payout is computed as a
// big-integer product before the single floor division, so rounding happens
// once per bet and always downward.
type Multiplier struct {
	num int64 // distributable pool
	den int64 // winning pool total
}

// NewMultiplier builds the payout multiplier. A zero winning pool yields the
// NoWinners sentinel; this function reports the degenerate case but does not
// decide the house policy for it.
func NewMultiplier(distributable, winningPool int64) Multiplier {
	if winningPool == 0 {
		return Multiplier{}
	}
	return Multiplier{num: distributable, den: winningPool}
}

// NoWinners reports the degenerate empty-winning-pool case.
func (m Multiplier) NoWinners() bool { return m.den == 0 }

// Num returns the multiplier numerator (the distributable pool).
func (m Multiplier) Num() int64 { return m.num }

// Den returns the multiplier denominator (the winning pool total).
func (m Multiplier) Den() int64 { return m.den }

// Payout returns floor(stake * num / den) in minor units. The product is
// taken in big integers, so stakes near the pool bound cannot overflow.
// Flooring every individual payout guarantees the payout total never exceeds
// the distributable pool. Returns 0 for the NoWinners sentinel.
func (m Multiplier) Payout(stake int64) int64 {
	if m.den == 0 || stake <= 0 {
		return 0
	}
	p := new(big.Int).Mul(big.NewInt(stake), big.NewInt(m.num))
	p.Quo(p, big.NewInt(m.den))
	return p.Int64()
}

// Decimal renders the multiplier for display with four decimal places.
// Never use the rendered value for payout arithmetic.
func (m Multiplier) Decimal() decimal.Decimal {
	if m.den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(m.num).DivRound(decimal.NewFromInt(m.den), 4)
}

// Payouts computes every winning bettor's payout from the settlement result.
// Bets on non-winning outcomes are skipped. The second return value is the
// rounding dust: the distributable pool minus the floored payout total. Dust
// is never redistributed to bettors; the caller sweeps it to the treasury
// sub-pool as an explicit ledger entry.
func Payouts(res domain.SettlementResult, bets []domain.Bet) ([]domain.Payout, int64) {
	if res.NoWinners {
		return nil, res.Distributable
	}

	m := Multiplier{num: res.MultiplierNum, den: res.MultiplierDen}

	var out []domain.Payout
	var paid int64
	for _, b := range bets {
		if b.Outcome != res.WinningOutcome {
			continue
		}
		p := m.Payout(b.Amount)
		paid += p
		out = append(out, domain.Payout{BetID: b.ID, BettorID: b.BettorID, Amount: p})
	}

	return out, res.Distributable - paid
}

// Refunds returns a 1:1 refund payout for every bet, used for cancellation
// and the refund no-winners policy.
func Refunds(bets []domain.Bet) []domain.Payout {
	out := make([]domain.Payout, 0, len(bets))
	for _, b := range bets {
		out = append(out, domain.Payout{BetID: b.ID, BettorID: b.BettorID, Amount: b.Amount})
	}
	return out
}
