package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/mystquest/settler/internal/domain"
	"github.com/mystquest/settler/internal/engine"
)

// Event types emitted by the settlement engine. The notify.events config list
// selects which of these reach operators.
const (
	EventMarketResolved     = "market_resolved"
	EventMarketCancelled    = "market_cancelled"
	EventInvariantViolation = "invariant_violation"
)

// MarketResolved notifies operators that a market has been settled, including
// the pool breakdown and the platform fee taken.
func (n *Notifier) MarketResolved(ctx context.Context, res domain.SettlementResult, payoutCount int) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Market %s resolved: %s\n", res.MarketID, res.WinningOutcome)
	fmt.Fprintf(&b, "Total pool: %s MYST (winning %s, losing %s)\n",
		engine.FromMinorUnits(res.TotalPool),
		engine.FromMinorUnits(res.WinningPool),
		engine.FromMinorUnits(res.LosingPool))
	fmt.Fprintf(&b, "Fee: %s MYST, distributed: %s MYST across %d payout(s)",
		engine.FromMinorUnits(res.PlatformFee),
		engine.FromMinorUnits(res.Distributable),
		payoutCount)
	if res.NoWinners {
		b.WriteString("\nNo winning stakes; distributable pool routed per policy")
	}

	return n.Notify(ctx, EventMarketResolved, "Market Resolved", b.String())
}

// MarketCancelled notifies operators that a market was cancelled and all
// stakes refunded.
func (n *Notifier) MarketCancelled(ctx context.Context, marketID string, refunded int64, refundCount int) error {
	message := fmt.Sprintf("Market %s cancelled. Refunded %s MYST across %d stake(s).",
		marketID, engine.FromMinorUnits(refunded), refundCount)

	return n.Notify(ctx, EventMarketCancelled, "Market Cancelled", message)
}

// InvariantViolation alerts operators that a settlement failed its
// conservation checks. This always pages regardless of the event filter.
func (n *Notifier) InvariantViolation(ctx context.Context, marketID string, err error) error {
	message := fmt.Sprintf("Market %s failed settlement verification: %v", marketID, err)

	return n.NotifyAll(ctx, "Settlement Invariant Violation", message)
}
