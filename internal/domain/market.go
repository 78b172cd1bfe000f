package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s MarketStatus) Terminal() bool {
	return s == MarketStatusResolved || s == MarketStatusCancelled
}

// Market is a resolvable prediction question with one pari-mutuel pool per
// outcome. All amounts are MYST minor units. Pools only grow while the market
// is open; the single transition out of open is guarded by Version (optimistic
// lock) plus a row lock in the store layer.
type Market struct {
	ID            string
	Question      string
	Outcomes      []string // ordered, 2 or more, distinct
	PoolByOutcome map[string]int64
	Status        MarketStatus
	// WinningOutcome is set exactly once, on the transition to resolved.
	WinningOutcome *string
	// PendingOutcome is the admin's queued resolution decision; the resolver
	// worker settles the market once ClosesAt has passed.
	PendingOutcome *string
	Version        int64
	ClosesAt       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TotalPool returns the sum of all outcome pools.
func (m *Market) TotalPool() int64 {
	var total int64
	for _, v := range m.PoolByOutcome {
		total += v
	}
	return total
}

// HasOutcome reports whether label is one of the market's outcomes.
func (m *Market) HasOutcome(label string) bool {
	for _, o := range m.Outcomes {
		if o == label {
			return true
		}
	}
	return false
}

// Bet is one bettor's stake on one outcome. Bets are immutable once created;
// there is no partial withdrawal.
type Bet struct {
	ID        string
	MarketID  string
	BettorID  string
	Outcome   string
	Amount    int64 // positive, minor units
	CreatedAt time.Time
}
