package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mystquest/settler/internal/domain"
	"github.com/mystquest/settler/internal/engine"
)

// memStore is an in-memory stand-in for the Postgres stores. It mirrors the
// transactional semantics the service relies on: status checks, pool
// staleness checks, and the single-shot compare-and-swap out of open.
type memStore struct {
	mu          sync.Mutex
	markets     map[string]domain.Market
	bets        map[string][]domain.Bet
	settlements map[string]domain.SettlementResult
	balances    map[string]int64
	subPools    map[string]int64
	ledger      map[string][]domain.LedgerEntry
}

func newMemStore() *memStore {
	return &memStore{
		markets:     make(map[string]domain.Market),
		bets:        make(map[string][]domain.Bet),
		settlements: make(map[string]domain.SettlementResult),
		balances:    make(map[string]int64),
		subPools:    make(map[string]int64),
		ledger:      make(map[string][]domain.LedgerEntry),
	}
}

func (s *memStore) appendLedger(marketID string, kind domain.LedgerKind, account string, amount int64) {
	s.ledger[marketID] = append(s.ledger[marketID], domain.LedgerEntry{
		MarketID:  marketID,
		Kind:      kind,
		Account:   account,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	})
}

func cloneMarket(m domain.Market) domain.Market {
	pools := make(map[string]int64, len(m.PoolByOutcome))
	for k, v := range m.PoolByOutcome {
		pools[k] = v
	}
	m.PoolByOutcome = pools
	return m
}

// MarketStore

func (s *memStore) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.ID] = cloneMarket(m)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return cloneMarket(m), nil
}

func (s *memStore) listByStatus(status domain.MarketStatus, opts domain.ListOpts) []domain.Market {
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == status {
			out = append(out, cloneMarket(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if opts.Offset >= len(out) {
		return nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func (s *memStore) ListOpen(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listByStatus(domain.MarketStatusOpen, opts), nil
}

func (s *memStore) ListResolved(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listByStatus(domain.MarketStatusResolved, opts), nil
}

func (s *memStore) QueueResolution(_ context.Context, id, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status != domain.MarketStatusOpen {
		return domain.ErrMarketClosed
	}
	if !m.HasOutcome(outcome) {
		return domain.ErrInvalidOutcome
	}
	o := outcome
	m.PendingOutcome = &o
	s.markets[id] = m
	return nil
}

func (s *memStore) ListDueForSettlement(_ context.Context, now time.Time, limit int) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == domain.MarketStatusOpen && m.PendingOutcome != nil && !m.ClosesAt.After(now) {
			out = append(out, cloneMarket(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosesAt.Before(out[j].ClosesAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// BetStore

func (s *memStore) GetBetByID(_ context.Context, id string) (domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bets := range s.bets {
		for _, b := range bets {
			if b.ID == id {
				return b, nil
			}
		}
	}
	return domain.Bet{}, domain.ErrNotFound
}

func (s *memStore) ListByMarket(_ context.Context, marketID string) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Bet(nil), s.bets[marketID]...), nil
}

func (s *memStore) ListByBettor(_ context.Context, bettorID string, _ domain.ListOpts) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for _, bets := range s.bets {
		for _, b := range bets {
			if b.BettorID == bettorID {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

// SettlementStore

func (s *memStore) PlaceBet(_ context.Context, bet domain.Bet) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[bet.MarketID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	m = cloneMarket(m)

	if err := engine.RecordStake(&m, bet.Outcome, bet.Amount); err != nil {
		return domain.Market{}, err
	}
	if s.balances[bet.BettorID] < bet.Amount {
		return domain.Market{}, domain.ErrInsufficientBalance
	}

	s.balances[bet.BettorID] -= bet.Amount
	s.bets[bet.MarketID] = append(s.bets[bet.MarketID], bet)
	m.Version++
	s.markets[bet.MarketID] = cloneMarket(m)
	s.appendLedger(bet.MarketID, domain.LedgerStake, bet.BettorID, -bet.Amount)
	return m, nil
}

func (s *memStore) ApplySettlement(_ context.Context, res domain.SettlementResult, payouts []domain.Payout, dust int64, dustPool string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[res.MarketID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status != domain.MarketStatusOpen {
		return domain.ErrAlreadyResolved
	}
	if m.PoolByOutcome[res.WinningOutcome] != res.WinningPool || m.TotalPool() != res.TotalPool {
		return domain.ErrResolutionConflict
	}

	m = cloneMarket(m)
	m.Status = domain.MarketStatusResolved
	w := res.WinningOutcome
	m.WinningOutcome = &w
	m.Version++
	s.markets[res.MarketID] = m
	s.settlements[res.MarketID] = res

	for _, p := range payouts {
		s.balances[p.BettorID] += p.Amount
		kind := domain.LedgerPayout
		if res.PlatformFee == 0 && res.NoWinners {
			kind = domain.LedgerRefund
		}
		s.appendLedger(res.MarketID, kind, p.BettorID, p.Amount)
	}
	for _, share := range res.FeeSplit {
		if share.Amount == 0 {
			continue
		}
		s.subPools[share.SubPool] += share.Amount
		s.appendLedger(res.MarketID, domain.LedgerFeeShare, share.SubPool, share.Amount)
	}
	if dust > 0 {
		kind := domain.LedgerRoundingDust
		if res.NoWinners {
			kind = domain.LedgerUnclaimed
		}
		s.subPools[dustPool] += dust
		s.appendLedger(res.MarketID, kind, dustPool, dust)
	}
	return nil
}

func (s *memStore) ApplyCancellation(_ context.Context, marketID string, refunds []domain.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status != domain.MarketStatusOpen {
		return domain.ErrAlreadyResolved
	}

	var refunded int64
	for _, r := range refunds {
		refunded += r.Amount
	}
	if refunded != m.TotalPool() {
		return domain.ErrInvariantViolation
	}

	m = cloneMarket(m)
	m.Status = domain.MarketStatusCancelled
	m.Version++
	s.markets[marketID] = m

	for _, r := range refunds {
		s.balances[r.BettorID] += r.Amount
		s.appendLedger(marketID, domain.LedgerRefund, r.BettorID, r.Amount)
	}
	return nil
}

func (s *memStore) GetSettlement(_ context.Context, marketID string) (domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.settlements[marketID]
	if !ok {
		return domain.SettlementResult{}, domain.ErrNotFound
	}
	return res, nil
}

// LedgerStore

func (s *memStore) BettorBalance(_ context.Context, bettorID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[bettorID], nil
}

func (s *memStore) CreditBettor(_ context.Context, bettorID string, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[bettorID] += amount
	return nil
}

func (s *memStore) SubPoolBalance(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subPools[name], nil
}

func (s *memStore) ListByMarketLedger(_ context.Context, marketID string) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LedgerEntry(nil), s.ledger[marketID]...), nil
}

// betStoreView and ledgerStoreView resolve the ListByMarket name clash
// between the bet and ledger interfaces on the shared memStore.
type betStoreView struct{ *memStore }

func (v betStoreView) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	return v.GetBetByID(ctx, id)
}

type ledgerStoreView struct{ *memStore }

func (v ledgerStoreView) ListByMarket(ctx context.Context, marketID string) ([]domain.LedgerEntry, error) {
	return v.ListByMarketLedger(ctx, marketID)
}

// memPoolCache is an in-memory domain.PoolCache recording invalidations.
type memPoolCache struct {
	mu          sync.Mutex
	pools       map[string]map[string]int64
	invalidated []string
}

func newMemPoolCache() *memPoolCache {
	return &memPoolCache{pools: make(map[string]map[string]int64)}
}

func (c *memPoolCache) Set(_ context.Context, marketID string, pools map[string]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make(map[string]int64, len(pools))
	for k, v := range pools {
		cp[k] = v
	}
	c.pools[marketID] = cp
	return nil
}

func (c *memPoolCache) Get(_ context.Context, marketID string) (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pools, ok := c.pools[marketID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return pools, nil
}

func (c *memPoolCache) Invalidate(_ context.Context, marketID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pools, marketID)
	c.invalidated = append(c.invalidated, marketID)
	return nil
}

// memLocks is an in-memory domain.LockManager.
type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]bool)}
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

// memArchiver records archived settlements.
type memArchiver struct {
	mu       sync.Mutex
	archived []domain.SettlementResult
	fail     bool
}

func (a *memArchiver) ArchiveSettlement(_ context.Context, res domain.SettlementResult, _ []domain.Bet, _ []domain.Payout) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return "", fmt.Errorf("archive unavailable")
	}
	a.archived = append(a.archived, res)
	return domain.ReportPath(res), nil
}

// captureSender records every notification delivered to it.
type captureSender struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureSender) Send(_ context.Context, title, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, title+"\n"+message)
	return nil
}

func (c *captureSender) Name() string { return "capture" }
