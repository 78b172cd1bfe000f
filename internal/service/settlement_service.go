// Package service orchestrates the settlement engine: it glues the pure
// engine math to the transactional stores, the distributed lock, the pool
// cache, the report archiver, and operator notifications.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mystquest/settler/internal/domain"
	"github.com/mystquest/settler/internal/engine"
	"github.com/mystquest/settler/internal/notify"
)

// resolveLockTTL bounds how long a crashed resolver can block a market's
// settlement before the lock expires.
const resolveLockTTL = 30 * time.Second

// SettlementService implements the market lifecycle: create, stake, resolve,
// cancel. All money movement goes through domain.SettlementStore so each
// transition commits atomically; the service itself holds no state beyond
// its validated parameters.
type SettlementService struct {
	params   engine.Params
	lockTTL  time.Duration
	markets  domain.MarketStore
	bets     domain.BetStore
	settle   domain.SettlementStore
	pools    domain.PoolCache
	locks    domain.LockManager
	archiver domain.Archiver
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewSettlementService creates a SettlementService. The archiver and notifier
// may be nil; archival and notification are then skipped. A non-positive
// lockTTL falls back to the 30-second default.
func NewSettlementService(
	params engine.Params,
	lockTTL time.Duration,
	markets domain.MarketStore,
	bets domain.BetStore,
	settle domain.SettlementStore,
	pools domain.PoolCache,
	locks domain.LockManager,
	archiver domain.Archiver,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *SettlementService {
	if lockTTL <= 0 {
		lockTTL = resolveLockTTL
	}
	return &SettlementService{
		params:   params,
		lockTTL:  lockTTL,
		markets:  markets,
		bets:     bets,
		settle:   settle,
		pools:    pools,
		locks:    locks,
		archiver: archiver,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "settlement_service")),
	}
}

// CreateMarket opens a new market with the given question, outcome labels,
// and close time. Outcomes must be at least two distinct non-empty labels.
func (s *SettlementService) CreateMarket(ctx context.Context, question string, outcomes []string, closesAt time.Time) (domain.Market, error) {
	if strings.TrimSpace(question) == "" {
		return domain.Market{}, fmt.Errorf("settlement_service: empty question: %w", domain.ErrInvalidOutcome)
	}
	if len(outcomes) < 2 {
		return domain.Market{}, fmt.Errorf("settlement_service: %d outcomes, need at least 2: %w",
			len(outcomes), domain.ErrInvalidOutcome)
	}
	seen := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		if strings.TrimSpace(o) == "" {
			return domain.Market{}, fmt.Errorf("settlement_service: empty outcome label: %w", domain.ErrInvalidOutcome)
		}
		if seen[o] {
			return domain.Market{}, fmt.Errorf("settlement_service: duplicate outcome %q: %w", o, domain.ErrInvalidOutcome)
		}
		seen[o] = true
	}

	now := time.Now().UTC()
	m := domain.Market{
		ID:            uuid.NewString(),
		Question:      question,
		Outcomes:      outcomes,
		PoolByOutcome: make(map[string]int64, len(outcomes)),
		Status:        domain.MarketStatusOpen,
		Version:       1,
		ClosesAt:      closesAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, o := range outcomes {
		m.PoolByOutcome[o] = 0
	}

	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("settlement_service: create market: %w", err)
	}

	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID),
		slog.Int("outcomes", len(outcomes)),
	)
	return m, nil
}

// PlaceBet stakes amount minor units on an outcome for a bettor. The stake
// commits atomically with the balance debit and pool increment; the cached
// pool totals are refreshed best-effort afterwards.
func (s *SettlementService) PlaceBet(ctx context.Context, marketID, bettorID, outcome string, amount int64) (domain.Bet, error) {
	bet := domain.Bet{
		ID:        uuid.NewString(),
		MarketID:  marketID,
		BettorID:  bettorID,
		Outcome:   outcome,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}

	m, err := s.settle.PlaceBet(ctx, bet)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("settlement_service: place bet: %w", err)
	}

	s.refreshPools(ctx, m)

	s.logger.InfoContext(ctx, "bet placed",
		slog.String("bet_id", bet.ID),
		slog.String("market_id", marketID),
		slog.String("outcome", outcome),
		slog.Int64("amount", amount),
	)
	return bet, nil
}

// QueueResolution records the admin's winning-outcome decision on an open
// market. The resolver worker settles the market once its close time passes.
func (s *SettlementService) QueueResolution(ctx context.Context, marketID, outcome string) error {
	if err := s.markets.QueueResolution(ctx, marketID, outcome); err != nil {
		return fmt.Errorf("settlement_service: queue resolution: %w", err)
	}
	s.logger.InfoContext(ctx, "resolution queued",
		slog.String("market_id", marketID),
		slog.String("outcome", outcome),
	)
	return nil
}

// ResolveMarket settles a market on the given winning outcome.
//
// Resolution is idempotent: resolving an already-resolved market with the
// same outcome returns the stored settlement unchanged, while a different
// outcome fails with ErrResolutionConflict. A distributed lock serializes
// concurrent attempts across instances; the store's compare-and-swap is the
// backstop should the lock expire mid-settlement.
func (s *SettlementService) ResolveMarket(ctx context.Context, marketID, winner string) (domain.SettlementResult, error) {
	unlock, err := s.locks.Acquire(ctx, "settle:"+marketID, s.lockTTL)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement_service: resolve market %s: %w", marketID, err)
	}
	defer unlock()

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement_service: resolve market %s: %w", marketID, err)
	}

	if m.Status != domain.MarketStatusOpen {
		return s.answerDuplicate(ctx, m, winner)
	}

	snap, err := engine.Resolve(&m, winner)
	if err != nil {
		return domain.SettlementResult{}, err
	}

	res, err := s.params.Settle(snap)
	if err != nil {
		s.alertViolation(ctx, marketID, err)
		return domain.SettlementResult{}, err
	}

	bets, err := s.bets.ListByMarket(ctx, marketID)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement_service: list bets for market %s: %w", marketID, err)
	}

	payouts, dust := engine.Payouts(res, bets)

	// With no winning stakes and the refund policy, the fee is waived and
	// every stake goes back 1:1. The settlement is rewritten as the
	// zero-fee full-refund case so the stored result stays self-consistent.
	if res.NoWinners && s.params.NoWinners == domain.NoWinnersRefund {
		res, payouts, dust, err = s.refundSettlement(res, bets)
		if err != nil {
			return domain.SettlementResult{}, err
		}
	}

	if err := s.settle.ApplySettlement(ctx, res, payouts, dust, s.params.TreasuryPool); err != nil {
		if errors.Is(err, domain.ErrInvariantViolation) {
			s.alertViolation(ctx, marketID, err)
		}
		return domain.SettlementResult{}, fmt.Errorf("settlement_service: apply settlement for market %s: %w", marketID, err)
	}

	s.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", marketID),
		slog.String("winning_outcome", winner),
		slog.Int64("total_pool", res.TotalPool),
		slog.Int64("platform_fee", res.PlatformFee),
		slog.Int64("dust", dust),
		slog.Int("payouts", len(payouts)),
		slog.Bool("no_winners", res.NoWinners),
	)

	s.afterSettlement(ctx, res, bets, payouts)
	return res, nil
}

// answerDuplicate handles resolution of a market that has already left the
// open state.
func (s *SettlementService) answerDuplicate(ctx context.Context, m domain.Market, winner string) (domain.SettlementResult, error) {
	if m.Status == domain.MarketStatusCancelled {
		return domain.SettlementResult{}, fmt.Errorf("settlement_service: market %s is cancelled: %w",
			m.ID, domain.ErrAlreadyResolved)
	}

	stored, err := s.settle.GetSettlement(ctx, m.ID)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement_service: stored settlement for market %s: %w", m.ID, err)
	}
	if stored.WinningOutcome != winner {
		return domain.SettlementResult{}, fmt.Errorf("settlement_service: market %s already resolved as %q, requested %q: %w",
			m.ID, stored.WinningOutcome, winner, domain.ErrResolutionConflict)
	}

	s.logger.InfoContext(ctx, "duplicate resolution answered from stored settlement",
		slog.String("market_id", m.ID),
		slog.String("winning_outcome", winner),
	)
	return stored, nil
}

// refundSettlement rewrites a no-winners result for the refund policy: zero
// fee, the whole pool distributable, every stake refunded 1:1, no dust.
func (s *SettlementService) refundSettlement(res domain.SettlementResult, bets []domain.Bet) (domain.SettlementResult, []domain.Payout, int64, error) {
	split, err := s.params.Split.Distribute(0)
	if err != nil {
		return domain.SettlementResult{}, nil, 0, err
	}

	res.PlatformFee = 0
	res.FeeSplit = split
	res.Distributable = res.TotalPool
	res.MultiplierNum = 0
	res.MultiplierDen = 0

	if err := engine.CheckInvariants(res); err != nil {
		return domain.SettlementResult{}, nil, 0, err
	}
	return res, engine.Refunds(bets), 0, nil
}

// afterSettlement runs the post-commit side effects. None of them can undo
// the settlement; failures are logged and left for out-of-band retry.
func (s *SettlementService) afterSettlement(ctx context.Context, res domain.SettlementResult, bets []domain.Bet, payouts []domain.Payout) {
	if err := s.pools.Invalidate(ctx, res.MarketID); err != nil {
		s.logger.WarnContext(ctx, "pool cache invalidate failed",
			slog.String("market_id", res.MarketID),
			slog.String("error", err.Error()),
		)
	}

	if s.archiver != nil {
		path, err := s.archiver.ArchiveSettlement(ctx, res, bets, payouts)
		if err != nil {
			s.logger.ErrorContext(ctx, "settlement archive failed",
				slog.String("market_id", res.MarketID),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.InfoContext(ctx, "settlement archived",
				slog.String("market_id", res.MarketID),
				slog.String("path", path),
			)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.MarketResolved(ctx, res, len(payouts)); err != nil {
			s.logger.WarnContext(ctx, "resolution notification failed",
				slog.String("market_id", res.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// alertViolation pages operators about a failed conservation check.
func (s *SettlementService) alertViolation(ctx context.Context, marketID string, cause error) {
	s.logger.ErrorContext(ctx, "settlement invariant violation",
		slog.String("market_id", marketID),
		slog.String("error", cause.Error()),
	)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.InvariantViolation(ctx, marketID, cause); err != nil {
		s.logger.WarnContext(ctx, "violation notification failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// CancelMarket voids an open market and refunds every stake 1:1 with no fee.
func (s *SettlementService) CancelMarket(ctx context.Context, marketID string) error {
	unlock, err := s.locks.Acquire(ctx, "settle:"+marketID, s.lockTTL)
	if err != nil {
		return fmt.Errorf("settlement_service: cancel market %s: %w", marketID, err)
	}
	defer unlock()

	bets, err := s.bets.ListByMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("settlement_service: list bets for market %s: %w", marketID, err)
	}
	refunds := engine.Refunds(bets)

	if err := s.settle.ApplyCancellation(ctx, marketID, refunds); err != nil {
		return fmt.Errorf("settlement_service: cancel market %s: %w", marketID, err)
	}

	var refunded int64
	for _, r := range refunds {
		refunded += r.Amount
	}

	s.logger.InfoContext(ctx, "market cancelled",
		slog.String("market_id", marketID),
		slog.Int64("refunded", refunded),
		slog.Int("refunds", len(refunds)),
	)

	if err := s.pools.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "pool cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	if s.notifier != nil {
		if err := s.notifier.MarketCancelled(ctx, marketID, refunded, len(refunds)); err != nil {
			s.logger.WarnContext(ctx, "cancellation notification failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// SettleDue resolves every market whose close time has passed and whose
// resolution decision has been queued. Called by the resolver worker on each
// tick. Per-market failures are logged and do not stop the batch; the first
// error is returned after the batch completes.
func (s *SettlementService) SettleDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.markets.ListDueForSettlement(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("settlement_service: list due markets: %w", err)
	}

	var settled int
	var firstErr error
	for _, m := range due {
		if m.PendingOutcome == nil {
			continue
		}
		if _, err := s.ResolveMarket(ctx, m.ID, *m.PendingOutcome); err != nil {
			// Another instance holding the lock is not a failure.
			if errors.Is(err, domain.ErrLockHeld) {
				continue
			}
			s.logger.ErrorContext(ctx, "due settlement failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		settled++
	}
	return settled, firstErr
}

// GetMarket returns a market with its live pool totals, serving reads from
// the pool cache when possible.
func (s *SettlementService) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("settlement_service: get market %s: %w", marketID, err)
	}
	return m, nil
}

// Pools returns a market's per-outcome pool totals, cache first.
func (s *SettlementService) Pools(ctx context.Context, marketID string) (map[string]int64, error) {
	pools, err := s.pools.Get(ctx, marketID)
	if err == nil {
		return pools, nil
	}

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: pools for market %s: %w", marketID, err)
	}

	s.refreshPools(ctx, m)
	return m.PoolByOutcome, nil
}

// WarmPools refreshes the cached pool totals for up to limit open markets.
// The worker runs this periodically so display reads stay warm between
// stakes.
func (s *SettlementService) WarmPools(ctx context.Context, limit int) error {
	markets, err := s.markets.ListOpen(ctx, domain.ListOpts{Limit: limit})
	if err != nil {
		return fmt.Errorf("settlement_service: warm pools: %w", err)
	}
	for _, m := range markets {
		s.refreshPools(ctx, m)
	}
	return nil
}

// refreshPools back-fills the pool cache. Cache write errors are logged, not
// returned; the cache expires on its own.
func (s *SettlementService) refreshPools(ctx context.Context, m domain.Market) {
	if err := s.pools.Set(ctx, m.ID, m.PoolByOutcome); err != nil {
		s.logger.WarnContext(ctx, "pool cache set failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}
