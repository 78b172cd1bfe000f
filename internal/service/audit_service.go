package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mystquest/settler/internal/domain"
	"github.com/mystquest/settler/internal/engine"
)

// AuditService re-verifies stored settlements offline. For every resolved
// market it re-derives the settlement from the raw bets, compares it with
// what was stored, re-checks the conservation invariants, and reconciles the
// market's ledger entries. It never writes; a clean audit changes nothing.
type AuditService struct {
	params  engine.Params
	markets domain.MarketStore
	bets    domain.BetStore
	settle  domain.SettlementStore
	ledger  domain.LedgerStore
	reports domain.BlobReader
	logger  *slog.Logger
}

// NewAuditService creates an AuditService. The reports reader may be nil;
// archive existence checks are then skipped.
func NewAuditService(
	params engine.Params,
	markets domain.MarketStore,
	bets domain.BetStore,
	settle domain.SettlementStore,
	ledger domain.LedgerStore,
	reports domain.BlobReader,
	logger *slog.Logger,
) *AuditService {
	return &AuditService{
		params:  params,
		markets: markets,
		bets:    bets,
		settle:  settle,
		ledger:  ledger,
		reports: reports,
		logger:  logger.With(slog.String("component", "audit_service")),
	}
}

// AuditReport summarizes one audit run.
type AuditReport struct {
	Checked    int
	Violations []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Clean reports whether the run found no violations.
func (r AuditReport) Clean() bool { return len(r.Violations) == 0 }

// Run audits every resolved market, in pages, and returns the collected
// violations. Verification errors on one market do not stop the run.
func (a *AuditService) Run(ctx context.Context) (AuditReport, error) {
	report := AuditReport{StartedAt: time.Now().UTC()}

	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		markets, err := a.markets.ListResolved(ctx, domain.ListOpts{Limit: pageSize, Offset: offset})
		if err != nil {
			return report, fmt.Errorf("audit_service: list resolved markets: %w", err)
		}
		if len(markets) == 0 {
			break
		}

		for _, m := range markets {
			report.Checked++
			if err := a.VerifyMarket(ctx, m.ID); err != nil {
				report.Violations = append(report.Violations, fmt.Sprintf("%s: %v", m.ID, err))
				a.logger.ErrorContext(ctx, "audit violation",
					slog.String("market_id", m.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		if len(markets) < pageSize {
			break
		}
	}

	report.FinishedAt = time.Now().UTC()
	a.logger.InfoContext(ctx, "audit run finished",
		slog.Int("checked", report.Checked),
		slog.Int("violations", len(report.Violations)),
	)
	return report, nil
}

// VerifyMarket re-verifies one market's stored settlement end to end.
func (a *AuditService) VerifyMarket(ctx context.Context, marketID string) error {
	stored, err := a.settle.GetSettlement(ctx, marketID)
	if err != nil {
		return fmt.Errorf("load settlement: %w", err)
	}

	if err := engine.CheckInvariants(stored); err != nil {
		return err
	}

	bets, err := a.bets.ListByMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("load bets: %w", err)
	}

	if err := a.verifyDerivation(stored, bets); err != nil {
		return err
	}
	if err := a.verifyLedger(ctx, stored, bets); err != nil {
		return err
	}
	return a.verifyArchive(ctx, stored)
}

// verifyDerivation recomputes the settlement from raw bets and compares it
// with the stored result. A stored zero-fee no-winners settlement is the
// refund-policy form and is checked against the refund shape instead.
func (a *AuditService) verifyDerivation(stored domain.SettlementResult, bets []domain.Bet) error {
	var winning, total int64
	for _, b := range bets {
		total += b.Amount
		if b.Outcome == stored.WinningOutcome {
			winning += b.Amount
		}
	}

	snap := engine.PoolSnapshot{
		MarketID:       stored.MarketID,
		WinningOutcome: stored.WinningOutcome,
		WinningPool:    winning,
		LosingPool:     total - winning,
		TotalPool:      total,
	}

	derived, err := a.params.Settle(snap)
	if err != nil {
		return fmt.Errorf("re-derive settlement: %w", err)
	}

	if stored.NoWinners && stored.PlatformFee == 0 && derived.PlatformFee != 0 {
		if stored.Distributable != stored.TotalPool || stored.MultiplierNum != 0 || stored.MultiplierDen != 0 {
			return fmt.Errorf("refund settlement malformed: %w", domain.ErrInvariantViolation)
		}
		return nil
	}

	if !engine.Equivalent(stored, derived) {
		return fmt.Errorf("stored settlement does not match re-derivation from %d bets: %w",
			len(bets), domain.ErrInvariantViolation)
	}
	return nil
}

// verifyLedger reconciles the market's ledger: stakes must sum to the
// negative of the total pool, and credits (payouts, refunds, fee shares,
// dust) must sum to the total pool. Money in equals money out.
func (a *AuditService) verifyLedger(ctx context.Context, stored domain.SettlementResult, bets []domain.Bet) error {
	entries, err := a.ledger.ListByMarket(ctx, stored.MarketID)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	var staked, credited int64
	for _, e := range entries {
		switch e.Kind {
		case domain.LedgerStake:
			staked += -e.Amount
		case domain.LedgerPayout, domain.LedgerRefund, domain.LedgerFeeShare,
			domain.LedgerRoundingDust, domain.LedgerUnclaimed:
			credited += e.Amount
		default:
			return fmt.Errorf("unknown ledger kind %q: %w", e.Kind, domain.ErrInvariantViolation)
		}
	}

	if staked != stored.TotalPool {
		return fmt.Errorf("ledger stakes %d != total pool %d: %w",
			staked, stored.TotalPool, domain.ErrInvariantViolation)
	}
	if credited != stored.TotalPool {
		return fmt.Errorf("ledger credits %d != total pool %d: %w",
			credited, stored.TotalPool, domain.ErrInvariantViolation)
	}

	var betTotal int64
	for _, b := range bets {
		betTotal += b.Amount
	}
	if betTotal != stored.TotalPool {
		return fmt.Errorf("bets sum %d != total pool %d: %w",
			betTotal, stored.TotalPool, domain.ErrInvariantViolation)
	}
	return nil
}

// verifyArchive checks the settlement report object exists in blob storage.
func (a *AuditService) verifyArchive(ctx context.Context, stored domain.SettlementResult) error {
	if a.reports == nil {
		return nil
	}

	path := domain.ReportPath(stored)
	ok, err := a.reports.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("check archive %s: %w", path, err)
	}
	if !ok {
		a.logger.WarnContext(ctx, "settlement report missing from archive",
			slog.String("market_id", stored.MarketID),
			slog.String("path", path),
		)
	}
	return nil
}
