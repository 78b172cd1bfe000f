package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mystquest/settler/internal/domain"
	"github.com/mystquest/settler/internal/engine"
)

// SettlementStore implements domain.SettlementStore. It owns the two
// transactional boundaries of the engine: stake acceptance and settlement
// application. Both run under a row lock on the market so no stake can land
// after a resolution snapshot and resolution applies exactly once.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

func (s *SettlementStore) lockMarket(ctx context.Context, tx pgx.Tx, id string) (domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE id = $1 FOR UPDATE`

	m, err := scanMarketRow(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: lock market %s: %w", id, err)
	}
	return m, nil
}

func updateMarketPools(ctx context.Context, tx pgx.Tx, m domain.Market) error {
	poolsJSON, err := json.Marshal(m.PoolByOutcome)
	if err != nil {
		return fmt.Errorf("postgres: marshal pools for market %s: %w", m.ID, err)
	}

	const query = `
		UPDATE markets
		SET pools = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1`

	if _, err := tx.Exec(ctx, query, m.ID, poolsJSON); err != nil {
		return fmt.Errorf("postgres: update pools for market %s: %w", m.ID, err)
	}
	return nil
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, marketID string, kind domain.LedgerKind, account string, amount int64) error {
	const query = `
		INSERT INTO ledger_entries (market_id, kind, account, amount)
		VALUES ($1, $2, $3, $4)`

	if _, err := tx.Exec(ctx, query, marketID, string(kind), account, amount); err != nil {
		return fmt.Errorf("postgres: ledger entry %s/%s: %w", marketID, kind, err)
	}
	return nil
}

func creditBettor(ctx context.Context, tx pgx.Tx, bettorID string, amount int64) error {
	const query = `
		INSERT INTO bettor_balances (bettor_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (bettor_id)
		DO UPDATE SET balance = bettor_balances.balance + $2, updated_at = NOW()`

	if _, err := tx.Exec(ctx, query, bettorID, amount); err != nil {
		return fmt.Errorf("postgres: credit bettor %s: %w", bettorID, err)
	}
	return nil
}

func creditSubPool(ctx context.Context, tx pgx.Tx, name string, amount int64) error {
	const query = `
		INSERT INTO sub_pool_balances (name, balance)
		VALUES ($1, $2)
		ON CONFLICT (name)
		DO UPDATE SET balance = sub_pool_balances.balance + $2, updated_at = NOW()`

	if _, err := tx.Exec(ctx, query, name, amount); err != nil {
		return fmt.Errorf("postgres: credit sub-pool %s: %w", name, err)
	}
	return nil
}

func logAudit(ctx context.Context, tx pgx.Tx, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, detailJSON,
	); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

// PlaceBet accepts a stake atomically: market row lock, open-status and
// outcome validation via the pool accountant, balance debit, bet insert,
// pool increment, and a stake ledger entry. Any failure rolls the whole
// thing back.
func (s *SettlementStore) PlaceBet(ctx context.Context, bet domain.Bet) (domain.Market, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: begin place bet: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	m, err := s.lockMarket(ctx, tx, bet.MarketID)
	if err != nil {
		return domain.Market{}, err
	}

	// The pool accountant validates status, outcome, amount, and overflow,
	// and bumps the in-memory pool we persist below.
	if err := engine.RecordStake(&m, bet.Outcome, bet.Amount); err != nil {
		return domain.Market{}, err
	}

	// Debit the stake. The balance check and debit are a single statement
	// so a concurrent spend cannot slip between them.
	tag, err := tx.Exec(ctx, `
		UPDATE bettor_balances
		SET balance = balance - $2, updated_at = NOW()
		WHERE bettor_id = $1 AND balance >= $2`,
		bet.BettorID, bet.Amount,
	)
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: debit bettor %s: %w", bet.BettorID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Market{}, fmt.Errorf("postgres: bettor %s stake %d: %w",
			bet.BettorID, bet.Amount, domain.ErrInsufficientBalance)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bets (id, market_id, bettor_id, outcome, amount)
		VALUES ($1, $2, $3, $4, $5)`,
		bet.ID, bet.MarketID, bet.BettorID, bet.Outcome, bet.Amount,
	); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: insert bet %s: %w", bet.ID, err)
	}

	if err := updateMarketPools(ctx, tx, m); err != nil {
		return domain.Market{}, err
	}

	if err := insertLedgerEntry(ctx, tx, bet.MarketID, domain.LedgerStake, bet.BettorID, -bet.Amount); err != nil {
		return domain.Market{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: commit place bet %s: %w", bet.ID, err)
	}

	m.Version++
	return m, nil
}

// ApplySettlement applies a computed settlement exactly once. Under the row
// lock it re-verifies that the pools still match the snapshot the result was
// computed from (stale snapshot -> ErrResolutionConflict, the caller
// recomputes), CAS-transitions the market out of open, stores the result,
// credits every payout and fee share, sweeps dust, and writes the ledger and
// audit rows. One commit applies everything or nothing.
func (s *SettlementStore) ApplySettlement(ctx context.Context, res domain.SettlementResult, payouts []domain.Payout, dust int64, dustPool string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin settlement: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	m, err := s.lockMarket(ctx, tx, res.MarketID)
	if err != nil {
		return err
	}
	if m.Status != domain.MarketStatusOpen {
		return fmt.Errorf("postgres: market %s is %s: %w", m.ID, m.Status, domain.ErrAlreadyResolved)
	}

	// Pools are append-only, so matching totals mean the snapshot is still
	// current. A mismatch means stakes landed after the snapshot was taken.
	if m.PoolByOutcome[res.WinningOutcome] != res.WinningPool || m.TotalPool() != res.TotalPool {
		return fmt.Errorf("postgres: market %s pools moved since snapshot: %w",
			m.ID, domain.ErrResolutionConflict)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE markets
		SET status = $2, winning_outcome = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = $4 AND version = $5`,
		m.ID, string(domain.MarketStatusResolved), res.WinningOutcome,
		string(domain.MarketStatusOpen), m.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: resolve market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: market %s: %w", m.ID, domain.ErrAlreadyResolved)
	}

	splitJSON, err := json.Marshal(res.FeeSplit)
	if err != nil {
		return fmt.Errorf("postgres: marshal fee split for market %s: %w", m.ID, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO settlements (
			market_id, winning_outcome, winning_pool, losing_pool, total_pool,
			platform_fee, fee_split, distributable, multiplier_num,
			multiplier_den, no_winners, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		res.MarketID, res.WinningOutcome, res.WinningPool, res.LosingPool,
		res.TotalPool, res.PlatformFee, splitJSON, res.Distributable,
		res.MultiplierNum, res.MultiplierDen, res.NoWinners, res.ResolvedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert settlement for market %s: %w", m.ID, err)
	}

	for _, p := range payouts {
		if err := creditBettor(ctx, tx, p.BettorID, p.Amount); err != nil {
			return err
		}
		if err := insertLedgerEntry(ctx, tx, res.MarketID, domain.LedgerPayout, p.BettorID, p.Amount); err != nil {
			return err
		}
	}

	for _, share := range res.FeeSplit {
		if share.Amount == 0 {
			continue
		}
		if err := creditSubPool(ctx, tx, share.SubPool, share.Amount); err != nil {
			return err
		}
		if err := insertLedgerEntry(ctx, tx, res.MarketID, domain.LedgerFeeShare, share.SubPool, share.Amount); err != nil {
			return err
		}
	}

	if dust > 0 {
		kind := domain.LedgerRoundingDust
		if res.NoWinners {
			kind = domain.LedgerUnclaimed
		}
		if err := creditSubPool(ctx, tx, dustPool, dust); err != nil {
			return err
		}
		if err := insertLedgerEntry(ctx, tx, res.MarketID, kind, dustPool, dust); err != nil {
			return err
		}
	}

	if err := logAudit(ctx, tx, "market_resolved", map[string]any{
		"market_id":       res.MarketID,
		"winning_outcome": res.WinningOutcome,
		"total_pool":      res.TotalPool,
		"platform_fee":    res.PlatformFee,
		"distributable":   res.Distributable,
		"payouts":         len(payouts),
		"dust":            dust,
		"no_winners":      res.NoWinners,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit settlement for market %s: %w", m.ID, err)
	}
	return nil
}

// ApplyCancellation transitions an open market to cancelled and refunds every
// stake 1:1 with no fee, atomically.
func (s *SettlementStore) ApplyCancellation(ctx context.Context, marketID string, refunds []domain.Payout) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin cancellation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	m, err := s.lockMarket(ctx, tx, marketID)
	if err != nil {
		return err
	}
	if m.Status != domain.MarketStatusOpen {
		return fmt.Errorf("postgres: market %s is %s: %w", m.ID, m.Status, domain.ErrAlreadyResolved)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE markets
		SET status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND version = $4`,
		m.ID, string(domain.MarketStatusCancelled), string(domain.MarketStatusOpen), m.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: cancel market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: market %s: %w", m.ID, domain.ErrAlreadyResolved)
	}

	var refunded int64
	for _, r := range refunds {
		if err := creditBettor(ctx, tx, r.BettorID, r.Amount); err != nil {
			return err
		}
		if err := insertLedgerEntry(ctx, tx, marketID, domain.LedgerRefund, r.BettorID, r.Amount); err != nil {
			return err
		}
		refunded += r.Amount
	}

	// Refunds must return exactly what was staked.
	if refunded != m.TotalPool() {
		return fmt.Errorf("postgres: market %s refunds %d != pool %d: %w",
			m.ID, refunded, m.TotalPool(), domain.ErrInvariantViolation)
	}

	if err := logAudit(ctx, tx, "market_cancelled", map[string]any{
		"market_id": marketID,
		"refunded":  refunded,
		"refunds":   len(refunds),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit cancellation for market %s: %w", m.ID, err)
	}
	return nil
}

// GetSettlement returns the stored settlement for a market, or
// domain.ErrNotFound.
func (s *SettlementStore) GetSettlement(ctx context.Context, marketID string) (domain.SettlementResult, error) {
	const query = `
		SELECT market_id, winning_outcome, winning_pool, losing_pool, total_pool,
			platform_fee, fee_split, distributable, multiplier_num,
			multiplier_den, no_winners, resolved_at
		FROM settlements WHERE market_id = $1`

	var res domain.SettlementResult
	var splitJSON []byte

	err := s.pool.QueryRow(ctx, query, marketID).Scan(
		&res.MarketID, &res.WinningOutcome, &res.WinningPool, &res.LosingPool,
		&res.TotalPool, &res.PlatformFee, &splitJSON, &res.Distributable,
		&res.MultiplierNum, &res.MultiplierDen, &res.NoWinners, &res.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SettlementResult{}, domain.ErrNotFound
		}
		return domain.SettlementResult{}, fmt.Errorf("postgres: get settlement for market %s: %w", marketID, err)
	}

	if err := json.Unmarshal(splitJSON, &res.FeeSplit); err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: unmarshal fee split for market %s: %w", marketID, err)
	}
	return res, nil
}

// Compile-time interface check.
var _ domain.SettlementStore = (*SettlementStore)(nil)
