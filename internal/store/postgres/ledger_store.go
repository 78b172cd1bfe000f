package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mystquest/settler/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// BettorBalance returns a bettor's MYST balance in minor units. Unknown
// bettors have a zero balance.
func (s *LedgerStore) BettorBalance(ctx context.Context, bettorID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM bettor_balances WHERE bettor_id = $1`, bettorID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: bettor balance %s: %w", bettorID, err)
	}
	return balance, nil
}

// CreditBettor adds to a bettor's balance outside any settlement (deposits,
// onboarding grants). Amount must be positive.
func (s *LedgerStore) CreditBettor(ctx context.Context, bettorID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("postgres: credit %d for bettor %s: %w", amount, bettorID, domain.ErrInvalidAmount)
	}

	const query = `
		INSERT INTO bettor_balances (bettor_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (bettor_id)
		DO UPDATE SET balance = bettor_balances.balance + $2, updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, bettorID, amount); err != nil {
		return fmt.Errorf("postgres: credit bettor %s: %w", bettorID, err)
	}
	return nil
}

// SubPoolBalance returns the accumulated balance of a fee sub-pool.
func (s *LedgerStore) SubPoolBalance(ctx context.Context, name string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM sub_pool_balances WHERE name = $1`, name,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: sub-pool balance %s: %w", name, err)
	}
	return balance, nil
}

// ListByMarket returns every ledger entry a market produced, oldest first.
func (s *LedgerStore) ListByMarket(ctx context.Context, marketID string) ([]domain.LedgerEntry, error) {
	const query = `
		SELECT id, market_id, kind, account, amount, created_at
		FROM ledger_entries
		WHERE market_id = $1
		ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.MarketID, &kind, &e.Account, &e.Amount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		e.Kind = domain.LedgerKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ledger for market %s: %w", marketID, err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
