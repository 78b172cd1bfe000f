package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mystquest/settler/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL. Bets are written only
// by SettlementStore.PlaceBet inside its transaction; this store is the read
// side.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betSelectCols = `id, market_id, bettor_id, outcome, amount, created_at`

func scanBetRows(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		var b domain.Bet
		if err := rows.Scan(&b.ID, &b.MarketID, &b.BettorID, &b.Outcome, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// GetByID returns a single bet, or domain.ErrNotFound.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets WHERE id = $1`

	var b domain.Bet
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.MarketID, &b.BettorID, &b.Outcome, &b.Amount, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// ListByMarket returns every bet on a market in placement order.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets WHERE market_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for market %s: %w", marketID, err)
	}
	defer rows.Close()

	bets, err := scanBetRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for market %s: %w", marketID, err)
	}
	return bets, nil
}

// ListByBettor returns a bettor's bets, most recent first.
func (s *BetStore) ListByBettor(ctx context.Context, bettorID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets WHERE bettor_id = $1 ORDER BY created_at DESC`
	args := []any{bettorID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for bettor %s: %w", bettorID, err)
	}
	defer rows.Close()

	bets, err := scanBetRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for bettor %s: %w", bettorID, err)
	}
	return bets, nil
}

// Compile-time interface check.
var _ domain.BetStore = (*BetStore)(nil)
