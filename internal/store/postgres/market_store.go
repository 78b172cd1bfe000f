package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mystquest/settler/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, question, outcomes, pools, status,
	winning_outcome, pending_outcome, version, closes_at, created_at, updated_at`

// row is satisfied by both pgx.Row and pgx.Rows.
type row interface {
	Scan(dest ...any) error
}

func scanMarketRow(r row) (domain.Market, error) {
	var m domain.Market
	var status string
	var poolsJSON []byte

	err := r.Scan(
		&m.ID, &m.Question, &m.Outcomes, &poolsJSON, &status,
		&m.WinningOutcome, &m.PendingOutcome, &m.Version,
		&m.ClosesAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)

	if err := json.Unmarshal(poolsJSON, &m.PoolByOutcome); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: unmarshal pools for market %s: %w", m.ID, err)
	}
	if m.PoolByOutcome == nil {
		m.PoolByOutcome = map[string]int64{}
	}
	return m, nil
}

func scanMarketRows(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarketRow(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Create inserts a new open market with empty pools.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	if len(m.Outcomes) < 2 {
		return fmt.Errorf("postgres: market %s needs at least two outcomes: %w", m.ID, domain.ErrInvalidOutcome)
	}

	pools := m.PoolByOutcome
	if pools == nil {
		pools = map[string]int64{}
	}
	poolsJSON, err := json.Marshal(pools)
	if err != nil {
		return fmt.Errorf("postgres: marshal pools for market %s: %w", m.ID, err)
	}

	const query = `
		INSERT INTO markets (id, question, outcomes, pools, status, closes_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = s.pool.Exec(ctx, query,
		m.ID, m.Question, m.Outcomes, poolsJSON, string(domain.MarketStatusOpen), m.ClosesAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID returns a market by ID, or domain.ErrNotFound.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE id = $1`

	m, err := scanMarketRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListOpen returns open markets ordered by close time.
func (s *MarketStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.listByStatus(ctx, domain.MarketStatusOpen, "closes_at ASC", opts)
}

// ListResolved returns resolved markets, most recently updated first.
func (s *MarketStore) ListResolved(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.listByStatus(ctx, domain.MarketStatusResolved, "updated_at DESC", opts)
}

func (s *MarketStore) listByStatus(ctx context.Context, status domain.MarketStatus, order string, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE status = $1 ORDER BY ` + order
	args := []any{string(status)}
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
		return nil, fmt.Errorf("postgres: list %s markets: %w", status, err)
	}
	defer rows.Close()

	markets, err := scanMarketRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s markets: %w", status, err)
	}
	return markets, nil
}

// QueueResolution records the admin's winning-outcome decision on an open
// market. The resolver worker settles it once the close time passes.
func (s *MarketStore) QueueResolution(ctx context.Context, id, outcome string) error {
	const query = `
		UPDATE markets
		SET pending_outcome = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND $2 = ANY(outcomes)`

	tag, err := s.pool.Exec(ctx, query, id, outcome, string(domain.MarketStatusOpen))
	if err != nil {
		return fmt.Errorf("postgres: queue resolution for market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing/closed market from a bad outcome label.
		m, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		if m.Status != domain.MarketStatusOpen {
			return fmt.Errorf("postgres: market %s is %s: %w", id, m.Status, domain.ErrMarketClosed)
		}
		return fmt.Errorf("postgres: market %s has no outcome %q: %w", id, outcome, domain.ErrInvalidOutcome)
	}
	return nil
}

// ListDueForSettlement returns open markets whose close time is at or before
// now and that have a queued resolution decision.
func (s *MarketStore) ListDueForSettlement(ctx context.Context, now time.Time, limit int) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + `
		FROM markets
		WHERE status = $1 AND pending_outcome IS NOT NULL AND closes_at <= $2
		ORDER BY closes_at ASC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, string(domain.MarketStatusOpen), now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due markets: %w", err)
	}
	defer rows.Close()

	markets, err := scanMarketRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due markets: %w", err)
	}
	return markets, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
