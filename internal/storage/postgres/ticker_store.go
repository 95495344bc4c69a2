package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"prilythic/internal/domain"
	"prilythic/internal/storage"
)

// TickerStore implements storage.TickerStore using PostgreSQL.
type TickerStore struct {
	pool *Pool
}

// NewTickerStore creates a new TickerStore.
func NewTickerStore(pool *Pool) *TickerStore {
	return &TickerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TickerStore = (*TickerStore)(nil)

// Insert adds a ticker. Returns ErrDuplicateKey if the code exists.
func (s *TickerStore) Insert(ctx context.Context, t *domain.Ticker) error {
	if t == nil || t.Code == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tickers (code, full_name, units) VALUES ($1, $2, $3)
	`, t.Code, t.FullName, t.Units)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert ticker: %w", err)
	}
	return nil
}

// GetByCode retrieves a ticker by code. Returns ErrNotFound if not exists.
func (s *TickerStore) GetByCode(ctx context.Context, code string) (*domain.Ticker, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT code, full_name, units, created_at
		FROM tickers
		WHERE code = $1
	`, code)

	t, err := scanTicker(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get ticker by code: %w", err)
	}
	return t, nil
}

// List retrieves all tickers ordered by code.
func (s *TickerStore) List(ctx context.Context) ([]*domain.Ticker, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, full_name, units, created_at
		FROM tickers
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("list tickers: %w", err)
	}
	defer rows.Close()

	var tickers []*domain.Ticker
	for rows.Next() {
		t, err := scanTicker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickers: %w", err)
	}
	return tickers, nil
}

func scanTicker(row pgx.Row) (*domain.Ticker, error) {
	var t domain.Ticker
	if err := row.Scan(&t.Code, &t.FullName, &t.Units, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
