package storage

import (
	"context"

	"prilythic/internal/domain"
)

// PricePointStore provides access to price_points storage, the long-format panel.
// Duplicate (product, market, date) triples are kept, as the panel allows them.
type PricePointStore interface {
	// InsertBulk appends points. Every point needs a product code and a parsed date.
	InsertBulk(ctx context.Context, points []*domain.PricePoint) error

	// GetSeries retrieves the points of one product ordered by date ASC, ties in
	// insertion order. An empty marketID selects every market.
	GetSeries(ctx context.Context, productCode, marketID string) ([]*domain.PricePoint, error)

	// GetAll retrieves every point in insertion order.
	GetAll(ctx context.Context) ([]*domain.PricePoint, error)

	// ListProducts returns the distinct product codes, sorted.
	ListProducts(ctx context.Context) ([]string, error)

	// ListMarkets returns the distinct markets of a product, sorted.
	ListMarkets(ctx context.Context, productCode string) ([]string, error)
}

// TickerStore provides access to tickers storage.
type TickerStore interface {
	// Insert adds a ticker. Returns ErrDuplicateKey if the code exists.
	Insert(ctx context.Context, t *domain.Ticker) error

	// GetByCode retrieves a ticker by product code. Returns ErrNotFound if not exists.
	GetByCode(ctx context.Context, code string) (*domain.Ticker, error)

	// List retrieves all tickers ordered by code.
	List(ctx context.Context) ([]*domain.Ticker, error)
}

// TrainingRunStore provides access to training_runs storage.
type TrainingRunStore interface {
	// Insert adds a completed run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.TrainingRun) error

	// GetByID retrieves a run. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.TrainingRun, error)

	// GetLatest retrieves the most recently finished run of a variant, or of any
	// variant when variant is empty. Returns ErrNotFound if there is none.
	GetLatest(ctx context.Context, variant string) (*domain.TrainingRun, error)

	// List retrieves up to limit runs, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*domain.TrainingRun, error)
}
