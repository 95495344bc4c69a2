package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"prilythic/internal/domain"
	"prilythic/internal/observability"
	"prilythic/internal/storage"
)

// PricePointStore implements storage.PricePointStore using ClickHouse.
type PricePointStore struct {
	conn    *Conn
	metrics *observability.Metrics
}

// NewPricePointStore creates a new PricePointStore. metrics may be nil.
func NewPricePointStore(conn *Conn, metrics *observability.Metrics) *PricePointStore {
	return &PricePointStore{conn: conn, metrics: metrics}
}

// Compile-time interface check.
var _ storage.PricePointStore = (*PricePointStore)(nil)

const selectPricePoints = `
	SELECT product_code, market_id, price_date, raw_date, price, identifiers
	FROM price_points
`

// InsertBulk appends points in one batch. Rows of a batch share a batch id and
// insertion timestamp and are numbered in input order.
func (s *PricePointStore) InsertBulk(ctx context.Context, points []*domain.PricePoint) (err error) {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p == nil || p.ProductCode == "" || p.Date.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() { observe(s.metrics, "insert_price_points", start, err) }()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_points (
			product_code, market_id, price_date, raw_date, price, identifiers,
			batch_id, seq, inserted_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	batchID := uuid.NewString()
	insertedAt := time.Now().UTC()
	for i, p := range points {
		ids := p.Identifiers
		if ids == nil {
			ids = map[string]string{}
		}
		err = batch.Append(
			p.ProductCode, p.MarketID, p.Date, p.RawDate, p.Price, ids,
			batchID, uint32(i), insertedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetSeries retrieves the points of a product ordered by date ASC.
func (s *PricePointStore) GetSeries(ctx context.Context, productCode, marketID string) (_ []*domain.PricePoint, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "get_series", start, err) }()

	query := selectPricePoints + `
		WHERE product_code = ? AND (? = '' OR market_id = ?)
		ORDER BY price_date ASC, inserted_at ASC, seq ASC
	`

	rows, err := s.conn.Query(ctx, query, productCode, marketID, marketID)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// GetAll retrieves every point in insertion order.
func (s *PricePointStore) GetAll(ctx context.Context) (_ []*domain.PricePoint, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "get_all", start, err) }()

	rows, err := s.conn.Query(ctx, selectPricePoints+`
		ORDER BY inserted_at ASC, seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query all: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// ListProducts returns the distinct product codes, sorted.
func (s *PricePointStore) ListProducts(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "list_products", `
		SELECT DISTINCT product_code FROM price_points ORDER BY product_code
	`)
}

// ListMarkets returns the distinct markets of a product, sorted.
func (s *PricePointStore) ListMarkets(ctx context.Context, productCode string) ([]string, error) {
	return s.distinct(ctx, "list_markets", `
		SELECT DISTINCT market_id FROM price_points
		WHERE product_code = ?
		ORDER BY market_id
	`, productCode)
}

func (s *PricePointStore) distinct(ctx context.Context, op, query string, args ...any) (_ []string, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, op, start, err) }()

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", op, err)
	}
	return out, nil
}

// scanPricePoints scans multiple rows.
func scanPricePoints(rows chRows) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint

	for rows.Next() {
		var p domain.PricePoint
		var ids map[string]string
		if err := rows.Scan(&p.ProductCode, &p.MarketID, &p.Date, &p.RawDate, &p.Price, &ids); err != nil {
			return nil, fmt.Errorf("scan price point row: %w", err)
		}
		p.Date = p.Date.UTC()
		if len(ids) > 0 {
			p.Identifiers = ids
		}
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price point rows: %w", err)
	}

	return points, nil
}
