package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prilythic/internal/domain"
	"prilythic/internal/idhash"
	"prilythic/internal/panel"
	"prilythic/internal/storage"
)

// TableChecksum returns the sha256 of a panel's header and cells.
func TableChecksum(t *panel.WideTable) string {
	return idhash.ComputePanelChecksum(t.Header, t.Rows)
}

// ParseDates returns copies of points with Date set. Points whose date does
// not parse are skipped and counted.
func ParseDates(points []*domain.PricePoint, layouts []string) ([]*domain.PricePoint, int) {
	out := make([]*domain.PricePoint, 0, len(points))
	dropped := 0
	for _, p := range points {
		date, ok := domain.ParseDate(p.RawDate, layouts)
		if !ok {
			dropped++
			continue
		}
		c := *p
		c.Date = date
		out = append(out, &c)
	}
	return out, dropped
}

// ImportResult describes what ImportPanel stored.
type ImportResult struct {
	Checksum string
	Points   int
	Dropped  int  // unparseable dates, not stored
	Skipped  bool // panel was already in the ledger
}

// ImportPanel stores the points of a panel in the price point store and
// records the panel in the ledger. A panel whose checksum is already in the
// ledger is skipped, so re-running training does not duplicate rows.
func ImportPanel(
	ctx context.Context,
	store storage.PricePointStore,
	ledger storage.ImportLedger,
	checksum, source string,
	points []*domain.PricePoint,
	layouts []string,
	now time.Time,
) (*ImportResult, error) {
	res := &ImportResult{Checksum: checksum}

	if ledger != nil {
		done, err := ledger.IsImported(ctx, checksum)
		if err != nil {
			return nil, fmt.Errorf("check import ledger: %w", err)
		}
		if done {
			res.Skipped = true
			return res, nil
		}
	}

	dated, dropped := ParseDates(points, layouts)
	res.Dropped = dropped
	if err := store.InsertBulk(ctx, dated); err != nil {
		return nil, fmt.Errorf("store price points: %w", err)
	}
	res.Points = len(dated)

	if ledger != nil {
		err := ledger.MarkImported(ctx, &storage.PanelImport{
			Checksum:   checksum,
			Source:     source,
			Points:     res.Points,
			ImportedAt: now.UnixMilli(),
		})
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("record panel import: %w", err)
		}
	}
	return res, nil
}

// StoreTickers inserts tickers, ignoring codes that already exist.
func StoreTickers(ctx context.Context, store storage.TickerStore, tickers []*domain.Ticker) (int, error) {
	inserted := 0
	for _, t := range tickers {
		err := store.Insert(ctx, t)
		if errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return inserted, fmt.Errorf("store ticker %s: %w", t.Code, err)
		}
		inserted++
	}
	return inserted, nil
}
