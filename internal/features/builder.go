package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"prilythic/internal/domain"
)

// BuildStats counts what the builder kept and dropped.
type BuildStats struct {
	InputRows    int
	DroppedDates int
	Rows         int
	Series       int
}

// Dataset is the output of Build: feature rows in chronological order
// and the schema that describes their columns.
type Dataset struct {
	Schema domain.FeatureSchema
	Rows   []*domain.FeatureRow
	Stats  BuildStats
}

// Builder derives feature rows from long price points.
type Builder struct {
	cfg    Config
	logger *zap.Logger
}

// NewBuilder creates a builder. A nil logger discards output.
func NewBuilder(cfg Config, logger *zap.Logger) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("feature config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg, logger: logger}, nil
}

// Config returns the builder configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// Build runs the feature derivation:
//  1. parse dates, dropping rows whose date does not parse
//  2. sort by (product, market, date)
//  3. lags 1..K per (product, market), NaN when history is short
//  4. rolling mean over up to W prior observations (min periods 1)
//  5. calendar fields from the row's own date
//  6. one-hot product columns, first sorted product as baseline
//
// Rows are returned ordered by date. Returns domain.ErrEmptyDataset when
// nothing is left to build from.
func (b *Builder) Build(points []*domain.PricePoint) (*Dataset, error) {
	stats := BuildStats{InputRows: len(points)}
	if len(points) == 0 {
		return nil, fmt.Errorf("build features: no price rows: %w", domain.ErrEmptyDataset)
	}

	dated := make([]datedPoint, 0, len(points))
	for i, p := range points {
		date, ok := domain.ParseDate(p.RawDate, b.cfg.DateLayouts)
		if !ok {
			stats.DroppedDates++
			continue
		}
		pc := *p
		pc.Date = date
		dated = append(dated, datedPoint{PricePoint: &pc, seq: i})
	}
	if stats.DroppedDates > 0 {
		b.logger.Warn("dropped rows with unparseable dates",
			zap.Int("dropped", stats.DroppedDates),
			zap.Int("input", stats.InputRows))
	}
	if len(dated) == 0 {
		return nil, fmt.Errorf("build features: no rows with a valid date: %w", domain.ErrEmptyDataset)
	}

	sortPoints(dated)

	rows := make([]*domain.FeatureRow, len(dated))
	var history []float64
	for i, p := range dated {
		if i == 0 || p.ProductCode != dated[i-1].ProductCode || p.MarketID != dated[i-1].MarketID {
			history = history[:0]
			stats.Series++
		}
		rows[i] = b.deriveRow(p, history)
		history = append(history, p.Price)
	}

	products := uniqueProducts(rows)
	schema := domain.FeatureSchema{
		Columns:         b.cfg.Columns(),
		Products:        products,
		BaselineProduct: products[0],
		LagHorizon:      b.cfg.LagHorizon,
		RollingWindow:   b.cfg.RollingWindow,
	}
	for _, code := range products[1:] {
		schema.Columns = append(schema.Columns, domain.ProductColumn(code))
	}

	sortRowsChronologically(rows)
	stats.Rows = len(rows)

	b.logger.Info("built feature dataset",
		zap.Int("rows", stats.Rows),
		zap.Int("series", stats.Series),
		zap.Int("columns", len(schema.Columns)),
		zap.String("baseline_product", schema.BaselineProduct))

	return &Dataset{Schema: schema, Rows: rows, Stats: stats}, nil
}

// deriveRow computes the features of p given the prices that precede it
// in its series, oldest first.
func (b *Builder) deriveRow(p datedPoint, history []float64) *domain.FeatureRow {
	row := &domain.FeatureRow{
		ProductCode: p.ProductCode,
		MarketID:    p.MarketID,
		Date:        p.Date,
		Year:        p.Date.Year(),
		Month:       int(p.Date.Month()),
		DayOfWeek:   DayOfWeek(p.Date),
		Lags:        make([]float64, b.cfg.LagHorizon),
		RollingMean: math.NaN(),
		Price:       p.Price,
	}

	for i := 1; i <= b.cfg.LagHorizon; i++ {
		if i <= len(history) {
			row.Lags[i-1] = history[len(history)-i]
		} else {
			row.Lags[i-1] = math.NaN()
		}
	}

	if w := b.cfg.RollingWindow; w > 0 {
		window := history
		if b.cfg.RollingIncludesCurrent {
			window = append(append([]float64{}, history...), p.Price)
		}
		if len(window) > w {
			window = window[len(window)-w:]
		}
		if len(window) > 0 {
			row.RollingMean = stat.Mean(window, nil)
		}
	}

	return row
}

// DayOfWeek returns the weekday with Monday = 0 and Sunday = 6.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func uniqueProducts(rows []*domain.FeatureRow) []string {
	seen := make(map[string]struct{})
	var products []string
	for _, r := range rows {
		if _, ok := seen[r.ProductCode]; !ok {
			seen[r.ProductCode] = struct{}{}
			products = append(products, r.ProductCode)
		}
	}
	sort.Strings(products)
	return products
}
