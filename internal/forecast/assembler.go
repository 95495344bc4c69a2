package forecast

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"prilythic/internal/domain"
)

// ServingDayOfWeek is the day-of-week value used for every forecast row.
// Forecast dates are always the first of a month, and the fitted models have
// only ever been served with this constant.
const ServingDayOfWeek = 0

// ErrUnknownProduct is returned for a product the model or the series source
// has never seen.
var ErrUnknownProduct = errors.New("unknown product")

// Assembly is a feature row reconstructed for one forecast.
type Assembly struct {
	Product           string
	Date              time.Time // first day of the forecast month
	Values            domain.FeatureValues
	Series            []domain.SeriesPoint // prepared series the row was built from
	ReducedConfidence bool                 // fewer observations than the lag horizon
}

// Assembler rebuilds the feature row a model expects from a raw price series.
type Assembler struct {
	schema *domain.FeatureSchema
}

// NewAssembler returns an assembler bound to a fitted schema.
func NewAssembler(schema *domain.FeatureSchema) *Assembler {
	return &Assembler{schema: schema}
}

// Assemble builds the next-month feature row for product from series.
// Missing lags are zero-filled; an empty series is ErrInsufficientHistory and a
// product the schema was not fit on is ErrSchemaMismatch.
func (a *Assembler) Assemble(product string, series []domain.SeriesPoint) (*Assembly, error) {
	if !a.schema.KnowsProduct(product) {
		return nil, fmt.Errorf("%w %q: %w", ErrUnknownProduct, product, domain.ErrSchemaMismatch)
	}
	prepared := PrepareSeries(series)
	n := len(prepared)
	if n == 0 {
		return nil, fmt.Errorf("%w: no observations for %s", domain.ErrInsufficientHistory, product)
	}

	next := domain.NextMonth(prepared[n-1].Date)
	values := domain.FeatureValues{
		domain.ColumnYear:      float64(next.Year()),
		domain.ColumnMonth:     float64(next.Month()),
		domain.ColumnDayOfWeek: ServingDayOfWeek,
	}

	k := a.schema.LagHorizon
	for i := 1; i <= k; i++ {
		var v float64
		if i <= n {
			v = prepared[n-i].Price
		}
		values[domain.LagColumn(i)] = v
	}

	if w := a.schema.RollingWindow; w > 0 {
		window := trailing(prepared, w)
		prices := make([]float64, len(window))
		for i, p := range window {
			prices[i] = p.Price
		}
		values[domain.RollingColumn(w)] = stat.Mean(prices, nil)
	}

	if product != a.schema.BaselineProduct {
		col := domain.ProductColumn(product)
		if a.schema.Index(col) < 0 {
			return nil, fmt.Errorf("%w: schema has no column %q", domain.ErrSchemaMismatch, col)
		}
		values[col] = 1
	}

	return &Assembly{
		Product:           product,
		Date:              next,
		Values:            values,
		Series:            prepared,
		ReducedConfidence: n < k,
	}, nil
}
