package features

import (
	"math"
	"strings"

	"prilythic/internal/domain"
)

// Vector returns the feature values of row in schema column order.
// Lag and rolling values may be NaN.
func (d *Dataset) Vector(row *domain.FeatureRow) []float64 {
	return RowVector(&d.Schema, row)
}

// Matrix returns the design matrix and the target vector, rows in dataset order.
func (d *Dataset) Matrix() (X [][]float64, y []float64) {
	X = make([][]float64, len(d.Rows))
	y = make([]float64, len(d.Rows))
	for i, r := range d.Rows {
		X[i] = d.Vector(r)
		y[i] = r.Price
	}
	return X, y
}

// RowVector lays out a feature row against a schema.
func RowVector(schema *domain.FeatureSchema, row *domain.FeatureRow) []float64 {
	productCol := domain.ProductColumn(row.ProductCode)
	vec := make([]float64, len(schema.Columns))
	for i, col := range schema.Columns {
		switch {
		case col == domain.ColumnYear:
			vec[i] = float64(row.Year)
		case col == domain.ColumnMonth:
			vec[i] = float64(row.Month)
		case col == domain.ColumnDayOfWeek:
			vec[i] = float64(row.DayOfWeek)
		case col == domain.RollingColumn(schema.RollingWindow):
			vec[i] = row.RollingMean
		case strings.HasPrefix(col, domain.ProductColumnPrefix):
			if col == productCol {
				vec[i] = 1
			}
		default:
			vec[i] = lagValue(col, row.Lags)
		}
	}
	return vec
}

func lagValue(col string, lags []float64) float64 {
	for i := range lags {
		if col == domain.LagColumn(i+1) {
			return lags[i]
		}
	}
	return math.NaN()
}
