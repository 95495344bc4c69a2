package domain

import (
	"fmt"
	"time"
)

// Feature column names shared by the feature builder and the inference assembler.
const (
	ColumnYear      = "year"
	ColumnMonth     = "month"
	ColumnDayOfWeek = "dayofweek"
	ColumnTarget    = "price"
)

// LagColumn returns the name of the i-th lag column, e.g. "price_lag3".
func LagColumn(i int) string {
	return fmt.Sprintf("price_lag%d", i)
}

// RollingColumn returns the name of the rolling mean column for window w, e.g. "price_roll6".
func RollingColumn(w int) string {
	return fmt.Sprintf("price_roll%d", w)
}

// FeatureRow is one training example derived from a PricePoint.
// Missing values are NaN until the imputer replaces them.
type FeatureRow struct {
	ProductCode string
	MarketID    string
	Date        time.Time
	Year        int
	Month       int
	DayOfWeek   int       // Monday = 0
	Lags        []float64 // Lags[i-1] = price i observations earlier, NaN if unavailable
	RollingMean float64   // NaN when the window is empty or rolling is disabled
	Price       float64   // target
}

// FeatureValues is a named, unordered feature row used at inference time.
type FeatureValues map[string]float64
