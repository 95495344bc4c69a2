// Package preprocess implements mean imputation and standardization of
// feature matrices, fit once on the training partition and then frozen.
package preprocess

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"prilythic/internal/domain"
)

// columnMeans returns the NaN-skipping mean of each column.
// A column with no observed values gets mean 0.
func columnMeans(X [][]float64, width int) []float64 {
	means := make([]float64, width)
	col := make([]float64, 0, len(X))
	for j := 0; j < width; j++ {
		col = col[:0]
		for _, row := range X {
			if !math.IsNaN(row[j]) {
				col = append(col, row[j])
			}
		}
		if len(col) > 0 {
			means[j] = stat.Mean(col, nil)
		}
	}
	return means
}

// impute replaces NaN entries of row in place with the matching mean.
func impute(row, means []float64) {
	for j, v := range row {
		if math.IsNaN(v) {
			row[j] = means[j]
		}
	}
}

func checkWidth(X [][]float64, width int) error {
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d values, schema has %d columns",
				domain.ErrSchemaMismatch, i, len(row), width)
		}
	}
	return nil
}
