package preprocess

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"prilythic/internal/domain"
)

// ScalerState is the fitted imputer and standard scaler for one training run.
// It is immutable after Fit and is persisted alongside the model.
type ScalerState struct {
	Schema      domain.FeatureSchema `json:"schema"`
	ImputeMeans []float64            `json:"impute_means"`
	Mean        []float64            `json:"mean"`
	Scale       []float64            `json:"scale"`
	Samples     int                  `json:"samples"`
}

// Fit learns imputation means, then per-column mean and population standard
// deviation of the imputed training matrix. Zero-variance columns get scale 1.
// X is not modified.
func Fit(schema domain.FeatureSchema, X [][]float64) (*ScalerState, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("fit scaler: %w", domain.ErrEmptyDataset)
	}
	width := len(schema.Columns)
	if width == 0 {
		return nil, errors.New("fit scaler: schema has no columns")
	}
	if err := checkWidth(X, width); err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}

	s := &ScalerState{
		Schema:      schema,
		ImputeMeans: columnMeans(X, width),
		Mean:        make([]float64, width),
		Scale:       make([]float64, width),
		Samples:     len(X),
	}

	col := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i, row := range X {
			v := row[j]
			if math.IsNaN(v) {
				v = s.ImputeMeans[j]
			}
			col[i] = v
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Scale[j] = std
	}
	return s, nil
}

// Width returns the number of feature columns.
func (s *ScalerState) Width() int {
	return len(s.Schema.Columns)
}

// TransformVector imputes and standardizes one schema-ordered row.
// The input is not modified.
func (s *ScalerState) TransformVector(v []float64) ([]float64, error) {
	if len(v) != s.Width() {
		return nil, fmt.Errorf("%w: got %d values, schema has %d columns",
			domain.ErrSchemaMismatch, len(v), s.Width())
	}
	out := make([]float64, len(v))
	copy(out, v)
	impute(out, s.ImputeMeans)
	for j := range out {
		out[j] = (out[j] - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// TransformMatrix applies TransformVector to every row.
func (s *ScalerState) TransformMatrix(X [][]float64) ([][]float64, error) {
	if err := checkWidth(X, s.Width()); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		t, err := s.TransformVector(row)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// TransformValues reindexes named values onto the schema, then transforms them.
// Schema columns absent from values are zero-filled before scaling; unknown
// names are a schema mismatch.
func (s *ScalerState) TransformValues(values domain.FeatureValues) ([]float64, error) {
	aligned, err := s.Schema.Reindex(values)
	if err != nil {
		return nil, err
	}
	return s.TransformVector(s.Schema.Vector(aligned))
}

// Validate checks internal consistency of a loaded state.
func (s *ScalerState) Validate() error {
	w := s.Width()
	if w == 0 {
		return fmt.Errorf("%w: scaler schema has no columns", domain.ErrSchemaMismatch)
	}
	if len(s.ImputeMeans) != w || len(s.Mean) != w || len(s.Scale) != w {
		return fmt.Errorf("%w: scaler vectors do not match %d schema columns", domain.ErrSchemaMismatch, w)
	}
	for j, sc := range s.Scale {
		if sc == 0 {
			return fmt.Errorf("scaler column %q has zero scale", s.Schema.Columns[j])
		}
	}
	return nil
}
