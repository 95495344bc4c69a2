package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// FeatureSchema is the ordered list of feature columns fixed when the scaler is fit.
// The target column is never part of it.
type FeatureSchema struct {
	Columns         []string `json:"columns"`
	Products        []string `json:"products"`         // all product codes seen at fit time, sorted
	BaselineProduct string   `json:"baseline_product"` // dropped one-hot level
	LagHorizon      int      `json:"lag_horizon"`
	RollingWindow   int      `json:"rolling_window"`
}

// Index returns the position of a column or -1.
func (s *FeatureSchema) Index(column string) int {
	for i, c := range s.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// ProductColumns returns the one-hot columns in schema order.
func (s *FeatureSchema) ProductColumns() []string {
	var cols []string
	for _, c := range s.Columns {
		if strings.HasPrefix(c, ProductColumnPrefix) {
			cols = append(cols, c)
		}
	}
	return cols
}

// KnowsProduct reports whether a product code was present when the schema was fit.
func (s *FeatureSchema) KnowsProduct(code string) bool {
	i := sort.SearchStrings(s.Products, code)
	return i < len(s.Products) && s.Products[i] == code
}

// Reindex maps values onto the schema columns. Columns absent from values are
// zero-filled; a value whose name is not in the schema is a schema mismatch.
// Reindex(Reindex(v)) == Reindex(v).
func (s *FeatureSchema) Reindex(values FeatureValues) (FeatureValues, error) {
	var unknown []string
	for name := range values {
		if s.Index(name) < 0 {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown columns %v", ErrSchemaMismatch, unknown)
	}

	out := make(FeatureValues, len(s.Columns))
	for _, c := range s.Columns {
		out[c] = values[c]
	}
	return out, nil
}

// Vector returns the values in schema column order. Missing names yield 0.
func (s *FeatureSchema) Vector(values FeatureValues) []float64 {
	vec := make([]float64, len(s.Columns))
	for i, c := range s.Columns {
		vec[i] = values[c]
	}
	return vec
}

// Fingerprint is a stable hash of the ordered columns, shared by a model and
// its scaler so a mismatched pair can be detected on load.
func (s *FeatureSchema) Fingerprint() string {
	h := sha256.New()
	for _, c := range s.Columns {
		h.Write([]byte(c))
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "baseline=%s;k=%d;w=%d", s.BaselineProduct, s.LagHorizon, s.RollingWindow)
	return hex.EncodeToString(h.Sum(nil))
}
