package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *FeatureSchema {
	return &FeatureSchema{
		Columns:         []string{"year", "month", "dayofweek", "price_lag1", "price_roll6", "product_cabbage", "product_rice"},
		Products:        []string{"c_beans", "c_cabbage", "c_rice"},
		BaselineProduct: "c_beans",
		LagHorizon:      1,
		RollingWindow:   6,
	}
}

func TestReindex_ZeroFillsAbsentColumns(t *testing.T) {
	s := testSchema()

	out, err := s.Reindex(FeatureValues{"year": 2024, "price_lag1": 10})
	require.NoError(t, err)

	assert.Len(t, out, len(s.Columns))
	assert.Equal(t, 2024.0, out["year"])
	assert.Equal(t, 10.0, out["price_lag1"])
	assert.Equal(t, 0.0, out["product_rice"])
}

func TestReindex_Idempotent(t *testing.T) {
	s := testSchema()

	once, err := s.Reindex(FeatureValues{"month": 7, "product_rice": 1})
	require.NoError(t, err)
	twice, err := s.Reindex(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, s.Vector(once), s.Vector(twice))
}

func TestReindex_UnknownColumn(t *testing.T) {
	s := testSchema()

	_, err := s.Reindex(FeatureValues{"product_tomatoes": 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
	assert.Contains(t, err.Error(), "product_tomatoes")
}

func TestSchema_ProductColumnsAndKnowsProduct(t *testing.T) {
	s := testSchema()

	assert.Equal(t, []string{"product_cabbage", "product_rice"}, s.ProductColumns())
	assert.True(t, s.KnowsProduct("c_beans"))
	assert.False(t, s.KnowsProduct("c_eggs"))
}

func TestFingerprint(t *testing.T) {
	a := testSchema()
	b := testSchema()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Columns = append(b.Columns, "extra")
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestProductNaming(t *testing.T) {
	assert.Equal(t, "product_beans", ProductColumn("c_beans"))
	assert.Equal(t, "product_meat_pork", ProductColumn("c_meat_pork"))
	assert.Equal(t, "Meat Chicken Whole", DisplayName("c_meat_chicken_whole"))
	assert.Equal(t, "Toilet Paper", DisplayName("c_toilet_paper"))
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		pct  float64
		want QualityBand
	}{
		{0, QualityExcellent},
		{9.99, QualityExcellent},
		{10, QualityGood},
		{19.5, QualityGood},
		{20, QualityAcceptable},
		{29.9, QualityAcceptable},
		{30, QualityPoor},
		{250, QualityPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandFor(tt.pct), "pct=%v", tt.pct)
	}
}

func TestNextMonth(t *testing.T) {
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), NextMonth(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), NextMonth(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestHistoricalPoint_MarshalJSON(t *testing.T) {
	p := HistoricalPoint{ProductCode: "c_beans", Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Price: 100.5}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"price_date":"2024-01-15","c_beans":100.5}`, string(data))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-15 10:30:00", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), true},
		{"15/03/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"01/02/2024", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-01T00:30:00+08:00", time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC), true},
		{"2024-02-29T23:00:00-05:00", time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC), true},
		{"not-a-date", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.raw, nil)
		assert.Equal(t, tt.ok, ok, "raw=%q", tt.raw)
		if tt.ok {
			assert.True(t, tt.want.Equal(got), "raw=%q got=%v", tt.raw, got)
			assert.Equal(t, time.UTC, got.Location(), "raw=%q", tt.raw)
			assert.Equal(t, MonthStart(tt.want), MonthStart(got), "raw=%q", tt.raw)
		}
	}
}
