package forecast

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prilythic/internal/domain"
)

func testSchema(k, w int) *domain.FeatureSchema {
	cols := []string{domain.ColumnYear, domain.ColumnMonth, domain.ColumnDayOfWeek}
	for i := 1; i <= k; i++ {
		cols = append(cols, domain.LagColumn(i))
	}
	if w > 0 {
		cols = append(cols, domain.RollingColumn(w))
	}
	cols = append(cols, "product_beans", "product_rice")
	return &domain.FeatureSchema{
		Columns:         cols,
		Products:        []string{"c_apple", "c_beans", "c_rice"},
		BaselineProduct: "c_apple",
		LagHorizon:      k,
		RollingWindow:   w,
	}
}

func month(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthlySeries(start time.Time, prices ...float64) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, len(prices))
	for i, p := range prices {
		out[i] = domain.SeriesPoint{Date: start.AddDate(0, i, 0), Price: p}
	}
	return out
}

func TestAssemble_Scenario(t *testing.T) {
	series := monthlySeries(month(2024, 1, 15), 100, 102, 98, 105, 110, 108)

	asm, err := NewAssembler(testSchema(2, 6)).Assemble("c_beans", series)
	require.NoError(t, err)

	assert.Equal(t, month(2024, 7, 1), asm.Date)
	assert.Equal(t, 108.0, asm.Values[domain.LagColumn(1)])
	assert.Equal(t, 110.0, asm.Values[domain.LagColumn(2)])
	assert.InDelta(t, 103.8333333, asm.Values[domain.RollingColumn(6)], 1e-6)
	assert.Equal(t, 1.0, asm.Values["product_beans"])
	assert.Zero(t, asm.Values["product_rice"])
	assert.Equal(t, 2024.0, asm.Values[domain.ColumnYear])
	assert.Equal(t, 7.0, asm.Values[domain.ColumnMonth])
	assert.False(t, asm.ReducedConfidence)
}

func TestAssemble_SingleObservationZeroFillsLags(t *testing.T) {
	series := []domain.SeriesPoint{{Date: month(2023, 12, 10), Price: 42.5}}

	asm, err := NewAssembler(testSchema(12, 6)).Assemble("c_rice", series)
	require.NoError(t, err)

	assert.Equal(t, 42.5, asm.Values[domain.LagColumn(1)])
	for i := 2; i <= 12; i++ {
		v, ok := asm.Values[domain.LagColumn(i)]
		assert.True(t, ok, "lag %d present", i)
		assert.Zero(t, v, "lag %d", i)
	}
	assert.Equal(t, 42.5, asm.Values[domain.RollingColumn(6)])
	assert.Equal(t, month(2024, 1, 1), asm.Date, "december rolls into next year")
	assert.True(t, asm.ReducedConfidence)
}

// Forecast rows always carry day-of-week 0, whatever weekday the first of the
// forecast month falls on.
func TestAssemble_DayOfWeekIsConstant(t *testing.T) {
	schema := testSchema(2, 0)
	for m := time.January; m <= time.December; m++ {
		series := []domain.SeriesPoint{{Date: month(2025, m, 20), Price: 10}}
		asm, err := NewAssembler(schema).Assemble("c_beans", series)
		require.NoError(t, err)

		assert.Equal(t, 1, asm.Date.Day())
		assert.Equal(t, 0.0, asm.Values[domain.ColumnDayOfWeek], "forecast for %s", asm.Date.Format("2006-01"))
	}
}

func TestAssemble_BaselineProductHasNoIndicator(t *testing.T) {
	asm, err := NewAssembler(testSchema(2, 6)).Assemble("c_apple", monthlySeries(month(2024, 1, 1), 1, 2, 3))
	require.NoError(t, err)

	assert.Zero(t, asm.Values["product_beans"])
	assert.Zero(t, asm.Values["product_rice"])
	_, hasApple := asm.Values["product_apple"]
	assert.False(t, hasApple)
}

func TestAssemble_UnknownProduct(t *testing.T) {
	_, err := NewAssembler(testSchema(2, 6)).Assemble("c_durian", monthlySeries(month(2024, 1, 1), 1, 2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownProduct))
	assert.True(t, errors.Is(err, domain.ErrSchemaMismatch))
}

func TestAssemble_EmptySeries(t *testing.T) {
	_, err := NewAssembler(testSchema(2, 6)).Assemble("c_beans", nil)
	assert.True(t, errors.Is(err, domain.ErrInsufficientHistory))
}

func TestAssemble_ValuesMatchSchema(t *testing.T) {
	schema := testSchema(3, 6)
	asm, err := NewAssembler(schema).Assemble("c_rice", monthlySeries(month(2024, 1, 1), 5, 6, 7, 8))
	require.NoError(t, err)

	aligned, err := schema.Reindex(asm.Values)
	require.NoError(t, err)
	assert.Len(t, aligned, len(schema.Columns))
}

func TestPrepareSeries_KeepsLatestPerMonth(t *testing.T) {
	series := []domain.SeriesPoint{
		{Date: month(2024, 2, 20), Price: 4},
		{Date: month(2024, 1, 5), Price: 1},
		{Date: month(2024, 2, 1), Price: 3},
		{Date: month(2024, 1, 28), Price: 2},
	}
	original := append([]domain.SeriesPoint(nil), series...)

	got := PrepareSeries(series)

	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Price)
	assert.Equal(t, 4.0, got[1].Price)
	assert.Equal(t, original, series, "input untouched")
}

func TestPrepareSeries_SameDateKeepsLastInInput(t *testing.T) {
	series := []domain.SeriesPoint{
		{Date: month(2024, 3, 1), Price: 9},
		{Date: month(2024, 3, 1), Price: 11},
	}
	got := PrepareSeries(series)
	require.Len(t, got, 1)
	assert.Equal(t, 11.0, got[0].Price)
}
