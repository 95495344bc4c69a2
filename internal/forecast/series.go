package forecast

import (
	"slices"

	"prilythic/internal/domain"
)

// HistoryLength is the number of trailing observations returned for display.
const HistoryLength = 12

// PrepareSeries sorts a series by date and keeps one observation per calendar
// month, the latest one. The input slice is not modified.
func PrepareSeries(series []domain.SeriesPoint) []domain.SeriesPoint {
	if len(series) == 0 {
		return nil
	}
	sorted := slices.Clone(series)
	slices.SortStableFunc(sorted, func(a, b domain.SeriesPoint) int {
		return a.Date.Compare(b.Date)
	})

	out := make([]domain.SeriesPoint, 0, len(sorted))
	for _, p := range sorted {
		if n := len(out); n > 0 && domain.MonthStart(out[n-1].Date).Equal(domain.MonthStart(p.Date)) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// trailing returns the last n points of series.
func trailing(series []domain.SeriesPoint, n int) []domain.SeriesPoint {
	if len(series) <= n {
		return series
	}
	return series[len(series)-n:]
}
