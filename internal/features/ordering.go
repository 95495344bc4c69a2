package features

import (
	"sort"
	"strings"

	"prilythic/internal/domain"
)

// datedPoint is a price point with its parsed date and input position.
type datedPoint struct {
	*domain.PricePoint
	seq int
}

// sortPoints orders points by (product ASC, market ASC, date ASC).
// Input position breaks ties so duplicate triples keep a deterministic order.
func sortPoints(points []datedPoint) {
	sort.Slice(points, func(i, j int) bool {
		return comparePoints(points[i], points[j]) < 0
	})
}

// comparePoints returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func comparePoints(a, b datedPoint) int {
	if c := strings.Compare(a.ProductCode, b.ProductCode); c != 0 {
		return c
	}
	if c := strings.Compare(a.MarketID, b.MarketID); c != 0 {
		return c
	}
	if !a.Date.Equal(b.Date) {
		if a.Date.Before(b.Date) {
			return -1
		}
		return 1
	}
	return a.seq - b.seq
}

// sortRowsChronologically orders rows by (date ASC, product ASC, market ASC),
// stable for equal keys.
func sortRowsChronologically(rows []*domain.FeatureRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.ProductCode != b.ProductCode {
			return a.ProductCode < b.ProductCode
		}
		return a.MarketID < b.MarketID
	})
}
