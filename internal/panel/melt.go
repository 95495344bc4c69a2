package panel

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"prilythic/internal/domain"
)

// Default panel column names.
const (
	DefaultMarketColumn = "mkt_name"
	DefaultDateColumn   = "price_date"
)

// MeltConfig selects the columns used when reshaping a panel.
type MeltConfig struct {
	// ProductCodes are the value columns. Empty means every column with the "c_" prefix.
	ProductCodes []string
	MarketColumn string
	DateColumn   string
}

// DefaultMeltConfig returns the panel layout used by the market price exports.
func DefaultMeltConfig() MeltConfig {
	return MeltConfig{
		MarketColumn: DefaultMarketColumn,
		DateColumn:   DefaultDateColumn,
	}
}

// DetectProductCodes returns header columns starting with prefix, in header order.
func DetectProductCodes(header []string, prefix string) []string {
	var codes []string
	for _, h := range header {
		if strings.HasPrefix(h, prefix) {
			codes = append(codes, h)
		}
	}
	return codes
}

// Melt reshapes a wide panel into long price points, product-major:
// all rows of the first product, then all rows of the next.
// Rows whose price cell is missing or non-numeric are dropped.
// Configured product codes absent from the header are skipped.
func Melt(table *WideTable, cfg MeltConfig) ([]*domain.PricePoint, error) {
	if cfg.MarketColumn == "" {
		cfg.MarketColumn = DefaultMarketColumn
	}
	if cfg.DateColumn == "" {
		cfg.DateColumn = DefaultDateColumn
	}

	dateCol := table.ColumnIndex(cfg.DateColumn)
	if dateCol < 0 {
		return nil, fmt.Errorf("panel missing date column %q", cfg.DateColumn)
	}
	marketCol := table.ColumnIndex(cfg.MarketColumn)

	codes := cfg.ProductCodes
	if len(codes) == 0 {
		codes = DetectProductCodes(table.Header, domain.ProductPrefix)
	}

	valueCols := make(map[int]string)
	for _, code := range codes {
		if i := table.ColumnIndex(code); i >= 0 {
			valueCols[i] = code
		}
	}
	if len(valueCols) == 0 {
		return nil, fmt.Errorf("panel has none of the product columns %v: %w", codes, domain.ErrEmptyDataset)
	}

	// Identifier columns pass through unchanged.
	var idCols []int
	for i, h := range table.Header {
		if _, isValue := valueCols[i]; isValue || i == dateCol {
			continue
		}
		if h != "" {
			idCols = append(idCols, i)
		}
	}

	ordered := make([]int, 0, len(valueCols))
	for i := range valueCols {
		ordered = append(ordered, i)
	}
	sort.Ints(ordered)

	var points []*domain.PricePoint
	for _, col := range ordered {
		code := valueCols[col]
		for r := range table.Rows {
			price, ok := ParsePrice(table.Cell(r, col))
			if !ok {
				continue
			}
			ids := make(map[string]string, len(idCols))
			for _, c := range idCols {
				ids[table.Header[c]] = table.Cell(r, c)
			}
			points = append(points, &domain.PricePoint{
				ProductCode: code,
				MarketID:    table.Cell(r, marketCol),
				RawDate:     table.Cell(r, dateCol),
				Price:       price,
				Identifiers: ids,
			})
		}
	}
	return points, nil
}

// ParsePrice parses a price cell. Empty cells, NA markers and
// non-finite or non-numeric values are reported as missing.
func ParsePrice(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	switch strings.ToLower(cell) {
	case "", "-", "na", "n/a", "nan", "null", "none":
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
