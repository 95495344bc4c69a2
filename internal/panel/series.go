package panel

import (
	"fmt"
	"sort"

	"prilythic/internal/domain"
)

// ProductSeries extracts the dated prices of one product column.
// An empty market selects rows from every market. Rows with a missing price
// or an unparseable date are skipped. The result is sorted by date; rows on
// the same date keep panel order.
func ProductSeries(table *WideTable, product, market string, cfg MeltConfig, layouts []string) ([]domain.SeriesPoint, error) {
	if cfg.MarketColumn == "" {
		cfg.MarketColumn = DefaultMarketColumn
	}
	if cfg.DateColumn == "" {
		cfg.DateColumn = DefaultDateColumn
	}

	col := table.ColumnIndex(product)
	if col < 0 {
		return nil, fmt.Errorf("%w: product column %q", domain.ErrInputNotFound, product)
	}
	dateCol := table.ColumnIndex(cfg.DateColumn)
	if dateCol < 0 {
		return nil, fmt.Errorf("panel missing date column %q", cfg.DateColumn)
	}
	marketCol := table.ColumnIndex(cfg.MarketColumn)

	var series []domain.SeriesPoint
	for r := range table.Rows {
		if market != "" && table.Cell(r, marketCol) != market {
			continue
		}
		price, ok := ParsePrice(table.Cell(r, col))
		if !ok {
			continue
		}
		date, ok := domain.ParseDate(table.Cell(r, dateCol), layouts)
		if !ok {
			continue
		}
		series = append(series, domain.SeriesPoint{Date: date, Price: price})
	}

	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Date.Before(series[j].Date)
	})
	return series, nil
}
