package panel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"prilythic/internal/domain"
)

// Ticker table columns.
const (
	tickerColumnCode     = "ticker"
	tickerColumnFullName = "full_name"
	tickerColumnUnits    = "units"

	// ComponentsColumn is the panel column a ticker table is merged on.
	ComponentsColumn = "components"
)

// ReadTickers parses a ticker reference table with ticker, full_name and units columns.
func ReadTickers(r io.Reader) ([]*domain.Ticker, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read ticker header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	codeCol, ok := idx[tickerColumnCode]
	if !ok {
		return nil, fmt.Errorf("ticker table missing %q column", tickerColumnCode)
	}

	get := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var tickers []*domain.Ticker
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ticker row: %w", err)
		}
		if codeCol >= len(rec) || strings.TrimSpace(rec[codeCol]) == "" {
			continue
		}
		tickers = append(tickers, &domain.Ticker{
			Code:     strings.TrimSpace(rec[codeCol]),
			FullName: get(rec, tickerColumnFullName),
			Units:    get(rec, tickerColumnUnits),
		})
	}
	return tickers, nil
}

// LoadTickerFile reads a ticker table from disk.
func LoadTickerFile(path string) ([]*domain.Ticker, error) {
	f, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadTickers(f)
}

// MergeTickers left-joins full_name and units onto the panel by the components
// column. Panels without a components column are returned unchanged.
// Unmatched rows get empty values.
func MergeTickers(table *WideTable, tickers []*domain.Ticker) *WideTable {
	compCol := table.ColumnIndex(ComponentsColumn)
	if compCol < 0 || len(tickers) == 0 {
		return table
	}

	byCode := make(map[string]*domain.Ticker, len(tickers))
	for _, t := range tickers {
		if _, exists := byCode[t.Code]; !exists {
			byCode[t.Code] = t
		}
	}

	merged := &WideTable{
		Header: append(append([]string{}, table.Header...), tickerColumnFullName, tickerColumnUnits),
		Rows:   make([][]string, len(table.Rows)),
	}
	for i, row := range table.Rows {
		out := make([]string, len(table.Header), len(table.Header)+2)
		copy(out, row)
		fullName, units := "", ""
		if t, ok := byCode[strings.TrimSpace(table.Cell(i, compCol))]; ok {
			fullName, units = t.FullName, t.Units
		}
		merged.Rows[i] = append(out, fullName, units)
	}
	return merged
}
