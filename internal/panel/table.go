// Package panel reads wide-format market price panels and reshapes them
// into one long row per (product, market, date).
package panel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"prilythic/internal/domain"
)

// WideTable is a panel as read from CSV: one row per (market, date),
// one column per product plus identifier columns.
type WideTable struct {
	Header []string
	Rows   [][]string
}

// ColumnIndex returns the position of a header column or -1.
func (t *WideTable) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at (row, col), or "" when the row is short.
func (t *WideTable) Cell(row, col int) string {
	r := t.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// ReadWide parses a CSV panel. The first record is the header.
func ReadWide(r io.Reader) (*WideTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read panel header: %w", domain.ErrEmptyDataset)
		}
		return nil, fmt.Errorf("read panel header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	table := &WideTable{Header: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read panel row %d: %w", len(table.Rows)+2, err)
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

// LoadWideFile reads a CSV panel from disk.
// A missing file is reported as domain.ErrInputNotFound.
func LoadWideFile(path string) (*WideTable, error) {
	f, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadWide(f)
}

func openInput(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
