package domain

import "time"

// PricePoint is one observed price in long format.
// Produced by the panel reshaper; Date is filled by the feature builder.
type PricePoint struct {
	ProductCode string            // panel column name, e.g. "c_beans"
	MarketID    string            // market identifier (mkt_name)
	RawDate     string            // date cell as it appeared in the panel
	Date        time.Time         // parsed date, zero until parsed
	Price       float64           // never missing after reshaping
	Identifiers map[string]string // pass-through panel columns (country, adm1_name, ...)
}

// SeriesPoint is a dated price of a single product series, used at serving time.
type SeriesPoint struct {
	Date  time.Time
	Price float64
}

// MonthStart truncates t to the first day of its month (UTC).
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonth returns the first day of the month after t.
func NextMonth(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0)
}
