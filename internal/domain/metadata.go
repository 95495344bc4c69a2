package domain

// Ticker describes a product from the ticker reference table.
// Corresponds to tickers table in PostgreSQL.
type Ticker struct {
	Code      string // product code, e.g. "c_rice"
	FullName  string // human readable name
	Units     string // unit of measure, e.g. "kg"
	CreatedAt int64  // record creation timestamp (ms), set by the store
}
