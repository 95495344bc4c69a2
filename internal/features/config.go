// Package features turns long price points into a supervised learning
// dataset: lags, rolling means, calendar fields and product indicators.
package features

import (
	"errors"

	"prilythic/internal/domain"
)

// Config parameterizes the feature builder. The same builder serves the
// full pipeline (DefaultConfig) and the reduced one (SimpleConfig).
type Config struct {
	// LagHorizon is K, the number of lag columns.
	LagHorizon int `yaml:"lag_horizon"`
	// RollingWindow is W. Zero disables the rolling mean column.
	RollingWindow int `yaml:"rolling_window"`
	// RollingIncludesCurrent ends the window at the current row instead of
	// the previous one. Off by default so the target never feeds its own feature.
	RollingIncludesCurrent bool `yaml:"rolling_includes_current"`
	// DateLayouts overrides domain.DefaultDateLayouts.
	DateLayouts []string `yaml:"date_layouts"`
}

// DefaultConfig returns K=12, W=6.
func DefaultConfig() Config {
	return Config{
		LagHorizon:    12,
		RollingWindow: 6,
	}
}

// SimpleConfig returns K=2 without a rolling mean.
func SimpleConfig() Config {
	return Config{
		LagHorizon: 2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.LagHorizon < 1 {
		return errors.New("lag horizon must be at least 1")
	}
	if c.RollingWindow < 0 {
		return errors.New("rolling window must not be negative")
	}
	return nil
}

// Columns returns the non-product feature columns in schema order.
func (c Config) Columns() []string {
	cols := []string{domain.ColumnYear, domain.ColumnMonth, domain.ColumnDayOfWeek}
	for i := 1; i <= c.LagHorizon; i++ {
		cols = append(cols, domain.LagColumn(i))
	}
	if c.RollingWindow > 0 {
		cols = append(cols, domain.RollingColumn(c.RollingWindow))
	}
	return cols
}
