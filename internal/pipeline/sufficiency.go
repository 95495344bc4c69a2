package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"prilythic/internal/domain"
	"prilythic/internal/features"
)

// SufficiencyCheck represents one data sufficiency criterion.
type SufficiencyCheck struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
	Required  bool // a failed required check aborts training
}

// SufficiencyResult contains every check and the integrity warnings found.
type SufficiencyResult struct {
	Checks  []SufficiencyCheck
	AllPass bool
	Errors  []string // data integrity warnings
}

// Err returns an error wrapping domain.ErrEmptyDataset when a required check
// failed, nil otherwise.
func (r *SufficiencyResult) Err() error {
	var failed []string
	for _, c := range r.Checks {
		if c.Required && !c.Pass {
			failed = append(failed, fmt.Sprintf("%s %s (got %s)", c.Name, c.Threshold, c.Actual))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("insufficient training data: %s: %w", strings.Join(failed, "; "), domain.ErrEmptyDataset)
}

// SufficiencyConfig sets the thresholds of CheckSufficiency.
type SufficiencyConfig struct {
	MinTrainRows    int     `yaml:"min_train_rows"`
	MinTestRows     int     `yaml:"min_test_rows"`
	MaxDroppedRatio float64 `yaml:"max_dropped_ratio"` // share of rows with unparseable dates
}

// DefaultSufficiencyConfig returns the thresholds used by the train command.
func DefaultSufficiencyConfig() SufficiencyConfig {
	return SufficiencyConfig{
		MinTrainRows:    10,
		MinTestRows:     1,
		MaxDroppedRatio: 0.05,
	}
}

// Validate checks the thresholds.
func (c SufficiencyConfig) Validate() error {
	if c.MinTrainRows < 1 || c.MinTestRows < 1 {
		return errors.New("minimum train and test rows must be at least 1")
	}
	if c.MaxDroppedRatio < 0 || c.MaxDroppedRatio > 1 {
		return errors.New("max dropped ratio must be within [0, 1]")
	}
	return nil
}

// CheckSufficiency runs the data checks over a built and split dataset:
//  1. training rows >= MinTrainRows (required)
//  2. test rows >= MinTestRows (required)
//  3. share of rows dropped for unparseable dates <= MaxDroppedRatio
//  4. every product has more than K observations, so its lags are real prices
//  5. every test product also appears in the training partition
func CheckSufficiency(cfg SufficiencyConfig, ds *features.Dataset, split *Split) *SufficiencyResult {
	result := &SufficiencyResult{
		Checks:  make([]SufficiencyCheck, 0, 5),
		AllPass: true,
		Errors:  []string{},
	}
	add := func(c SufficiencyCheck, warnings []string) {
		result.Checks = append(result.Checks, c)
		if !c.Pass {
			result.AllPass = false
			result.Errors = append(result.Errors, warnings...)
		}
	}

	add(SufficiencyCheck{
		Name:      "Training rows",
		Threshold: fmt.Sprintf(">= %d", cfg.MinTrainRows),
		Actual:    fmt.Sprintf("%d", len(split.Train)),
		Pass:      len(split.Train) >= cfg.MinTrainRows,
		Required:  true,
	}, nil)

	add(SufficiencyCheck{
		Name:      "Test rows",
		Threshold: fmt.Sprintf(">= %d", cfg.MinTestRows),
		Actual:    fmt.Sprintf("%d", len(split.Test)),
		Pass:      len(split.Test) >= cfg.MinTestRows,
		Required:  true,
	}, nil)

	add(checkDroppedDates(cfg, ds.Stats))
	add(checkLagCoverage(ds))
	add(checkTestProductsSeen(split))

	return result
}

func checkDroppedDates(cfg SufficiencyConfig, stats features.BuildStats) (SufficiencyCheck, []string) {
	ratio := 0.0
	if stats.InputRows > 0 {
		ratio = float64(stats.DroppedDates) / float64(stats.InputRows)
	}
	c := SufficiencyCheck{
		Name:      "Unparseable dates",
		Threshold: fmt.Sprintf("<= %.1f%%", cfg.MaxDroppedRatio*100),
		Actual:    fmt.Sprintf("%.1f%% (%d rows)", ratio*100, stats.DroppedDates),
		Pass:      ratio <= cfg.MaxDroppedRatio,
	}
	if c.Pass {
		return c, nil
	}
	return c, []string{fmt.Sprintf("%d of %d rows dropped for unparseable dates", stats.DroppedDates, stats.InputRows)}
}

func checkLagCoverage(ds *features.Dataset) (SufficiencyCheck, []string) {
	k := ds.Schema.LagHorizon
	counts := make(map[string]int)
	for _, r := range ds.Rows {
		counts[r.ProductCode]++
	}

	var short []string
	for code, n := range counts {
		if n <= k {
			short = append(short, code)
		}
	}
	sort.Strings(short)

	c := SufficiencyCheck{
		Name:      "Products with full lag history",
		Threshold: fmt.Sprintf("all products > %d observations", k),
		Actual:    fmt.Sprintf("%d of %d", len(counts)-len(short), len(counts)),
		Pass:      len(short) == 0,
	}
	var warnings []string
	for _, code := range short {
		warnings = append(warnings, fmt.Sprintf("%s has %d observations, lag features are imputed", code, counts[code]))
	}
	return c, warnings
}

func checkTestProductsSeen(split *Split) (SufficiencyCheck, []string) {
	seen := make(map[string]bool)
	for _, r := range split.Train {
		seen[r.ProductCode] = true
	}
	unseen := make(map[string]bool)
	for _, r := range split.Test {
		if !seen[r.ProductCode] {
			unseen[r.ProductCode] = true
		}
	}

	codes := make([]string, 0, len(unseen))
	for code := range unseen {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	c := SufficiencyCheck{
		Name:      "Test products seen in training",
		Threshold: "0 unseen",
		Actual:    fmt.Sprintf("%d unseen", len(codes)),
		Pass:      len(codes) == 0,
	}
	var warnings []string
	for _, code := range codes {
		warnings = append(warnings, fmt.Sprintf("%s only appears in the test partition", code))
	}
	return c, warnings
}
