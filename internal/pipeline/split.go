package pipeline

import (
	"errors"
	"fmt"
	"math"

	"prilythic/internal/domain"
)

// DefaultTestRatio holds out the last 20% of rows.
const DefaultTestRatio = 0.2

// ErrNotChronological is returned when a training row is dated after a test row.
var ErrNotChronological = errors.New("split is not chronological")

// Split is a train/test partition of date-ordered feature rows.
type Split struct {
	Train []*domain.FeatureRow
	Test  []*domain.FeatureRow
}

// ChronologicalSplit takes the first rows for training and the last
// ceil(n*testRatio) for testing. rows must already be ordered by date.
func ChronologicalSplit(rows []*domain.FeatureRow, testRatio float64) (*Split, error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, fmt.Errorf("test ratio %v outside (0, 1)", testRatio)
	}
	n := len(rows)
	nTest := int(math.Ceil(float64(n) * testRatio))
	nTrain := n - nTest
	if nTrain < 1 || nTest < 1 {
		return nil, fmt.Errorf("split %d rows at ratio %v: %w", n, testRatio, domain.ErrEmptyDataset)
	}
	return &Split{Train: rows[:nTrain], Test: rows[nTrain:]}, nil
}

// VerifyChronological checks that no training row is dated after the
// earliest test row.
func VerifyChronological(s *Split) error {
	if len(s.Train) == 0 || len(s.Test) == 0 {
		return nil
	}
	maxTrain := s.Train[0].Date
	for _, r := range s.Train[1:] {
		if r.Date.After(maxTrain) {
			maxTrain = r.Date
		}
	}
	minTest := s.Test[0].Date
	for _, r := range s.Test[1:] {
		if r.Date.Before(minTest) {
			minTest = r.Date
		}
	}
	if maxTrain.After(minTest) {
		return fmt.Errorf("%w: train reaches %s, test starts %s",
			ErrNotChronological, maxTrain.Format(domain.DateLayout), minTest.Format(domain.DateLayout))
	}
	return nil
}

// Targets returns the price column of rows.
func Targets(rows []*domain.FeatureRow) []float64 {
	y := make([]float64, len(rows))
	for i, r := range rows {
		y[i] = r.Price
	}
	return y
}
