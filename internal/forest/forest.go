// Package forest implements a random forest regressor with impurity-based
// feature importances, JSON persistence and cross-validated parameter search.
package forest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"prilythic/internal/domain"
)

// Max feature strategies.
const (
	MaxFeaturesAll  = "auto" // every feature at every split
	MaxFeaturesSqrt = "sqrt"
	MaxFeaturesLog2 = "log2"
)

// Params are the forest hyperparameters.
type Params struct {
	NEstimators     int    `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        int    `json:"max_depth" yaml:"max_depth"` // 0 means unlimited
	MinSamplesSplit int    `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	Bootstrap       bool   `json:"bootstrap" yaml:"bootstrap"`
	MaxFeatures     string `json:"max_features" yaml:"max_features"` // auto, sqrt, log2 or a fraction
	Seed            int64  `json:"seed" yaml:"seed"`
	Workers         int    `json:"-" yaml:"workers"` // parallel tree fits, 0 = GOMAXPROCS
}

// DefaultParams returns 200 trees, depth 20, split 5, leaf 2, seed 42.
func DefaultParams() Params {
	return Params{
		NEstimators:     200,
		MaxDepth:        20,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Bootstrap:       true,
		MaxFeatures:     MaxFeaturesAll,
		Seed:            42,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.NEstimators < 1 {
		return errors.New("n_estimators must be at least 1")
	}
	if p.MaxDepth < 0 {
		return errors.New("max_depth must not be negative")
	}
	if p.MinSamplesSplit < 2 {
		return errors.New("min_samples_split must be at least 2")
	}
	if p.MinSamplesLeaf < 1 {
		return errors.New("min_samples_leaf must be at least 1")
	}
	if _, err := p.featuresPerSplit(1); err != nil {
		return err
	}
	return nil
}

// featuresPerSplit resolves MaxFeatures for n input features.
func (p Params) featuresPerSplit(n int) (int, error) {
	var k int
	switch p.MaxFeatures {
	case "", MaxFeaturesAll, "1.0", "none":
		k = n
	case MaxFeaturesSqrt:
		k = int(math.Sqrt(float64(n)))
	case MaxFeaturesLog2:
		k = int(math.Log2(float64(n)))
	default:
		frac, err := strconv.ParseFloat(p.MaxFeatures, 64)
		if err != nil || frac <= 0 || frac > 1 {
			return 0, fmt.Errorf("invalid max_features %q", p.MaxFeatures)
		}
		k = int(frac * float64(n))
	}
	return min(max(k, 1), n), nil
}

// RandomForest is an ensemble of regression trees averaged at prediction time.
type RandomForest struct {
	Params      Params    `json:"params"`
	NFeatures   int       `json:"n_features"`
	Trees       []*Tree   `json:"trees"`
	Importances []float64 `json:"importances"`
}

// New returns an unfitted forest.
func New(params Params) *RandomForest {
	return &RandomForest{Params: params}
}

// Fit grows the trees in parallel. Tree i draws from its own source seeded
// with Seed+i, so the result does not depend on scheduling.
func (rf *RandomForest) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if err := rf.Params.Validate(); err != nil {
		return fmt.Errorf("forest params: %w", err)
	}
	if len(X) == 0 {
		return fmt.Errorf("fit forest: %w", domain.ErrEmptyDataset)
	}
	if len(X) != len(y) {
		return fmt.Errorf("fit forest: %d rows but %d targets", len(X), len(y))
	}
	nFeatures := len(X[0])
	if nFeatures == 0 {
		return errors.New("fit forest: no features")
	}
	for i, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("fit forest: row %d has %d features, want %d", i, len(row), nFeatures)
		}
	}
	k, err := rf.Params.featuresPerSplit(nFeatures)
	if err != nil {
		return err
	}

	trees := make([]*Tree, rf.Params.NEstimators)
	treeImportances := make([][]float64, rf.Params.NEstimators)

	workers := rf.Params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rnd := rand.New(rand.NewSource(rf.Params.Seed + int64(i)))
			sample := drawSample(len(X), rf.Params.Bootstrap, rnd)
			trees[i], treeImportances[i] = growTree(X, y, sample, rf.Params, k, rnd)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fit forest: %w", err)
	}

	rf.NFeatures = nFeatures
	rf.Trees = trees
	rf.Importances = averageImportances(treeImportances, nFeatures)
	return nil
}

func drawSample(n int, bootstrap bool, rnd *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		if bootstrap {
			idx[i] = rnd.Intn(n)
		} else {
			idx[i] = i
		}
	}
	return idx
}

// averageImportances normalizes each tree's decreases to sum 1,
// averages across trees and renormalizes.
func averageImportances(perTree [][]float64, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	for _, imp := range perTree {
		total := floats.Sum(imp)
		if total <= 0 {
			continue
		}
		for j, v := range imp {
			out[j] += v / total
		}
	}
	if total := floats.Sum(out); total > 0 {
		floats.Scale(1/total, out)
	}
	return out
}

// PredictRow returns the mean of the tree predictions for x.
func (rf *RandomForest) PredictRow(x []float64) float64 {
	sum := 0.0
	for _, t := range rf.Trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(rf.Trees))
}

// Predict returns a prediction per row.
func (rf *RandomForest) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = rf.PredictRow(x)
	}
	return out
}

// FeatureImportances returns the normalized impurity decrease per feature.
func (rf *RandomForest) FeatureImportances() []float64 {
	out := make([]float64, len(rf.Importances))
	copy(out, rf.Importances)
	return out
}

// TopImportances pairs importances with column names and returns the n
// largest, descending. Ties keep column order. n <= 0 returns all.
func TopImportances(names []string, importances []float64, n int) []domain.FeatureImportance {
	out := make([]domain.FeatureImportance, 0, len(importances))
	for i, v := range importances {
		name := strconv.Itoa(i)
		if i < len(names) {
			name = names[i]
		}
		out = append(out, domain.FeatureImportance{Feature: name, Importance: v})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance > out[j].Importance
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
