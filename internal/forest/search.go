package forest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Grid lists candidate values per hyperparameter.
type Grid struct {
	NEstimators     []int    `yaml:"n_estimators"`
	MaxDepth        []int    `yaml:"max_depth"` // 0 means unlimited
	MinSamplesSplit []int    `yaml:"min_samples_split"`
	MinSamplesLeaf  []int    `yaml:"min_samples_leaf"`
	Bootstrap       []bool   `yaml:"bootstrap"`
	MaxFeatures     []string `yaml:"max_features"`
}

// DefaultGrid is the tuning grid of the reduced training path.
func DefaultGrid() Grid {
	return Grid{
		NEstimators:     []int{100, 200, 300},
		MaxDepth:        []int{0, 10, 20, 30},
		MinSamplesSplit: []int{2, 5, 10},
		MinSamplesLeaf:  []int{1, 2, 4},
		Bootstrap:       []bool{true, false},
		MaxFeatures:     []string{MaxFeaturesAll, MaxFeaturesSqrt},
	}
}

// Expand returns every combination in a fixed order, starting from base for
// fields the grid leaves empty.
func (g Grid) Expand(base Params) []Params {
	out := []Params{base}
	extend := func(n int, set func(p *Params, i int)) {
		if n == 0 {
			return
		}
		next := make([]Params, 0, len(out)*n)
		for _, p := range out {
			for i := 0; i < n; i++ {
				c := p
				set(&c, i)
				next = append(next, c)
			}
		}
		out = next
	}
	extend(len(g.NEstimators), func(p *Params, i int) { p.NEstimators = g.NEstimators[i] })
	extend(len(g.MaxDepth), func(p *Params, i int) { p.MaxDepth = g.MaxDepth[i] })
	extend(len(g.MinSamplesSplit), func(p *Params, i int) { p.MinSamplesSplit = g.MinSamplesSplit[i] })
	extend(len(g.MinSamplesLeaf), func(p *Params, i int) { p.MinSamplesLeaf = g.MinSamplesLeaf[i] })
	extend(len(g.Bootstrap), func(p *Params, i int) { p.Bootstrap = g.Bootstrap[i] })
	extend(len(g.MaxFeatures), func(p *Params, i int) { p.MaxFeatures = g.MaxFeatures[i] })
	return out
}

// SearchConfig controls cross-validated parameter search.
type SearchConfig struct {
	Folds      int   `yaml:"folds"`      // default 5
	Iterations int   `yaml:"iterations"` // random search draws; ignored by grid search
	Seed       int64 `yaml:"seed"`
}

// Candidate is one evaluated parameter set.
type Candidate struct {
	Params  Params        `json:"params"`
	MeanMAE float64       `json:"mean_mae"`
	StdMAE  float64       `json:"std_mae"`
	FoldMAE []float64     `json:"fold_mae"`
	Elapsed time.Duration `json:"elapsed"`
}

// SearchResult holds the best parameters and every candidate tried.
type SearchResult struct {
	Best       Params      `json:"best"`
	BestMAE    float64     `json:"best_mae"`
	Candidates []Candidate `json:"candidates"`
}

// Fold is one train/validation index split.
type Fold struct {
	Train []int
	Test  []int
}

// KFold splits n rows into k contiguous folds without shuffling.
// The first n%k folds are one row larger.
func KFold(n, k int) ([]Fold, error) {
	if k < 2 {
		return nil, errors.New("k-fold needs at least 2 folds")
	}
	if n < k {
		return nil, fmt.Errorf("k-fold: %d rows cannot fill %d folds", n, k)
	}
	folds := make([]Fold, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		end := start + size
		for i := 0; i < n; i++ {
			if i >= start && i < end {
				folds[f].Test = append(folds[f].Test, i)
			} else {
				folds[f].Train = append(folds[f].Train, i)
			}
		}
		start = end
	}
	return folds, nil
}

// GridSearch evaluates every grid combination with k-fold CV on mean absolute error.
func GridSearch(ctx context.Context, X [][]float64, y []float64, base Params, grid Grid, cfg SearchConfig, logger *zap.Logger) (*SearchResult, error) {
	return search(ctx, X, y, grid.Expand(base), cfg, logger, "grid")
}

// RandomSearch evaluates cfg.Iterations combinations drawn without
// replacement from the grid.
func RandomSearch(ctx context.Context, X [][]float64, y []float64, base Params, grid Grid, cfg SearchConfig, logger *zap.Logger) (*SearchResult, error) {
	all := grid.Expand(base)
	n := cfg.Iterations
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	rnd := rand.New(rand.NewSource(cfg.Seed))
	perm := rnd.Perm(len(all))[:n]
	picked := make([]Params, n)
	for i, p := range perm {
		picked[i] = all[p]
	}
	return search(ctx, X, y, picked, cfg, logger, "random")
}

func search(ctx context.Context, X [][]float64, y []float64, candidates []Params, cfg SearchConfig, logger *zap.Logger, method string) (*SearchResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(candidates) == 0 {
		return nil, errors.New("parameter search: empty grid")
	}
	k := cfg.Folds
	if k == 0 {
		k = 5
	}
	folds, err := KFold(len(X), k)
	if err != nil {
		return nil, err
	}

	logger.Info("parameter search started",
		zap.String("method", method),
		zap.Int("candidates", len(candidates)),
		zap.Int("folds", k))

	result := &SearchResult{BestMAE: math.Inf(1)}
	for ci, params := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("parameter search cancelled: %w", err)
		}
		start := time.Now()
		foldMAE := make([]float64, len(folds))
		for fi, fold := range folds {
			Xtr, ytr := subset(X, y, fold.Train)
			Xte, yte := subset(X, y, fold.Test)
			rf := New(params)
			if err := rf.Fit(ctx, Xtr, ytr); err != nil {
				return nil, fmt.Errorf("candidate %d fold %d: %w", ci, fi, err)
			}
			foldMAE[fi] = meanAbsoluteError(yte, rf.Predict(Xte))
		}
		mean, std := stat.MeanStdDev(foldMAE, nil)
		c := Candidate{Params: params, MeanMAE: mean, StdMAE: std, FoldMAE: foldMAE, Elapsed: time.Since(start)}
		result.Candidates = append(result.Candidates, c)
		if mean < result.BestMAE {
			result.BestMAE = mean
			result.Best = params
		}
		logger.Debug("candidate evaluated",
			zap.Int("candidate", ci+1),
			zap.Float64("mean_mae", mean),
			zap.Float64("best_mae", result.BestMAE))
	}

	logger.Info("parameter search finished",
		zap.String("method", method),
		zap.Float64("best_mae", result.BestMAE),
		zap.Any("best", result.Best))
	return result, nil
}

func subset(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}

func meanAbsoluteError(yTrue, yPred []float64) float64 {
	sum := 0.0
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue))
}
