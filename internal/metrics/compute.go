package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"prilythic/internal/domain"
)

// ErrNoPredictions is returned when there is nothing to evaluate.
var ErrNoPredictions = errors.New("no predictions to evaluate")

// Evaluate computes hold-out metrics for yPred against yTrue.
// yTrain is the training target; its mean anchors the MAE percentage
// and the quality band.
func Evaluate(yTrue, yPred, yTrain []float64) (*domain.Evaluation, error) {
	n := len(yTrue)
	if n == 0 {
		return nil, ErrNoPredictions
	}
	if len(yPred) != n {
		return nil, fmt.Errorf("evaluate: %d targets but %d predictions", n, len(yPred))
	}

	mse := computeMSE(yTrue, yPred)
	mae := computeMAE(yTrue, yPred)
	avgTrain := 0.0
	if len(yTrain) > 0 {
		avgTrain = stat.Mean(yTrain, nil)
	}
	maePct := computeMAEPercent(mae, avgTrain)

	return &domain.Evaluation{
		MSE:           mse,
		RMSE:          math.Sqrt(mse),
		MAE:           mae,
		R2:            computeR2(yTrue, yPred),
		MAPE:          computeMAPE(yTrue, yPred),
		MaxError:      computeMaxError(yTrue, yPred),
		AvgTrainPrice: avgTrain,
		MAEPct:        maePct,
		Band:          domain.BandFor(maePct),
		TestRows:      n,
		TrainRows:     len(yTrain),
	}, nil
}

// computeMSE calculates mean squared error.
func computeMSE(yTrue, yPred []float64) float64 {
	sum := 0.0
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return sum / float64(len(yTrue))
}

// computeMAE calculates mean absolute error.
func computeMAE(yTrue, yPred []float64) float64 {
	return floats.Distance(yTrue, yPred, 1) / float64(len(yTrue))
}

// computeR2 calculates the coefficient of determination.
// A constant target scores 1 when predicted exactly and 0 otherwise.
func computeR2(yTrue, yPred []float64) float64 {
	mean := stat.Mean(yTrue, nil)
	ssRes, ssTot := 0.0, 0.0
	for i := range yTrue {
		r := yTrue[i] - yPred[i]
		d := yTrue[i] - mean
		ssRes += r * r
		ssTot += d * d
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// computeMAPE calculates mean absolute percentage error in percent.
// Rows with a zero target are skipped; with none left the result is 0.
func computeMAPE(yTrue, yPred []float64) float64 {
	sum := 0.0
	n := 0
	for i := range yTrue {
		if yTrue[i] == 0 {
			continue
		}
		sum += math.Abs((yTrue[i] - yPred[i]) / yTrue[i])
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) * 100
}

// computeMaxError calculates the largest absolute residual.
func computeMaxError(yTrue, yPred []float64) float64 {
	return floats.Distance(yTrue, yPred, math.Inf(1))
}

// computeMAEPercent expresses MAE relative to the average training price.
// The result is always finite and capped at domain.MaxMAEPct.
func computeMAEPercent(mae, avgTrain float64) float64 {
	if avgTrain == 0 {
		if mae == 0 {
			return 0
		}
		return domain.MaxMAEPct
	}
	pct := mae / math.Abs(avgTrain) * 100
	if math.IsNaN(pct) || pct > domain.MaxMAEPct {
		return domain.MaxMAEPct
	}
	return pct
}
