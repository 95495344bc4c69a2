package metrics

import (
	"fmt"
	"sort"

	"prilythic/internal/domain"
)

// ProductEvaluation is the hold-out evaluation restricted to one product.
type ProductEvaluation struct {
	ProductCode string
	Evaluation  *domain.Evaluation
}

// EvaluateByProduct splits test rows by product and evaluates each group
// against that product's own training rows. Products without training rows
// use the overall training mean. Results are sorted by product code.
func EvaluateByProduct(trainRows, testRows []*domain.FeatureRow, yPred []float64) ([]ProductEvaluation, error) {
	if len(testRows) != len(yPred) {
		return nil, fmt.Errorf("evaluate by product: %d rows but %d predictions", len(testRows), len(yPred))
	}

	trainByProduct := make(map[string][]float64)
	allTrain := make([]float64, 0, len(trainRows))
	for _, r := range trainRows {
		trainByProduct[r.ProductCode] = append(trainByProduct[r.ProductCode], r.Price)
		allTrain = append(allTrain, r.Price)
	}

	type group struct{ yTrue, yPred []float64 }
	groups := make(map[string]*group)
	for i, r := range testRows {
		g, ok := groups[r.ProductCode]
		if !ok {
			g = &group{}
			groups[r.ProductCode] = g
		}
		g.yTrue = append(g.yTrue, r.Price)
		g.yPred = append(g.yPred, yPred[i])
	}

	codes := make([]string, 0, len(groups))
	for code := range groups {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make([]ProductEvaluation, 0, len(codes))
	for _, code := range codes {
		g := groups[code]
		train := trainByProduct[code]
		if len(train) == 0 {
			train = allTrain
		}
		eval, err := Evaluate(g.yTrue, g.yPred, train)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", code, err)
		}
		out = append(out, ProductEvaluation{ProductCode: code, Evaluation: eval})
	}
	return out, nil
}
