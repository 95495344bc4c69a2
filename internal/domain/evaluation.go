package domain

// QualityBand classifies MAE as a percentage of the average training price.
type QualityBand string

const (
	QualityExcellent  QualityBand = "EXCELLENT"
	QualityGood       QualityBand = "GOOD"
	QualityAcceptable QualityBand = "ACCEPTABLE"
	QualityPoor       QualityBand = "POOR"
)

// MaxMAEPct stands in for the MAE percentage when the average training price
// is zero and the model still has error. It always bands as POOR.
const MaxMAEPct = 1e6

// BandFor returns the quality band for an MAE percentage.
func BandFor(maePct float64) QualityBand {
	switch {
	case maePct < 10:
		return QualityExcellent
	case maePct < 20:
		return QualityGood
	case maePct < 30:
		return QualityAcceptable
	default:
		return QualityPoor
	}
}

// Evaluation holds hold-out metrics of a trained model.
type Evaluation struct {
	MSE           float64     `json:"mse"`
	RMSE          float64     `json:"rmse"`
	MAE           float64     `json:"mae"`
	R2            float64     `json:"r2"`
	MAPE          float64     `json:"mape"` // percent, zero targets skipped
	MaxError      float64     `json:"max_error"`
	AvgTrainPrice float64     `json:"avg_train_price"`
	MAEPct        float64     `json:"mae_pct"`
	Band          QualityBand `json:"band"`
	TestRows      int         `json:"test_rows"`
	TrainRows     int         `json:"train_rows"`
}

// FeatureImportance is one entry of the importance ranking.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}
