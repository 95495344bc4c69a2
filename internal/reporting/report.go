package reporting

import (
	"time"

	"prilythic/internal/domain"
)

// TrainingReport describes one training run.
type TrainingReport struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string
	Variant     string

	DataSummary DataSummary
	DataQuality DataQualitySection

	// Hold-out metrics over all products
	Evaluation domain.Evaluation

	// Hold-out metrics per product, sorted by product code
	ProductMetrics []ProductMetricRow

	// Top feature importances, descending
	Importances []domain.FeatureImportance

	// Parameter search, nil for the fixed variant
	Search *SearchSummary

	Reproducibility ReproducibilityMetadata
}

// DataSummary describes the dataset the model was trained on.
type DataSummary struct {
	InputRows      int
	DroppedDates   int
	FeatureRows    int
	Series         int
	Products       []string
	Baseline       string
	Columns        int
	TrainRows      int
	TestRows       int
	DateRangeStart time.Time
	DateRangeEnd   time.Time
	SplitDate      time.Time // first test date
}

// DataQualitySection contains data sufficiency checks and integrity errors.
type DataQualitySection struct {
	SufficiencyChecks []SufficiencyCheckRow
	IntegrityErrors   []string
	AllChecksPassed   bool
}

// SufficiencyCheckRow represents one sufficiency criterion.
type SufficiencyCheckRow struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// ProductMetricRow is the hold-out evaluation of one product.
type ProductMetricRow struct {
	ProductCode string
	DisplayName string
	TestRows    int
	MAE         float64
	RMSE        float64
	MAPE        float64
	MAEPct      float64
	Band        domain.QualityBand
}

// SearchSummary summarizes a cross-validated parameter search.
type SearchSummary struct {
	Method     string // grid or random
	Folds      int
	Candidates []SearchCandidateRow // sorted by mean MAE ascending
	Best       string               // JSON encoded best parameters
	BestMAE    float64
}

// SearchCandidateRow is one evaluated parameter set.
type SearchCandidateRow struct {
	Params  string // JSON encoded
	MeanMAE float64
	StdMAE  float64
	Seconds float64
}

// ReproducibilityMetadata pins what is needed to reproduce the run.
type ReproducibilityMetadata struct {
	GeneratorVersion  string
	DataVersion       string // short hash of the training rows
	SchemaFingerprint string
	Params            string // JSON encoded forest parameters
	ArtifactDir       string
	ReplayCommand     string
}

// HistoryReport lists past training runs.
type HistoryReport struct {
	GeneratedAt time.Time
	Runs        []HistoryRow // newest first
	BestRunID   string       // lowest MAE percentage
}

// HistoryRow is one past training run.
type HistoryRow struct {
	RunID      string
	Variant    string
	FinishedAt time.Time
	Rows       int
	MAE        float64
	RMSE       float64
	R2         float64
	MAEPct     float64
	Band       domain.QualityBand
	SchemaHash string
}
