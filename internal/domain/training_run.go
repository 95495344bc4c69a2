package domain

// TrainingRun records one completed training pipeline run.
// Corresponds to training_runs table in PostgreSQL.
type TrainingRun struct {
	RunID          string // unique run identifier, shared by model and scaler
	Variant        string // "fixed" or "tuned"
	StartedAt      int64  // ms
	FinishedAt     int64  // ms
	Rows           int    // feature rows after filtering
	DroppedDates   int    // rows dropped for unparseable dates
	LagHorizon     int
	RollingWindow  int
	Params         string // JSON encoded forest parameters
	Evaluation     Evaluation
	TopImportances []FeatureImportance
	ArtifactDir    string // where the model/scaler pair was written
	SchemaHash     string // FeatureSchema fingerprint
	CreatedAt      int64  // record creation timestamp (ms), set by the store
}

// Training variants.
const (
	VariantFixed = "fixed"
	VariantTuned = "tuned"
)
