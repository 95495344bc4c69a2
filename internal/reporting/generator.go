package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"prilythic/internal/storage"
)

// Report file names written by Write.
const (
	TrainingReportFile = "TRAINING_REPORT.md"
	ProductMetricsFile = "product_metrics.csv"
	ImportancesFile    = "feature_importances.csv"
	SearchFile         = "search_candidates.csv"
	HistoryReportFile  = "TRAINING_HISTORY.md"
	HistoryCSVFile     = "training_runs.csv"
)

// Generator produces history reports from stored training runs.
type Generator struct {
	runStore storage.TrainingRunStore
	now      func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(runStore storage.TrainingRunStore) *Generator {
	return &Generator{
		runStore: runStore,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// GenerateHistory lists up to limit runs, newest first, and marks the run
// with the lowest MAE percentage.
func (g *Generator) GenerateHistory(ctx context.Context, limit int) (*HistoryReport, error) {
	runs, err := g.runStore.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list training runs: %w", err)
	}

	report := &HistoryReport{GeneratedAt: g.now()}
	best := -1.0
	for _, r := range runs {
		report.Runs = append(report.Runs, HistoryRow{
			RunID:      r.RunID,
			Variant:    r.Variant,
			FinishedAt: time.UnixMilli(r.FinishedAt).UTC(),
			Rows:       r.Rows,
			MAE:        r.Evaluation.MAE,
			RMSE:       r.Evaluation.RMSE,
			R2:         r.Evaluation.R2,
			MAEPct:     r.Evaluation.MAEPct,
			Band:       r.Evaluation.Band,
			SchemaHash: r.SchemaHash,
		})
		if best < 0 || r.Evaluation.MAEPct < best {
			best = r.Evaluation.MAEPct
			report.BestRunID = r.RunID
		}
	}
	return report, nil
}

// Write writes a training report and its CSV companions into dir.
func Write(dir string, r *TrainingReport) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	files := map[string]string{
		TrainingReportFile: RenderMarkdown(r),
		ProductMetricsFile: RenderProductMetricsCSV(r.ProductMetrics),
		ImportancesFile:    RenderImportancesCSV(r.Importances),
	}
	if r.Search != nil {
		files[SearchFile] = RenderSearchCSV(r.Search)
	}

	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// WriteHistory writes a history report and its CSV into dir.
func WriteHistory(dir string, h *HistoryReport) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, HistoryReportFile), []byte(RenderHistoryMarkdown(h)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", HistoryReportFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, HistoryCSVFile), []byte(RenderHistoryCSV(h)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", HistoryCSVFile, err)
	}
	return nil
}
