package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders a training report as Markdown.
func RenderMarkdown(r *TrainingReport) string {
	var sb strings.Builder

	sb.WriteString("# Training Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: `%s` | Variant: %s\n\n", r.RunID, r.Variant))

	// Data Summary
	d := r.DataSummary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Input Rows | %d |\n", d.InputRows))
	sb.WriteString(fmt.Sprintf("| Dropped (unparseable date) | %d |\n", d.DroppedDates))
	sb.WriteString(fmt.Sprintf("| Feature Rows | %d |\n", d.FeatureRows))
	sb.WriteString(fmt.Sprintf("| Series | %d |\n", d.Series))
	sb.WriteString(fmt.Sprintf("| Products | %d |\n", len(d.Products)))
	sb.WriteString(fmt.Sprintf("| Baseline Product | %s |\n", d.Baseline))
	sb.WriteString(fmt.Sprintf("| Feature Columns | %d |\n", d.Columns))
	sb.WriteString(fmt.Sprintf("| Train / Test Rows | %d / %d |\n", d.TrainRows, d.TestRows))
	sb.WriteString(fmt.Sprintf("| Date Range | %s to %s |\n", formatDate(d.DateRangeStart), formatDate(d.DateRangeEnd)))
	sb.WriteString(fmt.Sprintf("| Test Starts | %s |\n", formatDate(d.SplitDate)))
	sb.WriteString("\n")

	// Data Quality
	sb.WriteString("## Data Quality\n\n")
	if len(r.DataQuality.SufficiencyChecks) > 0 {
		sb.WriteString("| Check | Threshold | Actual | Status |\n")
		sb.WriteString("|-------|-----------|--------|--------|\n")
		for _, check := range r.DataQuality.SufficiencyChecks {
			status := "FAIL"
			if check.Pass {
				status = "PASS"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				check.Name, check.Threshold, check.Actual, status))
		}
		sb.WriteString("\n")
		if r.DataQuality.AllChecksPassed {
			sb.WriteString("**All checks passed.**\n\n")
		} else {
			sb.WriteString("**Some checks failed.** Treat the metrics below with care.\n\n")
		}
	} else {
		sb.WriteString("No data quality checks performed.\n\n")
	}
	if len(r.DataQuality.IntegrityErrors) > 0 {
		sb.WriteString("### Warnings\n\n")
		for _, e := range r.DataQuality.IntegrityErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
		sb.WriteString("\n")
	}

	// Model Performance
	e := r.Evaluation
	sb.WriteString("## Model Performance\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| MSE | %.4f |\n", e.MSE))
	sb.WriteString(fmt.Sprintf("| RMSE | %.4f |\n", e.RMSE))
	sb.WriteString(fmt.Sprintf("| MAE | %.4f |\n", e.MAE))
	sb.WriteString(fmt.Sprintf("| R² | %.4f |\n", e.R2))
	sb.WriteString(fmt.Sprintf("| MAPE | %.2f%% |\n", e.MAPE))
	sb.WriteString(fmt.Sprintf("| Max Error | %.4f |\n", e.MaxError))
	sb.WriteString(fmt.Sprintf("| Average Train Price | %.4f |\n", e.AvgTrainPrice))
	sb.WriteString(fmt.Sprintf("| MAE %% of Average | %.2f%% |\n", e.MAEPct))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("**Assessment: %s** (%s)\n\n", e.Band, bandNote(string(e.Band))))

	// Per product
	sb.WriteString("## Per-Product Performance\n\n")
	if len(r.ProductMetrics) > 0 {
		sb.WriteString("| Product | Name | Test Rows | MAE | RMSE | MAPE | MAE% | Band |\n")
		sb.WriteString("|---------|------|-----------|-----|------|------|------|------|\n")
		for _, p := range r.ProductMetrics {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.4f | %.4f | %.2f | %.2f | %s |\n",
				p.ProductCode, p.DisplayName, p.TestRows, p.MAE, p.RMSE, p.MAPE, p.MAEPct, p.Band))
		}
	} else {
		sb.WriteString("No per-product metrics available.\n")
	}
	sb.WriteString("\n")

	// Importances
	sb.WriteString("## Feature Importances\n\n")
	if len(r.Importances) > 0 {
		sb.WriteString("| Rank | Feature | Importance |\n")
		sb.WriteString("|------|---------|------------|\n")
		for i, fi := range r.Importances {
			sb.WriteString(fmt.Sprintf("| %d | %s | %.4f |\n", i+1, fi.Feature, fi.Importance))
		}
	} else {
		sb.WriteString("No feature importances available.\n")
	}
	sb.WriteString("\n")

	if s := r.Search; s != nil {
		sb.WriteString("## Parameter Search\n\n")
		sb.WriteString(fmt.Sprintf("Method: %s | Folds: %d | Candidates: %d\n\n", s.Method, s.Folds, len(s.Candidates)))
		sb.WriteString(fmt.Sprintf("Best (CV MAE %.4f): `%s`\n\n", s.BestMAE, s.Best))
	}

	// Reproducibility
	rep := r.Reproducibility
	sb.WriteString("## Reproducibility\n\n")
	sb.WriteString("| Item | Value |\n")
	sb.WriteString("|------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Generator Version | %s |\n", rep.GeneratorVersion))
	sb.WriteString(fmt.Sprintf("| Data Version | %s |\n", rep.DataVersion))
	sb.WriteString(fmt.Sprintf("| Schema Fingerprint | %s |\n", shortHash(rep.SchemaFingerprint)))
	sb.WriteString(fmt.Sprintf("| Parameters | `%s` |\n", rep.Params))
	sb.WriteString(fmt.Sprintf("| Artifacts | %s |\n", rep.ArtifactDir))
	if rep.ReplayCommand != "" {
		sb.WriteString(fmt.Sprintf("| Replay | `%s` |\n", rep.ReplayCommand))
	}
	sb.WriteString("\n")

	return sb.String()
}

// RenderHistoryMarkdown renders past training runs as Markdown.
func RenderHistoryMarkdown(h *HistoryReport) string {
	var sb strings.Builder

	sb.WriteString("# Training History\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", h.GeneratedAt.Format(time.RFC3339)))

	if len(h.Runs) == 0 {
		sb.WriteString("No training runs recorded.\n")
		return sb.String()
	}

	sb.WriteString("| Run | Variant | Finished | Rows | MAE | RMSE | R² | MAE% | Band |\n")
	sb.WriteString("|-----|---------|----------|------|-----|------|----|------|------|\n")
	for _, run := range h.Runs {
		marker := ""
		if run.RunID == h.BestRunID {
			marker = " (best)"
		}
		sb.WriteString(fmt.Sprintf("| %s%s | %s | %s | %d | %.4f | %.4f | %.4f | %.2f | %s |\n",
			run.RunID, marker, run.Variant, run.FinishedAt.Format(time.RFC3339),
			run.Rows, run.MAE, run.RMSE, run.R2, run.MAEPct, run.Band))
	}
	sb.WriteString("\n")
	return sb.String()
}

func bandNote(band string) string {
	switch band {
	case "EXCELLENT":
		return "MAE below 10% of the average price"
	case "GOOD":
		return "MAE below 20% of the average price"
	case "ACCEPTABLE":
		return "MAE below 30% of the average price"
	default:
		return "MAE at or above 30% of the average price"
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
