package reporting

import (
	"fmt"
	"strings"

	"prilythic/internal/domain"
)

// RenderProductMetricsCSV renders per-product hold-out metrics as CSV.
func RenderProductMetricsCSV(rows []ProductMetricRow) string {
	var sb strings.Builder

	sb.WriteString("product_code,test_rows,mae,rmse,mape,mae_pct,band\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%.6f,%.6f,%.6f,%.6f,%s\n",
			r.ProductCode, r.TestRows, r.MAE, r.RMSE, r.MAPE, r.MAEPct, r.Band))
	}

	return sb.String()
}

// RenderImportancesCSV renders feature importances as CSV.
func RenderImportancesCSV(importances []domain.FeatureImportance) string {
	var sb strings.Builder

	sb.WriteString("rank,feature,importance\n")
	for i, fi := range importances {
		sb.WriteString(fmt.Sprintf("%d,%s,%.6f\n", i+1, fi.Feature, fi.Importance))
	}

	return sb.String()
}

// RenderSearchCSV renders parameter search candidates as CSV. Parameters are
// quoted because their JSON contains commas.
func RenderSearchCSV(s *SearchSummary) string {
	var sb strings.Builder

	sb.WriteString("rank,mean_mae,std_mae,seconds,params\n")
	if s == nil {
		return sb.String()
	}
	for i, c := range s.Candidates {
		sb.WriteString(fmt.Sprintf("%d,%.6f,%.6f,%.3f,\"%s\"\n",
			i+1, c.MeanMAE, c.StdMAE, c.Seconds, strings.ReplaceAll(c.Params, `"`, `""`)))
	}

	return sb.String()
}

// RenderHistoryCSV renders past training runs as CSV.
func RenderHistoryCSV(h *HistoryReport) string {
	var sb strings.Builder

	sb.WriteString("run_id,variant,finished_at,rows,mae,rmse,r2,mae_pct,band,schema_hash\n")
	for _, r := range h.Runs {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%.6f,%.6f,%.6f,%.6f,%s,%s\n",
			r.RunID, r.Variant, r.FinishedAt.UnixMilli(), r.Rows,
			r.MAE, r.RMSE, r.R2, r.MAEPct, r.Band, r.SchemaHash))
	}

	return sb.String()
}
