package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"prilythic/internal/domain"
)

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordPipelineRun(domain.VariantFixed, "success", 2.5)
	m.RecordForecast("ok", 0.01)
	m.RecordForecast("ok", 0.02)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordModelLoad(errors.New("boom"))
	m.RecordDroppedRows("unparseable_date", 3)
	m.RecordDroppedRows("unparseable_date", 0)
	m.RecordEvaluation(&domain.Evaluation{MAE: 1.5, RMSE: 2, R2: 0.9, MAEPct: 7}, 1700000000)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues(domain.VariantFixed, "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ForecastsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelLoads.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsDropped.WithLabelValues("unparseable_date")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.ModelMAE))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastSuccessfulPipeline))
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("a", prometheus.NewRegistry())
		NewMetrics("a", prometheus.NewRegistry())
	})
}
