// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prilythic/internal/domain"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	RowsDropped       *prometheus.CounterVec
	FeatureRows       prometheus.Gauge

	// Model quality of the latest training run
	ModelMAE    prometheus.Gauge
	ModelRMSE   prometheus.Gauge
	ModelR2     prometheus.Gauge
	ModelMAEPct prometheus.Gauge

	// Serving metrics
	ForecastsTotal  *prometheus.CounterVec
	ForecastLatency prometheus.Histogram
	RateLimited     prometheus.Counter

	// Model cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	ModelLoads  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "prilythic"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Pipeline metrics
		PipelineRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of training runs by variant and status",
		}, []string{"variant", "status"}),
		PipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Training run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"variant"}),
		RowsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rows_dropped_total",
			Help:      "Rows dropped during feature building by reason",
		}, []string{"reason"}),
		FeatureRows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "feature_rows",
			Help:      "Feature rows in the latest training dataset",
		}),

		// Model quality
		ModelMAE: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "mae",
			Help:      "Hold-out mean absolute error of the latest model",
		}),
		ModelRMSE: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "rmse",
			Help:      "Hold-out root mean squared error of the latest model",
		}),
		ModelR2: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "r2",
			Help:      "Hold-out R squared of the latest model",
		}),
		ModelMAEPct: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "mae_percent",
			Help:      "Hold-out MAE as a percentage of the average training price",
		}),

		// Serving metrics
		ForecastsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "serving",
			Name:      "forecasts_total",
			Help:      "Total number of forecast requests by outcome",
		}, []string{"status"}),
		ForecastLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "serving",
			Name:      "forecast_latency_seconds",
			Help:      "Forecast latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "serving",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),

		// Model cache
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model_cache",
			Name:      "hits_total",
			Help:      "Model cache hits",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model_cache",
			Name:      "misses_total",
			Help:      "Model cache misses",
		}),
		ModelLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model_cache",
			Name:      "loads_total",
			Help:      "Model artifact loads by status",
		}, []string{"status"}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulPipeline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful training run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler serving g instead of the default registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordPipelineRun records a training run.
func (m *Metrics) RecordPipelineRun(variant, status string, durationSeconds float64) {
	m.PipelineRunsTotal.WithLabelValues(variant, status).Inc()
	m.PipelineDuration.WithLabelValues(variant).Observe(durationSeconds)
}

// RecordEvaluation publishes the hold-out metrics of the latest model.
func (m *Metrics) RecordEvaluation(e *domain.Evaluation, unixSeconds int64) {
	m.ModelMAE.Set(e.MAE)
	m.ModelRMSE.Set(e.RMSE)
	m.ModelR2.Set(e.R2)
	m.ModelMAEPct.Set(e.MAEPct)
	m.LastSuccessfulPipeline.Set(float64(unixSeconds))
}

// RecordDroppedRows counts rows removed for reason.
func (m *Metrics) RecordDroppedRows(reason string, n int) {
	if n > 0 {
		m.RowsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordForecast records a served forecast.
func (m *Metrics) RecordForecast(status string, seconds float64) {
	m.ForecastsTotal.WithLabelValues(status).Inc()
	m.ForecastLatency.Observe(seconds)
}

// RecordCacheLookup records a model cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// RecordModelLoad records an artifact load attempt.
func (m *Metrics) RecordModelLoad(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ModelLoads.WithLabelValues(status).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
