package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prilythic/internal/artifact"
	"prilythic/internal/domain"
	"prilythic/internal/forest"
	"prilythic/internal/observability"
	"prilythic/internal/panel"
	"prilythic/internal/reporting"
	"prilythic/internal/storage/memory"
)

var fixedTime = time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC)

func smallOptions(t *testing.T) Options {
	opts := DefaultOptions()
	opts.Forest.NEstimators = 10
	opts.Forest.MaxDepth = 8
	opts.ArtifactDir = filepath.Join(t.TempDir(), "artifacts")
	opts.ReportDir = filepath.Join(t.TempDir(), "reports")
	return opts
}

func TestTrainer_RunOnFixtures(t *testing.T) {
	ctx := context.Background()
	opts := smallOptions(t)
	runs := memory.NewTrainingRunStore()
	m := observability.NewMetrics("train_test", prometheus.NewRegistry())

	res, err := NewTrainer(opts).
		WithTable(FixturePanel(48, 42), "fixtures").
		WithTickers(FixtureTickers()).
		WithStores(nil, nil, runs, nil).
		WithMetrics(m).
		WithClock(func() time.Time { return fixedTime }).
		WithReplayCommand("prilythic train --use-fixtures").
		Run(ctx)
	require.NoError(t, err)

	run := res.Run
	assert.Equal(t, domain.VariantFixed, run.Variant)
	assert.Equal(t, 12, run.LagHorizon)
	assert.Equal(t, 6, run.RollingWindow)
	assert.Greater(t, run.Rows, 300)
	assert.Equal(t, run.Evaluation.TrainRows+run.Evaluation.TestRows, run.Rows)
	assert.NotEmpty(t, run.TopImportances)
	assert.LessOrEqual(t, len(run.TopImportances), 10)
	assert.NotEqual(t, domain.QualityPoor, run.Evaluation.Band)

	stored, err := runs.GetByID(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.SchemaHash, stored.SchemaHash)

	// The persisted pair predicts exactly like the in-memory one.
	loaded, err := artifact.Load(opts.ArtifactDir)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, loaded.Manifest.RunID)
	raw := make([]float64, loaded.Scaler.Width())
	for i := range raw {
		raw[i] = float64(i) * 3.5
	}
	want, err := res.Bundle.Predict(raw)
	require.NoError(t, err)
	got, err := loaded.Predict(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Report files
	for _, f := range []string{reporting.TrainingReportFile, reporting.ProductMetricsFile, reporting.ImportancesFile} {
		_, err := os.Stat(filepath.Join(opts.ReportDir, f))
		assert.NoError(t, err, f)
	}
	assert.Equal(t, "Vegetable Oil", findProduct(t, res.Report, "c_oil").DisplayName)
	assert.Equal(t, "prilythic train --use-fixtures", res.Report.Reproducibility.ReplayCommand)
	assert.Len(t, res.Report.Reproducibility.DataVersion, 12)
	assert.True(t, res.Report.DataQuality.AllChecksPassed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues(domain.VariantFixed, "ok")))
	assert.Equal(t, run.Evaluation.MAE, testutil.ToFloat64(m.ModelMAE))
	assert.Equal(t, float64(fixedTime.Unix()), testutil.ToFloat64(m.LastSuccessfulPipeline))
}

func findProduct(t *testing.T, r *reporting.TrainingReport, code string) reporting.ProductMetricRow {
	t.Helper()
	for _, p := range r.ProductMetrics {
		if p.ProductCode == code {
			return p
		}
	}
	t.Fatalf("product %s not in report", code)
	return reporting.ProductMetricRow{}
}

func TestTrainer_Deterministic(t *testing.T) {
	ctx := context.Background()
	run := func() *Result {
		res, err := NewTrainer(smallOptions(t)).
			WithTable(FixturePanel(36, 7), "fixtures").
			WithClock(func() time.Time { return fixedTime }).
			Run(ctx)
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	assert.Equal(t, a.Run.Evaluation, b.Run.Evaluation)
	assert.Equal(t, a.Run.SchemaHash, b.Run.SchemaHash)
	assert.Equal(t, a.Report.Reproducibility.DataVersion, b.Report.Reproducibility.DataVersion)
	assert.NotEqual(t, a.Run.RunID, b.Run.RunID)
}

func TestTrainer_ImportsPanelOnce(t *testing.T) {
	ctx := context.Background()
	points := memory.NewPricePointStore()
	tickers := memory.NewTickerStore()
	ledger := memory.NewImportLedger()

	table := FixturePanel(24, 3)
	for i := 0; i < 2; i++ {
		opts := smallOptions(t)
		opts.Features.LagHorizon = 2
		opts.Features.RollingWindow = 0
		_, err := NewTrainer(opts).
			WithTable(table, "panel.csv").
			WithTickers(FixtureTickers()).
			WithStores(points, tickers, nil, ledger).
			Run(ctx)
		require.NoError(t, err)
	}

	all, err := points.GetAll(ctx)
	require.NoError(t, err)
	melted, err := panel.Melt(table, panel.DefaultMeltConfig())
	require.NoError(t, err)
	assert.Len(t, all, len(melted))

	imports, err := ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, TableChecksum(table), imports[0].Checksum)
	assert.Equal(t, "panel.csv", imports[0].Source)

	listed, err := tickers.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, len(FixtureTickers()))
}

func TestTrainer_FromStore(t *testing.T) {
	ctx := context.Background()
	points := memory.NewPricePointStore()
	require.NoError(t, LoadFixtures(ctx, points, nil, nil, fixedTime))

	opts := smallOptions(t)
	opts.Features.LagHorizon = 2
	opts.Features.RollingWindow = 0
	res, err := NewTrainer(opts).WithStores(points, nil, nil, nil).WithFromStore().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Run.LagHorizon)
	assert.Equal(t, 0, res.Run.RollingWindow)
}

func TestTrainer_Tuned(t *testing.T) {
	opts := smallOptions(t)
	opts.Tune = true
	opts.Forest.NEstimators = 4
	opts.Grid = forest.Grid{MaxDepth: []int{2, 8}}
	opts.Search = forest.SearchConfig{Folds: 3}

	res, err := NewTrainer(opts).WithTable(FixturePanel(30, 5), "fixtures").Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.VariantTuned, res.Run.Variant)
	require.NotNil(t, res.Search)
	assert.Len(t, res.Search.Candidates, 2)
	require.NotNil(t, res.Report.Search)
	assert.Equal(t, "grid", res.Report.Search.Method)
	assert.LessOrEqual(t, res.Report.Search.Candidates[0].MeanMAE, res.Report.Search.Candidates[1].MeanMAE)
	_, err = os.Stat(filepath.Join(opts.ReportDir, reporting.SearchFile))
	assert.NoError(t, err)
}

func TestTrainer_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing panel", func(t *testing.T) {
		opts := smallOptions(t)
		opts.PanelPath = filepath.Join(t.TempDir(), "missing.csv")
		_, err := NewTrainer(opts).Run(ctx)
		assert.True(t, errors.Is(err, domain.ErrInputNotFound))
	})

	t.Run("empty store", func(t *testing.T) {
		_, err := NewTrainer(smallOptions(t)).
			WithStores(memory.NewPricePointStore(), nil, nil, nil).
			WithFromStore().
			Run(ctx)
		assert.True(t, errors.Is(err, domain.ErrEmptyDataset))
	})

	t.Run("too little data", func(t *testing.T) {
		opts := smallOptions(t)
		_, err := NewTrainer(opts).WithTable(FixturePanel(1, 1), "fixtures").Run(ctx)
		assert.True(t, errors.Is(err, domain.ErrEmptyDataset))
		_, statErr := os.Stat(opts.ArtifactDir)
		assert.True(t, os.IsNotExist(statErr), "no artifacts on failure")
	})

	t.Run("no artifact dir", func(t *testing.T) {
		opts := smallOptions(t)
		opts.ArtifactDir = ""
		_, err := NewTrainer(opts).WithTable(FixturePanel(12, 1), "fixtures").Run(ctx)
		assert.Error(t, err)
	})
}

type failingRunStore struct {
	*memory.TrainingRunStore
}

func (failingRunStore) Insert(context.Context, *domain.TrainingRun) error {
	return errors.New("db down")
}

func TestTrainer_FailureKeepsPreviousArtifacts(t *testing.T) {
	ctx := context.Background()
	opts := smallOptions(t)
	table := FixturePanel(36, 5)

	prev, err := NewTrainer(opts).WithTable(table, "fixtures").Run(ctx)
	require.NoError(t, err)

	assertPrevious := func(t *testing.T) {
		t.Helper()
		loaded, err := artifact.Load(opts.ArtifactDir)
		require.NoError(t, err)
		assert.Equal(t, prev.Run.RunID, loaded.Manifest.RunID)

		entries, err := os.ReadDir(filepath.Dir(opts.ArtifactDir))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "staged artifacts removed")
	}

	t.Run("run store fails", func(t *testing.T) {
		_, err := NewTrainer(opts).
			WithTable(table, "fixtures").
			WithStores(nil, nil, failingRunStore{memory.NewTrainingRunStore()}, nil).
			Run(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db down")
		assertPrevious(t)
	})

	t.Run("report dir unwritable", func(t *testing.T) {
		blocked := filepath.Join(t.TempDir(), "reports")
		require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

		o := opts
		o.ReportDir = blocked
		_, err := NewTrainer(o).WithTable(table, "fixtures").Run(ctx)
		require.Error(t, err)
		assertPrevious(t)
	})
}

func TestLoadFixtures_Idempotent(t *testing.T) {
	ctx := context.Background()
	points := memory.NewPricePointStore()
	tickers := memory.NewTickerStore()
	ledger := memory.NewImportLedger()

	require.NoError(t, LoadFixtures(ctx, points, tickers, ledger, fixedTime))
	first, _ := points.GetAll(ctx)
	require.NoError(t, LoadFixtures(ctx, points, tickers, ledger, fixedTime))
	second, _ := points.GetAll(ctx)

	assert.NotEmpty(t, first)
	assert.Len(t, second, len(first))

	products, err := points.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c_beans", "c_maize", "c_oil", "c_rice"}, products)
}

func TestFixturePanel_Deterministic(t *testing.T) {
	a := FixturePanel(12, 9)
	b := FixturePanel(12, 9)
	assert.Equal(t, a, b)
	assert.Len(t, a.Rows, 24)
	assert.Equal(t, TableChecksum(a), TableChecksum(b))
	assert.NotEqual(t, TableChecksum(a), TableChecksum(FixturePanel(12, 10)))
}
