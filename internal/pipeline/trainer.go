// Package pipeline runs model training end to end: load the panel, build
// features, split chronologically, fit the scaler and forest, evaluate,
// persist the artifact pair and write the training report.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"prilythic/internal/artifact"
	"prilythic/internal/domain"
	"prilythic/internal/features"
	"prilythic/internal/forest"
	"prilythic/internal/idhash"
	"prilythic/internal/metrics"
	"prilythic/internal/observability"
	"prilythic/internal/panel"
	"prilythic/internal/preprocess"
	"prilythic/internal/reporting"
	"prilythic/internal/storage"
)

// GeneratorVersion is stamped into every training report.
const GeneratorVersion = "1.0.0"

// Options configures a training run.
type Options struct {
	PanelPath      string
	TickerPath     string
	Melt           panel.MeltConfig
	Features       features.Config
	Forest         forest.Params
	TestRatio      float64
	Sufficiency    SufficiencyConfig
	Tune           bool
	Grid           forest.Grid
	Search         forest.SearchConfig // Iterations > 0 selects random search
	ArtifactDir    string
	ReportDir      string // empty skips report files
	TopImportances int
}

// DefaultOptions returns the fixed-parameter pipeline with K=12, W=6.
func DefaultOptions() Options {
	return Options{
		Melt:           panel.DefaultMeltConfig(),
		Features:       features.DefaultConfig(),
		Forest:         forest.DefaultParams(),
		TestRatio:      DefaultTestRatio,
		Sufficiency:    DefaultSufficiencyConfig(),
		Grid:           forest.DefaultGrid(),
		Search:         forest.SearchConfig{Folds: 5, Seed: 42},
		TopImportances: 10,
	}
}

// Result is everything a training run produced.
type Result struct {
	Run    *domain.TrainingRun
	Bundle *artifact.Bundle
	Report *reporting.TrainingReport
	Search *forest.SearchResult // nil unless tuning
}

// Trainer orchestrates one training run.
type Trainer struct {
	opts Options

	table       *panel.WideTable
	tickers     []*domain.Ticker
	source      string // panel origin, recorded in the import ledger
	fromStore   bool
	pointStore  storage.PricePointStore
	tickerStore storage.TickerStore
	runStore    storage.TrainingRunStore
	ledger      storage.ImportLedger

	logger        *zap.Logger
	metrics       *observability.Metrics
	clock         func() time.Time
	replayCommand string
}

// NewTrainer creates a trainer.
func NewTrainer(opts Options) *Trainer {
	return &Trainer{
		opts:   opts,
		source: opts.PanelPath,
		logger: zap.NewNop(),
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithTable trains on an in-memory panel instead of reading PanelPath.
func (t *Trainer) WithTable(table *panel.WideTable, source string) *Trainer {
	t.table = table
	t.source = source
	return t
}

// WithTickers sets the ticker reference rows instead of reading TickerPath.
func (t *Trainer) WithTickers(tickers []*domain.Ticker) *Trainer {
	t.tickers = tickers
	return t
}

// WithStores wires persistence. Any store may be nil.
func (t *Trainer) WithStores(
	points storage.PricePointStore,
	tickers storage.TickerStore,
	runs storage.TrainingRunStore,
	ledger storage.ImportLedger,
) *Trainer {
	t.pointStore = points
	t.tickerStore = tickers
	t.runStore = runs
	t.ledger = ledger
	return t
}

// WithFromStore trains on every point in the price point store instead of a panel.
func (t *Trainer) WithFromStore() *Trainer {
	t.fromStore = true
	return t
}

// WithLogger sets the logger.
func (t *Trainer) WithLogger(logger *zap.Logger) *Trainer {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// WithMetrics publishes run metrics to m.
func (t *Trainer) WithMetrics(m *observability.Metrics) *Trainer {
	t.metrics = m
	return t
}

// WithClock sets a custom clock function for deterministic output.
func (t *Trainer) WithClock(clock func() time.Time) *Trainer {
	t.clock = clock
	return t
}

// WithReplayCommand sets the command recorded in the report to reproduce the run.
func (t *Trainer) WithReplayCommand(cmd string) *Trainer {
	t.replayCommand = cmd
	return t
}

func (t *Trainer) variant() string {
	if t.opts.Tune {
		return domain.VariantTuned
	}
	return domain.VariantFixed
}

// Run executes the pipeline. Artifacts replace the previous pair only after
// the run is recorded and its report written.
func (t *Trainer) Run(ctx context.Context) (res *Result, err error) {
	started := t.clock()
	variant := t.variant()
	defer func() {
		if t.metrics == nil {
			return
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		t.metrics.RecordPipelineRun(variant, status, t.clock().Sub(started).Seconds())
	}()

	if t.opts.ArtifactDir == "" {
		return nil, errors.New("artifact dir is required")
	}
	if err := t.opts.Sufficiency.Validate(); err != nil {
		return nil, fmt.Errorf("sufficiency config: %w", err)
	}

	// 1. Load long price points
	points, err := t.loadPoints(ctx)
	if err != nil {
		return nil, err
	}

	// 2. Build features
	builder, err := features.NewBuilder(t.opts.Features, t.logger)
	if err != nil {
		return nil, err
	}
	ds, err := builder.Build(points)
	if err != nil {
		return nil, err
	}
	if t.metrics != nil {
		t.metrics.RecordDroppedRows("unparseable_date", ds.Stats.DroppedDates)
		t.metrics.FeatureRows.Set(float64(len(ds.Rows)))
	}

	// 3. Chronological split and data checks
	split, err := ChronologicalSplit(ds.Rows, t.opts.TestRatio)
	if err != nil {
		return nil, err
	}
	if err := VerifyChronological(split); err != nil {
		return nil, err
	}
	suff := CheckSufficiency(t.opts.Sufficiency, ds, split)
	if err := suff.Err(); err != nil {
		return nil, err
	}
	for _, w := range suff.Errors {
		t.logger.Warn("data check", zap.String("warning", w))
	}

	// 4. Imputer/scaler fitted on the training partition only
	Xtrain := matrix(&ds.Schema, split.Train)
	Xtest := matrix(&ds.Schema, split.Test)
	yTrain, yTest := Targets(split.Train), Targets(split.Test)

	scaler, err := preprocess.Fit(ds.Schema, Xtrain)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	XtrainScaled, err := scaler.TransformMatrix(Xtrain)
	if err != nil {
		return nil, err
	}
	XtestScaled, err := scaler.TransformMatrix(Xtest)
	if err != nil {
		return nil, err
	}

	// 5. Parameters, tuned or fixed
	params := t.opts.Forest
	var searchRes *forest.SearchResult
	if t.opts.Tune {
		searchRes, err = t.search(ctx, XtrainScaled, yTrain)
		if err != nil {
			return nil, err
		}
		params = searchRes.Best
		params.Workers = t.opts.Forest.Workers
	}

	// 6. Fit and evaluate
	model := forest.New(params)
	if err := model.Fit(ctx, XtrainScaled, yTrain); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}
	yPred := model.Predict(XtestScaled)
	eval, err := metrics.Evaluate(yTest, yPred, yTrain)
	if err != nil {
		return nil, err
	}
	byProduct, err := metrics.EvaluateByProduct(split.Train, split.Test, yPred)
	if err != nil {
		return nil, err
	}
	importances := forest.TopImportances(ds.Schema.Columns, model.FeatureImportances(), t.opts.TopImportances)

	// 7. Stage the model/scaler pair; it is published once the run is recorded
	finished := t.clock()
	runID := artifact.NewRunID()
	bundle, err := artifact.NewBundle(runID, variant, finished, model, scaler)
	if err != nil {
		return nil, err
	}
	staged, err := artifact.Stage(t.opts.ArtifactDir, bundle)
	if err != nil {
		return nil, fmt.Errorf("save artifacts: %w", err)
	}
	defer staged.Discard()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	run := &domain.TrainingRun{
		RunID:          runID,
		Variant:        variant,
		StartedAt:      started.UnixMilli(),
		FinishedAt:     finished.UnixMilli(),
		Rows:           len(ds.Rows),
		DroppedDates:   ds.Stats.DroppedDates,
		LagHorizon:     ds.Schema.LagHorizon,
		RollingWindow:  ds.Schema.RollingWindow,
		Params:         string(paramsJSON),
		Evaluation:     *eval,
		TopImportances: importances,
		ArtifactDir:    t.opts.ArtifactDir,
		SchemaHash:     ds.Schema.Fingerprint(),
	}
	if t.runStore != nil {
		if err := t.runStore.Insert(ctx, run); err != nil {
			return nil, fmt.Errorf("record training run: %w", err)
		}
	}

	// 8. Report
	report := t.buildReport(run, ds, split, suff, byProduct, searchRes)
	if t.opts.ReportDir != "" {
		if err := reporting.Write(t.opts.ReportDir, report); err != nil {
			return nil, err
		}
	}

	// 9. Publish
	if err := staged.Publish(); err != nil {
		return nil, fmt.Errorf("save artifacts: %w", err)
	}

	if t.metrics != nil {
		t.metrics.RecordEvaluation(eval, finished.Unix())
	}
	t.logger.Info("training finished",
		zap.String("run_id", runID),
		zap.String("variant", variant),
		zap.Int("train_rows", len(split.Train)),
		zap.Int("test_rows", len(split.Test)),
		zap.Float64("mae", eval.MAE),
		zap.Float64("mae_pct", eval.MAEPct),
		zap.String("band", string(eval.Band)))

	return &Result{Run: run, Bundle: bundle, Report: report, Search: searchRes}, nil
}

// loadPoints returns the long price points to train on, importing the panel
// into the price point store when one is wired.
func (t *Trainer) loadPoints(ctx context.Context) ([]*domain.PricePoint, error) {
	if t.fromStore {
		if t.pointStore == nil {
			return nil, errors.New("training from store needs a price point store")
		}
		points, err := t.pointStore.GetAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("load price points: %w", err)
		}
		if len(points) == 0 {
			return nil, fmt.Errorf("price point store is empty: %w", domain.ErrEmptyDataset)
		}
		t.logger.Info("loaded price points from store", zap.Int("points", len(points)))
		return points, nil
	}

	table := t.table
	if table == nil {
		var err error
		table, err = panel.LoadWideFile(t.opts.PanelPath)
		if err != nil {
			return nil, err
		}
	}

	tickers := t.tickers
	if tickers == nil && t.opts.TickerPath != "" {
		var err error
		tickers, err = panel.LoadTickerFile(t.opts.TickerPath)
		switch {
		case errors.Is(err, domain.ErrInputNotFound):
			t.logger.Warn("ticker file not found, product names fall back to codes",
				zap.String("path", t.opts.TickerPath))
		case err != nil:
			return nil, err
		}
		t.tickers = tickers
	}
	checksum := TableChecksum(table) // of the file as read
	table = panel.MergeTickers(table, tickers)
	if t.tickerStore != nil && len(tickers) > 0 {
		if _, err := StoreTickers(ctx, t.tickerStore, tickers); err != nil {
			return nil, err
		}
	}

	points, err := panel.Melt(table, t.opts.Melt)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("panel has no prices: %w", domain.ErrEmptyDataset)
	}

	if t.pointStore != nil {
		imp, err := ImportPanel(ctx, t.pointStore, t.ledger, checksum, t.source,
			points, t.opts.Features.DateLayouts, t.clock())
		if err != nil {
			return nil, err
		}
		t.logger.Info("panel import",
			zap.String("checksum", imp.Checksum[:min(12, len(imp.Checksum))]),
			zap.Bool("skipped", imp.Skipped),
			zap.Int("points", imp.Points))
	}

	t.logger.Info("panel reshaped",
		zap.Int("rows", len(table.Rows)),
		zap.Int("points", len(points)))
	return points, nil
}

func (t *Trainer) search(ctx context.Context, X [][]float64, y []float64) (*forest.SearchResult, error) {
	base := t.opts.Forest
	if t.opts.Search.Iterations > 0 {
		return forest.RandomSearch(ctx, X, y, base, t.opts.Grid, t.opts.Search, t.logger)
	}
	return forest.GridSearch(ctx, X, y, base, t.opts.Grid, t.opts.Search, t.logger)
}

func matrix(schema *domain.FeatureSchema, rows []*domain.FeatureRow) [][]float64 {
	X := make([][]float64, len(rows))
	for i, r := range rows {
		X[i] = features.RowVector(schema, r)
	}
	return X
}

func (t *Trainer) buildReport(
	run *domain.TrainingRun,
	ds *features.Dataset,
	split *Split,
	suff *SufficiencyResult,
	byProduct []metrics.ProductEvaluation,
	searchRes *forest.SearchResult,
) *reporting.TrainingReport {
	names := make(map[string]string, len(t.tickers))
	for _, tk := range t.tickers {
		if tk.FullName != "" {
			names[tk.Code] = tk.FullName
		}
	}

	summary := reporting.DataSummary{
		InputRows:    ds.Stats.InputRows,
		DroppedDates: ds.Stats.DroppedDates,
		FeatureRows:  len(ds.Rows),
		Series:       ds.Stats.Series,
		Products:     ds.Schema.Products,
		Baseline:     ds.Schema.BaselineProduct,
		Columns:      len(ds.Schema.Columns),
		TrainRows:    len(split.Train),
		TestRows:     len(split.Test),
	}
	if len(ds.Rows) > 0 {
		summary.DateRangeStart = ds.Rows[0].Date
		summary.DateRangeEnd = ds.Rows[len(ds.Rows)-1].Date
	}
	if len(split.Test) > 0 {
		summary.SplitDate = split.Test[0].Date
	}

	report := &reporting.TrainingReport{
		GeneratedAt: t.clock(),
		RunID:       run.RunID,
		Variant:     run.Variant,
		DataSummary: summary,
		DataQuality: convertToDataQuality(suff),
		Evaluation:  run.Evaluation,
		Importances: run.TopImportances,
		Reproducibility: reporting.ReproducibilityMetadata{
			GeneratorVersion:  GeneratorVersion,
			DataVersion:       idhash.ComputeDataVersion(ds.Rows),
			SchemaFingerprint: run.SchemaHash,
			Params:            run.Params,
			ArtifactDir:       run.ArtifactDir,
			ReplayCommand:     t.replayCommand,
		},
	}

	for _, pe := range byProduct {
		name, ok := names[pe.ProductCode]
		if !ok {
			name = domain.DisplayName(pe.ProductCode)
		}
		report.ProductMetrics = append(report.ProductMetrics, reporting.ProductMetricRow{
			ProductCode: pe.ProductCode,
			DisplayName: name,
			TestRows:    pe.Evaluation.TestRows,
			MAE:         pe.Evaluation.MAE,
			RMSE:        pe.Evaluation.RMSE,
			MAPE:        pe.Evaluation.MAPE,
			MAEPct:      pe.Evaluation.MAEPct,
			Band:        pe.Evaluation.Band,
		})
	}

	if searchRes != nil {
		report.Search = convertSearch(searchRes, t.opts.Search)
	}
	return report
}

// convertToDataQuality converts SufficiencyResult to reporting.DataQualitySection.
func convertToDataQuality(result *SufficiencyResult) reporting.DataQualitySection {
	checks := make([]reporting.SufficiencyCheckRow, len(result.Checks))
	for i, c := range result.Checks {
		checks[i] = reporting.SufficiencyCheckRow{
			Name:      c.Name,
			Threshold: c.Threshold,
			Actual:    c.Actual,
			Pass:      c.Pass,
		}
	}
	return reporting.DataQualitySection{
		SufficiencyChecks: checks,
		IntegrityErrors:   result.Errors,
		AllChecksPassed:   result.AllPass,
	}
}

func convertSearch(res *forest.SearchResult, cfg forest.SearchConfig) *reporting.SearchSummary {
	method := "grid"
	if cfg.Iterations > 0 {
		method = "random"
	}
	folds := cfg.Folds
	if folds == 0 {
		folds = 5
	}

	s := &reporting.SearchSummary{
		Method:  method,
		Folds:   folds,
		Best:    encodeParams(res.Best),
		BestMAE: res.BestMAE,
	}
	for _, c := range res.Candidates {
		s.Candidates = append(s.Candidates, reporting.SearchCandidateRow{
			Params:  encodeParams(c.Params),
			MeanMAE: c.MeanMAE,
			StdMAE:  c.StdMAE,
			Seconds: c.Elapsed.Seconds(),
		})
	}
	sort.SliceStable(s.Candidates, func(i, j int) bool {
		return s.Candidates[i].MeanMAE < s.Candidates[j].MeanMAE
	})
	return s
}

func encodeParams(p forest.Params) string {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%+v", p)
	}
	return string(b)
}
