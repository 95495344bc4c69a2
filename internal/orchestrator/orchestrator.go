// Package orchestrator wires the configuration into stores, the training
// pipeline and the forecasting service shared by the commands.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"prilythic/internal/api"
	"prilythic/internal/config"
	"prilythic/internal/domain"
	"prilythic/internal/forecast"
	"prilythic/internal/observability"
	"prilythic/internal/panel"
	"prilythic/internal/pipeline"
	"prilythic/internal/registry"
	"prilythic/internal/reporting"
	"prilythic/internal/storage"
	chstore "prilythic/internal/storage/clickhouse"
	"prilythic/internal/storage/memory"
	"prilythic/internal/storage/migrations"
	pgstore "prilythic/internal/storage/postgres"
	"prilythic/internal/verification"
)

// Stores holds every storage implementation of one backend.
type Stores struct {
	Points  storage.PricePointStore
	Tickers storage.TickerStore
	Runs    storage.TrainingRunStore
	Ledger  storage.ImportLedger

	// Checks are reported by /health, keyed by dependency name.
	Checks map[string]api.HealthCheck

	close func()
}

// Close releases database connections.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores creates the stores of the configured backend.
func OpenStores(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (*Stores, error) {
	if cfg.Storage.Backend != config.BackendSQL {
		return &Stores{
			Points:  memory.NewPricePointStore(),
			Tickers: memory.NewTickerStore(),
			Runs:    memory.NewTrainingRunStore(),
			Ledger:  memory.NewImportLedger(),
			Checks:  map[string]api.HealthCheck{},
		}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, err
	}

	// ClickHouse
	chConn, err := chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Stores{
		// PostgreSQL stores (reference data + run history)
		Tickers: pgstore.NewTickerStore(pool),
		Runs:    pgstore.NewTrainingRunStore(pool),
		Ledger:  pgstore.NewImportLedger(pool),

		// ClickHouse stores (long price panel)
		Points: chstore.NewPricePointStore(chConn, metrics),

		Checks: map[string]api.HealthCheck{
			"postgres":   pool.Healthy,
			"clickhouse": chConn.Ping,
		},
		close: func() {
			chConn.Close()
			pool.Close()
		},
	}, nil
}

// Migrate applies the PostgreSQL and ClickHouse schemas and returns the
// names of newly applied PostgreSQL migrations. The memory backend has
// nothing to migrate.
func Migrate(ctx context.Context, cfg *config.Config) ([]string, error) {
	if cfg.Storage.Backend != config.BackendSQL {
		return nil, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		return applied, fmt.Errorf("clickhouse migrations: %w", err)
	}
	conn.Close()
	return applied, nil
}

// Orchestrator builds the components of one process from the configuration.
type Orchestrator struct {
	cfg     *config.Config
	stores  *Stores
	logger  *zap.Logger
	metrics *observability.Metrics
	clock   func() time.Time
}

// New creates an orchestrator. A nil logger discards output.
func New(cfg *config.Config, stores *Stores, logger *zap.Logger, metrics *observability.Metrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:     cfg,
		stores:  stores,
		logger:  logger,
		metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// TrainOptions select the data source and variant of a training run.
type TrainOptions struct {
	Tune        bool
	UseFixtures bool   // train on the synthetic fixture panel
	FromStore   bool   // train on every stored price point
	ConfigPath  string // recorded in the replay command
}

// Train runs the training pipeline and writes artifacts under
// <artifacts root>/default.
func (o *Orchestrator) Train(ctx context.Context, opts TrainOptions) (*pipeline.Result, error) {
	trainOpts := o.cfg.TrainerOptions()
	trainOpts.Tune = trainOpts.Tune || opts.Tune

	trainer := pipeline.NewTrainer(trainOpts).
		WithStores(o.stores.Points, o.stores.Tickers, o.stores.Runs, o.stores.Ledger).
		WithLogger(o.logger).
		WithMetrics(o.metrics).
		WithClock(o.clock).
		WithReplayCommand(replayCommand(opts, trainOpts.Tune))

	switch {
	case opts.UseFixtures:
		trainer.WithTable(pipeline.FixturePanel(pipeline.FixtureMonths, pipeline.FixtureSeed), "fixtures").
			WithTickers(pipeline.FixtureTickers())
	case opts.FromStore:
		trainer.WithFromStore()
	}

	return trainer.Run(ctx)
}

// replayCommand returns the command to reproduce a training run.
func replayCommand(opts TrainOptions, tune bool) string {
	parts := []string{"prilythic", "train"}
	if tune {
		parts[1] = "tune"
	}
	if opts.ConfigPath != "" {
		parts = append(parts, "--config", opts.ConfigPath)
	}
	switch {
	case opts.UseFixtures:
		parts = append(parts, "--use-fixtures")
	case opts.FromStore:
		parts = append(parts, "--from-store")
	}
	return strings.Join(parts, " ")
}

// SeriesSource returns where serving reads price history from: the stores
// for the SQL backend or fixtures, the configured panel file otherwise.
func (o *Orchestrator) SeriesSource(ctx context.Context, useFixtures bool) (forecast.SeriesSource, error) {
	if useFixtures {
		if err := pipeline.LoadFixtures(ctx, o.stores.Points, o.stores.Tickers, o.stores.Ledger, o.clock()); err != nil {
			return nil, fmt.Errorf("load fixtures: %w", err)
		}
		return forecast.NewStoreSource(o.stores.Points), nil
	}
	if o.cfg.Storage.Backend == config.BackendSQL {
		return forecast.NewStoreSource(o.stores.Points), nil
	}

	table, err := panel.LoadWideFile(o.cfg.Data.PanelPath)
	if err != nil {
		return nil, err
	}
	if o.cfg.Data.TickerPath != "" {
		tickers, err := panel.LoadTickerFile(o.cfg.Data.TickerPath)
		switch {
		case err == nil:
			if _, err := pipeline.StoreTickers(ctx, o.stores.Tickers, tickers); err != nil {
				return nil, err
			}
		case errors.Is(err, domain.ErrInputNotFound):
			o.logger.Warn("ticker file not found, product names fall back to codes",
				zap.String("path", o.cfg.Data.TickerPath))
		default:
			return nil, err
		}
	}
	return forecast.NewPanelSource(table, o.cfg.MeltConfig(), o.cfg.Features.DateLayouts), nil
}

// Service builds the forecasting service with its model cache.
func (o *Orchestrator) Service(ctx context.Context, useFixtures bool) (*forecast.Service, *registry.Cache, error) {
	source, err := o.SeriesSource(ctx, useFixtures)
	if err != nil {
		return nil, nil, err
	}
	cache, err := registry.New(o.cfg.Artifacts.CacheSize, registry.DirLoader(o.cfg.Artifacts.Root), o.logger, o.metrics)
	if err != nil {
		return nil, nil, err
	}
	return forecast.NewService(cache, source, o.logger, o.metrics), cache, nil
}

// Handler builds the HTTP API around svc.
func (o *Orchestrator) Handler(svc *forecast.Service) http.Handler {
	srv := api.NewServer(svc, o.logger, o.metrics).
		WithRateLimit(o.cfg.Server.RateLimit, o.cfg.Server.Burst).
		WithTickers(o.stores.Tickers)
	for name, check := range o.stores.Checks {
		srv.WithHealthCheck(name, check)
	}
	return srv.Handler()
}

// History writes the training history report and returns it.
func (o *Orchestrator) History(ctx context.Context, limit int) (*reporting.HistoryReport, error) {
	h, err := reporting.NewGenerator(o.stores.Runs).WithClock(o.clock).GenerateHistory(ctx, limit)
	if err != nil {
		return nil, err
	}
	if o.cfg.Artifacts.ReportDir != "" {
		if err := reporting.WriteHistory(o.cfg.Artifacts.ReportDir, h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Import loads the configured panel and ticker files into the stores.
// Re-importing an unchanged panel is skipped through the import ledger.
func (o *Orchestrator) Import(ctx context.Context) (*pipeline.ImportResult, error) {
	table, err := panel.LoadWideFile(o.cfg.Data.PanelPath)
	if err != nil {
		return nil, err
	}
	points, err := panel.Melt(table, o.cfg.MeltConfig())
	if err != nil {
		return nil, err
	}

	res, err := pipeline.ImportPanel(ctx, o.stores.Points, o.stores.Ledger,
		pipeline.TableChecksum(table), o.cfg.Data.PanelPath, points, o.cfg.Features.DateLayouts, o.clock())
	if err != nil {
		return nil, err
	}
	o.logger.Info("panel imported",
		zap.String("checksum", res.Checksum),
		zap.Int("points", res.Points),
		zap.Int("dropped", res.Dropped),
		zap.Bool("skipped", res.Skipped))

	if o.cfg.Data.TickerPath == "" {
		return res, nil
	}
	tickers, err := panel.LoadTickerFile(o.cfg.Data.TickerPath)
	if errors.Is(err, domain.ErrInputNotFound) {
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	n, err := pipeline.StoreTickers(ctx, o.stores.Tickers, tickers)
	if err != nil {
		return nil, err
	}
	o.logger.Info("tickers imported", zap.Int("inserted", n))
	return res, nil
}

// Verify checks every bundle under the artifacts root against its stored
// training run.
func (o *Orchestrator) Verify(ctx context.Context) (*verification.VerificationReport, error) {
	return verification.NewVerifier(o.stores.Runs).VerifyAll(ctx, o.cfg.Artifacts.Root)
}
