// Package main runs the forecasting HTTP API:
// - GET /predict/{product}: next month's price from the trailing history
// - GET /products: products with price history
// - GET /health, GET /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"prilythic/internal/config"
	"prilythic/internal/logging"
	"prilythic/internal/observability"
	"prilythic/internal/orchestrator"
)

func main() {
	configFile := flag.String("config", os.Getenv("PRILYTHIC_CONFIG"), "YAML config file")
	envFile := flag.String("env-file", ".env", "Environment file loaded before the config")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	useFixtures := flag.Bool("use-fixtures", false, "Serve history from the synthetic fixture panel")
	trainFirst := flag.Bool("train", false, "Train on startup before serving")

	flag.Parse()

	// Load .env file if exists
	config.LoadEnvFile(*envFile)

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger, *configFile, *useFixtures, *trainFirst); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger, configFile string, useFixtures, trainFirst bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.DefaultMetrics

	// Create stores
	stores, err := orchestrator.OpenStores(ctx, cfg, metrics)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer stores.Close()

	orch := orchestrator.New(cfg, stores, logger, metrics)

	if trainFirst {
		res, err := orch.Train(ctx, orchestrator.TrainOptions{UseFixtures: useFixtures, ConfigPath: configFile})
		if err != nil {
			return fmt.Errorf("startup training: %w", err)
		}
		logger.Info("startup training complete",
			zap.String("run_id", res.Run.RunID),
			zap.Float64("mae", res.Run.Evaluation.MAE))
	}

	svc, _, err := orch.Service(ctx, useFixtures)
	if err != nil {
		return fmt.Errorf("create forecast service: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      orch.Handler(svc),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Channel to signal completion
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer stop()

	// Wait for second signal for immediate shutdown
	go func() {
		sig := <-sigCh
		logger.Warn("received second signal, forcing immediate shutdown", zap.Stringer("signal", sig))
		os.Exit(1)
	}()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}
