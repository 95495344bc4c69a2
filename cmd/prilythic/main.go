// Command prilythic trains the price forecasting model and serves
// one-off predictions from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prilythic/internal/config"
	"prilythic/internal/logging"
	"prilythic/internal/observability"
	"prilythic/internal/orchestrator"
)

var (
	// Global flags
	configFile  string
	envFile     string
	useFixtures bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "prilythic",
		Short: "Commodity retail price forecasting",
		Long: `Trains a random forest on a wide market price panel and predicts
the next month's price of a product from its recent history.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the config")
	rootCmd.PersistentFlags().BoolVar(&useFixtures, "use-fixtures", false, "Use the synthetic fixture panel instead of the configured data")

	rootCmd.AddCommand(trainCmd(false))
	rootCmd.AddCommand(trainCmd(true))
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(predictCmd())
	rootCmd.AddCommand(productsCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(verifyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles what every subcommand needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	stores *orchestrator.Stores
	orch   *orchestrator.Orchestrator
}

func setup(ctx context.Context) (*app, error) {
	config.LoadEnvFile(envFile)

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	metrics := observability.DefaultMetrics
	stores, err := orchestrator.OpenStores(ctx, cfg, metrics)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("open stores: %w", err)
	}
	return &app{
		cfg:    cfg,
		logger: logger,
		stores: stores,
		orch:   orchestrator.New(cfg, stores, logger, metrics),
	}, nil
}

func (a *app) close() {
	a.stores.Close()
	a.logger.Sync()
}

// trainCmd builds the train command, or the tune command when tune is set.
func trainCmd(tune bool) *cobra.Command {
	var fromStore bool

	use, short := "train", "Train with the fixed forest parameters"
	if tune {
		use, short = "tune", "Train after a cross-validated hyperparameter search"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: `Builds lag and calendar features, splits the data chronologically,
fits the scaler and forest on the training part and evaluates on the rest.
The model and scaler are written as a matched pair under <artifacts root>/default
and a training report is written to the report directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.orch.Train(cmd.Context(), orchestrator.TrainOptions{
				Tune:        tune,
				UseFixtures: useFixtures,
				FromStore:   fromStore,
				ConfigPath:  configFile,
			})
			if err != nil {
				return fmt.Errorf("training failed: %w", err)
			}

			e := res.Run.Evaluation
			fmt.Printf("=== Training Run %s (%s) ===\n", res.Run.RunID, res.Run.Variant)
			fmt.Printf("Rows: %d train / %d test\n", e.TrainRows, e.TestRows)
			fmt.Printf("MAE: %.4f  RMSE: %.4f  R2: %.4f  MAPE: %.2f%%\n", e.MAE, e.RMSE, e.R2, e.MAPE)
			fmt.Printf("MAE %% of average: %.2f%% (%s)\n", e.MAEPct, e.Band)
			fmt.Printf("Artifacts: %s\n", a.cfg.DefaultArtifactDir())
			if a.cfg.Artifacts.ReportDir != "" {
				fmt.Printf("Report: %s\n", a.cfg.Artifacts.ReportDir)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStore, "from-store", false, "Train on every stored price point instead of the panel file")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Load the configured panel and tickers into the stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.orch.Import(cmd.Context())
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			if res.Skipped {
				fmt.Printf("Panel %s already imported\n", res.Checksum[:12])
				return nil
			}
			fmt.Printf("Imported %d price points (%d with unparseable dates dropped)\n", res.Points, res.Dropped)
			return nil
		},
	}
}

func predictCmd() *cobra.Command {
	var market string

	cmd := &cobra.Command{
		Use:   "predict <product>",
		Short: "Predict next month's price of a product",
		Long: `Prints the forecast JSON: the product, its trailing twelve
observations, the predicted price and the first day of the predicted month.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			svc, _, err := a.orch.Service(cmd.Context(), useFixtures)
			if err != nil {
				return err
			}
			f, err := svc.ForecastMarket(cmd.Context(), args[0], market)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(f)
		},
	}

	cmd.Flags().StringVar(&market, "market", "", "Restrict the history to one market")
	return cmd
}

func productsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List the product codes that have price history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			svc, _, err := a.orch.Service(cmd.Context(), useFixtures)
			if err != nil {
				return err
			}
			codes, err := svc.Products(cmd.Context())
			if err != nil {
				return err
			}
			for _, code := range codes {
				fmt.Println(code)
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL and ClickHouse schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnvFile(envFile)
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Storage.Backend != config.BackendSQL {
				fmt.Println("Storage backend is memory, nothing to migrate")
				return nil
			}

			applied, err := orchestrator.Migrate(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Printf("Applied %s\n", name)
			}
			fmt.Printf("%d PostgreSQL migrations applied, ClickHouse schema up to date\n", len(applied))
			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the training history report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			h, err := a.orch.History(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("history report: %w", err)
			}
			fmt.Printf("%d runs", len(h.Runs))
			if h.BestRunID != "" {
				fmt.Printf(", best %s", h.BestRunID)
			}
			fmt.Println()
			if a.cfg.Artifacts.ReportDir != "" {
				fmt.Printf("Written to %s\n", a.cfg.Artifacts.ReportDir)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Most recent runs to include")
	return cmd
}

func verifyCmd() *cobra.Command {
	var train bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check saved model/scaler pairs against their training runs",
		Long: `Loads every artifact directory under the artifacts root, compares it with
the stored training run and checks that a reloaded model reproduces its
predictions. The memory backend keeps no runs between processes, so use
--train there to train first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if train {
				if _, err := a.orch.Train(cmd.Context(), orchestrator.TrainOptions{UseFixtures: useFixtures, ConfigPath: configFile}); err != nil {
					return fmt.Errorf("training failed: %w", err)
				}
			}

			report, err := a.orch.Verify(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range report.Results {
				status := "OK"
				if !r.Match {
					status = "DIVERGENT"
				}
				fmt.Printf("%-9s %s (run %s)\n", status, r.Dir, r.RunID)
				for _, d := range r.Divergences {
					fmt.Printf("          %s: expected %v, got %v\n", d.Field, d.Expected, d.Actual)
				}
			}
			fmt.Printf("%d bundles, %d matched, %d divergent\n",
				report.TotalBundles, report.MatchedBundles, report.DivergentBundles)
			if report.DivergentBundles > 0 {
				return fmt.Errorf("%d divergent bundles", report.DivergentBundles)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&train, "train", false, "Train before verifying")
	return cmd
}
