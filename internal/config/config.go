// Package config loads the YAML configuration shared by the commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"prilythic/internal/domain"
	"prilythic/internal/features"
	"prilythic/internal/forest"
	"prilythic/internal/logging"
	"prilythic/internal/panel"
	"prilythic/internal/pipeline"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PRILYTHIC_"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql" // PostgreSQL + ClickHouse
)

// Config is the full application configuration.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Features  features.Config `yaml:"features"`
	Model     ModelConfig     `yaml:"model"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Log       logging.Options `yaml:"log"`
}

// DataConfig locates the training inputs.
type DataConfig struct {
	PanelPath    string   `yaml:"panel_path"`
	TickerPath   string   `yaml:"ticker_path"`
	ProductCodes []string `yaml:"product_codes"` // empty detects c_ columns
	MarketColumn string   `yaml:"market_column"`
	DateColumn   string   `yaml:"date_column"`
}

// ModelConfig holds the forest parameters and the training protocol.
type ModelConfig struct {
	Forest         forest.Params              `yaml:"forest"`
	TestRatio      float64                    `yaml:"test_ratio"`
	Tune           bool                       `yaml:"tune"`
	Grid           forest.Grid                `yaml:"grid"`
	Search         forest.SearchConfig        `yaml:"search"`
	Sufficiency    pipeline.SufficiencyConfig `yaml:"sufficiency"`
	TopImportances int                        `yaml:"top_importances"`
}

// ArtifactsConfig locates model artifacts and reports.
type ArtifactsConfig struct {
	Root      string `yaml:"root"` // <root>/<product>/ or <root>/default/
	CacheSize int    `yaml:"cache_size"`
	ReportDir string `yaml:"report_dir"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"` // database is taken from the path
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RateLimit       float64       `yaml:"rate_limit"` // requests per second, 0 disables
	Burst           int           `yaml:"burst"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			PanelPath:    "data/wfp_prices.csv",
			TickerPath:   "data/tickers.csv",
			MarketColumn: panel.DefaultMarketColumn,
			DateColumn:   panel.DefaultDateColumn,
		},
		Features: features.DefaultConfig(),
		Model: ModelConfig{
			Forest:         forest.DefaultParams(),
			TestRatio:      pipeline.DefaultTestRatio,
			Grid:           forest.DefaultGrid(),
			Search:         forest.SearchConfig{Folds: 5, Seed: 42},
			Sufficiency:    pipeline.DefaultSufficiencyConfig(),
			TopImportances: 10,
		},
		Artifacts: ArtifactsConfig{
			Root:      "artifacts",
			CacheSize: 64,
			ReportDir: "reports",
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimit:       20,
			Burst:           40,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: logging.DefaultOptions(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path uses the defaults. A missing file is
// reported as domain.ErrInputNotFound.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: config %s", domain.ErrInputNotFound, path)
		}
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. POSTGRES_DSN and
// CLICKHOUSE_DSN are honored as fallbacks for the prefixed names.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Data.PanelPath, EnvPrefix+"PANEL_PATH")
	str(&c.Data.TickerPath, EnvPrefix+"TICKER_PATH")
	str(&c.Artifacts.Root, EnvPrefix+"ARTIFACTS_ROOT")
	str(&c.Artifacts.ReportDir, EnvPrefix+"REPORT_DIR")
	str(&c.Storage.Backend, EnvPrefix+"STORAGE_BACKEND")
	str(&c.Storage.PostgresDSN, EnvPrefix+"POSTGRES_DSN", "POSTGRES_DSN")
	str(&c.Storage.ClickHouseDSN, EnvPrefix+"CLICKHOUSE_DSN", "CLICKHOUSE_DSN")
	str(&c.Server.Addr, EnvPrefix+"SERVER_ADDR")
	str(&c.Log.Level, EnvPrefix+"LOG_LEVEL")
	str(&c.Log.File, EnvPrefix+"LOG_FILE")

	if v := getenv(EnvPrefix + "PRODUCT_CODES"); v != "" {
		var codes []string
		for _, code := range strings.Split(v, ",") {
			if code = strings.TrimSpace(code); code != "" {
				codes = append(codes, code)
			}
		}
		c.Data.ProductCodes = codes
	}
	if v := getenv(EnvPrefix + "CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCACHE_SIZE: %w", EnvPrefix, err)
		}
		c.Artifacts.CacheSize = n
	}
	if v := getenv(EnvPrefix + "RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT: %w", EnvPrefix, err)
		}
		c.Server.RateLimit = f
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Features.Validate(); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if err := c.Model.Forest.Validate(); err != nil {
		return fmt.Errorf("model.forest: %w", err)
	}
	if c.Model.TestRatio <= 0 || c.Model.TestRatio >= 1 {
		return fmt.Errorf("model.test_ratio %v outside (0, 1)", c.Model.TestRatio)
	}
	if err := c.Model.Sufficiency.Validate(); err != nil {
		return fmt.Errorf("model.sufficiency: %w", err)
	}
	if c.Model.Search.Folds != 0 && c.Model.Search.Folds < 2 {
		return errors.New("model.search.folds must be at least 2")
	}
	if c.Artifacts.Root == "" {
		return errors.New("artifacts.root is required")
	}
	if c.Artifacts.CacheSize < 1 {
		return errors.New("artifacts.cache_size must be at least 1")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQL:
		if c.Storage.PostgresDSN == "" || c.Storage.ClickHouseDSN == "" {
			return errors.New("storage backend sql needs postgres_dsn and clickhouse_dsn")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Server.RateLimit < 0 || c.Server.Burst < 0 {
		return errors.New("server rate limit and burst must not be negative")
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}

// MeltConfig returns the panel layout.
func (c *Config) MeltConfig() panel.MeltConfig {
	return panel.MeltConfig{
		ProductCodes: c.Data.ProductCodes,
		MarketColumn: c.Data.MarketColumn,
		DateColumn:   c.Data.DateColumn,
	}
}

// DefaultArtifactDir is where training writes the shared model pair.
func (c *Config) DefaultArtifactDir() string {
	return filepath.Join(c.Artifacts.Root, "default")
}

// TrainerOptions maps the configuration onto a training run.
func (c *Config) TrainerOptions() pipeline.Options {
	return pipeline.Options{
		PanelPath:      c.Data.PanelPath,
		TickerPath:     c.Data.TickerPath,
		Melt:           c.MeltConfig(),
		Features:       c.Features,
		Forest:         c.Model.Forest,
		TestRatio:      c.Model.TestRatio,
		Sufficiency:    c.Model.Sufficiency,
		Tune:           c.Model.Tune,
		Grid:           c.Model.Grid,
		Search:         c.Model.Search,
		ArtifactDir:    c.DefaultArtifactDir(),
		ReportDir:      c.Artifacts.ReportDir,
		TopImportances: c.Model.TopImportances,
	}
}

// LoadEnvFile loads environment variables from a .env file if it exists.
// Variables already set in the environment win.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
