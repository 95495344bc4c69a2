package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prilythic/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 12, cfg.Features.LagHorizon)
	assert.Equal(t, 6, cfg.Features.RollingWindow)
	assert.Equal(t, 200, cfg.Model.Forest.NEstimators)
	assert.Equal(t, int64(42), cfg.Model.Forest.Seed)
	assert.Equal(t, 0.2, cfg.Model.TestRatio)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
data:
  panel_path: /data/panel.csv
  product_codes: [c_beans, c_rice]
features:
  lag_horizon: 2
  rolling_window: 0
model:
  tune: true
  forest:
    n_estimators: 50
    max_depth: 10
  grid:
    max_depth: [5, 10]
artifacts:
  root: /srv/models
server:
  addr: ":9090"
  read_timeout: 3s
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/panel.csv", cfg.Data.PanelPath)
	assert.Equal(t, []string{"c_beans", "c_rice"}, cfg.Data.ProductCodes)
	assert.Equal(t, "mkt_name", cfg.Data.MarketColumn, "untouched fields keep defaults")
	assert.Equal(t, 2, cfg.Features.LagHorizon)
	assert.Equal(t, 0, cfg.Features.RollingWindow)
	assert.True(t, cfg.Model.Tune)
	assert.Equal(t, 50, cfg.Model.Forest.NEstimators)
	assert.Equal(t, 5, cfg.Model.Forest.MinSamplesSplit)
	assert.Equal(t, []int{5, 10}, cfg.Model.Grid.MaxDepth)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)

	opts := cfg.TrainerOptions()
	assert.Equal(t, filepath.Join("/srv/models", "default"), opts.ArtifactDir)
	assert.True(t, opts.Tune)
	assert.Equal(t, []string{"c_beans", "c_rice"}, opts.Melt.ProductCodes)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.Is(err, domain.ErrInputNotFound))
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, "config.yaml", "model:\n  test_ratio: 1.5\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "test_ratio")

	path = writeFile(t, "bad.yaml", "data: [unclosed\n")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PRILYTHIC_PANEL_PATH":     "/env/panel.csv",
		"PRILYTHIC_PRODUCT_CODES":  "c_oil, c_maize,",
		"PRILYTHIC_CACHE_SIZE":     "8",
		"PRILYTHIC_RATE_LIMIT":     "2.5",
		"POSTGRES_DSN":             "postgres://fallback",
		"CLICKHOUSE_DSN":           "clickhouse://fallback",
		"PRILYTHIC_CLICKHOUSE_DSN": "clickhouse://prefixed",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "/env/panel.csv", cfg.Data.PanelPath)
	assert.Equal(t, []string{"c_oil", "c_maize"}, cfg.Data.ProductCodes)
	assert.Equal(t, 8, cfg.Artifacts.CacheSize)
	assert.Equal(t, 2.5, cfg.Server.RateLimit)
	assert.Equal(t, "postgres://fallback", cfg.Storage.PostgresDSN)
	assert.Equal(t, "clickhouse://prefixed", cfg.Storage.ClickHouseDSN)

	bad := Default()
	assert.Error(t, bad.ApplyEnv(func(k string) string {
		if k == "PRILYTHIC_CACHE_SIZE" {
			return "many"
		}
		return ""
	}))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero lags", func(c *Config) { c.Features.LagHorizon = 0 }},
		{"zero trees", func(c *Config) { c.Model.Forest.NEstimators = 0 }},
		{"one fold", func(c *Config) { c.Model.Search.Folds = 1 }},
		{"no artifacts root", func(c *Config) { c.Artifacts.Root = "" }},
		{"zero cache", func(c *Config) { c.Artifacts.CacheSize = 0 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }},
		{"sql without dsn", func(c *Config) { c.Storage.Backend = BackendSQL }},
		{"negative burst", func(c *Config) { c.Server.Burst = -1 }},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "# comment\nPRILYTHIC_TEST_A=from-file\nPRILYTHIC_TEST_B=\"quoted\"\nnot a pair\n")
	t.Setenv("PRILYTHIC_TEST_A", "from-env")
	t.Setenv("PRILYTHIC_TEST_B", "")

	LoadEnvFile(path)

	assert.Equal(t, "from-env", os.Getenv("PRILYTHIC_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("PRILYTHIC_TEST_B"))

	LoadEnvFile(filepath.Join(t.TempDir(), "missing"))
}
