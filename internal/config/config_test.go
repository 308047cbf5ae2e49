package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MERIDIAN_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, 8082, cfg.Port)
	assert.Equal(t, 1.0, cfg.Optimizer.RiskAversion)
	assert.Equal(t, 0.5, cfg.Optimizer.StepSize)
	assert.Equal(t, 500, cfg.Optimizer.MaxIterations)
	assert.Equal(t, 0.5, cfg.Optimizer.Shrinkage)
	assert.Equal(t, 1_000_000.0, cfg.Backtest.StartNAV)
	assert.Equal(t, 5.0, cfg.Backtest.CostBps)
	assert.Equal(t, 100.0, cfg.Backtest.FallbackPrice)
	assert.Equal(t, "last_close", cfg.Backtest.FallbackPolicy)
	assert.True(t, cfg.Backtest.SyntheticBars)
	assert.Equal(t, 90, cfg.Retention.RunDays)
	assert.Equal(t, 0, cfg.Retention.BarDays)
	assert.Equal(t, 24*time.Hour, cfg.Retention.CovarianceTTL)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MERIDIAN_DATA_DIR", t.TempDir())
	t.Setenv("MERIDIAN_PORT", "9100")
	t.Setenv("OPTIMIZER_RISK_AVERSION", "3.5")
	t.Setenv("OPTIMIZER_MAX_ITERATIONS", "not-a-number")
	t.Setenv("BACKTEST_SYNTHETIC_BARS", "false")
	t.Setenv("BACKTEST_SYNTHETIC_SEED", "42")
	t.Setenv("COVARIANCE_CACHE_TTL", "2h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 3.5, cfg.Optimizer.RiskAversion)
	assert.Equal(t, 500, cfg.Optimizer.MaxIterations, "unparsable values fall back to defaults")
	assert.False(t, cfg.Backtest.SyntheticBars)
	assert.Equal(t, int64(42), cfg.Backtest.SyntheticSeed)
	assert.Equal(t, 2*time.Hour, cfg.Retention.CovarianceTTL)
}

func TestLoad_TuningFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
optimizer:
  step_size: 0.25
  closed_form_seed: true
backtest:
  cost_bps: 2.5
  top_n: 10
retention:
  covariance_ttl: 30m
  bar_days: 730
`), 0644))

	t.Setenv("MERIDIAN_DATA_DIR", dir)
	t.Setenv("MERIDIAN_TUNING_FILE", path)
	t.Setenv("OPTIMIZER_RISK_AVERSION", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.25, cfg.Optimizer.StepSize)
	assert.True(t, cfg.Optimizer.SeedFromClosedForm)
	assert.Equal(t, 2.0, cfg.Optimizer.RiskAversion, "keys absent from the file keep their env value")
	assert.Equal(t, 2.5, cfg.Backtest.CostBps)
	assert.Equal(t, 10, cfg.Backtest.TopN)
	assert.Equal(t, 30*time.Minute, cfg.Retention.CovarianceTTL)
	assert.Equal(t, 730, cfg.Retention.BarDays)
}

func TestLoad_BadTuningFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MERIDIAN_DATA_DIR", dir)
	t.Setenv("MERIDIAN_TUNING_FILE", filepath.Join(dir, "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:      8082,
			Optimizer: OptimizerConfig{RiskAversion: 1, StepSize: 0.5, MaxIterations: 500, Tolerance: 1e-9, Shrinkage: 0.5},
			Backtest:  BacktestConfig{StartNAV: 1e6, CostBps: 5, FallbackPrice: 100},
			Retention: RetentionConfig{RunDays: 90},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero step", func(c *Config) { c.Optimizer.StepSize = 0 }},
		{"zero budget", func(c *Config) { c.Optimizer.MaxIterations = 0 }},
		{"shrinkage above one", func(c *Config) { c.Optimizer.Shrinkage = 1.5 }},
		{"zero nav", func(c *Config) { c.Backtest.StartNAV = 0 }},
		{"zero fallback", func(c *Config) { c.Backtest.FallbackPrice = 0 }},
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"negative bar retention", func(c *Config) { c.Retention.BarDays = -1 }},
		{"unknown fallback policy", func(c *Config) { c.Backtest.FallbackPolicy = "interpolate" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoad_Backup(t *testing.T) {
	t.Setenv("MERIDIAN_DATA_DIR", t.TempDir())
	t.Setenv("BACKUP_S3_BUCKET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Backup.Enabled())
	assert.Equal(t, "auto", cfg.Backup.Region)
	assert.Equal(t, 30, cfg.Backup.RetentionDays)

	t.Setenv("BACKUP_S3_BUCKET", "meridian-backups")
	t.Setenv("BACKUP_S3_ENDPOINT", "https://example.r2.cloudflarestorage.com")
	t.Setenv("BACKUP_S3_ACCESS_KEY_ID", "key")
	t.Setenv("BACKUP_S3_SECRET_ACCESS_KEY", "secret")

	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, "https://example.r2.cloudflarestorage.com", cfg.Backup.Endpoint)

	t.Setenv("BACKUP_S3_SECRET_ACCESS_KEY", "")
	_, err = Load()
	assert.ErrorContains(t, err, "set together")
}
