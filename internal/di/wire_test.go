package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/meridian/internal/config"
	"github.com/aristath/meridian/internal/modules/backtest"
	"github.com/aristath/meridian/internal/modules/marketdata"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: t.TempDir(),
		Port:    8082,
		Optimizer: config.OptimizerConfig{
			RiskAversion:  1,
			StepSize:      0.5,
			MaxIterations: 500,
			Tolerance:     1e-9,
			Shrinkage:     0.5,
			WindowDays:    252,
		},
		Backtest: config.BacktestConfig{
			StartNAV:      1_000_000,
			RebalanceDays: 1,
			CostBps:       5,
			FallbackPrice: 100,
			TopN:          2,
		},
		Retention: config.RetentionConfig{
			Schedule:      "0 30 3 * * *",
			RunDays:       90,
			CovarianceTTL: time.Hour,
		},
	}
}

func TestInitializeDatabases(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.HistoryDB)
	assert.NotNil(t, container.RunsDB)
	assert.NotNil(t, container.CacheDB)

	assert.FileExists(t, filepath.Join(cfg.DataDir, "history.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "runs.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "cache.db"))
}

func TestInitializeRepositories_RequiresDatabases(t *testing.T) {
	assert.Error(t, InitializeRepositories(&Container{}, zerolog.Nop()))
	assert.Error(t, InitializeServices(&Container{}, testConfig(t), zerolog.Nop()))
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.OptimizationService)
	assert.NotNil(t, container.BacktestService)
	assert.NotNil(t, container.Metrics)
	require.NotNil(t, jobs)
	assert.NotNil(t, jobs.Retention)
	assert.NotNil(t, jobs.WALCheckpoint)
	assert.Nil(t, jobs.Backup)
	assert.Nil(t, container.BackupService)
	assert.Equal(t, 2, container.Scheduler.Entries())

	assert.NoError(t, jobs.Retention.Run())
	assert.NoError(t, jobs.WALCheckpoint.Run())
}

func TestWire_BackupEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup = config.BackupConfig{
		Bucket:          "meridian-backups",
		Endpoint:        "http://127.0.0.1:9000",
		Region:          "auto",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Schedule:        "0 0 2 * * *",
		RetentionDays:   30,
	}

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.BackupService)
	assert.NotNil(t, jobs.Backup)
	assert.Equal(t, 3, container.Scheduler.Entries())
}

func TestWire_BadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retention.Schedule = "whenever"

	_, _, err := Wire(cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "retention job")
}

func TestWire_EndToEndBacktest(t *testing.T) {
	cfg := testConfig(t)
	container, _, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	ctx := context.Background()
	day := func(i int) time.Time { return time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC) }

	var bars []marketdata.Bar
	var signals []marketdata.Signal
	for i := 0; i < 3; i++ {
		bars = append(bars,
			marketdata.Bar{Symbol: "AAPL", Date: day(i), Close: 100},
			marketdata.Bar{Symbol: "MSFT", Date: day(i), Close: 200},
		)
		signals = append(signals,
			marketdata.Signal{StrategyID: "momo", AsOf: day(i), Symbol: "AAPL", Score: 1},
			marketdata.Signal{StrategyID: "momo", AsOf: day(i), Symbol: "MSFT", Score: 2},
		)
	}
	require.NoError(t, container.BarRepo.UpsertBars(ctx, bars))
	require.NoError(t, container.SignalRepo.InsertSignals(ctx, signals))

	report, err := container.BacktestService.RunBacktest(ctx, backtest.RunRequest{
		StrategyID: "momo", Start: "2024-01-01", End: "2024-01-03",
	})
	require.NoError(t, err)
	assert.Len(t, report.EquityCurve, 3)

	stored, err := container.BacktestService.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, stored.RunID)
}

func TestWire_RetentionPurgesBars(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retention.BarDays = 30
	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -400)
	require.NoError(t, container.BarRepo.UpsertBars(ctx, []marketdata.Bar{
		{Symbol: "AAPL", Date: old, Close: 90},
		{Symbol: "AAPL", Date: now, Close: 100},
	}))

	require.NoError(t, jobs.Retention.Run())

	bars, err := container.BarRepo.GetBars(ctx, []string{"AAPL"}, old.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, bars["AAPL"], 1)
	assert.Equal(t, 100.0, bars["AAPL"][0].Close)
}
