package backtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/aristath/meridian/internal/metrics"
	"github.com/aristath/meridian/internal/modules/marketdata"
	testingpkg "github.com/aristath/meridian/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	service *Service
	bars    *marketdata.BarRepository
	signals *marketdata.SignalRepository
	runs    *RunRepository
}

func newServiceFixture(t *testing.T, cfg ServiceConfig) *serviceFixture {
	t.Helper()

	historyDB, cleanupHistory := testingpkg.NewTestDB(t, "history")
	t.Cleanup(cleanupHistory)
	runsDB, cleanupRuns := testingpkg.NewTestDB(t, "runs")
	t.Cleanup(cleanupRuns)

	f := &serviceFixture{
		bars:    marketdata.NewBarRepository(historyDB.Conn(), zerolog.Nop()),
		signals: marketdata.NewSignalRepository(historyDB.Conn(), zerolog.Nop()),
		runs:    NewRunRepository(runsDB.Conn(), zerolog.Nop()),
	}
	f.service = NewService(f.signals, f.bars, f.runs, metrics.New(), cfg, zerolog.Nop())

	ids := 0
	f.service.newID = func() string {
		ids++
		return fmt.Sprintf("run-%d", ids)
	}
	return f
}

// seed stores four days of signals ranking AAPL and MSFT above XOM, and flat bars
// for the given symbols.
func (f *serviceFixture) seed(t *testing.T, barSymbols ...string) {
	t.Helper()
	ctx := context.Background()

	var signals []marketdata.Signal
	for i := 0; i < 4; i++ {
		signals = append(signals,
			marketdata.Signal{StrategyID: "momo", AsOf: d(i), Symbol: "AAPL", Score: 0.9},
			marketdata.Signal{StrategyID: "momo", AsOf: d(i), Symbol: "MSFT", Score: 0.8},
			marketdata.Signal{StrategyID: "momo", AsOf: d(i), Symbol: "XOM", Score: 0.1},
		)
	}
	require.NoError(t, f.signals.InsertSignals(ctx, signals))

	var bars []Bar
	for _, symbol := range barSymbols {
		bars = append(bars, closes(symbol, 100, 100, 100, 100)...)
	}
	require.NoError(t, f.bars.UpsertBars(ctx, bars))
}

func runRequest(costs *float64) RunRequest {
	return RunRequest{StrategyID: "momo", Start: "2024-01-01", End: "2024-01-04", CostsBps: costs}
}

func TestRunBacktest_PersistsReport(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{Engine: DefaultEngineConfig(), TopN: 2})
	f.seed(t, "AAPL", "MSFT")
	ctx := context.Background()

	report, err := f.service.RunBacktest(ctx, runRequest(testingpkg.FloatPtr(0)))
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "momo", report.StrategyID)
	require.Len(t, report.EquityCurve, 4)
	assert.InDelta(t, DefaultStartNAV, report.FinalNAV, 1e-6)
	assert.Equal(t, 0, report.MissingPrices)
	assert.False(t, report.CreatedAt.IsZero())

	stored, err := f.service.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, report.FinalNAV, stored.FinalNAV)
	assert.Len(t, stored.EquityCurve, 4)

	runs, err := f.service.ListRuns(ctx, "momo", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
}

func TestRunBacktest_CostOverride(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{Engine: DefaultEngineConfig(), TopN: 2})
	f.seed(t, "AAPL", "MSFT")
	ctx := context.Background()

	withDefault, err := f.service.RunBacktest(ctx, runRequest(nil))
	require.NoError(t, err)
	free, err := f.service.RunBacktest(ctx, runRequest(testingpkg.FloatPtr(0)))
	require.NoError(t, err)

	// 5bps on the initial buy plus small daily drift trades.
	assert.InDelta(t, DefaultStartNAV*5/10000, withDefault.TransactionCosts, 1)
	assert.Equal(t, 0.0, free.TransactionCosts)
	assert.Less(t, withDefault.FinalNAV, free.FinalNAV)
}

func TestRunBacktest_MissingBarsCountedWithoutSynthetic(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{Engine: DefaultEngineConfig(), TopN: 2})
	f.seed(t, "AAPL")

	report, err := f.service.RunBacktest(context.Background(), runRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, 4, report.MissingPrices)
}

func TestRunBacktest_MissingRatioThreshold(t *testing.T) {
	engine := DefaultEngineConfig()
	engine.MaxMissingRatio = 0.25
	f := newServiceFixture(t, ServiceConfig{Engine: engine, TopN: 2})
	f.seed(t, "AAPL")

	_, err := f.service.RunBacktest(context.Background(), runRequest(nil))
	assert.ErrorIs(t, err, ErrMissingPriceData)

	runs, err := f.service.ListRuns(context.Background(), "momo", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunBacktest_SyntheticBarsFillGaps(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{
		Engine:        DefaultEngineConfig(),
		TopN:          2,
		SyntheticBars: true,
		SyntheticSeed: 7,
	})
	f.seed(t, "AAPL")

	first, err := f.service.RunBacktest(context.Background(), runRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, first.MissingPrices)

	second, err := f.service.RunBacktest(context.Background(), runRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, first.EquityCurve, second.EquityCurve, "a fixed seed replays the same synthetic bars")
}

func TestRunBacktest_NoSignals(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{Engine: DefaultEngineConfig()})

	_, err := f.service.RunBacktest(context.Background(), runRequest(nil))
	assert.ErrorIs(t, err, ErrInvalidRun)
}

func TestRunRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  RunRequest
	}{
		{"missing strategy", RunRequest{Start: "2024-01-01", End: "2024-01-02"}},
		{"bad start", RunRequest{StrategyID: "momo", Start: "01/01/2024", End: "2024-01-02"}},
		{"bad end", RunRequest{StrategyID: "momo", Start: "2024-01-01", End: "tomorrow"}},
		{"end before start", RunRequest{StrategyID: "momo", Start: "2024-01-05", End: "2024-01-02"}},
		{"negative costs", RunRequest{StrategyID: "momo", Start: "2024-01-01", End: "2024-01-02", CostsBps: testingpkg.FloatPtr(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.req.Validate()
			assert.ErrorIs(t, err, ErrInvalidRun)
		})
	}

	start, end, err := runRequest(nil).Validate()
	require.NoError(t, err)
	assert.Equal(t, d(0), start)
	assert.Equal(t, d(3), end)
}

func TestServiceSimulate(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, ServiceConfig{Engine: zeroCost()}, zerolog.Nop())

	report, err := svc.Simulate(context.Background(), SimulateRequest{
		Targets: []DailyTarget{target(0, Allocation{"A", 0.5}, Allocation{"B", 0.5})},
		Bars: map[string][]Bar{
			"A": closes("A", 100, 110),
			"B": closes("B", 100, 90),
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, DefaultStartNAV, report.StartNAV)
	assert.InDelta(t, DefaultStartNAV, report.FinalNAV, 1e-6)

	_, err = svc.Simulate(context.Background(), SimulateRequest{})
	assert.ErrorIs(t, err, ErrInvalidRun)

	_, err = svc.GetRun(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
