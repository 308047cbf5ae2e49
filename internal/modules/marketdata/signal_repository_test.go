package marketdata

import (
	"context"
	"testing"
	"time"

	testingpkg "github.com/aristath/meridian/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalRepository_InsertAndGet(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "history")
	defer cleanup()

	repo := NewSignalRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, repo.InsertSignals(ctx, []Signal{
		{StrategyID: "momo", AsOf: day(5), Symbol: "MSFT", Score: 0.2},
		{StrategyID: "momo", AsOf: day(4), Symbol: "MSFT", Score: 0.1},
		{StrategyID: "momo", AsOf: day(4), Symbol: "AAPL", Score: 0.3},
		{StrategyID: "value", AsOf: day(4), Symbol: "XOM", Score: 0.9},
	}))

	signals, err := repo.GetSignals(ctx, "momo", day(1), day(31))
	require.NoError(t, err)
	require.Len(t, signals, 3)

	assert.Equal(t, "AAPL", signals[0].Symbol)
	assert.Equal(t, day(4), signals[0].AsOf)
	assert.Equal(t, "MSFT", signals[1].Symbol)
	assert.Equal(t, day(5), signals[2].AsOf)

	none, err := repo.GetSignals(ctx, "momo", day(10), day(31))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSignalRepository_RejectsIncompleteSignal(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "history")
	defer cleanup()

	repo := NewSignalRepository(db.Conn(), zerolog.Nop())
	err := repo.InsertSignals(context.Background(), []Signal{{StrategyID: "momo", AsOf: day(4)}})
	assert.Error(t, err)
}

func TestDay(t *testing.T) {
	assert.Equal(t, day(4), Day(day(4).Add(15*time.Hour)))
}
