package backtest

import (
	"math/rand"
	"time"

	"github.com/aristath/meridian/internal/modules/marketdata"
)

const (
	syntheticStartPrice = 100.0
	syntheticDailyMove  = 0.02
	syntheticVolume     = 1_000_000.0
)

// SyntheticBars generates one bar per calendar day in [start, end] following a random
// walk that starts at 100 and moves at most 1% a day.
func SyntheticBars(symbol string, start, end time.Time, rng *rand.Rand) []Bar {
	start, end = marketdata.Day(start), marketdata.Day(end)
	if end.Before(start) {
		return nil
	}

	var bars []Bar
	px := syntheticStartPrice
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		px *= 1 + (rng.Float64()-0.5)*syntheticDailyMove
		bars = append(bars, Bar{
			Symbol: symbol,
			Date:   d,
			Open:   px,
			High:   px * 1.01,
			Low:    px * 0.99,
			Close:  px,
			Volume: syntheticVolume,
		})
	}
	return bars
}
