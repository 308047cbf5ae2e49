package testing

import (
	"math"
	"math/rand"
	"time"
)

// NewSymbolFixtures returns a small equity universe for use in tests
func NewSymbolFixtures() []string {
	return []string{"AAPL", "MSFT", "XOM", "JPM"}
}

// NewSectorFixtures maps the fixture symbols to sectors
func NewSectorFixtures() map[string]string {
	return map[string]string{
		"AAPL": "tech",
		"MSFT": "tech",
		"XOM":  "energy",
		"JPM":  "financials",
	}
}

// NewTradingDays returns n consecutive weekdays starting at (or after) start
func NewTradingDays(start time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	d := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	for len(days) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days = append(days, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return days
}

// NewCloseFixtures returns a deterministic rows×symbols matrix of positive closes.
// Each symbol follows its own seeded random walk starting at 100.
func NewCloseFixtures(symbols int, rows int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	closes := make([][]float64, rows)
	last := make([]float64, symbols)
	for j := range last {
		last[j] = 100
	}
	for i := 0; i < rows; i++ {
		closes[i] = make([]float64, symbols)
		for j := 0; j < symbols; j++ {
			if i > 0 {
				last[j] *= math.Exp(0.02 * (rng.Float64() - 0.5))
			}
			closes[i][j] = last[j]
		}
	}
	return closes
}

// NewReturnFixtures returns a deterministic rows×symbols matrix of daily log-returns
func NewReturnFixtures(symbols int, rows int, seed int64) [][]float64 {
	closes := NewCloseFixtures(symbols, rows+1, seed)
	returns := make([][]float64, rows)
	for i := 1; i < len(closes); i++ {
		returns[i-1] = make([]float64, symbols)
		for j := 0; j < symbols; j++ {
			returns[i-1][j] = math.Log(closes[i][j] / closes[i-1][j])
		}
	}
	return returns
}

// FloatPtr returns a pointer to f, for optional request fields
func FloatPtr(f float64) *float64 {
	return &f
}
