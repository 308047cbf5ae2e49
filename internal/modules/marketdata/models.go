// Package marketdata stores the daily bars and strategy signals consumed by the
// optimizer and the backtest simulator.
package marketdata

import "time"

// DateLayout is the storage format of bar and signal dates.
const DateLayout = "2006-01-02"

// Bar is one asset's OHLCV observation for one date.
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Signal is one strategy's score for one symbol on one date.
type Signal struct {
	StrategyID string    `json:"strategy_id"`
	AsOf       time.Time `json:"asof"`
	Symbol     string    `json:"symbol"`
	Score      float64   `json:"score"`
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
