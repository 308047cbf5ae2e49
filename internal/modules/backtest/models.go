// Package backtest replays target weight series against historical bars and reports
// performance statistics.
package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/meridian/internal/modules/marketdata"
)

// Bar is a daily OHLCV observation.
type Bar = marketdata.Bar

// Allocation is one symbol's target weight.
type Allocation struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// DailyTarget is one point of the target weight series.
type DailyTarget struct {
	Date        time.Time    `json:"date"`
	Allocations []Allocation `json:"allocations"`
}

// EquityPoint is the portfolio NAV at the close of one trading date.
type EquityPoint struct {
	Date time.Time `json:"date" msgpack:"d"`
	NAV  float64   `json:"nav" msgpack:"n"`
}

// Fallback policies for a date on which a symbol has no bar.
const (
	// FallbackLastClose carries the last known close forward (counted as stale) and
	// uses FallbackPrice only before a symbol's first bar.
	FallbackLastClose = "last_close"
	// FallbackFixed uses FallbackPrice whenever the date has no bar.
	FallbackFixed = "fixed"
)

// EngineConfig controls rebalancing, costs and missing price handling.
type EngineConfig struct {
	RebalanceDays   int     `json:"rebalance_days"`
	CostBps         float64 `json:"cost_bps"`
	BorrowCostBps   float64 `json:"borrow_cost_bps"` // reserved, not charged
	FallbackPrice   float64 `json:"fallback_price"`
	FallbackPolicy  string  `json:"fallback_policy,omitempty"` // "" is FallbackLastClose
	MaxMissingRatio float64 `json:"max_missing_ratio"`         // 0 disables the check
}

// DefaultEngineConfig returns daily rebalancing at 5bps with a fallback price of 100.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RebalanceDays: 1,
		CostBps:       5,
		FallbackPrice: 100,
	}
}

// Validate checks the engine configuration.
func (c EngineConfig) Validate() error {
	switch {
	case c.CostBps < 0 || math.IsNaN(c.CostBps):
		return fmt.Errorf("%w: cost_bps must be non-negative", ErrInvalidRun)
	case c.BorrowCostBps < 0 || math.IsNaN(c.BorrowCostBps):
		return fmt.Errorf("%w: borrow_cost_bps must be non-negative", ErrInvalidRun)
	case !(c.FallbackPrice > 0) || math.IsInf(c.FallbackPrice, 0):
		return fmt.Errorf("%w: fallback_price must be positive", ErrInvalidRun)
	case c.MaxMissingRatio < 0 || c.MaxMissingRatio > 1 || math.IsNaN(c.MaxMissingRatio):
		return fmt.Errorf("%w: max_missing_ratio must be in [0, 1]", ErrInvalidRun)
	case c.FallbackPolicy != "" && c.FallbackPolicy != FallbackLastClose && c.FallbackPolicy != FallbackFixed:
		return fmt.Errorf("%w: unknown fallback_policy %q", ErrInvalidRun, c.FallbackPolicy)
	}
	return nil
}

// Run is everything a simulation needs. RunID is supplied by the caller so identical
// runs produce identical reports.
type Run struct {
	RunID      string
	StrategyID string
	StartNAV   float64
	Targets    []DailyTarget
	Bars       map[string][]Bar
	Config     EngineConfig
}

// Report is the immutable result of one simulation.
type Report struct {
	RunID            string        `json:"run_id"`
	StrategyID       string        `json:"strategy_id,omitempty"`
	Start            time.Time     `json:"start"`
	End              time.Time     `json:"end"`
	StartNAV         float64       `json:"start_nav"`
	FinalNAV         float64       `json:"final_nav"`
	Sharpe           float64       `json:"sharpe"`
	MaxDrawdown      float64       `json:"max_dd"`
	Turnover         float64       `json:"turnover"`
	TransactionCosts float64       `json:"transaction_costs"`
	Rebalances       int           `json:"rebalances"`
	PriceLookups     int           `json:"price_lookups"`
	MissingPrices    int           `json:"missing_prices"`
	StalePrices      int           `json:"stale_prices"`
	EquityCurve      []EquityPoint `json:"equity_curve"`
	CreatedAt        time.Time     `json:"created_at,omitempty"`
}

// MissingRatio is the share of price lookups served by the fallback price.
func (r Report) MissingRatio() float64 {
	if r.PriceLookups == 0 {
		return 0
	}
	return float64(r.MissingPrices) / float64(r.PriceLookups)
}

// RunSummary is a stored run without its equity curve.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	StrategyID  string    `json:"strategy_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	FinalNAV    float64   `json:"final_nav"`
	Sharpe      float64   `json:"sharpe"`
	MaxDrawdown float64   `json:"max_dd"`
	Turnover    float64   `json:"turnover"`
	CreatedAt   time.Time `json:"created_at"`
}
