package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/meridian/internal/modules/marketdata"
	"gonum.org/v1/gonum/stat"
)

const (
	// TradingDaysPerYear annualizes daily statistics.
	TradingDaysPerYear = 252

	minTurnover = 1.0
)

// Simulate replays the run's targets against its bars.
//
// The simulation walks every date from the first target onward on which a target or a
// bar exists. On a target date the book is rebalanced to weight × NAV per symbol when
// no rebalance happened yet or at least RebalanceDays have passed since the last one.
// Symbols held but absent from the target are sold. Every date ends with a mark to
// market and one EquityPoint.
//
// Simulate has no hidden state: identical runs produce identical reports. When the
// missing price ratio exceeds MaxMissingRatio the report is returned together with
// ErrMissingPriceData so callers can inspect coverage.
func Simulate(run Run) (Report, error) {
	if err := run.validate(); err != nil {
		return Report{}, err
	}

	cfg := run.Config
	rebalanceDays := cfg.RebalanceDays
	if rebalanceDays <= 0 {
		rebalanceDays = 1
	}
	tc := cfg.CostBps / 10000

	symbols := targetSymbols(run.Targets)
	book := newPriceBook(symbols, run.Bars, cfg.FallbackPrice, cfg.FallbackPolicy == FallbackFixed)

	weightsByDate := make(map[int64][]float64, len(run.Targets))
	targetDates := make([]time.Time, len(run.Targets))
	for i, target := range run.Targets {
		d := marketdata.Day(target.Date)
		targetDates[i] = d
		w := make([]float64, len(symbols))
		for _, a := range target.Allocations {
			w[book.index[a.Symbol]] += a.Weight
		}
		weightsByDate[d.Unix()] = w
	}
	calendar := book.calendar(targetDates[0], targetDates)

	report := Report{
		RunID:       run.RunID,
		StrategyID:  run.StrategyID,
		Start:       calendar[0],
		End:         calendar[len(calendar)-1],
		StartNAV:    run.StartNAV,
		EquityCurve: make([]EquityPoint, 0, len(calendar)),
	}

	holdings := make([]float64, len(symbols))
	cash := run.StartNAV
	turnover := 0.0
	var lastRebalance time.Time
	rebalanced := false

	for _, d := range calendar {
		book.advance(d)

		if w, ok := weightsByDate[d.Unix()]; ok && (!rebalanced || daysBetween(lastRebalance, d) >= rebalanceDays) {
			nav := cash + book.value(holdings)
			cost := 0.0
			for i := range symbols {
				if w[i] == 0 && holdings[i] == 0 {
					continue
				}
				px := book.price(i)
				desired := w[i] * nav / px
				delta := (desired - holdings[i]) * px
				cost += tc * math.Abs(delta)
				turnover += math.Abs(delta)
				cash -= delta
				holdings[i] = desired
			}
			cash -= cost
			report.TransactionCosts += cost
			report.Rebalances++
			lastRebalance = d
			rebalanced = true
		}

		nav := cash + book.value(holdings)
		report.EquityCurve = append(report.EquityCurve, EquityPoint{Date: d, NAV: nav})
	}

	report.FinalNAV = report.EquityCurve[len(report.EquityCurve)-1].NAV
	report.MaxDrawdown = MaxDrawdown(run.StartNAV, report.EquityCurve)
	report.Turnover = math.Max(turnover, minTurnover)
	report.Sharpe = SharpeRatio(DailyReturns(report.EquityCurve))
	report.PriceLookups = book.lookups
	report.StalePrices = book.stale
	report.MissingPrices = book.missing

	if cfg.MaxMissingRatio > 0 && report.MissingRatio() > cfg.MaxMissingRatio {
		return report, fmt.Errorf("%w: %d of %d price lookups used the fallback price",
			ErrMissingPriceData, report.MissingPrices, report.PriceLookups)
	}

	return report, nil
}

func (r Run) validate() error {
	if !(r.StartNAV > 0) || math.IsInf(r.StartNAV, 0) {
		return fmt.Errorf("%w: start NAV must be positive", ErrInvalidRun)
	}
	if len(r.Targets) == 0 {
		return fmt.Errorf("%w: no targets", ErrInvalidRun)
	}
	if err := r.Config.Validate(); err != nil {
		return err
	}

	var prev time.Time
	for i, target := range r.Targets {
		d := marketdata.Day(target.Date)
		if i > 0 && !d.After(prev) {
			return fmt.Errorf("%w: target dates must be strictly increasing (%s after %s)",
				ErrInvalidRun, d.Format(marketdata.DateLayout), prev.Format(marketdata.DateLayout))
		}
		prev = d
		for _, a := range target.Allocations {
			if a.Symbol == "" {
				return fmt.Errorf("%w: allocation without symbol on %s", ErrInvalidRun, d.Format(marketdata.DateLayout))
			}
			if math.IsNaN(a.Weight) || math.IsInf(a.Weight, 0) {
				return fmt.Errorf("%w: weight for %s is not finite", ErrInvalidRun, a.Symbol)
			}
		}
	}
	return nil
}

func targetSymbols(targets []DailyTarget) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, target := range targets {
		for _, a := range target.Allocations {
			if !seen[a.Symbol] {
				seen[a.Symbol] = true
				symbols = append(symbols, a.Symbol)
			}
		}
	}
	sort.Strings(symbols)
	return symbols
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// DailyReturns returns the period-over-period returns of an equity curve.
func DailyReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].NAV
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].NAV/prev-1)
	}
	return returns
}

// SharpeRatio annualizes mean over sample standard deviation of daily returns. It is 0
// for fewer than two returns or zero variance.
func SharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, variance := stat.MeanVariance(returns, nil)
	if variance == 0 || math.IsNaN(variance) {
		return 0
	}
	return (mean * TradingDaysPerYear) / (math.Sqrt(variance) * math.Sqrt(TradingDaysPerYear))
}

// MaxDrawdown returns the most negative NAV/peak - 1 of a curve, with the peak seeded
// at startNAV.
func MaxDrawdown(startNAV float64, curve []EquityPoint) float64 {
	peak := startNAV
	dd := 0.0
	for _, p := range curve {
		if p.NAV > peak {
			peak = p.NAV
		}
		if peak > 0 {
			dd = math.Min(dd, p.NAV/peak-1)
		}
	}
	return dd
}
