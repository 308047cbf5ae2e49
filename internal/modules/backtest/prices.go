package backtest

import (
	"sort"
	"time"

	"github.com/aristath/meridian/internal/modules/marketdata"
)

type priceSource int

const (
	priceExact priceSource = iota
	priceStale
	priceFallback
)

// priceBook resolves closes for a fixed, sorted symbol set while the simulator walks
// the calendar forward. Each symbol is resolved and counted at most once per date.
type priceBook struct {
	symbols  []string
	index    map[string]int
	bars     [][]Bar
	cursor   []int
	fallback float64
	// fixedFallback prices every date without a bar at fallback.
	fixedFallback bool

	date     time.Time
	resolved []bool
	prices   []float64

	lookups int
	stale   int
	missing int
}

func newPriceBook(symbols []string, bars map[string][]Bar, fallback float64, fixedFallback bool) *priceBook {
	b := &priceBook{
		symbols:       symbols,
		index:         make(map[string]int, len(symbols)),
		bars:          make([][]Bar, len(symbols)),
		cursor:        make([]int, len(symbols)),
		fallback:      fallback,
		fixedFallback: fixedFallback,
		resolved:      make([]bool, len(symbols)),
		prices:        make([]float64, len(symbols)),
	}
	for i, symbol := range symbols {
		b.index[symbol] = i
		usable := make([]Bar, 0, len(bars[symbol]))
		for _, bar := range bars[symbol] {
			if bar.Close > 0 {
				bar.Date = marketdata.Day(bar.Date)
				usable = append(usable, bar)
			}
		}
		sort.SliceStable(usable, func(x, y int) bool { return usable[x].Date.Before(usable[y].Date) })
		b.bars[i] = usable
	}
	return b
}

// calendar returns the union of the given dates and every bar date on or after from.
func (b *priceBook) calendar(from time.Time, dates []time.Time) []time.Time {
	seen := make(map[int64]time.Time)
	for _, d := range dates {
		if !d.Before(from) {
			seen[d.Unix()] = d
		}
	}
	for _, series := range b.bars {
		for _, bar := range series {
			if !bar.Date.Before(from) {
				seen[bar.Date.Unix()] = bar.Date
			}
		}
	}

	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// advance moves every symbol's cursor past bars dated on or before d.
func (b *priceBook) advance(d time.Time) {
	b.date = d
	for i, series := range b.bars {
		for b.cursor[i] < len(series) && !series[b.cursor[i]].Date.After(d) {
			b.cursor[i]++
		}
		b.resolved[i] = false
	}
}

// price returns the close of symbol i on the current date. Without a bar on that date
// it returns the last known close, or the fallback price when the symbol has no bar
// yet or the book uses a fixed fallback.
func (b *priceBook) price(i int) float64 {
	if b.resolved[i] {
		return b.prices[i]
	}

	b.lookups++
	var px float64
	switch b.source(i) {
	case priceExact:
		px = b.bars[i][b.cursor[i]-1].Close
	case priceStale:
		px = b.bars[i][b.cursor[i]-1].Close
		b.stale++
	default:
		px = b.fallback
		b.missing++
	}

	b.resolved[i] = true
	b.prices[i] = px
	return px
}

func (b *priceBook) source(i int) priceSource {
	if b.cursor[i] == 0 {
		return priceFallback
	}
	if b.bars[i][b.cursor[i]-1].Date.Equal(b.date) {
		return priceExact
	}
	if b.fixedFallback {
		return priceFallback
	}
	return priceStale
}

// value marks holdings to market at the current date.
func (b *priceBook) value(holdings []float64) float64 {
	total := 0.0
	for i, qty := range holdings {
		if qty != 0 {
			total += qty * b.price(i)
		}
	}
	return total
}
