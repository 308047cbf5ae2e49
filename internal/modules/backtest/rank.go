package backtest

import (
	"sort"
	"time"

	"github.com/aristath/meridian/internal/modules/marketdata"
)

// DefaultTopN is the number of names held per day when ranking signals.
const DefaultTopN = 5

// RankTargets turns signals into equal-weight daily targets holding the topN highest
// scores of each day. Ties rank by symbol. Targets are ordered by date.
func RankTargets(signals []marketdata.Signal, topN int) []DailyTarget {
	if topN <= 0 {
		topN = DefaultTopN
	}

	byDay := make(map[int64][]marketdata.Signal)
	dates := make(map[int64]time.Time)
	for _, s := range signals {
		d := marketdata.Day(s.AsOf)
		byDay[d.Unix()] = append(byDay[d.Unix()], s)
		dates[d.Unix()] = d
	}

	keys := make([]int64, 0, len(byDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	targets := make([]DailyTarget, 0, len(keys))
	for _, k := range keys {
		day := byDay[k]
		sort.Slice(day, func(i, j int) bool {
			if day[i].Score != day[j].Score {
				return day[i].Score > day[j].Score
			}
			return day[i].Symbol < day[j].Symbol
		})
		if len(day) > topN {
			day = day[:topN]
		}

		weight := 1 / float64(len(day))
		allocations := make([]Allocation, len(day))
		for i, s := range day {
			allocations[i] = Allocation{Symbol: s.Symbol, Weight: weight}
		}
		targets = append(targets, DailyTarget{Date: dates[k], Allocations: allocations})
	}

	return targets
}
