package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowQueryThreshold is the duration above which MeasureQuery logs a warning.
const SlowQueryThreshold = 2 * time.Second

// MeasureQuery measures database query performance
//
// Usage:
//
//	done := utils.MeasureQuery("get_bars", log)
//	defer func() { done(int64(n)) }()
func MeasureQuery(queryName string, log zerolog.Logger) func(rows int64) time.Duration {
	start := time.Now()

	return func(rows int64) time.Duration {
		duration := time.Since(start)

		log.Debug().
			Str("query", queryName).
			Dur("duration_ms", duration).
			Int64("rows", rows).
			Msg("Database query completed")

		if duration > SlowQueryThreshold {
			log.Warn().
				Str("query", queryName).
				Dur("duration", duration).
				Int64("rows", rows).
				Msg("Slow database query detected")
		}

		return duration
	}
}
