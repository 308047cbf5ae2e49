package backtest

import "errors"

var (
	// ErrMissingPriceData is returned when the share of price lookups that fell back to
	// the synthetic fallback price exceeds EngineConfig.MaxMissingRatio.
	ErrMissingPriceData = errors.New("missing price data")

	// ErrInvalidRun is returned for malformed runs and requests.
	ErrInvalidRun = errors.New("invalid backtest run")

	// ErrRunNotFound is returned when a stored run does not exist.
	ErrRunNotFound = errors.New("backtest run not found")
)
