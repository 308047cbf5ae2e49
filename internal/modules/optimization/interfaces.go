package optimization

import (
	"context"
	"time"
)

// CloseHistoryProvider provides date-aligned closing prices for return windows.
// Used to avoid a dependency on the marketdata module.
type CloseHistoryProvider interface {
	// GetCloses returns the dates on which every symbol has a close in [start, end],
	// oldest first, with one row of closes per date in symbol order.
	GetCloses(ctx context.Context, symbols []string, start, end time.Time) ([]time.Time, [][]float64, error)
}
