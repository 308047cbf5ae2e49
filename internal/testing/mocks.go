package testing

import (
	"context"
	"sync"
	"time"
)

// MockCloseHistory is an in-memory close-price history for testing services that
// resolve return windows from a store
type MockCloseHistory struct {
	mu     sync.RWMutex
	dates  []time.Time
	closes map[string][]float64
	calls  int
	err    error
}

// NewMockCloseHistory creates a new mock close history over the given dates
func NewMockCloseHistory(dates []time.Time) *MockCloseHistory {
	return &MockCloseHistory{
		dates:  dates,
		closes: make(map[string][]float64),
	}
}

// SetCloses sets the closes of one symbol, parallel to the mock's dates
func (m *MockCloseHistory) SetCloses(symbol string, closes []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes[symbol] = closes
}

// SetError sets an error to return on the next call
func (m *MockCloseHistory) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times GetCloses was called
func (m *MockCloseHistory) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// GetCloses returns the dates in [start, end] on which every symbol has a close
func (m *MockCloseHistory) GetCloses(_ context.Context, symbols []string, start, end time.Time) ([]time.Time, [][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return nil, nil, m.err
	}

	var dates []time.Time
	var rows [][]float64
	for i, d := range m.dates {
		if d.Before(start) || d.After(end) {
			continue
		}
		row := make([]float64, len(symbols))
		complete := true
		for j, symbol := range symbols {
			series, ok := m.closes[symbol]
			if !ok || i >= len(series) {
				complete = false
				break
			}
			row[j] = series[i]
		}
		if complete {
			dates = append(dates, d)
			rows = append(rows, row)
		}
	}
	return dates, rows, nil
}
