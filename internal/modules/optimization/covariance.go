// Package optimization turns per-asset return forecasts into risk-constrained target weights.
package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultShrinkage is the blend intensity between the sample covariance and the
// average-variance diagonal target.
const DefaultShrinkage = 0.5

// ReturnSeries is a T×N window of periodic log-returns. Rows are observation dates in
// chronological order, columns follow Symbols.
type ReturnSeries struct {
	Symbols []string
	Rows    [][]float64
}

// Observations returns T.
func (rs ReturnSeries) Observations() int {
	return len(rs.Rows)
}

// Validate checks the window shape and rejects missing (NaN/Inf) values.
func (rs ReturnSeries) Validate() error {
	n := len(rs.Symbols)
	if n == 0 {
		return fmt.Errorf("%w: return series has no assets", ErrInvalidRequest)
	}
	for t, row := range rs.Rows {
		if len(row) != n {
			return fmt.Errorf("%w: return row %d has %d values, expected %d", ErrInvalidRequest, t, len(row), n)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: missing return for %s at row %d", ErrInvalidRequest, rs.Symbols[j], t)
			}
		}
	}
	return nil
}

// Matrix returns the window as a T×N dense matrix.
func (rs ReturnSeries) Matrix() *mat.Dense {
	t, n := len(rs.Rows), len(rs.Symbols)
	m := mat.NewDense(t, n, nil)
	for i, row := range rs.Rows {
		m.SetRow(i, row)
	}
	return m
}

// LogReturns converts date-aligned closes (rows oldest -> newest, columns follow symbols)
// into a return series of len(closes)-1 rows.
func LogReturns(symbols []string, closes [][]float64) (ReturnSeries, error) {
	series := ReturnSeries{Symbols: symbols}
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if len(prev) != len(symbols) || len(cur) != len(symbols) {
			return ReturnSeries{}, fmt.Errorf("%w: close row %d does not match universe size %d", ErrInvalidRequest, i, len(symbols))
		}
		row := make([]float64, len(symbols))
		for j := range symbols {
			if prev[j] <= 0 || cur[j] <= 0 {
				return ReturnSeries{}, fmt.Errorf("%w: non-positive close for %s", ErrInvalidRequest, symbols[j])
			}
			row[j] = math.Log(cur[j] / prev[j])
		}
		series.Rows = append(series.Rows, row)
	}
	return series, nil
}

// CovarianceMatrix is an immutable, symmetric N×N covariance estimate.
type CovarianceMatrix struct {
	m *mat.SymDense
}

// NewCovarianceMatrix builds a covariance matrix from square rows. The input is
// symmetrized as (A+Aᵀ)/2 so symmetry holds by construction.
func NewCovarianceMatrix(rows [][]float64) (CovarianceMatrix, error) {
	n := len(rows)
	if n == 0 {
		return CovarianceMatrix{}, fmt.Errorf("%w: empty covariance matrix", ErrInvalidRequest)
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		if len(rows[i]) != n {
			return CovarianceMatrix{}, fmt.Errorf("%w: covariance row %d has size %d, expected %d", ErrInvalidRequest, i, len(rows[i]), n)
		}
		for j := i; j < n; j++ {
			if len(rows[j]) != n {
				return CovarianceMatrix{}, fmt.Errorf("%w: covariance row %d has size %d, expected %d", ErrInvalidRequest, j, len(rows[j]), n)
			}
			v := 0.5 * (rows[i][j] + rows[j][i])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return CovarianceMatrix{}, fmt.Errorf("%w: non-finite covariance at (%d,%d)", ErrInvalidRequest, i, j)
			}
			sym.SetSym(i, j, v)
		}
	}
	return CovarianceMatrix{m: sym}, nil
}

// N returns the number of assets.
func (c CovarianceMatrix) N() int {
	if c.m == nil {
		return 0
	}
	return c.m.SymmetricDim()
}

// At returns element (i, j).
func (c CovarianceMatrix) At(i, j int) float64 {
	return c.m.At(i, j)
}

// Symmetric returns a read-only view for gonum operations.
func (c CovarianceMatrix) Symmetric() mat.Symmetric {
	return c.m
}

// Rows returns a copy as nested slices.
func (c CovarianceMatrix) Rows() [][]float64 {
	n := c.N()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = c.m.At(i, j)
		}
	}
	return rows
}

// singularCondition is the condition number above which a factorizable matrix is
// still treated as numerically singular.
const singularCondition = 1e12

// IsSingular reports whether the matrix is not (numerically) positive definite.
func (c CovarianceMatrix) IsSingular() bool {
	if c.N() == 0 {
		return true
	}
	var chol mat.Cholesky
	if !chol.Factorize(c.m) {
		return true
	}
	return chol.Cond() > singularCondition
}

// MulVec returns Σ·w.
func (c CovarianceMatrix) MulVec(w []float64) []float64 {
	out := mat.NewVecDense(len(w), nil)
	out.MulVec(c.m, mat.NewVecDense(len(w), w))
	return out.RawVector().Data
}

// EstimateCovariance computes the sample covariance S = XᵀX/T of the mean-centred
// series and blends it with a diagonal target F whose diagonal is the average of
// S's diagonal:
//
//	Σ = (1-shrinkage)·S + shrinkage·F
//
// A window with fewer than two observations returns ErrInsufficientData.
func EstimateCovariance(series ReturnSeries, shrinkage float64) (CovarianceMatrix, error) {
	if series.Observations() < 2 {
		return CovarianceMatrix{}, fmt.Errorf("%w: need at least 2 observations, got %d", ErrInsufficientData, series.Observations())
	}
	if err := series.Validate(); err != nil {
		return CovarianceMatrix{}, err
	}
	if shrinkage < 0 || shrinkage > 1 {
		return CovarianceMatrix{}, fmt.Errorf("%w: shrinkage %.4f outside [0,1]", ErrInvalidRequest, shrinkage)
	}

	n := len(series.Symbols)
	t := float64(series.Observations())
	sample := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(sample, series.Matrix(), nil)
	// Population estimate XᵀX/T of the centred returns.
	sample.ScaleSym((t-1)/t, sample)

	avgVar := 0.0
	for i := 0; i < n; i++ {
		avgVar += sample.At(i, i)
	}
	avgVar /= float64(n)

	shrunk := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			target := 0.0
			if i == j {
				target = avgVar
			}
			shrunk.SetSym(i, j, (1-shrinkage)*sample.At(i, j)+shrinkage*target)
		}
	}

	return CovarianceMatrix{m: shrunk}, nil
}
