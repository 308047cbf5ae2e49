// Package risk provides point-in-time portfolio risk analytics: factor exposures and
// parametric Value-at-Risk under a normal-returns assumption.
package risk

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Z95 is the one-sided normal quantile used for 95% VaR.
const Z95 = 1.65

// ErrDimensionMismatch is returned when weights and matrices disagree on size.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// FactorExposures returns loadingsᵀ·w. loadings is N×K; nil means the identity,
// which yields per-asset exposures (a copy of weights).
func FactorExposures(weights []float64, loadings mat.Matrix) ([]float64, error) {
	if loadings == nil {
		return append([]float64(nil), weights...), nil
	}

	rows, cols := loadings.Dims()
	if rows != len(weights) {
		return nil, fmt.Errorf("%w: loadings have %d rows, weights have %d entries", ErrDimensionMismatch, rows, len(weights))
	}

	out := mat.NewVecDense(cols, nil)
	out.MulVec(loadings.T(), mat.NewVecDense(len(weights), append([]float64(nil), weights...)))
	return out.RawVector().Data, nil
}

// PortfolioVariance returns wᵀΣw.
func PortfolioVariance(weights []float64, cov mat.Symmetric) (float64, error) {
	if cov == nil || cov.SymmetricDim() != len(weights) {
		return 0, fmt.Errorf("%w: covariance does not match %d weights", ErrDimensionMismatch, len(weights))
	}
	if len(weights) == 0 {
		return 0, nil
	}
	w := mat.NewVecDense(len(weights), append([]float64(nil), weights...))
	return mat.Inner(w, cov, w), nil
}

// PortfolioVolatility returns sqrt(wᵀΣw). Tiny negative variances from rounding
// on a semidefinite matrix are treated as zero.
func PortfolioVolatility(weights []float64, cov mat.Symmetric) (float64, error) {
	variance, err := PortfolioVariance(weights, cov)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(math.Max(variance, 0)), nil
}

// ParametricVaR returns −z·sqrt(wᵀΣw). The result is a return-space loss (negative
// for z > 0) and assumes normally distributed returns; it is an approximation, not a
// bound on tail losses.
func ParametricVaR(weights []float64, cov mat.Symmetric, z float64) (float64, error) {
	vol, err := PortfolioVolatility(weights, cov)
	if err != nil {
		return 0, err
	}
	return -z * vol, nil
}

// ZScore returns the one-sided standard normal quantile for confidence in (0,1).
func ZScore(confidence float64) (float64, error) {
	if confidence <= 0 || confidence >= 1 || math.IsNaN(confidence) {
		return 0, fmt.Errorf("confidence must be in (0,1), got %v", confidence)
	}
	return distuv.UnitNormal.Quantile(confidence), nil
}
