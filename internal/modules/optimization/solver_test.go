package optimization

import (
	"testing"

	testingpkg "github.com/aristath/meridian/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func diagonalCovariance(t *testing.T, n int, variance float64) CovarianceMatrix {
	t.Helper()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		rows[i][i] = variance
	}
	cov, err := NewCovarianceMatrix(rows)
	require.NoError(t, err)
	return cov
}

func TestSolve_SymmetricInputsGiveEqualWeights(t *testing.T) {
	mins, maxs := uniformBounds(2, 0, 1)
	problem := Problem{
		ExpectedReturns: []float64{0.01, 0.01},
		Covariance:      diagonalCovariance(t, 2, 0.01),
		Constraints:     Constraints{MinWeights: mins, MaxWeights: maxs, GrossMax: 1},
	}

	result, err := Solve(problem, DefaultSolverConfig())
	require.NoError(t, err)

	require.Len(t, result.Weights, 2)
	assert.Equal(t, result.Weights[0], result.Weights[1])
	assert.True(t, result.Converged)
	assert.False(t, result.Degenerate)
	assert.LessOrEqual(t, floats.Norm(result.Weights, 1), 1+1e-6)
}

func TestSolve_PerNameMaxBelowEqualWeightIsInfeasible(t *testing.T) {
	mins, maxs := uniformBounds(4, 0, 0.2)
	problem := Problem{
		ExpectedReturns: []float64{0.01, 0.02, 0.03, 0.04},
		Covariance:      diagonalCovariance(t, 4, 0.01),
		Constraints:     Constraints{MinWeights: mins, MaxWeights: maxs, GrossMax: 1},
	}

	result, err := Solve(problem, DefaultSolverConfig())
	assert.ErrorIs(t, err, ErrInfeasibleConstraints)
	assert.Nil(t, result.Weights)
}

func TestSolve_FavorsHigherExpectedReturn(t *testing.T) {
	mins, maxs := uniformBounds(2, 0, 1)
	problem := Problem{
		ExpectedReturns: []float64{0.02, 0.0},
		Covariance:      diagonalCovariance(t, 2, 0.01),
		Constraints:     Constraints{MinWeights: mins, MaxWeights: maxs, GrossMax: 1},
	}

	result, err := Solve(problem, DefaultSolverConfig())
	require.NoError(t, err)
	assert.Greater(t, result.Weights[0], result.Weights[1])
}

func TestSolve_ConstraintInvariants(t *testing.T) {
	symbols := testingpkg.NewSymbolFixtures()
	series := ReturnSeries{Symbols: symbols, Rows: testingpkg.NewReturnFixtures(len(symbols), 60, 7)}
	cov, err := EstimateCovariance(series, DefaultShrinkage)
	require.NoError(t, err)

	mins, maxs := uniformBounds(4, 0, 0.4)
	prev := []float64{0.25, 0.25, 0.25, 0.25}
	cons := Constraints{
		MinWeights:    mins,
		MaxWeights:    maxs,
		GrossMax:      1,
		Sectors:       []string{"tech", "tech", "energy", "financials"},
		SectorCaps:    map[string]float64{"tech": 0.45},
		Previous:      prev,
		TurnoverLimit: floatPtr(0.3),
	}
	problem := Problem{
		ExpectedReturns: []float64{0.004, 0.003, -0.001, 0.002},
		Covariance:      cov,
		Constraints:     cons,
		WarmStart:       prev,
	}

	result, err := Solve(problem, DefaultSolverConfig())
	require.NoError(t, err)

	const eps = 1e-6
	w := result.Weights
	assert.LessOrEqual(t, floats.Norm(w, 1), 1+eps)
	for i, wi := range w {
		assert.GreaterOrEqual(t, wi, mins[i]-eps)
		assert.LessOrEqual(t, wi, maxs[i]+eps)
	}
	assert.LessOrEqual(t, longExposure(w, []int{0, 1}), 0.45+eps)
	assert.LessOrEqual(t, floats.Distance(w, prev, 1), 0.3+eps)
	assert.Greater(t, result.Iterations, 0)
}

func TestSolve_BetaBandHolds(t *testing.T) {
	mins, maxs := uniformBounds(3, 0, 0.6)
	betas := []float64{1.4, 1.0, 0.5}
	problem := Problem{
		ExpectedReturns: []float64{0.03, 0.01, 0.005},
		Covariance:      diagonalCovariance(t, 3, 0.02),
		Constraints: Constraints{
			MinWeights: mins,
			MaxWeights: maxs,
			GrossMax:   1,
			Beta:       &BetaBand{Betas: betas, Target: 0.9, Tolerance: 0.05},
		},
	}

	result, err := Solve(problem, DefaultSolverConfig())
	require.NoError(t, err)

	exposure := floats.Dot(betas, result.Weights)
	assert.GreaterOrEqual(t, exposure, 0.85-1e-6)
	assert.LessOrEqual(t, exposure, 0.95+1e-6)
}

func TestSolve_BetaBandWithTurnoverLimit(t *testing.T) {
	mins, maxs := uniformBounds(4, 0, 0.6)
	betas := []float64{1.3, 1.1, 0.8, 0.6}
	prev := []float64{0.25, 0.25, 0.25, 0.25}
	problem := Problem{
		ExpectedReturns: []float64{0.002, 0.004, 0.003, 0.001},
		Covariance:      diagonalCovariance(t, 4, 0.03),
		Constraints: Constraints{
			MinWeights:    mins,
			MaxWeights:    maxs,
			GrossMax:      1,
			Beta:          &BetaBand{Betas: betas, Target: 1.0, Tolerance: 0.02},
			Previous:      prev,
			TurnoverLimit: floatPtr(0.4),
		},
		WarmStart: prev,
	}

	result, err := Solve(problem, DefaultSolverConfig())
	require.NoError(t, err)

	const eps = 1e-6
	w := result.Weights
	assert.LessOrEqual(t, problem.Constraints.Violation(w), eps)
	assert.LessOrEqual(t, floats.Norm(w, 1), 1+eps)
	exposure := floats.Dot(betas, w)
	assert.GreaterOrEqual(t, exposure, 0.98-eps)
	assert.LessOrEqual(t, exposure, 1.02+eps)
	assert.LessOrEqual(t, floats.Distance(w, prev, 1), 0.4+eps)
}

func TestProject_AcceptsResidualWithinTolerance(t *testing.T) {
	mins, maxs := uniformBounds(2, 0, 0.5)
	s := solver{
		cons:  Constraints{MinWeights: mins, MaxWeights: maxs, GrossMax: 1},
		steps: []ProjectionStep{{Name: "none", Apply: func([]float64) {}}},
		cfg:   DefaultSolverConfig(),
	}

	assert.True(t, s.project([]float64{0.5 + 5e-8, 0.5}), "residual below the tolerance is feasible")
	assert.False(t, s.project([]float64{0.5 + 1e-5, 0.5}))
	assert.Equal(t, 1e-6, DefaultSolverConfig().FeasibilityTolerance)
}

func TestSolve_SingularCovarianceIsDegenerateNotFatal(t *testing.T) {
	mins, maxs := uniformBounds(2, 0, 1)
	warm := []float64{0.7, 0.3}
	problem := Problem{
		ExpectedReturns: []float64{0, 0},
		Covariance:      diagonalCovariance(t, 2, 0),
		Constraints:     Constraints{MinWeights: mins, MaxWeights: maxs, GrossMax: 1},
		WarmStart:       warm,
	}

	result, err := Solve(problem, DefaultSolverConfig())
	require.NoError(t, err)
	assert.True(t, result.Degenerate)
	assert.True(t, result.Converged)
	assert.Equal(t, 1, result.Iterations)
	assert.InDeltaSlice(t, warm, result.Weights, 1e-12)
}

func TestSolve_BudgetExhaustionReturnsFeasibleWeights(t *testing.T) {
	mins, maxs := uniformBounds(3, 0, 0.8)
	cfg := DefaultSolverConfig()
	cfg.MaxIterations = 2
	cfg.StepSize = 0.01

	problem := Problem{
		ExpectedReturns: []float64{0.05, 0.01, 0.0},
		Covariance:      diagonalCovariance(t, 3, 0.04),
		Constraints:     Constraints{MinWeights: mins, MaxWeights: maxs, GrossMax: 1},
	}

	result, err := Solve(problem, cfg)
	require.NoError(t, err)
	assert.False(t, result.Converged)
	assert.Equal(t, 2, result.Iterations)
	assert.LessOrEqual(t, floats.Norm(result.Weights, 1), 1+1e-6)
}

func TestSolve_InvalidInputs(t *testing.T) {
	mins, maxs := uniformBounds(2, 0, 1)
	cons := Constraints{MinWeights: mins, MaxWeights: maxs, GrossMax: 1}

	_, err := Solve(Problem{Covariance: diagonalCovariance(t, 2, 0.01), Constraints: cons}, DefaultSolverConfig())
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = Solve(Problem{
		ExpectedReturns: []float64{0.01, 0.02},
		Covariance:      diagonalCovariance(t, 3, 0.01),
		Constraints:     cons,
	}, DefaultSolverConfig())
	assert.ErrorIs(t, err, ErrInvalidRequest)

	cfg := DefaultSolverConfig()
	cfg.StepSize = 0
	_, err = Solve(Problem{
		ExpectedReturns: []float64{0.01, 0.02},
		Covariance:      diagonalCovariance(t, 2, 0.01),
		Constraints:     cons,
	}, cfg)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestClosedFormSeed(t *testing.T) {
	t.Run("normalized inverse", func(t *testing.T) {
		seed := closedFormSeed([]float64{0.01, 0.03}, diagonalCovariance(t, 2, 0.01), false)
		assert.InDeltaSlice(t, []float64{0.25, 0.75}, seed, 1e-12)
	})

	t.Run("singular uses covariance in place of inverse", func(t *testing.T) {
		cov, err := NewCovarianceMatrix([][]float64{{1, 1}, {1, 1}})
		require.NoError(t, err)
		require.True(t, cov.IsSingular())

		seed := closedFormSeed([]float64{1, 2}, cov, true)
		assert.InDeltaSlice(t, []float64{0.5, 0.5}, seed, 1e-12)
	})

	t.Run("zero sum skips normalization", func(t *testing.T) {
		seed := closedFormSeed([]float64{1, -1}, diagonalCovariance(t, 2, 1), false)
		assert.InDeltaSlice(t, []float64{1, -1}, seed, 1e-12)
	})
}

func TestSolve_SeedFromClosedForm(t *testing.T) {
	mins, maxs := uniformBounds(2, 0, 1)
	cfg := DefaultSolverConfig()
	cfg.SeedFromClosedForm = true

	problem := Problem{
		ExpectedReturns: []float64{0.01, 0.03},
		Covariance:      diagonalCovariance(t, 2, 0.01),
		Constraints:     Constraints{MinWeights: mins, MaxWeights: maxs, GrossMax: 1},
	}

	result, err := Solve(problem, cfg)
	require.NoError(t, err)
	assert.Greater(t, result.Weights[1], result.Weights[0])
	assert.LessOrEqual(t, floats.Norm(result.Weights, 1), 1+1e-6)
}
