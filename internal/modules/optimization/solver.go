package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultFeasibilityTolerance is the constraint violation a returned weight vector
// may carry.
const DefaultFeasibilityTolerance = 1e-6

// SolverConfig holds the projected-gradient parameters.
type SolverConfig struct {
	RiskAversion  float64 // λ, weight on expected return
	StepSize      float64 // η
	MaxIterations int
	// Tolerance is the max per-asset weight change that counts as converged.
	Tolerance float64
	// FeasibilityTolerance is the largest violation accepted after projection.
	FeasibilityTolerance float64
	// MaxProjectionPasses bounds the cycles over the projection steps per iteration.
	MaxProjectionPasses int
	// SeedFromClosedForm starts from Σ⁻¹μ (normalized) instead of equal weights.
	SeedFromClosedForm bool
}

// DefaultSolverConfig returns the standard solver parameters.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		RiskAversion:         1.0,
		StepSize:             0.5,
		MaxIterations:        500,
		Tolerance:            1e-9,
		FeasibilityTolerance: DefaultFeasibilityTolerance,
		MaxProjectionPasses:  200,
	}
}

// Validate checks the solver parameters.
func (c SolverConfig) Validate() error {
	if c.StepSize <= 0 {
		return fmt.Errorf("%w: step size must be positive", ErrInvalidRequest)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: iteration budget must be at least 1", ErrInvalidRequest)
	}
	if c.Tolerance <= 0 || c.FeasibilityTolerance <= 0 {
		return fmt.Errorf("%w: tolerances must be positive", ErrInvalidRequest)
	}
	if c.MaxProjectionPasses < 1 {
		return fmt.Errorf("%w: projection passes must be at least 1", ErrInvalidRequest)
	}
	return nil
}

// Problem is one mean-variance solve.
type Problem struct {
	ExpectedReturns []float64
	Covariance      CovarianceMatrix
	Constraints     Constraints
	// WarmStart seeds the iteration when it has any non-zero entry.
	WarmStart []float64
}

// Result is the solver output.
type Result struct {
	Weights    []float64
	Iterations int
	Converged  bool
	// Degenerate is set when the covariance is not positive definite.
	Degenerate bool
	Objective  float64
}

// Solve minimizes ½wᵀΣw − λμᵀw over the constraint set by projected gradient descent.
// If the iteration budget runs out, the feasible iterate with the lowest objective is
// returned with Converged=false.
func Solve(p Problem, cfg SolverConfig) (Result, error) {
	n := len(p.ExpectedReturns)
	if n == 0 {
		return Result{}, fmt.Errorf("%w: empty universe", ErrInvalidRequest)
	}
	if p.Covariance.N() != n {
		return Result{}, fmt.Errorf("%w: covariance is %dx%d, universe has %d assets", ErrInvalidRequest, p.Covariance.N(), p.Covariance.N(), n)
	}
	if p.WarmStart != nil && len(p.WarmStart) != n {
		return Result{}, fmt.Errorf("%w: warm start must have %d entries", ErrInvalidRequest, n)
	}
	for i, mu := range p.ExpectedReturns {
		if math.IsNaN(mu) || math.IsInf(mu, 0) {
			return Result{}, fmt.Errorf("%w: expected return %d is not finite", ErrInvalidRequest, i)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if err := p.Constraints.Validate(n); err != nil {
		return Result{}, err
	}
	if err := p.Constraints.CheckFeasibility(); err != nil {
		return Result{}, err
	}

	s := solver{
		mu:    p.ExpectedReturns,
		sigma: p.Covariance,
		cons:  p.Constraints,
		steps: p.Constraints.Steps(),
		cfg:   cfg,
	}
	degenerate := p.Covariance.IsSingular()

	w := s.initialWeights(p.WarmStart, degenerate)
	if !s.project(w) {
		return Result{}, fmt.Errorf("%w: projections did not reach a feasible starting point (violation %.3g)",
			ErrInfeasibleConstraints, p.Constraints.Violation(w))
	}

	best := append([]float64(nil), w...)
	bestObjective := s.objective(w)

	result := Result{Degenerate: degenerate}
	candidate := make([]float64, n)
	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		result.Iterations = iter

		grad := s.gradient(w)
		for i := range candidate {
			candidate[i] = w[i] - cfg.StepSize*grad[i]
		}
		if !s.project(candidate) {
			break
		}

		change := floats.Distance(candidate, w, math.Inf(1))
		copy(w, candidate)

		obj := s.objective(w)
		if obj < bestObjective {
			bestObjective = obj
			copy(best, w)
		}

		if change < cfg.Tolerance {
			result.Converged = true
			break
		}
	}

	if result.Converged {
		result.Weights = w
		result.Objective = s.objective(w)
	} else {
		result.Weights = best
		result.Objective = bestObjective
	}
	return result, nil
}

type solver struct {
	mu    []float64
	sigma CovarianceMatrix
	cons  Constraints
	steps []ProjectionStep
	cfg   SolverConfig
}

func (s solver) initialWeights(warm []float64, degenerate bool) []float64 {
	n := len(s.mu)
	if warm != nil && floats.Norm(warm, math.Inf(1)) > 0 {
		return append([]float64(nil), warm...)
	}
	if s.cfg.SeedFromClosedForm {
		if seed := closedFormSeed(s.mu, s.sigma, degenerate); seed != nil {
			return seed
		}
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// project cycles the projection steps until the point is feasible.
func (s solver) project(w []float64) bool {
	for pass := 0; pass < s.cfg.MaxProjectionPasses; pass++ {
		for _, step := range s.steps {
			step.Apply(w)
		}
		if s.cons.Violation(w) <= s.cfg.FeasibilityTolerance {
			return true
		}
	}
	return false
}

func (s solver) objective(w []float64) float64 {
	return 0.5*floats.Dot(w, s.sigma.MulVec(w)) - s.cfg.RiskAversion*floats.Dot(s.mu, w)
}

func (s solver) gradient(w []float64) []float64 {
	grad := s.sigma.MulVec(w)
	floats.AddScaled(grad, -s.cfg.RiskAversion, s.mu)
	return grad
}

// closedFormSeed returns Σ⁻¹μ normalized to unit sum. A singular Σ is used in place
// of its inverse. Normalization is skipped when the sum is within 1e-9 of zero.
func closedFormSeed(mu []float64, sigma CovarianceMatrix, degenerate bool) []float64 {
	n := len(mu)
	muVec := mat.NewVecDense(n, append([]float64(nil), mu...))
	out := mat.NewVecDense(n, nil)

	if degenerate {
		out.MulVec(sigma.Symmetric(), muVec)
	} else {
		var chol mat.Cholesky
		if !chol.Factorize(sigma.Symmetric()) {
			out.MulVec(sigma.Symmetric(), muVec)
		} else if err := chol.SolveVecTo(out, muVec); err != nil {
			return nil
		}
	}

	w := append([]float64(nil), out.RawVector().Data...)
	if floats.Norm(w, math.Inf(1)) == 0 {
		return nil
	}
	if sum := floats.Sum(w); math.Abs(sum) > 1e-9 {
		floats.Scale(1/sum, w)
	}
	return w
}
