package optimization

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// DateLayout is the calendar-date format used on the request boundary.
const DateLayout = "2006-01-02"

// WeightBounds overrides the per-name bounds for one symbol.
type WeightBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// OptimizationRequest is the input of one optimize call. All vectors are parallel to
// Universe.
type OptimizationRequest struct {
	AsOf string `json:"asof,omitempty"`
	Book string `json:"book,omitempty"`

	Universe        []string  `json:"universe"`
	ExpectedReturns []float64 `json:"expected_returns"`

	// Returns supplies the T×N log-return window inline. When empty the window is
	// resolved from stored closes ending at AsOf.
	Returns           [][]float64 `json:"returns,omitempty"`
	ReturnsWindowDays int         `json:"returns_window_days,omitempty"`
	Shrinkage         *float64    `json:"shrinkage,omitempty"`

	GrossMax   float64                 `json:"gross_max"`
	PerNameMin float64                 `json:"per_name_min"`
	PerNameMax float64                 `json:"per_name_max"`
	NameBounds map[string]WeightBounds `json:"name_bounds,omitempty"`

	Sectors    map[string]string  `json:"sectors,omitempty"`
	SectorCaps map[string]float64 `json:"sector_caps,omitempty"`

	Betas         []float64 `json:"betas,omitempty"`
	BetaTarget    *float64  `json:"beta_target,omitempty"`
	BetaTolerance *float64  `json:"beta_tolerance,omitempty"`

	TurnoverLimit *float64  `json:"turnover_limit,omitempty"`
	PrevWeights   []float64 `json:"prev_weights,omitempty"`

	// FactorLoadings is N×K; nil reports per-asset exposures.
	FactorLoadings [][]float64 `json:"factor_loadings,omitempty"`
}

// SymbolWeight is one entry of the solved weight vector.
type SymbolWeight struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// OptimizationResponse is the output of one optimize call.
type OptimizationResponse struct {
	Weights   []SymbolWeight `json:"weights"`
	VaR95     float64        `json:"var95"`
	Exposures []float64      `json:"exposures"`

	Volatility    float64 `json:"volatility"`
	GrossExposure float64 `json:"gross_exposure"`
	Iterations    int     `json:"iterations"`
	Converged     bool    `json:"converged"`
	Degenerate    bool    `json:"degenerate"`
	CacheHit      bool    `json:"cache_hit"`
}

// Validate checks the request shape. Contradictory but well-formed constraints are
// left to CheckFeasibility.
func (r *OptimizationRequest) Validate() error {
	n := len(r.Universe)
	if n == 0 {
		return fmt.Errorf("%w: universe is empty", ErrInvalidRequest)
	}

	seen := make(map[string]bool, n)
	for _, symbol := range r.Universe {
		if symbol == "" {
			return fmt.Errorf("%w: universe contains an empty symbol", ErrInvalidRequest)
		}
		if seen[symbol] {
			return fmt.Errorf("%w: duplicate symbol %s in universe", ErrInvalidRequest, symbol)
		}
		seen[symbol] = true
	}

	if len(r.ExpectedReturns) != n {
		return fmt.Errorf("%w: expected returns have %d entries, universe has %d", ErrInvalidRequest, len(r.ExpectedReturns), n)
	}
	if r.GrossMax <= 0 || math.IsNaN(r.GrossMax) {
		return fmt.Errorf("%w: gross_max must be positive", ErrInvalidRequest)
	}

	for symbol := range r.NameBounds {
		if !seen[symbol] {
			return fmt.Errorf("%w: bounds given for %s which is not in the universe", ErrInvalidRequest, symbol)
		}
	}
	for symbol := range r.Sectors {
		if !seen[symbol] {
			return fmt.Errorf("%w: sector given for %s which is not in the universe", ErrInvalidRequest, symbol)
		}
	}

	if r.Betas != nil {
		if len(r.Betas) != n {
			return fmt.Errorf("%w: betas have %d entries, universe has %d", ErrInvalidRequest, len(r.Betas), n)
		}
		if r.BetaTarget == nil {
			return fmt.Errorf("%w: beta_target is required with betas", ErrInvalidRequest)
		}
	}
	if r.PrevWeights != nil && len(r.PrevWeights) != n {
		return fmt.Errorf("%w: prev_weights have %d entries, universe has %d", ErrInvalidRequest, len(r.PrevWeights), n)
	}
	if r.TurnoverLimit != nil && r.PrevWeights == nil {
		return fmt.Errorf("%w: turnover_limit requires prev_weights", ErrInvalidRequest)
	}

	if r.FactorLoadings != nil {
		if len(r.FactorLoadings) != n {
			return fmt.Errorf("%w: factor loadings have %d rows, universe has %d", ErrInvalidRequest, len(r.FactorLoadings), n)
		}
		k := len(r.FactorLoadings[0])
		if k == 0 {
			return fmt.Errorf("%w: factor loadings have no factors", ErrInvalidRequest)
		}
		for i, row := range r.FactorLoadings {
			if len(row) != k {
				return fmt.Errorf("%w: factor loading row %d has %d factors, expected %d", ErrInvalidRequest, i, len(row), k)
			}
		}
	}

	if r.AsOf != "" {
		if _, err := time.Parse(DateLayout, r.AsOf); err != nil {
			return fmt.Errorf("%w: asof must be YYYY-MM-DD: %v", ErrInvalidRequest, err)
		}
	}
	if r.ReturnsWindowDays < 0 {
		return fmt.Errorf("%w: returns_window_days must be non-negative", ErrInvalidRequest)
	}
	if r.Shrinkage != nil && (*r.Shrinkage < 0 || *r.Shrinkage > 1) {
		return fmt.Errorf("%w: shrinkage must be in [0,1]", ErrInvalidRequest)
	}

	return nil
}

// Constraints builds the solver constraint set from the request.
func (r *OptimizationRequest) Constraints() Constraints {
	n := len(r.Universe)
	c := Constraints{
		MinWeights:    make([]float64, n),
		MaxWeights:    make([]float64, n),
		GrossMax:      r.GrossMax,
		SectorCaps:    r.SectorCaps,
		TurnoverLimit: r.TurnoverLimit,
		Previous:      r.PrevWeights,
	}

	for i, symbol := range r.Universe {
		c.MinWeights[i], c.MaxWeights[i] = r.PerNameMin, r.PerNameMax
		if b, ok := r.NameBounds[symbol]; ok {
			c.MinWeights[i], c.MaxWeights[i] = b.Min, b.Max
		}
	}

	if len(r.Sectors) > 0 {
		c.Sectors = make([]string, n)
		for i, symbol := range r.Universe {
			c.Sectors[i] = r.Sectors[symbol]
		}
	}

	if r.Betas != nil && r.BetaTarget != nil {
		band := &BetaBand{Betas: r.Betas, Target: *r.BetaTarget}
		if r.BetaTolerance != nil {
			band.Tolerance = *r.BetaTolerance
		}
		c.Beta = band
	}

	return c
}

// Loadings returns the factor loadings as a matrix, or nil when none were supplied.
func (r *OptimizationRequest) Loadings() mat.Matrix {
	if r.FactorLoadings == nil {
		return nil
	}
	n, k := len(r.FactorLoadings), len(r.FactorLoadings[0])
	m := mat.NewDense(n, k, nil)
	for i, row := range r.FactorLoadings {
		m.SetRow(i, row)
	}
	return m
}
