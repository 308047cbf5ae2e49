package optimization

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// feasibilityEpsilon absorbs float rounding in the static feasibility checks.
const feasibilityEpsilon = 1e-9

// BetaBand constrains the portfolio's exposure to a factor-beta vector to
// [Target-Tolerance, Target+Tolerance].
type BetaBand struct {
	Betas     []float64
	Target    float64
	Tolerance float64
}

// Bounds returns the band edges.
func (b BetaBand) Bounds() (float64, float64) {
	return b.Target - b.Tolerance, b.Target + b.Tolerance
}

// Constraints is the full constraint set of one solve. All slices are parallel to
// the asset universe.
type Constraints struct {
	MinWeights []float64
	MaxWeights []float64
	// GrossMax caps Σ|w_i| and is the exposure the bounds must be able to reach.
	GrossMax float64
	// Sectors maps each asset to its sector; "" leaves the asset unassigned.
	Sectors    []string
	SectorCaps map[string]float64
	Beta       *BetaBand
	// TurnoverLimit caps ‖w - Previous‖₁ when both are set.
	TurnoverLimit *float64
	Previous      []float64
}

// Validate checks that every vector matches the universe size n.
func (c Constraints) Validate(n int) error {
	if len(c.MinWeights) != n || len(c.MaxWeights) != n {
		return fmt.Errorf("%w: weight bounds must have %d entries", ErrInvalidRequest, n)
	}
	if c.GrossMax <= 0 || math.IsNaN(c.GrossMax) {
		return fmt.Errorf("%w: gross cap must be positive, got %v", ErrInvalidRequest, c.GrossMax)
	}
	if c.Sectors != nil && len(c.Sectors) != n {
		return fmt.Errorf("%w: sector membership must have %d entries", ErrInvalidRequest, n)
	}
	for sector, limit := range c.SectorCaps {
		if limit < 0 || math.IsNaN(limit) {
			return fmt.Errorf("%w: sector %s has negative cap %v", ErrInvalidRequest, sector, limit)
		}
	}
	if c.Beta != nil {
		if len(c.Beta.Betas) != n {
			return fmt.Errorf("%w: beta vector must have %d entries", ErrInvalidRequest, n)
		}
		if c.Beta.Tolerance < 0 {
			return fmt.Errorf("%w: beta tolerance must be non-negative", ErrInvalidRequest)
		}
	}
	if c.Previous != nil && len(c.Previous) != n {
		return fmt.Errorf("%w: previous weights must have %d entries", ErrInvalidRequest, n)
	}
	if c.TurnoverLimit != nil && *c.TurnoverLimit < 0 {
		return fmt.Errorf("%w: turnover limit must be non-negative", ErrInvalidRequest)
	}
	return nil
}

// hasTurnover reports whether the turnover projection applies.
func (c Constraints) hasTurnover() bool {
	return c.TurnoverLimit != nil && c.Previous != nil
}

// sectorMembers groups asset indices by sector for sectors that carry a cap,
// in sorted sector order so projections are deterministic.
func (c Constraints) sectorMembers() ([]string, map[string][]int) {
	members := make(map[string][]int)
	for i, sector := range c.Sectors {
		if sector == "" {
			continue
		}
		if _, capped := c.SectorCaps[sector]; capped {
			members[sector] = append(members[sector], i)
		}
	}
	names := make([]string, 0, len(members))
	for sector := range members {
		names = append(names, sector)
	}
	sort.Strings(names)
	return names, members
}

// CheckFeasibility detects constraint sets the per-name bounds make unsatisfiable.
// Joint infeasibility that only shows up when combining steps is reported by Solve.
func (c Constraints) CheckFeasibility() error {
	minGross, maxGross := 0.0, 0.0
	for i := range c.MinWeights {
		lo, hi := c.MinWeights[i], c.MaxWeights[i]
		if lo > hi+feasibilityEpsilon {
			return fmt.Errorf("%w: asset %d has lower bound %.6f above upper bound %.6f", ErrInfeasibleConstraints, i, lo, hi)
		}
		minGross += distanceToInterval(0, lo, hi)
		maxGross += math.Max(math.Abs(lo), math.Abs(hi))
	}

	if minGross > c.GrossMax+feasibilityEpsilon {
		return fmt.Errorf("%w: bounds force gross exposure %.6f above cap %.6f", ErrInfeasibleConstraints, minGross, c.GrossMax)
	}
	if maxGross < c.GrossMax-feasibilityEpsilon {
		return fmt.Errorf("%w: bounds allow at most %.6f gross exposure, cap is %.6f", ErrInfeasibleConstraints, maxGross, c.GrossMax)
	}

	names, members := c.sectorMembers()
	for _, sector := range names {
		minLong := 0.0
		for _, i := range members[sector] {
			minLong += math.Max(c.MinWeights[i], 0)
		}
		if minLong > c.SectorCaps[sector]+feasibilityEpsilon {
			return fmt.Errorf("%w: sector %s needs at least %.6f long exposure, cap is %.6f",
				ErrInfeasibleConstraints, sector, minLong, c.SectorCaps[sector])
		}
	}

	if c.Beta != nil {
		lowest, highest := 0.0, 0.0
		for i, beta := range c.Beta.Betas {
			a, b := beta*c.MinWeights[i], beta*c.MaxWeights[i]
			lowest += math.Min(a, b)
			highest += math.Max(a, b)
		}
		lo, hi := c.Beta.Bounds()
		if highest < lo-feasibilityEpsilon || lowest > hi+feasibilityEpsilon {
			return fmt.Errorf("%w: beta band [%.4f, %.4f] unreachable, bounds allow [%.4f, %.4f]",
				ErrInfeasibleConstraints, lo, hi, lowest, highest)
		}
	}

	if c.hasTurnover() {
		required := 0.0
		for i, prev := range c.Previous {
			required += distanceToInterval(prev, c.MinWeights[i], c.MaxWeights[i])
		}
		if required > *c.TurnoverLimit+feasibilityEpsilon {
			return fmt.Errorf("%w: reaching the bounds needs turnover %.6f, limit is %.6f",
				ErrInfeasibleConstraints, required, *c.TurnoverLimit)
		}
	}

	return nil
}

// Violation returns the largest constraint violation of w (0 when feasible).
func (c Constraints) Violation(w []float64) float64 {
	worst := 0.0
	for i, wi := range w {
		worst = math.Max(worst, c.MinWeights[i]-wi)
		worst = math.Max(worst, wi-c.MaxWeights[i])
	}

	worst = math.Max(worst, floats.Norm(w, 1)-c.GrossMax)

	names, members := c.sectorMembers()
	for _, sector := range names {
		worst = math.Max(worst, longExposure(w, members[sector])-c.SectorCaps[sector])
	}

	if c.Beta != nil {
		exposure := floats.Dot(c.Beta.Betas, w)
		lo, hi := c.Beta.Bounds()
		worst = math.Max(worst, lo-exposure)
		worst = math.Max(worst, exposure-hi)
	}

	if c.hasTurnover() {
		worst = math.Max(worst, floats.Distance(w, c.Previous, 1)-*c.TurnoverLimit)
	}

	return worst
}

// ConstraintsSummary describes a constraint set for diagnostics.
type ConstraintsSummary struct {
	Assets         int     `json:"assets"`
	GrossMax       float64 `json:"gross_max"`
	TotalMinWeight float64 `json:"total_min_weight"`
	TotalMaxWeight float64 `json:"total_max_weight"`
	CappedSectors  int     `json:"capped_sectors"`
	HasBetaBand    bool    `json:"has_beta_band"`
	HasTurnoverCap bool    `json:"has_turnover_cap"`
}

// Summary generates a summary of the constraint set.
func (c Constraints) Summary() ConstraintsSummary {
	summary := ConstraintsSummary{
		Assets:         len(c.MinWeights),
		GrossMax:       c.GrossMax,
		HasBetaBand:    c.Beta != nil,
		HasTurnoverCap: c.hasTurnover(),
	}
	for i := range c.MinWeights {
		summary.TotalMinWeight += c.MinWeights[i]
		summary.TotalMaxWeight += c.MaxWeights[i]
	}
	names, _ := c.sectorMembers()
	summary.CappedSectors = len(names)
	return summary
}

func distanceToInterval(x, lo, hi float64) float64 {
	switch {
	case x < lo:
		return lo - x
	case x > hi:
		return x - hi
	default:
		return 0
	}
}

func longExposure(w []float64, idxs []int) float64 {
	total := 0.0
	for _, i := range idxs {
		if w[i] > 0 {
			total += w[i]
		}
	}
	return total
}
