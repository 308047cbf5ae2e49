package optimization

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ProjectionStep maps a weight vector (in place) onto one constraint's feasible set.
type ProjectionStep struct {
	Name  string
	Apply func(w []float64)
}

// Steps returns the projection sequence for the constraint set:
// box, gross, sector, beta, turnover. Optional steps are omitted when unset.
func (c Constraints) Steps() []ProjectionStep {
	steps := []ProjectionStep{
		{Name: "box", Apply: c.projectBox},
		{Name: "gross", Apply: func(w []float64) { projectL1Ball(w, c.GrossMax) }},
	}

	if names, members := c.sectorMembers(); len(names) > 0 {
		steps = append(steps, ProjectionStep{Name: "sector", Apply: func(w []float64) {
			for _, sector := range names {
				scaleSector(w, members[sector], c.SectorCaps[sector])
			}
		}})
	}

	if c.Beta != nil {
		steps = append(steps, ProjectionStep{Name: "beta", Apply: c.projectBeta})
	}

	if c.hasTurnover() {
		steps = append(steps, ProjectionStep{Name: "turnover", Apply: c.projectTurnover})
	}

	return steps
}

func (c Constraints) projectBox(w []float64) {
	for i := range w {
		w[i] = math.Min(math.Max(w[i], c.MinWeights[i]), c.MaxWeights[i])
	}
}

// scaleSector rescales the positive weights of a sector so its long exposure
// does not exceed limit.
func scaleSector(w []float64, idxs []int, limit float64) {
	long := longExposure(w, idxs)
	if long <= limit || long == 0 {
		return
	}
	factor := limit / long
	for _, i := range idxs {
		if w[i] > 0 {
			w[i] *= factor
		}
	}
}

// projectBeta moves w along the beta vector onto the nearest band edge.
func (c Constraints) projectBeta(w []float64) {
	betas := c.Beta.Betas
	norm := floats.Dot(betas, betas)
	if norm == 0 {
		return
	}

	exposure := floats.Dot(betas, w)
	lo, hi := c.Beta.Bounds()
	var edge float64
	switch {
	case exposure < lo:
		edge = lo
	case exposure > hi:
		edge = hi
	default:
		return
	}

	floats.AddScaled(w, (edge-exposure)/norm, betas)
}

// projectTurnover pulls w into the L1 ball of radius TurnoverLimit around Previous.
func (c Constraints) projectTurnover(w []float64) {
	delta := make([]float64, len(w))
	floats.SubTo(delta, w, c.Previous)
	projectL1Ball(delta, *c.TurnoverLimit)
	floats.AddTo(w, c.Previous, delta)
}

// projectL1Ball computes the Euclidean projection of v onto {x : ‖x‖₁ ≤ radius}
// in place, via the sorted cumulative-sum threshold.
func projectL1Ball(v []float64, radius float64) {
	if radius <= 0 {
		for i := range v {
			v[i] = 0
		}
		return
	}
	if floats.Norm(v, 1) <= radius {
		return
	}

	abs := make([]float64, len(v))
	for i, x := range v {
		abs[i] = math.Abs(x)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(abs)))

	cumulative := 0.0
	theta := 0.0
	for k, u := range abs {
		cumulative += u
		candidate := (cumulative - radius) / float64(k+1)
		if u-candidate > 0 {
			theta = candidate
		}
	}

	for i, x := range v {
		shrunk := math.Max(math.Abs(x)-theta, 0)
		v[i] = math.Copysign(shrunk, x)
	}
}
