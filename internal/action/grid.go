package action

import (
	"fmt"
	"math"
)

// Grid is the finite ordered set of values feature Feature may move to from
// Current. Values moving up come first, in increasing step order, followed
// by values moving down. Steps[k] is the number of grid steps Values[k] is
// away from Current and is the basis of its cost.
type Grid struct {
	Feature int
	Name    string
	Current float64
	Values  []float64
	Steps   []int
}

// Len returns the number of alternative values.
func (g Grid) Len() int { return len(g.Values) }

// Empty reports whether the feature cannot change.
func (g Grid) Empty() bool { return len(g.Values) == 0 }

// Delta returns the change in feature value for grid point k.
func (g Grid) Delta(k int) float64 { return g.Values[k] - g.Current }

// Lookup returns the grid point whose value equals v.
func (g Grid) Lookup(v float64) (int, bool) {
	for k, gv := range g.Values {
		if math.Abs(gv-v) <= tolerance*math.Max(1, math.Abs(v)) {
			return k, true
		}
	}
	return -1, false
}

// Grids builds the grid of every feature for subject x.
func (as *ActionSet) Grids(x []float64) ([]Grid, error) {
	if len(x) != len(as.specs) {
		return nil, fmt.Errorf("%w: subject has %d values, action set has %d features", ErrDimension, len(x), len(as.specs))
	}
	grids := make([]Grid, len(x))
	for j := range as.specs {
		g, err := as.Grid(j, x[j])
		if err != nil {
			return nil, err
		}
		grids[j] = g
	}
	return grids, nil
}

// Grid builds the grid of feature j for current value x. It depends only on
// the feature spec, the alignment and x.
func (as *ActionSet) Grid(j int, x float64) (Grid, error) {
	if j < 0 || j >= len(as.specs) {
		return Grid{}, fmt.Errorf("%w: feature index %d", ErrDimension, j)
	}
	s := as.specs[j]
	g := Grid{Feature: j, Name: s.Name, Current: x}
	if math.IsNaN(x) || !s.Bounds.Contains(x) {
		return Grid{}, &ConfigError{
			Feature:  s.Name,
			Property: PropBounds,
			Reason:   fmt.Sprintf("value %v outside [%v, %v]", x, s.Bounds.Lower, s.Bounds.Upper),
			Err:      ErrOutOfBounds,
		}
	}

	up, down := as.directions(j)
	if !up && !down {
		return g, nil
	}

	switch {
	case s.ValueType == Binary && (x == 0 || x == 1):
		if up && x == 0 && s.Bounds.Contains(1) {
			g.add(1, 1)
		}
		if down && x == 1 && s.Bounds.Contains(0) {
			g.add(0, 1)
		}
	case s.StepType == Percentile:
		d := as.dists[j]
		if d == nil {
			return Grid{}, &ConfigError{Feature: s.Name, Property: PropStepType, Reason: "percentile steps need observed data", Err: ErrNoDistribution}
		}
		if up {
			as.percentileSide(&g, d, s, 1)
		}
		if down {
			as.percentileSide(&g, d, s, -1)
		}
	default:
		if up {
			as.absoluteSide(&g, s, 1)
		}
		if down {
			as.absoluteSide(&g, s, -1)
		}
	}
	return g, nil
}

// directions returns which ways feature j may move: the pinned direction,
// intersected with the alignment once it is set.
func (as *ActionSet) directions(j int) (up, down bool) {
	s := as.specs[j]
	if !s.Actionable {
		return false, false
	}
	up = s.StepDirection != Decrease
	down = s.StepDirection != Increase
	if as.alignment != nil {
		switch as.alignment[j] {
		case 1:
			down = false
		case -1:
			up = false
		default:
			up, down = false, false
		}
	}
	return up, down
}

func (as *ActionSet) absoluteSide(g *Grid, s FeatureSpec, dir float64) {
	for k := 1; k <= as.maxGridPoints; k++ {
		v := g.Current + dir*float64(k)*s.StepSize
		if !s.Bounds.Contains(v) {
			return
		}
		g.add(v, k)
	}
}

func (as *ActionSet) percentileSide(g *Grid, d *ecdf, s FeatureSpec, dir float64) {
	p0 := d.CDF(g.Current)
	last := g.Current
	steps := 0
	for k := 1; steps < as.maxGridPoints; k++ {
		p := p0 + dir*float64(k)*s.StepSize
		if p < -tolerance || p > 1+tolerance {
			return
		}
		v := d.Quantile(p)
		if dir > 0 && v <= last || dir < 0 && v >= last {
			continue
		}
		if !s.Bounds.Contains(v) {
			return
		}
		steps++
		g.add(v, steps)
		last = v
	}
}

func (g *Grid) add(v float64, steps int) {
	g.Values = append(g.Values, v)
	g.Steps = append(g.Steps, steps)
}
