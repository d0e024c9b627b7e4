// Package cost scores candidate actions. The unit cost of moving a feature
// k grid steps is k, so features measured in percentiles and in native
// units are comparable.
package cost

import (
	"fmt"
	"math"
	"strings"

	"github.com/boshu2/recourse/internal/action"
	"github.com/boshu2/recourse/internal/types"
)

// Type selects how per-feature costs are aggregated.
type Type string

const (
	// Total sums the step counts of every changed feature.
	Total Type = "total"
	// Local sums weighted step counts and caps how many features may change.
	Local Type = "local"
	// Max takes the largest per-feature step count.
	Max Type = "max"
)

// Defaults for the two query shapes.
const (
	DefaultFlipsetType = Local
	DefaultAuditType   = Max
)

// ErrInvalidType is returned for an unknown aggregation policy.
var ErrInvalidType = fmt.Errorf("%w: unknown cost type", types.ErrConfiguration)

// ParseType accepts total|local|max.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case Total, Local, Max:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// Function maps an action to a non-negative scalar cost.
type Function struct {
	Type Type

	// Weights scales the step cost of a feature under Local. Missing
	// features weigh 1.
	Weights map[string]float64

	// MaxChanges bounds how many features a Local action may change.
	// Zero means unlimited.
	MaxChanges int
}

// New returns a cost function of the given type with unit weights.
func New(t Type) Function {
	return Function{Type: t}
}

// Validate rejects unknown types, non-positive weights and negative limits.
func (f Function) Validate() error {
	if _, err := ParseType(string(f.Type)); err != nil {
		return err
	}
	if f.MaxChanges < 0 {
		return fmt.Errorf("%w: max changes %d is negative", types.ErrConfiguration, f.MaxChanges)
	}
	for name, w := range f.Weights {
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight %v for feature %q must be positive", types.ErrConfiguration, w, name)
		}
	}
	return nil
}

// Additive reports whether the aggregate is a sum of per-feature costs.
func (f Function) Additive() bool { return f.Type != Max }

// ChangeLimit returns the maximum support size, or 0 for no limit.
func (f Function) ChangeLimit() int {
	if f.Type == Local {
		return f.MaxChanges
	}
	return 0
}

// StepCost is the cost of moving feature name by steps grid steps.
func (f Function) StepCost(name string, steps int) float64 {
	if steps <= 0 {
		return 0
	}
	c := float64(steps)
	if f.Type == Local {
		if w, ok := f.Weights[name]; ok {
			c *= w
		}
	}
	return c
}

// Aggregate folds per-feature costs into the action cost.
func (f Function) Aggregate(costs []float64) float64 {
	var out float64
	for _, c := range costs {
		if f.Type == Max {
			out = math.Max(out, c)
		} else {
			out += c
		}
	}
	return out
}

// Combine adds one per-feature cost to a running aggregate.
func (f Function) Combine(acc, c float64) float64 {
	if f.Type == Max {
		return math.Max(acc, c)
	}
	return acc + c
}

// Unchanged marks a feature left at its current value in a choice vector.
const Unchanged = -1

// Cost scores a choice vector over grids, where choice[j] is a grid index
// of feature j or Unchanged.
func (f Function) Cost(grids []action.Grid, choice []int) float64 {
	var acc float64
	for j, k := range choice {
		if k == Unchanged {
			continue
		}
		g := grids[j]
		acc = f.Combine(acc, f.StepCost(g.Name, g.Steps[k]))
	}
	return acc
}
