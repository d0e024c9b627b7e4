// Package solver finds the cost-minimal action that moves a subject across
// a linear decision boundary. Backends share one contract and are resolved
// once per process through a capability registry.
package solver

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/boshu2/recourse/internal/action"
	"github.com/boshu2/recourse/internal/cost"
	"github.com/boshu2/recourse/internal/model"
)

// DefaultMargin is the minimum signed score an action must reach.
const DefaultMargin = 1e-6

const tolerance = 1e-9

// Status is the outcome of a solve.
type Status string

const (
	// Optimal means Result holds a proven cost-minimal action.
	Optimal Status = "optimal"
	// Infeasible means no admissible action flips the subject.
	Infeasible Status = "infeasible"
	// Inconclusive means the search stopped on timeout, cancellation or
	// node budget before proving either outcome.
	Inconclusive Status = "inconclusive"
)

// Solver is the contract every backend implements. A Solver instance is not
// safe for concurrent use.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p *Problem) (Result, error)
}

// Exclusions restricts which actions a solve may return.
type Exclusions struct {
	// Frozen features must stay unchanged.
	Frozen map[int]bool
	// Supports lists exact supports, as sorted feature indices, that may
	// not be returned again.
	Supports [][]int
}

// Excludes reports whether support matches an excluded support.
func (e Exclusions) Excludes(support []int) bool {
	for _, s := range e.Supports {
		if slices.Equal(s, support) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (e Exclusions) Clone() Exclusions {
	out := Exclusions{Frozen: make(map[int]bool, len(e.Frozen))}
	for j, v := range e.Frozen {
		out.Frozen[j] = v
	}
	for _, s := range e.Supports {
		out.Supports = append(out.Supports, slices.Clone(s))
	}
	return out
}

// Problem is one recourse query: choose at most one grid point per feature
// so that Base + sum of gains reaches Margin at minimal Cost.
type Problem struct {
	Grids []action.Grid
	// Gains[j][k] is the signed score gain of grid point k of feature j,
	// oriented so that positive moves toward the favorable class.
	Gains [][]float64
	// Base is the signed score of the unchanged subject.
	Base       float64
	Margin     float64
	Cost       cost.Function
	Exclusions Exclusions
}

// NewProblem builds the problem for subject x over grids. The decision
// boundary is read from clf's coefficients.
func NewProblem(grids []action.Grid, clf model.Linear, x []float64, margin float64, cf cost.Function) (*Problem, error) {
	w := clf.Coefficients()
	if len(w) != len(grids) || len(x) != len(grids) {
		return nil, fmt.Errorf("%w: %d grids, %d coefficients, %d values", ErrInvalidProblem, len(grids), len(w), len(x))
	}
	if margin < 0 || math.IsNaN(margin) {
		return nil, fmt.Errorf("%w: margin %v must be non-negative", ErrInvalidProblem, margin)
	}
	if err := cf.Validate(); err != nil {
		return nil, err
	}
	sign := float64(clf.FavorableSign())
	gains := make([][]float64, len(grids))
	for j, g := range grids {
		gains[j] = make([]float64, g.Len())
		for k := range g.Values {
			gains[j][k] = sign * w[j] * g.Delta(k)
		}
	}
	return &Problem{
		Grids:  grids,
		Gains:  gains,
		Base:   model.SignedScore(clf, x),
		Margin: margin,
		Cost:   cf,
		Exclusions: Exclusions{
			Frozen: make(map[int]bool),
		},
	}, nil
}

// Need returns the gain still required to reach the margin.
func (p *Problem) Need() float64 { return p.Margin - p.Base }

// candidates returns the features that may change, in index order.
func (p *Problem) candidates() []int {
	var out []int
	for j, g := range p.Grids {
		if g.Empty() || p.Exclusions.Frozen[j] {
			continue
		}
		out = append(out, j)
	}
	return out
}

// Evaluate scores a choice vector and reports whether it is admissible:
// it reaches the margin, respects frozen features and the change limit,
// and its support is not excluded.
func (p *Problem) Evaluate(choice []int) (score, c float64, ok bool) {
	score = p.Base
	changed := 0
	for j, k := range choice {
		if k == cost.Unchanged {
			continue
		}
		if p.Exclusions.Frozen[j] || k < 0 || k >= p.Grids[j].Len() {
			return 0, 0, false
		}
		score += p.Gains[j][k]
		changed++
	}
	c = p.Cost.Cost(p.Grids, choice)
	if limit := p.Cost.ChangeLimit(); limit > 0 && changed > limit {
		return score, c, false
	}
	if score < p.Margin-tolerance {
		return score, c, false
	}
	if p.Exclusions.Excludes(Support(choice)) {
		return score, c, false
	}
	return score, c, true
}

// Support returns the sorted indices of changed features.
func Support(choice []int) []int {
	var out []int
	for j, k := range choice {
		if k != cost.Unchanged {
			out = append(out, j)
		}
	}
	return out
}

// Result is the outcome of one solve.
type Result struct {
	Status Status
	// Choice[j] is the selected grid index of feature j or cost.Unchanged.
	// An Inconclusive result may carry the best action found so far.
	Choice []int
	// Action holds the per-feature deltas of Choice.
	Action []float64
	Cost   float64
	// Score is the signed score after the action.
	Score    float64
	Nodes    int
	Backend  string
	Duration time.Duration
}

// Found reports whether the result carries an action.
func (r Result) Found() bool { return r.Choice != nil }

func (p *Problem) result(status Status, choice []int, nodes int) Result {
	r := Result{Status: status, Nodes: nodes}
	if choice == nil {
		return r
	}
	r.Choice = slices.Clone(choice)
	r.Action = make([]float64, len(choice))
	for j, k := range choice {
		if k != cost.Unchanged {
			r.Action[j] = p.Grids[j].Delta(k)
		}
	}
	r.Score, r.Cost, _ = p.Evaluate(choice)
	return r
}

// Options tunes a backend.
type Options struct {
	// Timeout bounds a single solve. Zero means no limit beyond ctx.
	Timeout time.Duration
	// MaxNodes bounds the search tree. Zero means unlimited.
	MaxNodes int
}

func (o Options) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout > 0 {
		return context.WithTimeout(ctx, o.Timeout)
	}
	return context.WithCancel(ctx)
}

func unchanged(n int) []int {
	out := make([]int, n)
	for j := range out {
		out[j] = cost.Unchanged
	}
	return out
}
