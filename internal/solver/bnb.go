package solver

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/boshu2/recourse/internal/cost"
)

// ctxCheckInterval is how many nodes are expanded between context polls.
const ctxCheckInterval = 256

// BranchAndBound is an exact depth-first search over the feature grids. It
// prunes on the running cost against the incumbent and on the largest gain
// the undecided features could still add.
//
// Among equal-cost actions the one changing fewer features wins. Remaining
// ties go to the action that changes the earliest feature by the smallest
// step: features are decided in index order, grid points are tried in grid
// order before leaving a feature unchanged, and an incumbent is replaced
// only by a strictly better action.
type BranchAndBound struct {
	opts Options
}

// NewBranchAndBound returns a branch-and-bound backend.
func NewBranchAndBound(opts Options) *BranchAndBound {
	return &BranchAndBound{opts: opts}
}

func (b *BranchAndBound) Name() string { return string(BranchAndBoundID) }

func (b *BranchAndBound) Solve(ctx context.Context, p *Problem) (Result, error) {
	if p == nil {
		return Result{}, fmt.Errorf("%w: nil problem", ErrInvalidProblem)
	}
	ctx, cancel := b.opts.context(ctx)
	defer cancel()

	if ctx.Err() != nil {
		return Result{Status: Inconclusive, Backend: b.Name()}, nil
	}

	s := newSearch(ctx, p, b.opts.MaxNodes)
	s.dfs(0, p.Base, 0, 0)

	var r Result
	switch {
	case s.aborted:
		r = p.result(Inconclusive, s.best, s.nodes)
	case s.best == nil:
		r = p.result(Infeasible, nil, s.nodes)
	default:
		r = p.result(Optimal, s.best, s.nodes)
	}
	r.Backend = b.Name()
	return r, nil
}

type search struct {
	ctx      context.Context
	p        *Problem
	maxNodes int
	limit    int

	order  []int
	suffix []float64 // suffix[d] is the most gain order[d:] can add
	choice []int

	best     []int
	bestCost float64
	bestSize int
	nodes    int
	aborted  bool
}

// dominated reports whether a partial action of cost c changing n features
// can no longer beat the incumbent. Both only grow along a branch.
func (s *search) dominated(c float64, n int) bool {
	if c > s.bestCost+tolerance {
		return true
	}
	return c >= s.bestCost-tolerance && n >= s.bestSize
}

func newSearch(ctx context.Context, p *Problem, maxNodes int) *search {
	s := &search{
		ctx:      ctx,
		p:        p,
		maxNodes: maxNodes,
		limit:    p.Cost.ChangeLimit(),
		order:    p.candidates(),
		choice:   unchanged(len(p.Grids)),
		bestCost: math.Inf(1),
	}
	s.suffix = make([]float64, len(s.order)+1)
	for d := len(s.order) - 1; d >= 0; d-- {
		top := 0.0
		for _, g := range p.Gains[s.order[d]] {
			top = math.Max(top, g)
		}
		s.suffix[d] = s.suffix[d+1] + top
	}
	return s
}

func (s *search) dfs(d int, score, c float64, changed int) {
	s.nodes++
	if s.maxNodes > 0 && s.nodes > s.maxNodes {
		s.aborted = true
		return
	}
	if s.nodes%ctxCheckInterval == 0 && s.ctx.Err() != nil {
		s.aborted = true
		return
	}
	if s.dominated(c, changed) {
		return
	}
	if score+s.suffix[d] < s.p.Margin-tolerance {
		return
	}
	if d == len(s.order) {
		if s.p.Exclusions.Excludes(Support(s.choice)) {
			return
		}
		s.best = slices.Clone(s.choice)
		s.bestCost = c
		s.bestSize = changed
		return
	}

	j := s.order[d]
	if s.limit == 0 || changed < s.limit {
		g := s.p.Grids[j]
		for k := range g.Values {
			nc := s.p.Cost.Combine(c, s.p.Cost.StepCost(g.Name, g.Steps[k]))
			if s.dominated(nc, changed+1) {
				continue
			}
			s.choice[j] = k
			s.dfs(d+1, score+s.p.Gains[j][k], nc, changed+1)
			s.choice[j] = cost.Unchanged
			if s.aborted {
				return
			}
		}
	}
	s.dfs(d+1, score, c, changed)
}
