package solver

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// integralTolerance must stay well below DefaultMargin: a rounded-away
// remainder of that size can cost the margin.
const (
	lpTolerance       = 1e-10
	integralTolerance = 1e-9
)

// MIP solves the 0-1 program with one binary variable per grid point:
//
//	minimize    cost(z)
//	subject to  sum_k z[j][k] <= 1                 for each feature j
//	            sum_jk gain[j][k]*z[j][k] >= need
//	            sum_jk z[j][k] <= limit             (local cost only)
//	            no-good cut per excluded support
//
// Max cost adds an epigraph variable t with sum_k cost[j][k]*z[j][k] <= t.
// Integrality is enforced by depth-first branch and bound over LP
// relaxations solved with the simplex method. The branch fixing a variable
// to one is explored first.
type MIP struct {
	opts Options
}

// NewMIP returns a MIP backend.
func NewMIP(opts Options) *MIP {
	return &MIP{opts: opts}
}

func (m *MIP) Name() string { return string(MIPID) }

func (m *MIP) Solve(ctx context.Context, p *Problem) (Result, error) {
	if p == nil {
		return Result{}, fmt.Errorf("%w: nil problem", ErrInvalidProblem)
	}
	ctx, cancel := m.opts.context(ctx)
	defer cancel()

	t := &mipTree{
		ctx:      ctx,
		p:        p,
		maxNodes: m.opts.MaxNodes,
		feats:    p.candidates(),
		bestCost: math.Inf(1),
	}
	root := mipNode{fixed: map[int]int{}, banned: map[[2]int]bool{}}
	if err := t.branch(root); err != nil {
		return Result{}, &BackendError{Backend: m.Name(), Err: err}
	}

	var r Result
	switch {
	case t.aborted:
		r = p.result(Inconclusive, t.best, t.nodes)
	case t.best == nil:
		r = p.result(Infeasible, nil, t.nodes)
	default:
		r = p.result(Optimal, t.best, t.nodes)
	}
	r.Backend = m.Name()
	return r, nil
}

type mipNode struct {
	fixed  map[int]int
	banned map[[2]int]bool
}

func (n mipNode) fix(j, k int) mipNode {
	out := mipNode{fixed: make(map[int]int, len(n.fixed)+1), banned: n.banned}
	for f, v := range n.fixed {
		out.fixed[f] = v
	}
	out.fixed[j] = k
	return out
}

func (n mipNode) ban(j, k int) mipNode {
	out := mipNode{fixed: n.fixed, banned: make(map[[2]int]bool, len(n.banned)+1)}
	for c := range n.banned {
		out.banned[c] = true
	}
	out.banned[[2]int{j, k}] = true
	return out
}

type mipTree struct {
	ctx      context.Context
	p        *Problem
	maxNodes int
	feats    []int

	best     []int
	bestCost float64
	nodes    int
	aborted  bool
}

type column struct{ j, k int }

func (t *mipTree) choice(n mipNode) []int {
	out := unchanged(len(t.p.Grids))
	for j, k := range n.fixed {
		out[j] = k
	}
	return out
}

func (t *mipTree) offer(choice []int) {
	_, c, ok := t.p.Evaluate(choice)
	if ok && c < t.bestCost-tolerance {
		t.best = choice
		t.bestCost = c
	}
}

func (t *mipTree) branch(n mipNode) error {
	if t.aborted {
		return nil
	}
	t.nodes++
	if (t.maxNodes > 0 && t.nodes > t.maxNodes) || t.ctx.Err() != nil {
		t.aborted = true
		return nil
	}

	lpp, ok := t.relax(n)
	if !ok {
		return nil
	}
	if len(lpp.cols) == 0 {
		t.offer(t.choice(n))
		return nil
	}

	optF, x, err := simplex(lpp)
	if errors.Is(err, lp.ErrInfeasible) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("simplex at node %d: %w", t.nodes, err)
	}
	if optF+lpp.constant >= t.bestCost-tolerance {
		return nil
	}

	frac := -1
	for i := range lpp.cols {
		if v := x[i]; v > integralTolerance && v < 1-integralTolerance {
			frac = i
			break
		}
	}
	if frac < 0 {
		choice := t.choice(n)
		for i, col := range lpp.cols {
			if x[i] >= 1-integralTolerance {
				choice[col.j] = col.k
			}
		}
		if _, _, ok := t.p.Evaluate(choice); ok {
			t.offer(choice)
			return nil
		}
		// Rounding lost the margin. Keep branching, preferring a column
		// the relaxation still uses.
		if frac = nearlyIntegral(x[:len(lpp.cols)]); frac < 0 {
			frac = 0
		}
	}

	col := lpp.cols[frac]
	if err := t.branch(n.fix(col.j, col.k)); err != nil {
		return err
	}
	return t.branch(n.ban(col.j, col.k))
}

// nearlyIntegral returns the nonzero column farthest from 0 and 1, or -1
// when every column is zero.
func nearlyIntegral(x []float64) int {
	best, dist := -1, -1.0
	for i, v := range x {
		if v <= 0 {
			continue
		}
		if d := math.Min(v, 1-v); d > dist {
			best, dist = i, d
		}
	}
	return best
}

func simplex(r relaxation) (optF float64, x []float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("simplex panicked: %v", p)
		}
	}()
	return lp.Simplex(r.c, r.a, r.b, lpTolerance, nil)
}

// relaxation is a standard-form LP: minimize c·x subject to a·x = b, x >= 0.
type relaxation struct {
	cols     []column
	c        []float64
	a        *mat.Dense
	b        []float64
	constant float64
}

type lpRow struct {
	coef  map[int]float64
	epi   float64 // coefficient of the epigraph variable
	slack float64
	rhs   float64
}

// relax builds the relaxation of node n. ok is false when the node is
// infeasible before solving.
func (t *mipTree) relax(n mipNode) (relaxation, bool) {
	p := t.p
	limit := p.Cost.ChangeLimit()
	if limit > 0 && len(n.fixed) > limit {
		return relaxation{}, false
	}
	open := limit == 0 || len(n.fixed) < limit

	var rel relaxation
	byFeature := make(map[int][]int)
	if open {
		for _, j := range t.feats {
			if _, done := n.fixed[j]; done {
				continue
			}
			for k := range p.Grids[j].Values {
				if n.banned[[2]int{j, k}] {
					continue
				}
				byFeature[j] = append(byFeature[j], len(rel.cols))
				rel.cols = append(rel.cols, column{j, k})
			}
		}
	}
	if len(rel.cols) == 0 {
		return rel, true
	}

	need := p.Need()
	fixedCost := p.Cost.Cost(p.Grids, t.choice(n))
	for _, j := range sortedKeys(n.fixed) {
		need -= p.Gains[j][n.fixed[j]]
	}

	epigraph := !p.Cost.Additive()
	var rows []lpRow

	feats := sortedKeys(byFeature)
	for _, j := range feats {
		r := lpRow{coef: map[int]float64{}, slack: 1, rhs: 1}
		for _, i := range byFeature[j] {
			r.coef[i] = 1
		}
		rows = append(rows, r)
	}

	score := lpRow{coef: map[int]float64{}, slack: -1, rhs: need}
	for i, col := range rel.cols {
		score.coef[i] = p.Gains[col.j][col.k]
	}
	rows = append(rows, score)

	if epigraph {
		for _, j := range feats {
			r := lpRow{coef: map[int]float64{}, epi: -1, slack: 1, rhs: fixedCost}
			for _, i := range byFeature[j] {
				col := rel.cols[i]
				r.coef[i] = p.Cost.StepCost(p.Grids[j].Name, p.Grids[j].Steps[col.k])
			}
			rows = append(rows, r)
		}
	}

	if limit > 0 {
		r := lpRow{coef: map[int]float64{}, slack: 1, rhs: float64(limit - len(n.fixed))}
		for i := range rel.cols {
			r.coef[i] = 1
		}
		rows = append(rows, r)
	}

	for _, s := range p.Exclusions.Supports {
		r, keep, feasible := t.cut(n, s, byFeature)
		if !feasible {
			return relaxation{}, false
		}
		if keep {
			rows = append(rows, r)
		}
	}

	nz := len(rel.cols)
	nvar := nz + len(rows)
	epiCol := -1
	if epigraph {
		epiCol = nz
		nvar++
	}
	rel.c = make([]float64, nvar)
	if epigraph {
		rel.c[epiCol] = 1
	} else {
		for i, col := range rel.cols {
			rel.c[i] = p.Cost.StepCost(p.Grids[col.j].Name, p.Grids[col.j].Steps[col.k])
		}
	}
	rel.constant = fixedCost

	slackBase := nz
	if epigraph {
		slackBase++
	}
	rel.a = mat.NewDense(len(rows), nvar, nil)
	rel.b = make([]float64, len(rows))
	for r, row := range rows {
		sign := 1.0
		if row.rhs < 0 {
			sign = -1
		}
		for i, v := range row.coef {
			rel.a.Set(r, i, sign*v)
		}
		if row.epi != 0 {
			rel.a.Set(r, epiCol, sign*row.epi)
		}
		rel.a.Set(r, slackBase+r, sign*row.slack)
		rel.b[r] = sign * row.rhs
	}
	return rel, true
}

// cut builds the no-good row excluding support s:
//
//	sum_{j in s} (1 - u_j) + sum_{j not in s} u_j >= 1
//
// where u_j is one when feature j changes. Features whose state is already
// decided at node n fold into the constant. keep is false when the cut is
// already satisfied; feasible is false when it can no longer be.
func (t *mipTree) cut(n mipNode, s []int, byFeature map[int][]int) (r lpRow, keep, feasible bool) {
	in := make(map[int]bool, len(s))
	for _, j := range s {
		in[j] = true
	}
	decided := 0.0
	free := 0
	r = lpRow{coef: map[int]float64{}, slack: -1, rhs: 1}
	for j := range t.p.Grids {
		_, fixed := n.fixed[j]
		cols, undecided := byFeature[j]
		switch {
		case fixed:
			if !in[j] {
				decided++
			}
		case !undecided:
			if in[j] {
				decided++
			}
		default:
			free++
			coef := 1.0
			if in[j] {
				coef = -1
				r.rhs--
			}
			for _, i := range cols {
				r.coef[i] = coef
			}
		}
	}
	if decided >= 1 {
		return r, false, true
	}
	if free == 0 {
		return r, false, false
	}
	r.rhs -= decided
	return r, true, true
}

func sortedKeys[V any](m map[int]V) []int {
	return slices.Sorted(maps.Keys(m))
}
