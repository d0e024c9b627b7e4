// Package flipset enumerates a ranked, diverse set of minimal-cost actions
// that flip a linear classifier's decision for one subject.
package flipset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/boshu2/recourse/internal/action"
	"github.com/boshu2/recourse/internal/cost"
	"github.com/boshu2/recourse/internal/metrics"
	"github.com/boshu2/recourse/internal/model"
	"github.com/boshu2/recourse/internal/solver"
	"github.com/boshu2/recourse/internal/types"
)

// Enumeration is the diversity rule among the actions of one flipset.
type Enumeration string

const (
	// MutuallyExclusive actions share no changed feature.
	MutuallyExclusive Enumeration = "mutually_exclusive"
	// DistinctSubsets actions have pairwise distinct supports.
	DistinctSubsets Enumeration = "distinct_subsets"

	DefaultEnumeration = DistinctSubsets
	DefaultTotalItems  = 10
)

// ParseEnumeration accepts mutually_exclusive and distinct_subsets, with
// dashes or underscores.
func ParseEnumeration(s string) (Enumeration, error) {
	e := Enumeration(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch e {
	case MutuallyExclusive, DistinctSubsets:
		return e, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEnumeration, s)
}

// State is the lifecycle of a flipset. It only moves forward.
type State string

const (
	Empty      State = "empty"
	Populating State = "populating"
	Complete   State = "complete"
)

// Status records why population stopped.
type Status string

const (
	StatusPending Status = ""
	// StatusFilled means the requested number of items was found.
	StatusFilled Status = "filled"
	// StatusExhausted means the solver proved no further action exists.
	StatusExhausted Status = "exhausted"
	// StatusInconclusive means a solve timed out or was cancelled.
	StatusInconclusive Status = "inconclusive"
	// StatusBackendError means a solve failed inside the backend.
	StatusBackendError Status = "backend-error"
	// StatusFailed means a solve failed for any other reason. Populate
	// returns that error.
	StatusFailed Status = "failed"
)

// Change is one feature moved by an action.
type Change struct {
	Feature string
	Index   int
	From    float64
	To      float64
	Steps   int
}

// Item is one flipping action.
type Item struct {
	// Action holds one delta per feature, zero where unchanged.
	Action  []float64
	Changes []Change
	Cost    float64
	Support []string
	// Score is the signed score after the action; positive is favorable.
	Score float64
}

func (it Item) clone() Item {
	out := it
	out.Action = slices.Clone(it.Action)
	out.Changes = slices.Clone(it.Changes)
	out.Support = slices.Clone(it.Support)
	return out
}

// Flipset is the ranked set of recourse actions for one subject.
type Flipset struct {
	x      []float64
	as     *action.ActionSet
	clf    model.Linear
	solver solver.Solver

	cost    cost.Function
	margin  float64
	logger  *slog.Logger
	metrics *metrics.Metrics

	state       State
	status      Status
	enumeration Enumeration
	items       []Item
	err         error
}

// Option configures a Flipset.
type Option func(*Flipset)

// WithCost sets the cost function. The default is local cost.
func WithCost(cf cost.Function) Option {
	return func(f *Flipset) { f.cost = cf }
}

// WithMargin sets the minimum signed score a flipping action must reach.
func WithMargin(m float64) Option {
	return func(f *Flipset) { f.margin = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flipset) { f.logger = l }
}

// WithMetrics records populated flipset sizes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Flipset) { f.metrics = m }
}

// New prepares an empty flipset for subject x. The action set is aligned
// with clf on a private copy when the caller has not aligned it.
func New(x []float64, as *action.ActionSet, clf model.Scorer, s solver.Solver, opts ...Option) (*Flipset, error) {
	lin, ok := clf.(model.Linear)
	if !ok {
		return nil, action.ErrNonLinearModel
	}
	if len(x) != as.Len() {
		return nil, fmt.Errorf("%w: subject has %d values, action set has %d features", action.ErrDimension, len(x), as.Len())
	}
	if n := len(lin.Coefficients()); n != as.Len() {
		return nil, fmt.Errorf("%w: model has %d coefficients, action set has %d features", action.ErrDimension, n, as.Len())
	}

	f := &Flipset{
		x:      slices.Clone(x),
		as:     as,
		clf:    lin,
		solver: s,
		cost:   cost.New(cost.DefaultFlipsetType),
		margin: solver.DefaultMargin,
		logger: slog.Default(),
		state:  Empty,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.margin <= 0 || math.IsNaN(f.margin) || math.IsInf(f.margin, 0) {
		return nil, fmt.Errorf("%w: margin %v must be positive", ErrInvalidRequest, f.margin)
	}
	if err := f.cost.Validate(); err != nil {
		return nil, err
	}
	if _, aligned := as.Alignment(); !aligned {
		f.as = as.Clone()
		if _, err := f.as.SetAlignment(lin); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Populate searches for up to total actions under the enumeration policy.
// It fails before any solver call when the subject is already favorable.
// Running out of actions, a timeout or a backend failure end the search
// early; Status tells which.
func (f *Flipset) Populate(ctx context.Context, enumeration Enumeration, total int) error {
	if f.state != Empty {
		return ErrAlreadyPopulated
	}
	if _, err := ParseEnumeration(string(enumeration)); err != nil {
		return err
	}
	if total < 1 {
		return fmt.Errorf("%w: total items %d must be at least 1", ErrInvalidRequest, total)
	}
	if model.IsFavorable(f.clf, f.x) {
		return ErrAlreadyFavorable
	}

	grids, err := f.as.Grids(f.x)
	if err != nil {
		return err
	}
	p, err := solver.NewProblem(grids, f.clf, f.x, f.margin, f.cost)
	if err != nil {
		return err
	}

	f.state = Populating
	f.enumeration = enumeration
	defer f.complete()

	for len(f.items) < total {
		r, err := f.solver.Solve(ctx, p)
		if err != nil {
			if !errors.Is(err, types.ErrBackend) {
				f.status = StatusFailed
				f.err = err
				return err
			}
			f.stop(StatusBackendError, err)
			return nil
		}

		switch r.Status {
		case solver.Infeasible:
			f.status = StatusExhausted
			return nil
		case solver.Inconclusive:
			f.stop(StatusInconclusive, inconclusive(ctx, r))
			return nil
		case solver.Optimal:
		default:
			f.stop(StatusBackendError, &solver.BackendError{Backend: r.Backend, Err: fmt.Errorf("unexpected status %q", r.Status)})
			return nil
		}

		item, err := f.verify(grids, r)
		if err != nil {
			f.stop(StatusBackendError, &solver.BackendError{Backend: r.Backend, Err: err})
			return nil
		}
		f.items = append(f.items, item)
		f.logger.Debug("flipset item found",
			"item", len(f.items),
			"cost", item.Cost,
			"support", item.Support,
			"backend", r.Backend,
			"nodes", r.Nodes)

		support := solver.Support(r.Choice)
		switch enumeration {
		case MutuallyExclusive:
			for _, j := range support {
				p.Exclusions.Frozen[j] = true
			}
		case DistinctSubsets:
			p.Exclusions.Supports = append(p.Exclusions.Supports, support)
		}
	}
	f.status = StatusFilled
	return nil
}

// inconclusive explains an Inconclusive result: the caller's cancellation
// when there is one, the backend's own budget otherwise.
func inconclusive(ctx context.Context, r solver.Result) error {
	if cause := context.Cause(ctx); cause != nil {
		return fmt.Errorf("%w: %w", solver.ErrInconclusive, cause)
	}
	return fmt.Errorf("%w: %s stopped after %d nodes", solver.ErrInconclusive, r.Backend, r.Nodes)
}

func (f *Flipset) stop(status Status, err error) {
	f.status = status
	f.err = err
	f.logger.Warn("flipset population stopped early",
		"status", string(status),
		"items", len(f.items),
		"error", err)
}

func (f *Flipset) complete() {
	sort.SliceStable(f.items, func(a, b int) bool { return f.items[a].Cost < f.items[b].Cost })
	f.state = Complete
	if f.metrics != nil {
		f.metrics.FlipsetItems.Observe(float64(len(f.items)))
	}
	f.logger.Debug("flipset complete",
		"status", string(f.status),
		"items", len(f.items),
		"enumeration", string(f.enumeration))
}

// verify re-checks a solver action against the classifier and the action
// set, independently of the solver's own bookkeeping.
func (f *Flipset) verify(grids []action.Grid, r solver.Result) (Item, error) {
	if len(r.Choice) != len(f.x) {
		return Item{}, fmt.Errorf("%w: choice has %d entries", ErrVerification, len(r.Choice))
	}
	item := Item{Action: make([]float64, len(f.x))}
	xp := slices.Clone(f.x)
	steps := make([]float64, 0, len(f.x))
	for j, k := range r.Choice {
		if k == cost.Unchanged {
			continue
		}
		g := grids[j]
		if k < 0 || k >= g.Len() {
			return Item{}, fmt.Errorf("%w: feature %q grid index %d", ErrVerification, g.Name, k)
		}
		to := g.Values[k]
		spec := f.as.Spec(j)
		delta := to - f.x[j]
		switch {
		case !spec.Actionable:
			return Item{}, fmt.Errorf("%w: feature %q is not actionable", ErrVerification, spec.Name)
		case delta > 0 && spec.StepDirection == action.Decrease,
			delta < 0 && spec.StepDirection == action.Increase:
			return Item{}, fmt.Errorf("%w: feature %q moved against %s", ErrVerification, spec.Name, spec.StepDirection)
		case !spec.Bounds.Contains(to):
			return Item{}, fmt.Errorf("%w: feature %q value %v out of bounds", ErrVerification, spec.Name, to)
		}
		fresh, err := f.as.Grid(j, f.x[j])
		if err != nil {
			return Item{}, err
		}
		if _, ok := fresh.Lookup(to); !ok {
			return Item{}, fmt.Errorf("%w: feature %q value %v is not a step of %v", ErrVerification, spec.Name, to, spec.StepSize)
		}

		xp[j] = to
		item.Action[j] = delta
		item.Support = append(item.Support, spec.Name)
		item.Changes = append(item.Changes, Change{
			Feature: spec.Name,
			Index:   j,
			From:    f.x[j],
			To:      to,
			Steps:   g.Steps[k],
		})
		steps = append(steps, f.cost.StepCost(spec.Name, g.Steps[k]))
	}
	if len(item.Changes) == 0 {
		return Item{}, fmt.Errorf("%w: empty action", ErrVerification)
	}
	item.Score = model.SignedScore(f.clf, xp)
	if item.Score < f.margin-1e-9 {
		return Item{}, fmt.Errorf("%w: score %v does not reach margin %v", ErrVerification, item.Score, f.margin)
	}
	item.Cost = f.cost.Aggregate(steps)
	return item, nil
}

// Items returns copies of the actions in non-decreasing cost order.
func (f *Flipset) Items() []Item {
	out := make([]Item, len(f.items))
	for i, it := range f.items {
		out[i] = it.clone()
	}
	return out
}

func (f *Flipset) Len() int                 { return len(f.items) }
func (f *Flipset) State() State             { return f.state }
func (f *Flipset) Status() Status           { return f.status }
func (f *Flipset) Enumeration() Enumeration { return f.enumeration }

// Err returns the error that ended population early, if any.
func (f *Flipset) Err() error { return f.err }

// Subject returns a copy of the subject's feature vector.
func (f *Flipset) Subject() []float64 { return slices.Clone(f.x) }

// Score returns the subject's current signed score.
func (f *Flipset) Score() float64 { return model.SignedScore(f.clf, f.x) }

// Names returns the feature names in order.
func (f *Flipset) Names() []string { return f.as.Names() }
