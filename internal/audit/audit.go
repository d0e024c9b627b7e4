// Package audit runs one independent recourse query per adverse row of a
// population and folds the outcomes into feasibility and cost summaries.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/boshu2/recourse/internal/action"
	"github.com/boshu2/recourse/internal/cost"
	"github.com/boshu2/recourse/internal/dataset"
	"github.com/boshu2/recourse/internal/flipset"
	"github.com/boshu2/recourse/internal/metrics"
	"github.com/boshu2/recourse/internal/model"
	"github.com/boshu2/recourse/internal/solver"
	"github.com/boshu2/recourse/internal/types"
	"github.com/boshu2/recourse/internal/worker"
)

// ErrColumnMismatch is returned when the audited matrix lacks a feature of
// the action set.
var ErrColumnMismatch = fmt.Errorf("%w: audit columns do not match action set", types.ErrConfiguration)

// Outcome classifies one audited row.
type Outcome string

const (
	// Favorable rows already receive the favorable decision.
	Favorable Outcome = "favorable"
	// Feasible rows have at least one flipping action.
	Feasible Outcome = "feasible"
	// Infeasible rows have no flipping action within the action set.
	Infeasible Outcome = "infeasible"
	// Inconclusive rows hit the solver time or node budget.
	Inconclusive Outcome = "inconclusive"
	// Failed rows hit a configuration or backend error.
	Failed Outcome = "error"
)

// Record is the audit outcome of one row.
type Record struct {
	Row     int       `json:"row"`
	Outcome Outcome   `json:"outcome"`
	Cost    float64   `json:"cost"`
	Score   float64   `json:"score"`
	Support []string  `json:"support,omitempty"`
	Action  []float64 `json:"action,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Feasible reports whether a flipping action was found.
func (r Record) Feasible() bool { return r.Outcome == Feasible }

// SolverFactory returns a fresh solver for one query. Solvers are never
// shared between workers.
type SolverFactory func() solver.Solver

// Auditor audits a population against one action set and classifier.
type Auditor struct {
	ActionSet  *action.ActionSet
	Classifier model.Linear
	NewSolver  SolverFactory

	// Cost defaults to max cost when its type is empty.
	Cost    cost.Function
	Margin  float64
	Workers int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Audit queries every row of m. Per-row failures are recorded, not
// returned; the error is non-nil only for setup problems or cancellation.
func (a *Auditor) Audit(ctx context.Context, m *dataset.Matrix) ([]Record, error) {
	if a.ActionSet == nil || a.Classifier == nil || a.NewSolver == nil {
		return nil, fmt.Errorf("%w: auditor needs an action set, classifier and solver factory", types.ErrConfiguration)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrColumnMismatch, err)
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cf := a.Cost
	if cf.Type == "" {
		cf = cost.New(cost.DefaultAuditType)
	}
	margin := a.Margin
	if margin == 0 {
		margin = solver.DefaultMargin
	}

	rows, err := a.project(m)
	if err != nil {
		return nil, err
	}

	as := a.ActionSet
	if _, aligned := as.Alignment(); !aligned {
		as = as.Clone()
		if _, err := as.SetAlignment(a.Classifier); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	pool := worker.NewPool[[]float64, Record](a.Workers)
	logger.Info("audit started", "rows", len(rows), "workers", pool.Concurrency(), "cost", string(cf.Type))

	results, err := pool.Process(ctx, rows, func(ctx context.Context, x []float64) (Record, error) {
		return a.query(ctx, as, x, cf, margin, logger), nil
	})

	records := make([]Record, len(results))
	for i, r := range results {
		rec := r.Value
		if r.Err != nil {
			rec = Record{Outcome: Failed, Error: r.Err.Error()}
		}
		rec.Row = i
		records[i] = rec
		if a.Metrics != nil {
			a.Metrics.AuditRows.WithLabelValues(string(rec.Outcome)).Inc()
		}
	}
	logger.Info("audit finished", "rows", len(records), "elapsed", time.Since(start).Round(time.Millisecond))
	if err != nil {
		return records, fmt.Errorf("audit interrupted: %w", err)
	}
	return records, nil
}

func (a *Auditor) query(ctx context.Context, as *action.ActionSet, x []float64, cf cost.Function, margin float64, logger *slog.Logger) Record {
	rec := Record{Score: model.SignedScore(a.Classifier, x)}
	if model.IsFavorable(a.Classifier, x) {
		rec.Outcome = Favorable
		return rec
	}
	fs, err := flipset.New(x, as, a.Classifier, a.NewSolver(),
		flipset.WithCost(cf),
		flipset.WithMargin(margin),
		flipset.WithLogger(logger))
	if err == nil {
		err = fs.Populate(ctx, flipset.DistinctSubsets, 1)
	}
	if err != nil {
		rec.Outcome = Failed
		rec.Error = err.Error()
		return rec
	}

	switch fs.Status() {
	case flipset.StatusFilled:
		best := fs.Items()[0]
		rec.Outcome = Feasible
		rec.Cost = best.Cost
		rec.Support = best.Support
		rec.Action = best.Action
	case flipset.StatusExhausted:
		rec.Outcome = Infeasible
	case flipset.StatusInconclusive:
		rec.Outcome = Inconclusive
		if err := fs.Err(); err != nil {
			rec.Error = err.Error()
		}
	default:
		rec.Outcome = Failed
		if err := fs.Err(); err != nil {
			rec.Error = err.Error()
		}
	}
	return rec
}

// project reorders the columns of m to the action set's feature order.
func (a *Auditor) project(m *dataset.Matrix) ([][]float64, error) {
	names := a.ActionSet.Names()
	pos := make([]int, len(names))
	var missing []error
	for j, n := range names {
		pos[j] = m.Index(n)
		if pos[j] < 0 {
			missing = append(missing, fmt.Errorf("missing column %q", n))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrColumnMismatch, errors.Join(missing...))
	}
	rows := make([][]float64, m.NumRows())
	for i, r := range m.Rows {
		x := make([]float64, len(names))
		for j, p := range pos {
			x[j] = r[p]
		}
		rows[i] = x
	}
	return rows, nil
}
