package solver

import (
	"context"
	"time"

	"github.com/boshu2/recourse/internal/metrics"
)

type instrumented struct {
	next Solver
	m    *metrics.Metrics
}

// Instrument records calls, outcomes, durations and node counts of s.
func Instrument(s Solver, m *metrics.Metrics) Solver {
	if m == nil {
		return s
	}
	return &instrumented{next: s, m: m}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Solve(ctx context.Context, p *Problem) (Result, error) {
	start := time.Now()
	r, err := i.next.Solve(ctx, p)
	elapsed := time.Since(start)

	backend := r.Backend
	if backend == "" {
		backend = i.next.Name()
	}
	status := string(r.Status)
	if err != nil {
		status = "error"
	}
	i.m.SolverCalls.WithLabelValues(backend, status).Inc()
	i.m.SolverDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
	if err == nil {
		i.m.SolverNodes.WithLabelValues(backend).Observe(float64(r.Nodes))
		r.Duration = elapsed
	}
	return r, err
}
