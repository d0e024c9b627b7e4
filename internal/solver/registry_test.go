package solver

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boshu2/recourse/internal/cost"
	"github.com/boshu2/recourse/internal/metrics"
	"github.com/boshu2/recourse/internal/types"
)

type stubSolver struct {
	name  string
	calls int
	res   Result
	err   error
}

func (s *stubSolver) Name() string { return s.name }

func (s *stubSolver) Solve(context.Context, *Problem) (Result, error) {
	s.calls++
	return s.res, s.err
}

func TestDefaultRegistry_Resolve(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []ID{MIPID, BranchAndBoundID}, r.IDs())

	res, err := r.Resolve(Selection{})
	require.NoError(t, err)
	assert.Equal(t, []ID{MIPID, BranchAndBoundID}, res.Available)
	assert.Empty(t, res.Unavailable)
	assert.Equal(t, MIPID, res.Primary())

	res, err = r.Resolve(Selection{Preferred: []ID{BranchAndBoundID}})
	require.NoError(t, err)
	assert.Equal(t, []ID{BranchAndBoundID, MIPID}, res.Available)

	res, err = r.Resolve(Selection{Disabled: []ID{MIPID}})
	require.NoError(t, err)
	assert.Equal(t, []ID{BranchAndBoundID}, res.Available)
	require.Len(t, res.Unavailable, 1)
	assert.Equal(t, MIPID, res.Unavailable[0].ID)
}

func TestResolve_NoBackend(t *testing.T) {
	r := NewRegistry(
		Backend{ID: "cplex", Probe: func() error { return errors.New("library not installed") }},
		Backend{ID: "cbc", Probe: func() error { panic("bad binding") }},
		Backend{ID: MIPID, Probe: probeSimplex, New: func(o Options) Solver { return NewMIP(o) }},
	)
	_, err := r.Resolve(Selection{Disabled: []ID{MIPID}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoBackend)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	for _, want := range []string{"cplex: library not installed", "cbc: probe panicked", "mip: disabled by configuration"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestResolve_UnknownID(t *testing.T) {
	_, err := DefaultRegistry().Resolve(Selection{Preferred: []ID{"gurobi"}})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	id, err := DefaultRegistry().ParseID(" MIP ")
	require.NoError(t, err)
	assert.Equal(t, MIPID, id)
}

func TestResolved_NewReturnsFreshInstances(t *testing.T) {
	res, err := DefaultRegistry().Resolve(Selection{})
	require.NoError(t, err)
	a, b := res.New(Options{}), res.New(Options{})
	assert.NotSame(t, a, b)
	assert.Equal(t, "chain(mip,branch-and-bound)", a.Name())

	res, err = DefaultRegistry().Resolve(Selection{Disabled: []ID{MIPID}})
	require.NoError(t, err)
	assert.Equal(t, string(BranchAndBoundID), res.New(Options{}).Name())
}

func TestProbeSimplex(t *testing.T) {
	assert.NoError(t, probeSimplex())
}

func TestChain_FallsBackOnBackendError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	broken := &stubSolver{name: "mip", err: &BackendError{Backend: "mip", Err: errors.New("singular basis")}}
	ok := &stubSolver{name: "bnb", res: Result{Status: Infeasible, Backend: "bnb"}}
	c := NewChain([]Solver{broken, ok}, WithChainLogger(logger))

	r, err := c.Solve(context.Background(), &Problem{})
	require.NoError(t, err)
	assert.Equal(t, Infeasible, r.Status)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, ok.calls)
	assert.Contains(t, buf.String(), "falling back")
}

func TestChain_StopsOnOtherErrors(t *testing.T) {
	first := &stubSolver{name: "a", err: ErrInvalidProblem}
	second := &stubSolver{name: "b"}
	_, err := NewChain([]Solver{first, second}).Solve(context.Background(), &Problem{})
	assert.ErrorIs(t, err, ErrInvalidProblem)
	assert.Equal(t, 0, second.calls)
}

func TestChain_AllFail(t *testing.T) {
	a := &stubSolver{name: "a", err: &BackendError{Backend: "a", Err: errors.New("x")}}
	b := &stubSolver{name: "b", err: &BackendError{Backend: "b", Err: errors.New("y")}}
	_, err := NewChain([]Solver{a, b}).Solve(context.Background(), &Problem{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrBackend)
	var be *BackendError
	assert.ErrorAs(t, err, &be)
}

func TestInstrument(t *testing.T) {
	m := metrics.New()
	s := Instrument(NewBranchAndBound(Options{}), m)
	p := newProblem(t, twoFeatures(), []float64{1, 1}, -3.5, []float64{0, 0}, cost.New(cost.Total))

	r, err := s.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, Optimal, r.Status)
	assert.True(t, r.Duration > 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SolverCalls.WithLabelValues("branch-and-bound", "optimal")))

	failing := Instrument(&stubSolver{name: "mip", err: &BackendError{Backend: "mip", Err: errors.New("x")}}, m)
	_, err = failing.Solve(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SolverCalls.WithLabelValues("mip", "error")))

	assert.Same(t, s, Instrument(s, nil))
}
