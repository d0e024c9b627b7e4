package solver

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// ID identifies a backend in the registry.
type ID string

const (
	BranchAndBoundID ID = "branch-and-bound"
	MIPID            ID = "mip"
)

// Backend is a registry entry: a probe that reports whether the engine can
// run in this process and a constructor for fresh instances.
type Backend struct {
	ID    ID
	Probe func() error
	New   func(Options) Solver
}

// Registry is the fixed, ranked enumeration of supported backends.
type Registry struct {
	backends []Backend
}

// DefaultRegistry returns the built-in backends, MIP first.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Backend{ID: MIPID, Probe: probeSimplex, New: func(o Options) Solver { return NewMIP(o) }},
		Backend{ID: BranchAndBoundID, Probe: func() error { return nil }, New: func(o Options) Solver { return NewBranchAndBound(o) }},
	)
}

// NewRegistry builds a registry ranked in argument order.
func NewRegistry(backends ...Backend) *Registry {
	return &Registry{backends: slices.Clone(backends)}
}

// IDs returns the registered identifiers in rank order.
func (r *Registry) IDs() []ID {
	out := make([]ID, len(r.backends))
	for i, b := range r.backends {
		out[i] = b.ID
	}
	return out
}

// ParseID rejects identifiers outside the registry.
func (r *Registry) ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	for _, b := range r.backends {
		if b.ID == id {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q (known: %s)", ErrUnknownBackend, s, joinIDs(r.IDs()))
}

// Selection narrows and reorders the registry.
type Selection struct {
	// Preferred backends are ranked first, in this order.
	Preferred []ID
	// Disabled backends are never probed.
	Disabled []ID
}

// ProbeFailure records why a backend is unusable.
type ProbeFailure struct {
	ID     ID
	Reason string
}

// Resolved is the outcome of probing the registry once at startup.
type Resolved struct {
	Available   []ID
	Unavailable []ProbeFailure

	byID map[ID]Backend
}

// Resolve probes every backend and returns those usable, ranked. It fails
// with ErrNoBackend naming every probed backend when none is usable.
func (r *Registry) Resolve(sel Selection) (*Resolved, error) {
	for _, id := range append(slices.Clone(sel.Preferred), sel.Disabled...) {
		if _, err := r.ParseID(string(id)); err != nil {
			return nil, err
		}
	}

	ranked := make([]Backend, 0, len(r.backends))
	for _, id := range sel.Preferred {
		for _, b := range r.backends {
			if b.ID == id && !slices.ContainsFunc(ranked, func(x Backend) bool { return x.ID == id }) {
				ranked = append(ranked, b)
			}
		}
	}
	for _, b := range r.backends {
		if !slices.ContainsFunc(ranked, func(x Backend) bool { return x.ID == b.ID }) {
			ranked = append(ranked, b)
		}
	}

	res := &Resolved{byID: make(map[ID]Backend)}
	for _, b := range ranked {
		if slices.Contains(sel.Disabled, b.ID) {
			res.Unavailable = append(res.Unavailable, ProbeFailure{ID: b.ID, Reason: "disabled by configuration"})
			continue
		}
		if err := runProbe(b); err != nil {
			res.Unavailable = append(res.Unavailable, ProbeFailure{ID: b.ID, Reason: err.Error()})
			continue
		}
		res.Available = append(res.Available, b.ID)
		res.byID[b.ID] = b
	}
	if len(res.Available) == 0 {
		parts := make([]string, len(res.Unavailable))
		for i, f := range res.Unavailable {
			parts[i] = fmt.Sprintf("%s: %s", f.ID, f.Reason)
		}
		return res, fmt.Errorf("%w: %s", ErrNoBackend, strings.Join(parts, "; "))
	}
	return res, nil
}

func runProbe(b Backend) (err error) {
	if b.Probe == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return b.Probe()
}

// Primary returns the highest ranked usable backend.
func (r *Resolved) Primary() ID { return r.Available[0] }

// New returns fresh instances of every usable backend, ranked, behind a
// fallback chain. Each call returns independent instances so that workers
// never share a backend.
func (r *Resolved) New(opts Options, chainOpts ...ChainOption) Solver {
	solvers := make([]Solver, len(r.Available))
	for i, id := range r.Available {
		solvers[i] = r.byID[id].New(opts)
	}
	if len(solvers) == 1 {
		return solvers[0]
	}
	return NewChain(solvers, chainOpts...)
}

// probeSimplex solves min x s.t. x - s = 1 and checks the optimum.
func probeSimplex() error {
	a := mat.NewDense(1, 2, []float64{1, -1})
	opt, x, err := lp.Simplex([]float64{1, 0}, a, []float64{1}, lpTolerance, nil)
	if err != nil {
		return fmt.Errorf("simplex probe: %w", err)
	}
	if math.Abs(opt-1) > 1e-6 || math.Abs(x[0]-1) > 1e-6 {
		return fmt.Errorf("simplex probe returned %v, want 1", opt)
	}
	return nil
}

func joinIDs(ids []ID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = string(id)
	}
	return strings.Join(s, ", ")
}
