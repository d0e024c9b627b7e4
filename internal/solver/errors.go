package solver

import (
	"errors"
	"fmt"

	"github.com/boshu2/recourse/internal/types"
)

var (
	// ErrNoBackend is returned by Resolve when no backend is usable.
	ErrNoBackend = fmt.Errorf("%w: no usable solver backend", types.ErrConfiguration)

	// ErrUnknownBackend is returned for an identifier outside the registry.
	ErrUnknownBackend = fmt.Errorf("%w: unknown solver backend", types.ErrConfiguration)

	// ErrInconclusive reports a solve that hit its time or node budget
	// before proving optimality or infeasibility.
	ErrInconclusive = errors.New("solve inconclusive")

	// ErrInvalidProblem is returned when a problem is malformed.
	ErrInvalidProblem = fmt.Errorf("%w: invalid solver problem", types.ErrConfiguration)
)

// BackendError reports a failure inside an optimization engine. It matches
// types.ErrBackend with errors.Is, and the chain falls back on it.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("solver %s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() []error { return []error{types.ErrBackend, e.Err} }
