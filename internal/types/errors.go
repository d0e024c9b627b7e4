package types

import "errors"

// Error kinds shared across the recourse packages. Package-level errors wrap
// one of these so callers can classify a failure with errors.Is without
// knowing which package produced it.
var (
	// ErrConfiguration marks an invalid action set, model, dataset or
	// solver configuration. Never silently corrected.
	ErrConfiguration = errors.New("configuration error")

	// ErrPrecondition marks a call made in a state where it has no meaning,
	// such as requesting recourse for an already favorable subject.
	ErrPrecondition = errors.New("precondition failed")

	// ErrBackend marks a failure inside an optimization engine.
	ErrBackend = errors.New("solver backend error")
)
