package storage

import "errors"

// Sentinel errors for the storage package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrRunIDRequired is returned when a run write is attempted without an ID.
	ErrRunIDRequired = errors.New("run ID is required")

	// ErrRunNotFound is returned when no stored run has the requested ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrEmptyRunFile is returned when a run file has no header line.
	ErrEmptyRunFile = errors.New("empty run file")
)
