package dataset

import "errors"

// Sentinel errors for the dataset package.
var (
	// ErrEmptyHeader is returned when a CSV source has no header row.
	ErrEmptyHeader = errors.New("dataset has no header row")

	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("duplicate column name")

	// ErrRaggedRow is returned when a row does not have one value per column.
	ErrRaggedRow = errors.New("row length does not match header")

	// ErrUnknownColumn is returned when a named column does not exist.
	ErrUnknownColumn = errors.New("unknown column")
)
