// Package types defines the error kinds and small shared vocabulary used by
// the recourse packages.
package types

import "errors"

// Kind classifies an error for reporting and exit codes.
type Kind string

const (
	KindNone          Kind = ""
	KindConfiguration Kind = "configuration"
	KindPrecondition  Kind = "precondition"
	KindBackend       Kind = "backend"
	KindInternal      Kind = "internal"
)

// KindOf returns the kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrPrecondition):
		return KindPrecondition
	case errors.Is(err, ErrBackend):
		return KindBackend
	default:
		return KindInternal
	}
}

// ExitCode maps an error kind to a process exit status.
func (k Kind) ExitCode() int {
	switch k {
	case KindNone:
		return 0
	case KindConfiguration:
		return 2
	case KindPrecondition:
		return 3
	case KindBackend:
		return 4
	default:
		return 1
	}
}
