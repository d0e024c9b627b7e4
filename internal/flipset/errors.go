package flipset

import (
	"errors"
	"fmt"

	"github.com/boshu2/recourse/internal/types"
)

var (
	// ErrAlreadyFavorable is returned by Populate when the subject already
	// receives the favorable decision.
	ErrAlreadyFavorable = fmt.Errorf("%w: subject is already classified favorably", types.ErrPrecondition)

	// ErrAlreadyPopulated is returned when Populate is called twice.
	ErrAlreadyPopulated = fmt.Errorf("%w: flipset already populated", types.ErrPrecondition)

	// ErrInvalidEnumeration is returned for an unknown enumeration policy.
	ErrInvalidEnumeration = fmt.Errorf("%w: unknown enumeration type", types.ErrConfiguration)

	// ErrInvalidRequest is returned for a non-positive item count or margin.
	ErrInvalidRequest = fmt.Errorf("%w: invalid flipset request", types.ErrConfiguration)

	// ErrVerification marks a solver action that does not hold up when
	// re-checked against the classifier and the action set.
	ErrVerification = errors.New("action failed verification")
)
