package model

import (
	"fmt"

	"github.com/boshu2/recourse/internal/types"
)

// Sentinel errors for the model package. All are configuration errors.
var (
	// ErrInvalidSign is returned when the favorable sign is not +1 or -1.
	ErrInvalidSign = fmt.Errorf("%w: favorable sign must be +1 or -1", types.ErrConfiguration)

	// ErrFeatureMismatch is returned when model features do not match the action set.
	ErrFeatureMismatch = fmt.Errorf("%w: model features do not match", types.ErrConfiguration)

	// ErrInvalidModel is returned when a model file cannot be used.
	ErrInvalidModel = fmt.Errorf("%w: invalid model", types.ErrConfiguration)
)
