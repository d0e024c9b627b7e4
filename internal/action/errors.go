package action

import (
	"fmt"

	"github.com/boshu2/recourse/internal/types"
)

// Sentinel errors for the action package. All of them are configuration
// errors except ErrNonLinearModel, which is a precondition failure.
var (
	// ErrInvalidProperty is returned when a feature property value is rejected.
	ErrInvalidProperty = fmt.Errorf("%w: invalid feature property", types.ErrConfiguration)

	// ErrUnknownFeature is returned when a name is not in the action set.
	ErrUnknownFeature = fmt.Errorf("%w: unknown feature", types.ErrConfiguration)

	// ErrUnknownGroup is returned when a group name has not been defined.
	ErrUnknownGroup = fmt.Errorf("%w: unknown feature group", types.ErrConfiguration)

	// ErrOutOfBounds is returned when a subject value lies outside a feature's bounds.
	ErrOutOfBounds = fmt.Errorf("%w: value outside feature bounds", types.ErrConfiguration)

	// ErrDimension is returned when a vector length does not match the action set.
	ErrDimension = fmt.Errorf("%w: dimension mismatch", types.ErrConfiguration)

	// ErrNoDistribution is returned when a percentile operation is requested
	// for a feature without observed data.
	ErrNoDistribution = fmt.Errorf("%w: no observed distribution", types.ErrConfiguration)

	// ErrNonLinearModel is returned when alignment is requested from a model
	// that exposes no coefficients.
	ErrNonLinearModel = fmt.Errorf("%w: alignment requires a linear model", types.ErrPrecondition)
)

// ConfigError identifies the feature and property behind a configuration
// failure.
type ConfigError struct {
	Feature  string
	Property Property
	Reason   string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("feature %q: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("feature %q property %q: %s", e.Feature, e.Property, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func invalid(feature string, prop Property, format string, args ...any) *ConfigError {
	return &ConfigError{
		Feature:  feature,
		Property: prop,
		Reason:   fmt.Sprintf(format, args...),
		Err:      ErrInvalidProperty,
	}
}
