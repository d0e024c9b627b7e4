package action

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValueType is the numeric kind of a feature.
type ValueType string

const (
	Continuous ValueType = "continuous"
	Integer    ValueType = "integer"
	Binary     ValueType = "binary"
)

// StepType selects the units step sizes are measured in.
type StepType string

const (
	// Absolute steps are in the feature's native units.
	Absolute StepType = "absolute"
	// Percentile steps are in quantile units of the observed distribution.
	Percentile StepType = "percentile"
)

// StepDirection constrains the sign of a nonzero delta.
type StepDirection int

const (
	Decrease StepDirection = -1
	Either   StepDirection = 0
	Increase StepDirection = 1
)

func (d StepDirection) String() string {
	switch d {
	case Increase:
		return "increase"
	case Decrease:
		return "decrease"
	case Either:
		return "either"
	default:
		return strconv.Itoa(int(d))
	}
}

// ParseStepDirection accepts increase|decrease|either and 1|-1|0.
func ParseStepDirection(s string) (StepDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "increase", "up", "1", "+1":
		return Increase, nil
	case "decrease", "down", "-1":
		return Decrease, nil
	case "either", "any", "0", "":
		return Either, nil
	}
	return 0, fmt.Errorf("unknown step direction %q", s)
}

// UnmarshalYAML decodes a direction from either spelling.
func (d *StepDirection) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := ParseStepDirection(raw)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalYAML encodes the direction by name.
func (d StepDirection) MarshalYAML() (any, error) { return d.String(), nil }

// Bounds is the closed interval a feature value must stay within.
type Bounds struct {
	Lower float64 `yaml:"lower" validate:"ltefield=Upper"`
	Upper float64 `yaml:"upper"`
}

// Contains reports whether v lies in the interval, with a small tolerance.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Lower-tolerance && v <= b.Upper+tolerance
}

// FeatureSpec describes the actionability of one model input.
type FeatureSpec struct {
	Name          string        `yaml:"name" validate:"required"`
	ValueType     ValueType     `yaml:"value_type" validate:"oneof=continuous integer binary"`
	Actionable    bool          `yaml:"actionable"`
	StepDirection StepDirection `yaml:"step_direction" validate:"oneof=-1 0 1"`
	StepSize      float64       `yaml:"step_size" validate:"gt=0"`
	StepType      StepType      `yaml:"step_type" validate:"oneof=absolute percentile"`
	Bounds        Bounds        `yaml:"bounds"`
}

const tolerance = 1e-9

var specValidate *validator.Validate

func init() {
	specValidate = validator.New()
	specValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
}

// fieldProperty maps a validated field to the property reported to callers.
func fieldProperty(field string) Property {
	switch field {
	case "lower", "upper", "bounds":
		return PropBounds
	case "step_size":
		return PropStepSize
	case "step_type":
		return PropStepType
	case "step_direction":
		return PropStepDirection
	case "actionable":
		return PropActionable
	}
	return Property(field)
}

// validate checks a spec in isolation. hasDist reports whether an observed
// distribution is available for percentile steps.
func (s FeatureSpec) validate(hasDist bool) error {
	if err := specValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return invalid(s.Name, fieldProperty(fe.Field()), "failed %q check (value %v)", fe.Tag(), fe.Value())
		}
		return invalid(s.Name, "", "%v", err)
	}
	if math.IsNaN(s.Bounds.Lower) || math.IsNaN(s.Bounds.Upper) {
		return invalid(s.Name, PropBounds, "bounds must be numbers")
	}
	if math.IsNaN(s.StepSize) || math.IsInf(s.StepSize, 0) {
		return invalid(s.Name, PropStepSize, "step size must be finite")
	}
	switch s.StepType {
	case Percentile:
		if s.StepSize > 1 {
			return invalid(s.Name, PropStepSize, "percentile step %v exceeds 1", s.StepSize)
		}
		if !hasDist {
			return &ConfigError{Feature: s.Name, Property: PropStepType, Reason: "percentile steps need observed data", Err: ErrNoDistribution}
		}
	case Absolute:
		if s.ValueType != Continuous && s.StepSize != math.Trunc(s.StepSize) {
			return invalid(s.Name, PropStepSize, "%s features need an integral step, got %v", s.ValueType, s.StepSize)
		}
	}
	return nil
}
