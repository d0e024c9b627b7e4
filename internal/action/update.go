package action

import (
	"fmt"
	"strings"
)

// Property names a mutable FeatureSpec field.
type Property string

const (
	PropActionable    Property = "actionable"
	PropBounds        Property = "bounds"
	PropStepSize      Property = "step_size"
	PropStepType      Property = "step_type"
	PropStepDirection Property = "step_direction"
)

// Update assigns one property value to every named feature. Each target is
// validated with the new value applied before anything is mutated, so a
// rejected value leaves the action set unchanged.
func (as *ActionSet) Update(names []string, prop Property, value any) error {
	set, err := setter(prop, value)
	if err != nil {
		return &ConfigError{Feature: firstOr(names, "*"), Property: prop, Reason: err.Error(), Err: ErrInvalidProperty}
	}
	return as.apply(names, prop, set)
}

// UpdateOne is Update for a single feature.
func (as *ActionSet) UpdateOne(name string, prop Property, value any) error {
	return as.Update([]string{name}, prop, value)
}

func (as *ActionSet) apply(names []string, prop Property, set func(*FeatureSpec)) error {
	if len(names) == 0 {
		return nil
	}
	staged := make(map[int]FeatureSpec, len(names))
	for _, n := range names {
		j, ok := as.index[n]
		if !ok {
			return &ConfigError{Feature: n, Property: prop, Reason: "not in action set", Err: ErrUnknownFeature}
		}
		s, seen := staged[j]
		if !seen {
			s = as.specs[j]
		}
		set(&s)
		if err := s.validate(as.dists[j] != nil); err != nil {
			return err
		}
		staged[j] = s
	}
	for j, s := range staged {
		as.specs[j] = s
	}
	return nil
}

func setter(prop Property, value any) (func(*FeatureSpec), error) {
	switch prop {
	case PropActionable:
		v, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", value)
		}
		return func(s *FeatureSpec) { s.Actionable = v }, nil

	case PropBounds:
		b, err := toBounds(value)
		if err != nil {
			return nil, err
		}
		return func(s *FeatureSpec) { s.Bounds = b }, nil

	case PropStepSize:
		v, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		return func(s *FeatureSpec) { s.StepSize = v }, nil

	case PropStepType:
		var t StepType
		switch v := value.(type) {
		case StepType:
			t = v
		case string:
			t = StepType(strings.ToLower(strings.TrimSpace(v)))
		default:
			return nil, fmt.Errorf("want step type, got %T", value)
		}
		if t != Absolute && t != Percentile {
			return nil, fmt.Errorf("step type %q is not %q or %q", t, Absolute, Percentile)
		}
		return func(s *FeatureSpec) { s.StepType = t }, nil

	case PropStepDirection:
		d, err := toDirection(value)
		if err != nil {
			return nil, err
		}
		return func(s *FeatureSpec) { s.StepDirection = d }, nil
	}
	return nil, fmt.Errorf("unknown property %q", prop)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("want number, got %T", value)
}

func toBounds(value any) (Bounds, error) {
	switch v := value.(type) {
	case Bounds:
		return v, nil
	case [2]float64:
		return Bounds{Lower: v[0], Upper: v[1]}, nil
	case []float64:
		if len(v) != 2 {
			return Bounds{}, fmt.Errorf("bounds need 2 values, got %d", len(v))
		}
		return Bounds{Lower: v[0], Upper: v[1]}, nil
	}
	return Bounds{}, fmt.Errorf("want bounds, got %T", value)
}

func toDirection(value any) (StepDirection, error) {
	switch v := value.(type) {
	case StepDirection:
		if v < Decrease || v > Increase {
			return 0, fmt.Errorf("step direction %d is not -1, 0 or 1", int(v))
		}
		return v, nil
	case int:
		return toDirection(StepDirection(v))
	case string:
		return ParseStepDirection(v)
	}
	return 0, fmt.Errorf("want step direction, got %T", value)
}
