package action

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of an action set override file:
//
//	groups:
//	  age: [Age_lt_25, Age_geq_60]
//	features:
//	  - names: [Married]
//	    actionable: false
//	  - group: age
//	    actionable: false
//	  - names: [EducationLevel]
//	    step_direction: increase
//	    step_size: 1
//	    step_type: absolute
//	    bounds: [0, 3]
type File struct {
	Groups   map[string][]string `yaml:"groups"`
	Features []Override          `yaml:"features"`
}

// Override assigns properties to a list of features or a named group.
// Absent properties are left unchanged.
type Override struct {
	Names            []string       `yaml:"names"`
	Group            string         `yaml:"group"`
	Actionable       *bool          `yaml:"actionable"`
	Bounds           []float64      `yaml:"bounds"`
	PercentileBounds []float64      `yaml:"percentile_bounds"`
	StepSize         *float64       `yaml:"step_size"`
	StepType         *StepType      `yaml:"step_type"`
	StepDirection    *StepDirection `yaml:"step_direction"`
}

// LoadFile reads an override file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read action file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse action file: %v", ErrInvalidProperty, err)
	}
	return &f, nil
}

// Apply defines the file's groups and applies its overrides in order.
// Application stops at the first rejected override.
func (as *ActionSet) Apply(f *File) error {
	for name, members := range f.Groups {
		if err := as.DefineGroup(name, members); err != nil {
			return err
		}
	}
	for i, o := range f.Features {
		if err := as.applyOverride(o); err != nil {
			return fmt.Errorf("override %d: %w", i, err)
		}
	}
	return nil
}

// applyOverride stages every property of o and applies them together, so
// an override is accepted or rejected as a whole.
func (as *ActionSet) applyOverride(o Override) error {
	names := o.Names
	if o.Group != "" {
		members, ok := as.groups[o.Group]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownGroup, o.Group)
		}
		names = append(append([]string(nil), names...), members...)
	}

	var sets []func(*FeatureSpec)
	stage := func(prop Property, value any) error {
		set, err := setter(prop, value)
		if err != nil {
			return &ConfigError{Feature: firstOr(names, "*"), Property: prop, Reason: err.Error(), Err: ErrInvalidProperty}
		}
		sets = append(sets, set)
		return nil
	}

	if o.Actionable != nil {
		if err := stage(PropActionable, *o.Actionable); err != nil {
			return err
		}
	}
	if o.StepType != nil {
		if err := stage(PropStepType, *o.StepType); err != nil {
			return err
		}
	}
	if o.StepSize != nil {
		if err := stage(PropStepSize, *o.StepSize); err != nil {
			return err
		}
	}
	if o.StepDirection != nil {
		if err := stage(PropStepDirection, *o.StepDirection); err != nil {
			return err
		}
	}
	if o.Bounds != nil {
		if err := stage(PropBounds, o.Bounds); err != nil {
			return err
		}
	}
	if o.PercentileBounds != nil {
		pb := o.PercentileBounds
		if len(pb) != 2 || pb[0] < 0 || pb[1] > 1 || pb[0] > pb[1] {
			return invalid(firstOr(names, "*"), PropBounds, "percentile_bounds must be [lo, hi] within [0, 1]")
		}
		bounds := make(map[string]Bounds, len(names))
		for _, n := range names {
			j, ok := as.index[n]
			if !ok {
				return &ConfigError{Feature: n, Property: PropBounds, Reason: "not in action set", Err: ErrUnknownFeature}
			}
			if as.dists[j] == nil {
				return &ConfigError{Feature: n, Property: PropBounds, Reason: "percentile bounds need observed data", Err: ErrNoDistribution}
			}
			bounds[n] = Bounds{Lower: as.dists[j].Quantile(pb[0]), Upper: as.dists[j].Quantile(pb[1])}
		}
		sets = append(sets, func(s *FeatureSpec) { s.Bounds = bounds[s.Name] })
	}

	return as.apply(names, "", func(s *FeatureSpec) {
		for _, set := range sets {
			set(s)
		}
	})
}
