// Package action builds the per-feature actionability model of a recourse
// query: feature specs, their alignment with a linear classifier, and the
// finite grid of values each feature may move to for a given subject.
package action

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/boshu2/recourse/internal/dataset"
	"github.com/boshu2/recourse/internal/model"
)

// Defaults used when inferring specs from a feature matrix.
const (
	DefaultPercentileStep = 0.01
	DefaultMaxGridPoints  = 200
)

// ActionSet is the ordered collection of feature specs covering every model
// input, plus the observed distributions used for percentile steps.
type ActionSet struct {
	specs     []FeatureSpec
	index     map[string]int
	dists     []*ecdf
	groups    map[string][]string
	alignment []int

	maxGridPoints int
	logger        *slog.Logger
}

// Option configures an ActionSet at construction.
type Option func(*builder)

type builder struct {
	boundsLo, boundsHi float64
	percentileStep     float64
	maxGridPoints      int
	logger             *slog.Logger
}

// WithDefaultBoundsPercentile infers default bounds from the lo and hi
// quantiles of each column instead of its min and max.
func WithDefaultBoundsPercentile(lo, hi float64) Option {
	return func(b *builder) {
		b.boundsLo, b.boundsHi = lo, hi
	}
}

// WithDefaultPercentileStep sets the step inferred for continuous columns.
func WithDefaultPercentileStep(step float64) Option {
	return func(b *builder) {
		b.percentileStep = step
	}
}

// WithMaxGridPoints caps the number of grid points per direction.
func WithMaxGridPoints(n int) Option {
	return func(b *builder) {
		b.maxGridPoints = n
	}
}

// WithLogger sets the logger used for alignment warnings.
func WithLogger(l *slog.Logger) Option {
	return func(b *builder) {
		b.logger = l
	}
}

func newBuilder(opts []Option) *builder {
	b := &builder{
		boundsLo:       0,
		boundsHi:       1,
		percentileStep: DefaultPercentileStep,
		maxGridPoints:  DefaultMaxGridPoints,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.maxGridPoints <= 0 {
		b.maxGridPoints = DefaultMaxGridPoints
	}
	return b
}

// New infers a spec for every column of m: value type from the observed
// values, bounds from the observed range, and a small step.
func New(m *dataset.Matrix, opts ...Option) (*ActionSet, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDimension, err)
	}
	b := newBuilder(opts)
	if b.boundsLo < 0 || b.boundsHi > 1 || b.boundsLo > b.boundsHi {
		return nil, invalid("*", PropBounds, "default percentile range [%v, %v] not within [0, 1]", b.boundsLo, b.boundsHi)
	}
	if b.percentileStep <= 0 || b.percentileStep > 1 {
		return nil, invalid("*", PropStepSize, "default percentile step %v not in (0, 1]", b.percentileStep)
	}

	specs := make([]FeatureSpec, len(m.Columns))
	dists := make([]*ecdf, len(m.Columns))
	for j, name := range m.Columns {
		col, _ := m.Column(name)
		d := newECDF(col)
		dists[j] = d
		specs[j] = inferSpec(name, d, b)
	}
	return assemble(specs, dists, b)
}

// NewFromSpecs builds an action set from explicit specs. No distributions
// are known, so percentile steps are rejected.
func NewFromSpecs(specs []FeatureSpec, opts ...Option) (*ActionSet, error) {
	b := newBuilder(opts)
	cp := make([]FeatureSpec, len(specs))
	copy(cp, specs)
	return assemble(cp, make([]*ecdf, len(specs)), b)
}

func assemble(specs []FeatureSpec, dists []*ecdf, b *builder) (*ActionSet, error) {
	as := &ActionSet{
		specs:         specs,
		index:         make(map[string]int, len(specs)),
		dists:         dists,
		groups:        make(map[string][]string),
		maxGridPoints: b.maxGridPoints,
		logger:        b.logger,
	}
	for j, s := range specs {
		if _, dup := as.index[s.Name]; dup {
			return nil, &ConfigError{Feature: s.Name, Reason: "duplicate feature name", Err: ErrInvalidProperty}
		}
		as.index[s.Name] = j
	}
	if err := as.Validate(); err != nil {
		return nil, err
	}
	return as, nil
}

func inferSpec(name string, d *ecdf, b *builder) FeatureSpec {
	s := FeatureSpec{
		Name:          name,
		ValueType:     Continuous,
		Actionable:    true,
		StepDirection: Either,
		StepSize:      1,
		StepType:      Absolute,
	}
	if d == nil {
		s.Bounds = Bounds{Lower: math.Inf(-1), Upper: math.Inf(1)}
		return s
	}
	s.Bounds = Bounds{Lower: d.Quantile(b.boundsLo), Upper: d.Quantile(b.boundsHi)}
	integral, binary := d.kinds()
	switch {
	case binary:
		s.ValueType = Binary
	case integral:
		s.ValueType = Integer
	default:
		s.StepType = Percentile
		s.StepSize = b.percentileStep
	}
	return s
}

// Validate checks every spec.
func (as *ActionSet) Validate() error {
	for j, s := range as.specs {
		if err := s.validate(as.dists[j] != nil); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of features.
func (as *ActionSet) Len() int { return len(as.specs) }

// Names returns the feature names in order.
func (as *ActionSet) Names() []string {
	out := make([]string, len(as.specs))
	for j, s := range as.specs {
		out[j] = s.Name
	}
	return out
}

// Index returns the position of a feature, or -1.
func (as *ActionSet) Index(name string) int {
	if j, ok := as.index[name]; ok {
		return j
	}
	return -1
}

// Get returns a copy of the named spec.
func (as *ActionSet) Get(name string) (FeatureSpec, bool) {
	j, ok := as.index[name]
	if !ok {
		return FeatureSpec{}, false
	}
	return as.specs[j], true
}

// Spec returns a copy of the spec at position j.
func (as *ActionSet) Spec(j int) FeatureSpec { return as.specs[j] }

// Specs returns a copy of all specs in order.
func (as *ActionSet) Specs() []FeatureSpec {
	out := make([]FeatureSpec, len(as.specs))
	copy(out, as.specs)
	return out
}

// Clone returns an independent copy. Distributions are immutable and shared.
func (as *ActionSet) Clone() *ActionSet {
	cp := &ActionSet{
		specs:         as.Specs(),
		index:         make(map[string]int, len(as.index)),
		dists:         append([]*ecdf(nil), as.dists...),
		groups:        make(map[string][]string, len(as.groups)),
		maxGridPoints: as.maxGridPoints,
		logger:        as.logger,
	}
	for k, v := range as.index {
		cp.index[k] = v
	}
	for k, v := range as.groups {
		cp.groups[k] = append([]string(nil), v...)
	}
	if as.alignment != nil {
		cp.alignment = append([]int(nil), as.alignment...)
	}
	return cp
}

// DefineGroup names a set of features for batch updates.
func (as *ActionSet) DefineGroup(group string, names []string) error {
	for _, n := range names {
		if _, ok := as.index[n]; !ok {
			return &ConfigError{Feature: n, Reason: fmt.Sprintf("group %q member not in action set", group), Err: ErrUnknownFeature}
		}
	}
	as.groups[group] = append([]string(nil), names...)
	return nil
}

// Group returns the members of a named group.
func (as *ActionSet) Group(group string) ([]string, bool) {
	g, ok := as.groups[group]
	return append([]string(nil), g...), ok
}

// UpdateGroup applies Update to every member of a named group.
func (as *ActionSet) UpdateGroup(group string, prop Property, value any) error {
	names, ok := as.groups[group]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	return as.Update(names, prop, value)
}

// SetPercentileBounds sets bounds given in quantile units of each feature's
// observed distribution. All or nothing.
func (as *ActionSet) SetPercentileBounds(names []string, lo, hi float64) error {
	if lo < 0 || hi > 1 || lo > hi {
		return invalid(firstOr(names, "*"), PropBounds, "percentile bounds [%v, %v] not within [0, 1]", lo, hi)
	}
	values := make(map[string]Bounds, len(names))
	for _, n := range names {
		j, ok := as.index[n]
		if !ok {
			return &ConfigError{Feature: n, Property: PropBounds, Reason: "not in action set", Err: ErrUnknownFeature}
		}
		d := as.dists[j]
		if d == nil {
			return &ConfigError{Feature: n, Property: PropBounds, Reason: "percentile bounds need observed data", Err: ErrNoDistribution}
		}
		values[n] = Bounds{Lower: d.Quantile(lo), Upper: d.Quantile(hi)}
	}
	return as.apply(names, PropBounds, func(s *FeatureSpec) { s.Bounds = values[s.Name] })
}

// SetAlignment records, for every feature, the direction of change that
// moves the subject toward the favorable class. Pinned directions that can
// never help are returned as warnings; their grids collapse to the current
// value.
func (as *ActionSet) SetAlignment(m model.Scorer) ([]Warning, error) {
	lin, ok := m.(model.Linear)
	if !ok {
		return nil, ErrNonLinearModel
	}
	w := lin.Coefficients()
	if len(w) != len(as.specs) {
		return nil, fmt.Errorf("%w: model has %d coefficients, action set has %d features", ErrDimension, len(w), len(as.specs))
	}
	sign := float64(lin.FavorableSign())

	alignment := make([]int, len(w))
	var warnings []Warning
	for j, wj := range w {
		switch v := sign * wj; {
		case v > 0:
			alignment[j] = 1
		case v < 0:
			alignment[j] = -1
		}
		s := as.specs[j]
		if !s.Actionable || s.StepDirection == Either || alignment[j] == 0 {
			continue
		}
		if int(s.StepDirection) != alignment[j] {
			warn := Warning{
				Feature:   s.Name,
				Direction: s.StepDirection,
				Alignment: alignment[j],
			}
			warnings = append(warnings, warn)
			as.logger.Warn("feature direction conflicts with model coefficient",
				"feature", s.Name,
				"step_direction", s.StepDirection.String(),
				"alignment", alignment[j])
		}
	}
	as.alignment = alignment
	return warnings, nil
}

// Alignment returns a copy of the alignment vector and whether it is set.
func (as *ActionSet) Alignment() ([]int, bool) {
	if as.alignment == nil {
		return nil, false
	}
	return append([]int(nil), as.alignment...), true
}

// Warning reports a pinned direction that opposes the model's alignment.
type Warning struct {
	Feature   string
	Direction StepDirection
	Alignment int
}

func (w Warning) String() string {
	return fmt.Sprintf("feature %q is pinned to %s but the model rewards %s",
		w.Feature, w.Direction, StepDirection(w.Alignment))
}

func firstOr(names []string, def string) string {
	if len(names) > 0 {
		return names[0]
	}
	return def
}
