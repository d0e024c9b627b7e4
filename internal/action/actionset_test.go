package action

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boshu2/recourse/internal/dataset"
	"github.com/boshu2/recourse/internal/model"
	"github.com/boshu2/recourse/internal/types"
)

// creditMatrix is a small slice of the credit data set used across tests.
func creditMatrix(t *testing.T) *dataset.Matrix {
	t.Helper()
	cols := []string{"Married", "EducationLevel", "TotalMonthsOverdue", "MaxBillAmount"}
	rows := [][]float64{
		{1, 0, 0, 100.5},
		{0, 1, 3, 250.0},
		{1, 2, 10, 80.25},
		{0, 3, 25, 400.0},
		{1, 1, 7, 310.75},
	}
	m, err := dataset.New(cols, rows)
	require.NoError(t, err)
	return m
}

type opaqueScorer struct{}

func (opaqueScorer) Score(x []float64) float64 { return x[0] * x[0] }
func (opaqueScorer) FavorableSign() int        { return 1 }

func TestNew_InfersDefaults(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)
	require.Equal(t, 4, as.Len())
	assert.Equal(t, []string{"Married", "EducationLevel", "TotalMonthsOverdue", "MaxBillAmount"}, as.Names())

	married, ok := as.Get("Married")
	require.True(t, ok)
	assert.Equal(t, Binary, married.ValueType)
	assert.Equal(t, Absolute, married.StepType)
	assert.Equal(t, Bounds{Lower: 0, Upper: 1}, married.Bounds)

	overdue, _ := as.Get("TotalMonthsOverdue")
	assert.Equal(t, Integer, overdue.ValueType)
	assert.Equal(t, 1.0, overdue.StepSize)
	assert.Equal(t, Bounds{Lower: 0, Upper: 25}, overdue.Bounds)

	bill, _ := as.Get("MaxBillAmount")
	assert.Equal(t, Continuous, bill.ValueType)
	assert.Equal(t, Percentile, bill.StepType)
	assert.Equal(t, DefaultPercentileStep, bill.StepSize)
	assert.True(t, bill.Actionable)
	assert.Equal(t, Either, bill.StepDirection)
}

func TestNew_DuplicateColumns(t *testing.T) {
	m := &dataset.Matrix{Columns: []string{"a", "a"}, Rows: [][]float64{{1, 2}}}
	_, err := New(m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestUpdate_ValidatesBeforeMutating(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)

	tests := []struct {
		name    string
		names   []string
		prop    Property
		value   any
		feature string
	}{
		{"inverted bounds", []string{"TotalMonthsOverdue"}, PropBounds, []float64{5, 1}, "TotalMonthsOverdue"},
		{"zero step", []string{"MaxBillAmount"}, PropStepSize, 0.0, "MaxBillAmount"},
		{"negative step", []string{"TotalMonthsOverdue"}, PropStepSize, -2, "TotalMonthsOverdue"},
		{"fractional integer step", []string{"EducationLevel"}, PropStepSize, 0.5, "EducationLevel"},
		{"bad direction", []string{"EducationLevel"}, PropStepDirection, 7, "EducationLevel"},
		{"bad step type", []string{"EducationLevel"}, PropStepType, "quantum", "EducationLevel"},
		{"wrong type", []string{"Married"}, PropActionable, "no", "Married"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := as.Specs()
			err := as.Update(tt.names, tt.prop, tt.value)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidProperty), "error = %v", err)
			assert.True(t, errors.Is(err, types.ErrConfiguration))

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.feature, cerr.Feature)
			assert.Equal(t, tt.prop, cerr.Property)
			assert.Equal(t, before, as.Specs(), "specs must be unchanged after a rejected update")
		})
	}
}

func TestUpdate_BatchIsAllOrNothing(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)
	before := as.Specs()

	// A fractional step is fine for the continuous column but not the integer one.
	err = as.Update([]string{"MaxBillAmount", "TotalMonthsOverdue"}, PropStepSize, 0.25)
	require.Error(t, err)
	assert.Equal(t, before, as.Specs())

	err = as.Update([]string{"Married", "nope"}, PropActionable, false)
	require.ErrorIs(t, err, ErrUnknownFeature)
	assert.Equal(t, before, as.Specs())
}

func TestUpdate_Applies(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)

	require.NoError(t, as.UpdateOne("EducationLevel", PropStepDirection, "increase"))
	require.NoError(t, as.UpdateOne("EducationLevel", PropBounds, [2]float64{0, 3}))
	require.NoError(t, as.UpdateOne("MaxBillAmount", PropStepType, Absolute))
	require.NoError(t, as.UpdateOne("MaxBillAmount", PropStepSize, 50))

	edu, _ := as.Get("EducationLevel")
	assert.Equal(t, Increase, edu.StepDirection)
	assert.Equal(t, Bounds{Lower: 0, Upper: 3}, edu.Bounds)

	bill, _ := as.Get("MaxBillAmount")
	assert.Equal(t, Absolute, bill.StepType)
	assert.Equal(t, 50.0, bill.StepSize)
}

func TestGroups(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)

	require.NoError(t, as.DefineGroup("history", []string{"TotalMonthsOverdue", "MaxBillAmount"}))
	require.NoError(t, as.UpdateGroup("history", PropActionable, false))
	for _, n := range []string{"TotalMonthsOverdue", "MaxBillAmount"} {
		s, _ := as.Get(n)
		assert.False(t, s.Actionable, n)
	}

	assert.ErrorIs(t, as.UpdateGroup("missing", PropActionable, true), ErrUnknownGroup)
	assert.ErrorIs(t, as.DefineGroup("bad", []string{"ghost"}), ErrUnknownFeature)
}

func TestSetPercentileBounds(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)

	require.NoError(t, as.SetPercentileBounds([]string{"MaxBillAmount"}, 0.2, 0.8))
	bill, _ := as.Get("MaxBillAmount")
	assert.Equal(t, 80.25, bill.Bounds.Lower)
	assert.Equal(t, 310.75, bill.Bounds.Upper)

	assert.Error(t, as.SetPercentileBounds([]string{"MaxBillAmount"}, 0.9, 0.1))
}

func TestSetAlignment(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)
	require.NoError(t, as.UpdateOne("EducationLevel", PropStepDirection, Increase))

	_, aligned := as.Alignment()
	assert.False(t, aligned)

	// Education is pinned to increase but the model rewards decreasing it.
	clf, err := model.NewLinear([]float64{0.5, -0.2, -0.3, 0}, -1, 1)
	require.NoError(t, err)
	warnings, err := as.SetAlignment(clf)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "EducationLevel", warnings[0].Feature)
	assert.Contains(t, warnings[0].String(), "EducationLevel")

	alignment, aligned := as.Alignment()
	require.True(t, aligned)
	assert.Equal(t, []int{1, -1, -1, 0}, alignment)

	g, err := as.Grid(1, 1)
	require.NoError(t, err)
	assert.True(t, g.Empty(), "conflicting pinned direction should collapse the grid")

	g, err = as.Grid(3, 100.5)
	require.NoError(t, err)
	assert.True(t, g.Empty(), "zero-weight feature cannot help")
}

func TestSetAlignment_FavorableSignFlipsAlignment(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)
	clf, err := model.NewLinear([]float64{0.5, -0.2, -0.3, 0}, -1, -1)
	require.NoError(t, err)
	_, err = as.SetAlignment(clf)
	require.NoError(t, err)
	alignment, _ := as.Alignment()
	assert.Equal(t, []int{-1, 1, 1, 0}, alignment)
}

func TestSetAlignment_Errors(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)

	_, err = as.SetAlignment(opaqueScorer{})
	assert.ErrorIs(t, err, ErrNonLinearModel)
	assert.ErrorIs(t, err, types.ErrPrecondition)

	short, _ := model.NewLinear([]float64{1}, 0, 1)
	_, err = as.SetAlignment(short)
	assert.ErrorIs(t, err, ErrDimension)
}

func TestGrid_Absolute(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)
	require.NoError(t, as.UpdateOne("TotalMonthsOverdue", PropBounds, []float64{0, 100}))
	require.NoError(t, as.UpdateOne("TotalMonthsOverdue", PropStepDirection, Decrease))

	g, err := as.Grid(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1, 0}, g.Values)
	assert.Equal(t, []int{1, 2, 3}, g.Steps)
	assert.Equal(t, -1.0, g.Delta(0))
}

func TestGrid_EitherDirectionBeforeAlignment(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)

	g, err := as.Grid(1, 2) // EducationLevel in [0, 3]
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 0}, g.Values)
	assert.Equal(t, []int{1, 1, 2}, g.Steps)
}

func TestGrid_Binary(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)

	g, err := as.Grid(0, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, g.Values)

	require.NoError(t, as.UpdateOne("Married", PropActionable, false))
	g, err = as.Grid(0, 1)
	require.NoError(t, err)
	assert.True(t, g.Empty())
}

func TestGrid_Percentile(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)
	require.NoError(t, as.UpdateOne("MaxBillAmount", PropStepSize, 0.2))

	g, err := as.Grid(3, 250)
	require.NoError(t, err)
	// Observed: 80.25 100.5 250 310.75 400; 250 sits at the 0.6 quantile.
	assert.Equal(t, []float64{310.75, 400, 100.5, 80.25}, g.Values)
	assert.Equal(t, []int{1, 2, 1, 2}, g.Steps)
	for _, v := range g.Values {
		assert.True(t, v >= 80.25 && v <= 400)
	}
}

func TestGrid_MaxGridPoints(t *testing.T) {
	as, err := New(creditMatrix(t), WithMaxGridPoints(2))
	require.NoError(t, err)
	require.NoError(t, as.UpdateOne("TotalMonthsOverdue", PropStepDirection, Increase))
	g, err := as.Grid(2, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, g.Values)
}

func TestGrid_OutOfBounds(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)

	_, err = as.Grid(2, 40)
	require.ErrorIs(t, err, ErrOutOfBounds)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "TotalMonthsOverdue", cerr.Feature)
	assert.Equal(t, PropBounds, cerr.Property)

	_, err = as.Grids([]float64{1, 2})
	assert.ErrorIs(t, err, ErrDimension)
}

func TestGrid_DoesNotMutate(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)
	before := as.Specs()
	_, err = as.Grids([]float64{1, 2, 10, 80.25})
	require.NoError(t, err)
	assert.Equal(t, before, as.Specs())
}

func TestClone_IsIndependent(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)
	cp := as.Clone()
	require.NoError(t, cp.UpdateOne("Married", PropActionable, false))

	orig, _ := as.Get("Married")
	assert.True(t, orig.Actionable)
}

func TestNewFromSpecs_RejectsPercentile(t *testing.T) {
	_, err := NewFromSpecs([]FeatureSpec{{
		Name: "x", ValueType: Continuous, Actionable: true,
		StepSize: 0.1, StepType: Percentile, Bounds: Bounds{Lower: 0, Upper: 1},
	}})
	assert.ErrorIs(t, err, ErrNoDistribution)

	_, err = NewFromSpecs([]FeatureSpec{
		{Name: "x", ValueType: Continuous, StepSize: 1, StepType: Absolute, Bounds: Bounds{Upper: math.Inf(1)}},
		{Name: "x", ValueType: Continuous, StepSize: 1, StepType: Absolute},
	})
	assert.ErrorIs(t, err, ErrInvalidProperty)
}

func TestLoadFileAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "actions.yaml")
	src := `
groups:
  fixed: [Married]
features:
  - group: fixed
    actionable: false
  - names: [EducationLevel]
    step_direction: increase
    step_size: 1
    step_type: absolute
    bounds: [0, 3]
  - names: [TotalMonthsOverdue]
    step_direction: -1
    bounds: [0, 100]
  - names: [MaxBillAmount]
    percentile_bounds: [0, 0.8]
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	as, err := New(creditMatrix(t))
	require.NoError(t, err)
	require.NoError(t, as.Apply(f))

	married, _ := as.Get("Married")
	assert.False(t, married.Actionable)
	edu, _ := as.Get("EducationLevel")
	assert.Equal(t, Increase, edu.StepDirection)
	overdue, _ := as.Get("TotalMonthsOverdue")
	assert.Equal(t, Decrease, overdue.StepDirection)
	assert.Equal(t, 100.0, overdue.Bounds.Upper)
	bill, _ := as.Get("MaxBillAmount")
	assert.Equal(t, 310.75, bill.Bounds.Upper)
}

func TestApply_RejectsWholeOverride(t *testing.T) {
	as, err := New(creditMatrix(t))
	require.NoError(t, err)
	before := as.Specs()

	step := 0.5
	off := false
	err = as.Apply(&File{Features: []Override{{
		Names:      []string{"EducationLevel"},
		Actionable: &off,
		StepSize:   &step,
	}}})
	require.ErrorIs(t, err, ErrInvalidProperty)
	assert.Equal(t, before, as.Specs())
}
