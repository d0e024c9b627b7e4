package audit

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boshu2/recourse/internal/action"
	"github.com/boshu2/recourse/internal/dataset"
	"github.com/boshu2/recourse/internal/metrics"
	"github.com/boshu2/recourse/internal/model"
	"github.com/boshu2/recourse/internal/solver"
	"github.com/boshu2/recourse/internal/types"
)

var creditColumns = []string{"Married", "EducationLevel", "TotalMonthsOverdue", "MaxBillAmount"}

func creditMatrix(t *testing.T) *dataset.Matrix {
	t.Helper()
	m, err := dataset.New(creditColumns, [][]float64{
		{1, 0, 0, 100.5},
		{0, 1, 3, 250.0},
		{1, 2, 10, 80.25},
		{0, 3, 25, 400.0},
		{1, 1, 7, 310.75},
	})
	require.NoError(t, err)
	m.Labels = []float64{1, 1, 0, 0, 1}
	return m
}

func newAuditor(t *testing.T, m *dataset.Matrix) *Auditor {
	t.Helper()
	as, err := action.New(m)
	require.NoError(t, err)
	require.NoError(t, as.UpdateOne("Married", action.PropActionable, false))
	require.NoError(t, as.UpdateOne("EducationLevel", action.PropStepDirection, action.Increase))
	require.NoError(t, as.UpdateOne("TotalMonthsOverdue", action.PropBounds, action.Bounds{Lower: 0, Upper: 100}))

	clf, err := model.NewLinear([]float64{5, 0.3, -1, 0}, 3.9, 1, creditColumns...)
	require.NoError(t, err)
	return &Auditor{
		ActionSet:  as,
		Classifier: clf,
		NewSolver:  func() solver.Solver { return solver.NewBranchAndBound(solver.Options{}) },
		Workers:    2,
	}
}

func TestAudit(t *testing.T) {
	m := creditMatrix(t)
	a := newAuditor(t, m)
	a.Metrics = metrics.New()

	records, err := a.Audit(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, records, 5)

	want := []Outcome{Favorable, Favorable, Feasible, Feasible, Favorable}
	for i, r := range records {
		assert.Equal(t, i, r.Row)
		assert.Equal(t, want[i], r.Outcome, "row %d", i)
	}
	assert.Equal(t, 1.0, records[2].Cost)
	assert.Equal(t, []string{"TotalMonthsOverdue"}, records[2].Support)
	assert.Equal(t, 21.0, records[3].Cost, "max cost of moving overdue from 25 to 4")

	assert.Equal(t, 3.0, testutil.ToFloat64(a.Metrics.AuditRows.WithLabelValues("favorable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Metrics.AuditRows.WithLabelValues("feasible")))

	_, aligned := a.ActionSet.Alignment()
	assert.False(t, aligned, "audit must not align the caller's action set")
}

func TestAudit_ColumnOrderIndependent(t *testing.T) {
	m := creditMatrix(t)
	a := newAuditor(t, m)
	want, err := a.Audit(context.Background(), m)
	require.NoError(t, err)

	reversed := &dataset.Matrix{Columns: []string{"MaxBillAmount", "TotalMonthsOverdue", "EducationLevel", "Married"}}
	for _, r := range m.Rows {
		reversed.Rows = append(reversed.Rows, []float64{r[3], r[2], r[1], r[0]})
	}
	got, err := a.Audit(context.Background(), reversed)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAudit_Infeasible(t *testing.T) {
	m := creditMatrix(t)
	a := newAuditor(t, m)
	require.NoError(t, a.ActionSet.UpdateOne("TotalMonthsOverdue", action.PropActionable, false))

	records, err := a.Audit(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, Infeasible, records[2].Outcome)
	assert.Equal(t, Infeasible, records[3].Outcome)

	sums, err := Summarize(records, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sums[0].MeanFeasibility)
	assert.Equal(t, 2, sums[0].Infeasible)
}

func TestAudit_RowErrorsRecorded(t *testing.T) {
	m := creditMatrix(t)
	a := newAuditor(t, m)
	m.Rows = append(m.Rows, []float64{0, 7, 30, 100})

	records, err := a.Audit(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, Failed, records[5].Outcome)
	assert.Contains(t, records[5].Error, "EducationLevel")
}

func TestAudit_MissingColumn(t *testing.T) {
	m := creditMatrix(t)
	a := newAuditor(t, m)
	short, err := dataset.New([]string{"Married", "EducationLevel"}, [][]float64{{1, 0}})
	require.NoError(t, err)

	_, err = a.Audit(context.Background(), short)
	assert.ErrorIs(t, err, ErrColumnMismatch)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestAudit_Cancelled(t *testing.T) {
	m := creditMatrix(t)
	a := newAuditor(t, m)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := a.Audit(ctx, m)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, records, 5)
	assert.Equal(t, Failed, records[0].Outcome)
}

func TestSummarize(t *testing.T) {
	m := creditMatrix(t)
	records, err := newAuditor(t, m).Audit(context.Background(), m)
	require.NoError(t, err)

	all, err := Summarize(records, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	s := all[0]
	assert.Equal(t, "all", s.Label())
	assert.Equal(t, 5, s.Rows)
	assert.Equal(t, 3, s.Favorable)
	assert.Equal(t, 2, s.Feasible)
	assert.Equal(t, 1.0, s.MeanFeasibility)
	assert.Equal(t, 11.0, s.MeanCost)
	assert.Equal(t, 21.0, s.MaxCost)

	byMarried, err := Summarize(records, m, "Married")
	require.NoError(t, err)
	require.Len(t, byMarried, 2)
	assert.Equal(t, "Married=0", byMarried[0].Label())
	assert.Equal(t, 21.0, byMarried[0].MeanCost)
	assert.Equal(t, "Married=1", byMarried[1].Label())
	assert.Equal(t, 1.0, byMarried[1].MeanCost)
	assert.Equal(t, 3, byMarried[1].Rows)

	byLabel, err := Summarize(records, m, LabelGroup, "Married")
	require.NoError(t, err)
	require.Len(t, byLabel, 4)
	assert.Equal(t, "label=0,Married=0", byLabel[0].Label())

	_, err = Summarize(records, m, "Income")
	assert.ErrorIs(t, err, ErrColumnMismatch)
}
