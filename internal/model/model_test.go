package model

import (
	"errors"
	"testing"

	"github.com/boshu2/recourse/internal/types"
)

func TestLinearModel_Score(t *testing.T) {
	m, err := NewLinear([]float64{2, -1}, 0.5, 1)
	if err != nil {
		t.Fatalf("NewLinear: %v", err)
	}
	if got := m.Score([]float64{1, 3}); got != -0.5 {
		t.Errorf("Score = %v, want -0.5", got)
	}
	if IsFavorable(m, []float64{1, 3}) {
		t.Error("negative score should not be favorable with sign +1")
	}

	neg, _ := NewLinear([]float64{2, -1}, 0.5, -1)
	if !IsFavorable(neg, []float64{1, 3}) {
		t.Error("negative score should be favorable with sign -1")
	}
	if got := SignedScore(neg, []float64{1, 3}); got != 0.5 {
		t.Errorf("SignedScore = %v, want 0.5", got)
	}
}

func TestNewLinear_InvalidSign(t *testing.T) {
	_, err := NewLinear([]float64{1}, 0, 0)
	if !errors.Is(err, ErrInvalidSign) || !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("NewLinear error = %v, want ErrInvalidSign", err)
	}
}

func TestParseAndReorder(t *testing.T) {
	src := []byte(`
intercept: -1.5
coefficients:
  - feature: Married
    weight: 0.2
  - feature: TotalMonthsOverdue
    weight: -0.8
`)
	m, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.FavorableSign() != 1 {
		t.Errorf("default FavorableSign = %d, want 1", m.FavorableSign())
	}

	r, err := m.Reorder([]string{"TotalMonthsOverdue", "Married"})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	w := r.Coefficients()
	if w[0] != -0.8 || w[1] != 0.2 {
		t.Errorf("reordered weights = %v, want [-0.8 0.2]", w)
	}

	if _, err := m.Reorder([]string{"Married", "Age"}); !errors.Is(err, ErrFeatureMismatch) {
		t.Errorf("Reorder mismatch error = %v, want ErrFeatureMismatch", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", "intercept: 1\n"},
		{"duplicate", "coefficients:\n  - feature: a\n    weight: 1\n  - feature: a\n    weight: 2\n"},
		{"bad yaml", "coefficients: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.src)); !errors.Is(err, ErrInvalidModel) {
				t.Errorf("Parse error = %v, want ErrInvalidModel", err)
			}
		})
	}
}
