// Package model defines the narrow classifier interface consumed by the
// recourse engine. Only a signed decision score is required; alignment and
// the solver additionally need the coefficients of a linear model.
package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scorer maps a feature vector to a signed decision score. The subject is
// predicted favorable when FavorableSign()*Score(x) > 0.
type Scorer interface {
	Score(x []float64) float64
	FavorableSign() int
}

// Linear is a Scorer with score(x) = w·x + b.
type Linear interface {
	Scorer
	Coefficients() []float64
	Intercept() float64
}

// IsFavorable reports whether s predicts the favorable class for x.
func IsFavorable(s Scorer, x []float64) bool {
	return float64(s.FavorableSign())*s.Score(x) > 0
}

// SignedScore returns the score oriented so that positive is favorable.
func SignedScore(s Scorer, x []float64) float64 {
	return float64(s.FavorableSign()) * s.Score(x)
}

// LinearModel is an externally trained linear classifier.
type LinearModel struct {
	Features []string
	Weights  []float64
	Bias     float64
	Sign     int
}

// NewLinear builds a linear model. sign must be +1 or -1; features may be
// nil when the caller orders weights itself.
func NewLinear(weights []float64, bias float64, sign int, features ...string) (*LinearModel, error) {
	if sign != 1 && sign != -1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSign, sign)
	}
	if len(features) > 0 && len(features) != len(weights) {
		return nil, fmt.Errorf("%w: %d features, %d weights", ErrFeatureMismatch, len(features), len(weights))
	}
	w := make([]float64, len(weights))
	copy(w, weights)
	return &LinearModel{Features: features, Weights: w, Bias: bias, Sign: sign}, nil
}

// Score returns w·x + b. Extra or missing trailing entries are ignored.
func (m *LinearModel) Score(x []float64) float64 {
	s := m.Bias
	n := len(m.Weights)
	if len(x) < n {
		n = len(x)
	}
	for j := 0; j < n; j++ {
		s += m.Weights[j] * x[j]
	}
	return s
}

// FavorableSign returns the score sign of the favorable class.
func (m *LinearModel) FavorableSign() int { return m.Sign }

// Coefficients returns a copy of the weight vector.
func (m *LinearModel) Coefficients() []float64 {
	out := make([]float64, len(m.Weights))
	copy(out, m.Weights)
	return out
}

// Intercept returns b.
func (m *LinearModel) Intercept() float64 { return m.Bias }

// Reorder returns a model whose weights follow names. Every name must appear
// in the model and vice versa.
func (m *LinearModel) Reorder(names []string) (*LinearModel, error) {
	if len(m.Features) == 0 {
		if len(names) != len(m.Weights) {
			return nil, fmt.Errorf("%w: model has %d weights, action set has %d features", ErrFeatureMismatch, len(m.Weights), len(names))
		}
		return m, nil
	}
	if len(names) != len(m.Features) {
		return nil, fmt.Errorf("%w: model has %d features, action set has %d", ErrFeatureMismatch, len(m.Features), len(names))
	}
	pos := make(map[string]int, len(m.Features))
	for i, f := range m.Features {
		pos[f] = i
	}
	w := make([]float64, len(names))
	for i, n := range names {
		p, ok := pos[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q not in model", ErrFeatureMismatch, n)
		}
		w[i] = m.Weights[p]
	}
	out := append([]string(nil), names...)
	return &LinearModel{Features: out, Weights: w, Bias: m.Bias, Sign: m.Sign}, nil
}

// File is the YAML layout of a model file.
type File struct {
	Intercept     float64       `yaml:"intercept"`
	FavorableSign int           `yaml:"favorable_sign"`
	Coefficients  []Coefficient `yaml:"coefficients"`
}

// Coefficient is one named weight.
type Coefficient struct {
	Feature string  `yaml:"feature"`
	Weight  float64 `yaml:"weight"`
}

// Load reads a model file. A missing favorable_sign defaults to +1.
func Load(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return Parse(data)
}

// Parse decodes a model file.
func Parse(data []byte) (*LinearModel, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse model: %v", ErrInvalidModel, err)
	}
	if len(f.Coefficients) == 0 {
		return nil, fmt.Errorf("%w: no coefficients", ErrInvalidModel)
	}
	if f.FavorableSign == 0 {
		f.FavorableSign = 1
	}
	features := make([]string, len(f.Coefficients))
	weights := make([]float64, len(f.Coefficients))
	seen := make(map[string]bool, len(f.Coefficients))
	for i, c := range f.Coefficients {
		if c.Feature == "" || seen[c.Feature] {
			return nil, fmt.Errorf("%w: coefficient %d has empty or duplicate feature %q", ErrInvalidModel, i, c.Feature)
		}
		seen[c.Feature] = true
		features[i] = c.Feature
		weights[i] = c.Weight
	}
	return NewLinear(weights, f.Intercept, f.FavorableSign, features...)
}
