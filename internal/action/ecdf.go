package action

import (
	"math"
	"sort"
)

// ecdf is the empirical distribution of one observed column.
type ecdf struct {
	sorted []float64
}

func newECDF(values []float64) *ecdf {
	s := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			s = append(s, v)
		}
	}
	if len(s) == 0 {
		return nil
	}
	sort.Float64s(s)
	return &ecdf{sorted: s}
}

// CDF returns the fraction of observations <= x.
func (e *ecdf) CDF(x float64) float64 {
	n := sort.Search(len(e.sorted), func(i int) bool { return e.sorted[i] > x })
	return float64(n) / float64(len(e.sorted))
}

// Quantile is the inverse of CDF: the smallest observation v with CDF(v) >= p.
func (e *ecdf) Quantile(p float64) float64 {
	n := len(e.sorted)
	if p <= 0 {
		return e.sorted[0]
	}
	if p >= 1 {
		return e.sorted[n-1]
	}
	idx := int(math.Ceil(p*float64(n)-tolerance)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return e.sorted[idx]
}

func (e *ecdf) Min() float64 { return e.sorted[0] }
func (e *ecdf) Max() float64 { return e.sorted[len(e.sorted)-1] }

// integral reports whether every observation is a whole number, and
// binary whether every observation is 0 or 1.
func (e *ecdf) kinds() (integral, binary bool) {
	integral, binary = true, true
	for _, v := range e.sorted {
		if v != math.Trunc(v) {
			return false, false
		}
		if v != 0 && v != 1 {
			binary = false
		}
	}
	return integral, binary
}
