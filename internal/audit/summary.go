package audit

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/boshu2/recourse/internal/dataset"
)

// LabelGroup groups by the matrix's outcome labels instead of a column.
const LabelGroup = "label"

// GroupValue is one grouping column and its value.
type GroupValue struct {
	Column string  `json:"column"`
	Value  float64 `json:"value"`
}

// Summary reduces the records of one group.
type Summary struct {
	Group []GroupValue `json:"group,omitempty"`

	Rows         int `json:"rows"`
	Favorable    int `json:"favorable"`
	Feasible     int `json:"feasible"`
	Infeasible   int `json:"infeasible"`
	Inconclusive int `json:"inconclusive"`
	Errors       int `json:"errors"`

	// MeanFeasibility is the share of decided adverse rows with recourse.
	MeanFeasibility float64 `json:"mean_feasibility"`
	// MeanCost is averaged over feasible rows only.
	MeanCost float64 `json:"mean_cost"`
	MaxCost  float64 `json:"max_cost"`
}

// Label renders the group as col=value pairs, or "all".
func (s Summary) Label() string {
	if len(s.Group) == 0 {
		return "all"
	}
	parts := make([]string, len(s.Group))
	for i, g := range s.Group {
		parts[i] = g.Column + "=" + strconv.FormatFloat(g.Value, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (s *Summary) add(r Record) {
	s.Rows++
	switch r.Outcome {
	case Favorable:
		s.Favorable++
	case Feasible:
		s.Feasible++
		s.MeanCost += r.Cost
		s.MaxCost = max(s.MaxCost, r.Cost)
	case Infeasible:
		s.Infeasible++
	case Inconclusive:
		s.Inconclusive++
	default:
		s.Errors++
	}
}

func (s *Summary) finish() {
	if decided := s.Feasible + s.Infeasible; decided > 0 {
		s.MeanFeasibility = float64(s.Feasible) / float64(decided)
	}
	if s.Feasible > 0 {
		s.MeanCost /= float64(s.Feasible)
	}
}

// Summarize reduces records to one overall summary, or one summary per
// distinct combination of the groupBy columns of m, ordered by value.
// m is only read when groupBy is non-empty.
func Summarize(records []Record, m *dataset.Matrix, groupBy ...string) ([]Summary, error) {
	if len(groupBy) == 0 {
		var s Summary
		for _, r := range records {
			s.add(r)
		}
		s.finish()
		return []Summary{s}, nil
	}
	if m == nil {
		return nil, fmt.Errorf("%w: grouping needs the audited matrix", ErrColumnMismatch)
	}

	cols := make([][]float64, len(groupBy))
	for i, g := range groupBy {
		if g == LabelGroup && m.Index(g) < 0 {
			if len(m.Labels) != m.NumRows() {
				return nil, fmt.Errorf("%w: no labels to group by", ErrColumnMismatch)
			}
			cols[i] = m.Labels
			continue
		}
		c, err := m.Column(g)
		if err != nil {
			return nil, fmt.Errorf("%w: group by %q: %v", ErrColumnMismatch, g, err)
		}
		cols[i] = c
	}

	groups := map[string]*Summary{}
	for _, r := range records {
		if r.Row < 0 || r.Row >= m.NumRows() {
			return nil, fmt.Errorf("%w: record row %d outside matrix", ErrColumnMismatch, r.Row)
		}
		key := make([]GroupValue, len(groupBy))
		for i, g := range groupBy {
			key[i] = GroupValue{Column: g, Value: cols[i][r.Row]}
		}
		s := Summary{Group: key}
		k := s.Label()
		if _, ok := groups[k]; !ok {
			groups[k] = &s
		}
		groups[k].add(r)
	}

	out := make([]Summary, 0, len(groups))
	for _, s := range groups {
		s.finish()
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b Summary) int {
		for i := range a.Group {
			if c := cmp.Compare(a.Group[i].Value, b.Group[i].Value); c != 0 {
				return c
			}
		}
		return 0
	})
	return out, nil
}
