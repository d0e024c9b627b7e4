package formatter

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TableFormatter writes aligned plain-text tables.
type TableFormatter struct {
	// MaxChangesWidth truncates the changes column (0 = unlimited).
	MaxChangesWidth int
}

// NewTableFormatter creates a table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Extension returns the file extension for tables.
func (tf *TableFormatter) Extension() string { return ".txt" }

// FormatFlipset writes a header line and one row per item.
func (tf *TableFormatter) FormatFlipset(w io.Writer, r *FlipsetReport) error {
	if _, err := fmt.Fprintf(w, "score %s, %s, %d item(s), status %s\n",
		Num(r.Score), r.Enumeration, len(r.Items), statusOrPending(string(r.Status))); err != nil {
		return err
	}
	if len(r.Items) == 0 {
		_, err := fmt.Fprintln(w, "no flipping actions")
		return err
	}
	tbl := NewTable(w, "#", "COST", "SCORE", "FEATURES", "CHANGES")
	tbl.SetMaxWidth(4, tf.MaxChangesWidth)
	for i, it := range r.Items {
		tbl.AddRow(strconv.Itoa(i+1), Num(it.Cost), Num(it.Score), strings.Join(it.Support, ","), describeChanges(it))
	}
	return tbl.Render()
}

// FormatAudit writes one row per summary group.
func (tf *TableFormatter) FormatAudit(w io.Writer, r *AuditReport) error {
	if r.RunID != "" {
		if _, err := fmt.Fprintf(w, "run %s (backend %s, cost %s)\n", r.RunID, r.Backend, r.CostType); err != nil {
			return err
		}
	}
	if len(r.Summaries) == 0 {
		_, err := fmt.Fprintln(w, "no rows audited")
		return err
	}
	tbl := NewTable(w, "GROUP", "ROWS", "FAVORABLE", "FEASIBLE", "INFEASIBLE", "INCONCLUSIVE", "ERRORS", "FEASIBILITY", "MEAN COST", "MAX COST")
	for _, s := range r.Summaries {
		tbl.AddRow(s.Label(),
			strconv.Itoa(s.Rows),
			strconv.Itoa(s.Favorable),
			strconv.Itoa(s.Feasible),
			strconv.Itoa(s.Infeasible),
			strconv.Itoa(s.Inconclusive),
			strconv.Itoa(s.Errors),
			Percent(s.MeanFeasibility),
			Num(s.MeanCost),
			Num(s.MaxCost))
	}
	return tbl.Render()
}

func statusOrPending(s string) string {
	if s == "" {
		return "pending"
	}
	return s
}
