// Package formatter renders flipsets and audit reports as aligned tables,
// markdown, HTML, LaTeX and JSON.
package formatter

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/boshu2/recourse/internal/audit"
	"github.com/boshu2/recourse/internal/flipset"
	"github.com/boshu2/recourse/internal/types"
)

// Output formats accepted by New.
const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatLaTeX    = "latex"
	FormatJSON     = "json"
	FormatJSONL    = "jsonl"
)

// Formats lists every output format in display order.
var Formats = []string{FormatTable, FormatMarkdown, FormatHTML, FormatLaTeX, FormatJSON, FormatJSONL}

// ErrUnknownFormat is returned by New for an unsupported output format.
var ErrUnknownFormat = fmt.Errorf("%w: unknown output format", types.ErrConfiguration)

// Formatter renders reports to a writer.
type Formatter interface {
	// FormatFlipset writes one subject's flipset.
	FormatFlipset(w io.Writer, r *FlipsetReport) error

	// FormatAudit writes a population audit.
	FormatAudit(w io.Writer, r *AuditReport) error

	// Extension returns the file extension, including the dot.
	Extension() string
}

// New returns the formatter for a format name.
func New(format string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatTable, "":
		return NewTableFormatter(), nil
	case FormatMarkdown, "md":
		return &MarkdownFormatter{}, nil
	case FormatHTML:
		return &HTMLFormatter{}, nil
	case FormatLaTeX, "tex":
		return &LaTeXFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{Pretty: true}, nil
	case FormatJSONL:
		return &JSONFormatter{}, nil
	}
	return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, format, strings.Join(Formats, ", "))
}

// FlipsetReport is the renderable view of a populated flipset.
type FlipsetReport struct {
	Names       []string
	Subject     []float64
	Score       float64
	Enumeration flipset.Enumeration
	Status      flipset.Status
	Items       []flipset.Item
}

// NewFlipsetReport snapshots f.
func NewFlipsetReport(f *flipset.Flipset) *FlipsetReport {
	return &FlipsetReport{
		Names:       f.Names(),
		Subject:     f.Subject(),
		Score:       f.Score(),
		Enumeration: f.Enumeration(),
		Status:      f.Status(),
		Items:       f.Items(),
	}
}

// AuditReport is the renderable view of a population audit.
type AuditReport struct {
	RunID     string
	Backend   string
	CostType  string
	Summaries []audit.Summary
	Records   []audit.Record
}

// Num formats a value with at most four decimals and no trailing zeros.
func Num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}

// Percent formats a fraction as a percentage.
func Percent(v float64) string {
	return Num(100*v) + "%"
}

// describeChange renders one change as "Feature: from -> to".
func describeChange(c flipset.Change) string {
	return fmt.Sprintf("%s: %s -> %s", c.Feature, Num(c.From), Num(c.To))
}

func describeChanges(it flipset.Item) string {
	parts := make([]string, len(it.Changes))
	for i, c := range it.Changes {
		parts[i] = describeChange(c)
	}
	return strings.Join(parts, "; ")
}
