package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/template"
)

// MarkdownFormatter writes GitHub-flavoured markdown tables.
type MarkdownFormatter struct{}

// Extension returns the file extension for markdown.
func (mf *MarkdownFormatter) Extension() string { return ".md" }

// FormatFlipset writes the flipset as a markdown section.
func (mf *MarkdownFormatter) FormatFlipset(w io.Writer, r *FlipsetReport) error {
	return executeText(w, "flipset", markdownFlipsetTemplate, r)
}

// FormatAudit writes the audit summaries as a markdown section.
func (mf *MarkdownFormatter) FormatAudit(w io.Writer, r *AuditReport) error {
	return executeText(w, "audit", markdownAuditTemplate, r)
}

func executeText(w io.Writer, name, text string, data any) error {
	tmpl, err := template.New(name).Funcs(textFuncs()).Parse(text)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	return tmpl.Execute(w, data)
}

// textFuncs returns the template functions shared by the text templates.
func textFuncs() template.FuncMap {
	return template.FuncMap{
		"num":     Num,
		"percent": Percent,
		"inc":     func(i int) int { return i + 1 },
		"join":    strings.Join,
		"md":      escapeMarkdown,
		"tex":     escapeLaTeX,
		"str":     func(s any) string { return fmt.Sprint(s) },
		"pending": statusOrPending,
	}
}

var markdownEscaper = strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "`", "\\`")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

const markdownFlipsetTemplate = `## Flipset

- **Score:** {{ num .Score }}
- **Enumeration:** {{ str .Enumeration }}
- **Status:** {{ pending (str .Status) }}
- **Items:** {{ len .Items }}
{{- if .Items }}

| # | Cost | Score | Feature | Current | Required |
|---|------|-------|---------|---------|----------|
{{- range $i, $it := .Items }}
{{- range $k, $c := $it.Changes }}
| {{ if eq $k 0 }}{{ inc $i }}{{ end }} | {{ if eq $k 0 }}{{ num $it.Cost }}{{ end }} | {{ if eq $k 0 }}{{ num $it.Score }}{{ end }} | {{ md $c.Feature }} | {{ num $c.From }} | {{ num $c.To }} |
{{- end }}
{{- end }}
{{- else }}

No flipping actions.
{{- end }}
`

const markdownAuditTemplate = `## Audit
{{- if .RunID }}

- **Run:** ` + "`{{ .RunID }}`" + `
- **Backend:** {{ .Backend }}
- **Cost:** {{ .CostType }}
{{- end }}
{{- if .Summaries }}

| Group | Rows | Favorable | Feasible | Infeasible | Inconclusive | Errors | Feasibility | Mean cost | Max cost |
|-------|------|-----------|----------|------------|--------------|--------|-------------|-----------|----------|
{{- range .Summaries }}
| {{ md .Label }} | {{ .Rows }} | {{ .Favorable }} | {{ .Feasible }} | {{ .Infeasible }} | {{ .Inconclusive }} | {{ .Errors }} | {{ percent .MeanFeasibility }} | {{ num .MeanCost }} | {{ num .MaxCost }} |
{{- end }}
{{- else }}

No rows audited.
{{- end }}
`
