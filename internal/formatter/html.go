package formatter

import (
	"fmt"
	"html/template"
	"io"
)

// HTMLFormatter writes standalone HTML tables. Feature names and labels
// are escaped by html/template.
type HTMLFormatter struct {
	// Fragment omits the surrounding document.
	Fragment bool
}

// Extension returns the file extension for HTML.
func (hf *HTMLFormatter) Extension() string { return ".html" }

// FormatFlipset writes the flipset as an HTML table.
func (hf *HTMLFormatter) FormatFlipset(w io.Writer, r *FlipsetReport) error {
	return hf.execute(w, "flipset", htmlFlipsetTemplate, r)
}

// FormatAudit writes the audit summaries as an HTML table.
func (hf *HTMLFormatter) FormatAudit(w io.Writer, r *AuditReport) error {
	return hf.execute(w, "audit", htmlAuditTemplate, r)
}

func (hf *HTMLFormatter) execute(w io.Writer, name, body string, data any) error {
	tmpl, err := template.New(name).Funcs(template.FuncMap{
		"num":     Num,
		"percent": Percent,
		"inc":     func(i int) int { return i + 1 },
		"str":     func(s any) string { return fmt.Sprint(s) },
		"pending": statusOrPending,
	}).Parse(body)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	if hf.Fragment {
		return tmpl.Execute(w, data)
	}
	if _, err := io.WriteString(w, htmlHead); err != nil {
		return err
	}
	if err := tmpl.Execute(w, data); err != nil {
		return err
	}
	_, err = io.WriteString(w, htmlFoot)
	return err
}

const (
	htmlHead = "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>recourse</title></head>\n<body>\n"
	htmlFoot = "</body>\n</html>\n"
)

const htmlFlipsetTemplate = `<section class="flipset">
<p>Score {{ num .Score }}, {{ str .Enumeration }}, status {{ pending (str .Status) }}</p>
{{- if .Items }}
<table>
<thead><tr><th>#</th><th>Cost</th><th>Score</th><th>Feature</th><th>Current</th><th>Required</th></tr></thead>
<tbody>
{{- range $i, $it := .Items }}
{{- range $k, $c := $it.Changes }}
<tr>{{ if eq $k 0 }}<td rowspan="{{ len $it.Changes }}">{{ inc $i }}</td><td rowspan="{{ len $it.Changes }}">{{ num $it.Cost }}</td><td rowspan="{{ len $it.Changes }}">{{ num $it.Score }}</td>{{ end }}<td>{{ $c.Feature }}</td><td>{{ num $c.From }}</td><td>{{ num $c.To }}</td></tr>
{{- end }}
{{- end }}
</tbody>
</table>
{{- else }}
<p>No flipping actions.</p>
{{- end }}
</section>
`

const htmlAuditTemplate = `<section class="audit">
{{- if .RunID }}
<p>Run <code>{{ .RunID }}</code>, backend {{ .Backend }}, cost {{ .CostType }}</p>
{{- end }}
{{- if .Summaries }}
<table>
<thead><tr><th>Group</th><th>Rows</th><th>Favorable</th><th>Feasible</th><th>Infeasible</th><th>Inconclusive</th><th>Errors</th><th>Feasibility</th><th>Mean cost</th><th>Max cost</th></tr></thead>
<tbody>
{{- range .Summaries }}
<tr><td>{{ .Label }}</td><td>{{ .Rows }}</td><td>{{ .Favorable }}</td><td>{{ .Feasible }}</td><td>{{ .Infeasible }}</td><td>{{ .Inconclusive }}</td><td>{{ .Errors }}</td><td>{{ percent .MeanFeasibility }}</td><td>{{ num .MeanCost }}</td><td>{{ num .MaxCost }}</td></tr>
{{- end }}
</tbody>
</table>
{{- else }}
<p>No rows audited.</p>
{{- end }}
</section>
`
