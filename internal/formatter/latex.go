package formatter

import (
	"io"
	"strings"
)

// LaTeXFormatter writes booktabs tabular environments.
type LaTeXFormatter struct{}

// Extension returns the file extension for LaTeX.
func (lf *LaTeXFormatter) Extension() string { return ".tex" }

// FormatFlipset writes one block of rows per item.
func (lf *LaTeXFormatter) FormatFlipset(w io.Writer, r *FlipsetReport) error {
	return executeText(w, "flipset", latexFlipsetTemplate, r)
}

// FormatAudit writes one row per summary group.
func (lf *LaTeXFormatter) FormatAudit(w io.Writer, r *AuditReport) error {
	return executeText(w, "audit", latexAuditTemplate, r)
}

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

func escapeLaTeX(s string) string {
	return latexEscaper.Replace(s)
}

const latexFlipsetTemplate = `\begin{tabular}{rrlrr}
\toprule
\# & Cost & Feature & Current & Required \\
\midrule
{{- range $i, $it := .Items }}
{{- if $i }}
\midrule
{{- end }}
{{- range $k, $c := $it.Changes }}
{{ if eq $k 0 }}{{ inc $i }} & {{ num $it.Cost }}{{ else }} & {{ end }} & {{ tex $c.Feature }} & {{ num $c.From }} & {{ num $c.To }} \\
{{- end }}
{{- end }}
\bottomrule
\end{tabular}
`

const latexAuditTemplate = `\begin{tabular}{lrrrrr}
\toprule
Group & Rows & Feasible & Infeasible & Feasibility & Mean cost \\
\midrule
{{- range .Summaries }}
{{ tex .Label }} & {{ .Rows }} & {{ .Feasible }} & {{ .Infeasible }} & {{ tex (percent .MeanFeasibility) }} & {{ num .MeanCost }} \\
{{- end }}
\bottomrule
\end{tabular}
`
