package formatter

import (
	"encoding/json"
	"io"

	"github.com/boshu2/recourse/internal/audit"
	"github.com/boshu2/recourse/internal/flipset"
)

// JSONFormatter writes reports as JSON. Without Pretty, flipsets are written
// one item per line and audits one record per line (JSON Lines).
type JSONFormatter struct {
	// Pretty enables a single indented document.
	Pretty bool
}

// Extension returns the file extension for the configured mode.
func (jf *JSONFormatter) Extension() string {
	if jf.Pretty {
		return ".json"
	}
	return ".jsonl"
}

type changeOutput struct {
	Feature string  `json:"feature"`
	From    float64 `json:"from"`
	To      float64 `json:"to"`
	Steps   int     `json:"steps"`
}

type itemOutput struct {
	Rank    int            `json:"rank"`
	Cost    float64        `json:"cost"`
	Score   float64        `json:"score"`
	Support []string       `json:"support"`
	Changes []changeOutput `json:"changes"`
	Action  []float64      `json:"action"`
}

type flipsetOutput struct {
	Features    []string     `json:"features"`
	Subject     []float64    `json:"subject"`
	Score       float64      `json:"score"`
	Enumeration string       `json:"enumeration"`
	Status      string       `json:"status"`
	Items       []itemOutput `json:"items"`
}

type auditOutput struct {
	RunID     string          `json:"run_id,omitempty"`
	Backend   string          `json:"backend,omitempty"`
	CostType  string          `json:"cost_type,omitempty"`
	Summaries []audit.Summary `json:"summaries"`
	Records   []audit.Record  `json:"records,omitempty"`
}

func (jf *JSONFormatter) encoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false) // Feature names may contain < > &
	if jf.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc
}

// FormatFlipset writes the flipset.
func (jf *JSONFormatter) FormatFlipset(w io.Writer, r *FlipsetReport) error {
	items := make([]itemOutput, len(r.Items))
	for i, it := range r.Items {
		items[i] = buildItem(i, it)
	}
	enc := jf.encoder(w)
	if !jf.Pretty {
		for _, it := range items {
			if err := enc.Encode(it); err != nil {
				return err
			}
		}
		return nil
	}
	return enc.Encode(flipsetOutput{
		Features:    r.Names,
		Subject:     r.Subject,
		Score:       r.Score,
		Enumeration: string(r.Enumeration),
		Status:      statusOrPending(string(r.Status)),
		Items:       items,
	})
}

// FormatAudit writes the audit report, or its records as lines.
func (jf *JSONFormatter) FormatAudit(w io.Writer, r *AuditReport) error {
	enc := jf.encoder(w)
	if !jf.Pretty {
		for _, rec := range r.Records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	}
	summaries := r.Summaries
	if summaries == nil {
		summaries = []audit.Summary{}
	}
	return enc.Encode(auditOutput{
		RunID:     r.RunID,
		Backend:   r.Backend,
		CostType:  r.CostType,
		Summaries: summaries,
		Records:   r.Records,
	})
}

func buildItem(i int, it flipset.Item) itemOutput {
	out := itemOutput{
		Rank:    i + 1,
		Cost:    it.Cost,
		Score:   it.Score,
		Support: it.Support,
		Action:  it.Action,
		Changes: make([]changeOutput, len(it.Changes)),
	}
	if out.Support == nil {
		out.Support = []string{}
	}
	for k, c := range it.Changes {
		out.Changes[k] = changeOutput{Feature: c.Feature, From: c.From, To: c.To, Steps: c.Steps}
	}
	return out
}
