// Package storage persists population audit runs: one header per run plus
// one record per audited row.
package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/boshu2/recourse/internal/audit"
)

// Run describes one audit invocation.
type Run struct {
	// ID is a UUID assigned by NewRun.
	ID string `json:"run_id"`

	// CreatedAt is when the audit finished.
	CreatedAt time.Time `json:"created_at"`

	// Label names the audited data, usually its file name.
	Label string `json:"label,omitempty"`

	// Backend is the solver that served the run.
	Backend string `json:"backend"`

	// CostType is the aggregation policy used.
	CostType string `json:"cost_type"`

	// Rows is the number of audited rows.
	Rows int `json:"rows"`

	// Feasible counts rows with recourse.
	Feasible int `json:"feasible"`
}

// NewRun returns a run header with a fresh ID.
func NewRun(label, backend, costType string, records []audit.Record) *Run {
	r := &Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Label:     label,
		Backend:   backend,
		CostType:  costType,
		Rows:      len(records),
	}
	for _, rec := range records {
		if rec.Feasible() {
			r.Feasible++
		}
	}
	return r
}

// IndexEntry locates a run written by FileStorage.
type IndexEntry struct {
	Run
	Path string `json:"path"`
}

// Storage is the interface for persisting audit runs.
type Storage interface {
	// Init prepares directories or schema.
	Init() error

	// WriteRun stores a run and its records. Returns where it was written.
	WriteRun(run *Run, records []audit.Record) (string, error)

	// ListRuns returns every stored run, oldest first.
	ListRuns() ([]Run, error)

	// ReadRecords returns the records of a run in row order.
	ReadRecords(runID string) ([]audit.Record, error)

	// Close releases any resources.
	Close() error
}
