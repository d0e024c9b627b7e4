package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/boshu2/recourse/internal/audit"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	s := NewSQLiteStorage(filepath.Join(t.TempDir(), "audits.db"))
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return s
}

func TestSQLiteStorage_RoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	records := sampleRecords()
	run := NewRun("credit.csv", "mip", "max", records)

	path, err := s.WriteRun(run, records)
	if err != nil {
		t.Fatalf("WriteRun failed: %v", err)
	}
	if path != s.path {
		t.Errorf("WriteRun returned %q, want %q", path, s.path)
	}

	got, err := s.ReadRecords(run.ID)
	if err != nil {
		t.Fatalf("ReadRecords failed: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("got %d records, want %d", len(got), len(records))
	}
	for i, rec := range got {
		if rec.Row != records[i].Row || rec.Outcome != records[i].Outcome || rec.Cost != records[i].Cost {
			t.Errorf("record %d = %+v, want %+v", i, rec, records[i])
		}
	}
	if got[0].Support != nil || got[0].Action != nil {
		t.Errorf("empty support should stay nil: %+v", got[0])
	}
	if got[1].Support[0] != "TotalMonthsOverdue" || got[1].Action[2] != -1 {
		t.Errorf("action not round-tripped: %+v", got[1])
	}
	if got[3].Outcome != audit.Failed || got[3].Error == "" {
		t.Errorf("failed record not round-tripped: %+v", got[3])
	}

	runs, err := s.ListRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.ID != run.ID || r.Rows != 4 || r.Feasible != 1 || r.Backend != "mip" || r.CostType != "max" || r.Label != "credit.csv" {
		t.Errorf("run header = %+v, want %+v", r, *run)
	}
	if !r.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("created_at = %v, want %v", r.CreatedAt, run.CreatedAt)
	}
}

func TestSQLiteStorage_ListRuns_Order(t *testing.T) {
	s := newTestSQLite(t)
	late := NewRun("late", "mip", "max", nil)
	early := NewRun("early", "mip", "max", nil)
	early.CreatedAt = late.CreatedAt.Add(-time.Minute)
	for _, r := range []*Run{late, early} {
		if _, err := s.WriteRun(r, nil); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Label != "early" {
		t.Errorf("runs not ordered by creation: %+v", runs)
	}
}

func TestSQLiteStorage_DuplicateRunRejected(t *testing.T) {
	s := newTestSQLite(t)
	run := NewRun("dup", "mip", "max", nil)
	if _, err := s.WriteRun(run, sampleRecords()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WriteRun(run, sampleRecords()); err == nil {
		t.Fatal("expected primary key violation on second write")
	}
	got, err := s.ReadRecords(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(sampleRecords()) {
		t.Errorf("failed write should roll back, got %d records", len(got))
	}
}

func TestSQLiteStorage_Errors(t *testing.T) {
	s := newTestSQLite(t)
	if _, err := s.WriteRun(&Run{}, nil); !errors.Is(err, ErrRunIDRequired) {
		t.Errorf("expected ErrRunIDRequired, got %v", err)
	}
	if _, err := s.ReadRecords("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestSQLiteStorage_CloseIdempotent(t *testing.T) {
	s := NewSQLiteStorage(filepath.Join(t.TempDir(), "x.db"))
	if err := s.Close(); err != nil {
		t.Errorf("Close before Init should not fail: %v", err)
	}
}

func TestSQLiteStorage_InitCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "nested", "audits.db")
	s := NewSQLiteStorage(path)
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	}()

	run := NewRun("credit.csv", "mip", "max", sampleRecords())
	if _, err := s.WriteRun(run, sampleRecords()); err != nil {
		t.Fatalf("WriteRun failed: %v", err)
	}
	got, err := s.ReadRecords(run.ID)
	if err != nil {
		t.Fatalf("ReadRecords failed: %v", err)
	}
	if len(got) != len(sampleRecords()) {
		t.Errorf("got %d records, want %d", len(got), len(sampleRecords()))
	}
}
