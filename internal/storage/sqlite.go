package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/boshu2/recourse/internal/audit"
)

// timeLayout keeps fractional seconds fixed-width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS audit_runs (
	run_id      TEXT PRIMARY KEY,
	created_at  TEXT NOT NULL,
	label       TEXT,
	backend     TEXT NOT NULL,
	cost_type   TEXT NOT NULL,
	row_count   INTEGER NOT NULL,
	feasible    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_records (
	run_id      TEXT NOT NULL,
	row_index   INTEGER NOT NULL,
	outcome     TEXT NOT NULL,
	cost        REAL NOT NULL,
	score       REAL NOT NULL,
	support     TEXT,
	action      TEXT,
	error       TEXT,
	PRIMARY KEY (run_id, row_index),
	FOREIGN KEY (run_id) REFERENCES audit_runs(run_id)
);
`

// SQLiteStorage implements Storage on a single SQLite database file.
type SQLiteStorage struct {
	path string
	db   *sql.DB
}

// NewSQLiteStorage returns a storage backed by the database at path. The
// database is opened by Init.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Init creates the database directory, opens the database and runs
// migrations.
func (s *SQLiteStorage) Init() error {
	if s.db != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Dir(s.path), err)
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return fmt.Errorf("migrate: %w", err)
	}
	s.db = db
	return nil
}

// WriteRun inserts the run and its records in one transaction. Returns the
// database path.
func (s *SQLiteStorage) WriteRun(run *Run, records []audit.Record) (string, error) {
	if run.ID == "" {
		return "", ErrRunIDRequired
	}
	if err := s.Init(); err != nil {
		return "", err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.Exec(
		`INSERT INTO audit_runs (run_id, created_at, label, backend, cost_type, row_count, feasible)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(timeLayout), run.Label, run.Backend, run.CostType, run.Rows, run.Feasible,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO audit_records (run_id, row_index, outcome, cost, score, support, action, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return "", fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // closed with tx

	for _, rec := range records {
		support, err := json.Marshal(rec.Support)
		if err != nil {
			return "", fmt.Errorf("marshal support: %w", err)
		}
		act, err := json.Marshal(rec.Action)
		if err != nil {
			return "", fmt.Errorf("marshal action: %w", err)
		}
		if _, err := stmt.Exec(run.ID, rec.Row, string(rec.Outcome), rec.Cost, rec.Score, string(support), string(act), rec.Error); err != nil {
			return "", fmt.Errorf("insert record %d: %w", rec.Row, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return s.path, nil
}

// ListRuns returns every stored run, oldest first.
func (s *SQLiteStorage) ListRuns() ([]Run, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT run_id, created_at, label, backend, cost_type, row_count, feasible
		 FROM audit_runs ORDER BY created_at, run_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	var runs []Run
	for rows.Next() {
		var r Run
		var created string
		var label sql.NullString
		if err := rows.Scan(&r.ID, &created, &label, &r.Backend, &r.CostType, &r.Rows, &r.Feasible); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Label = label.String
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ReadRecords returns the records of a run in row order.
func (s *SQLiteStorage) ReadRecords(runID string) ([]audit.Record, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	var exists string
	err := s.db.QueryRow(`SELECT run_id FROM audit_runs WHERE run_id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT row_index, outcome, cost, score, support, action, error
		 FROM audit_records WHERE run_id = ? ORDER BY row_index`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	var records []audit.Record
	for rows.Next() {
		var rec audit.Record
		var outcome string
		var support, act, msg sql.NullString
		if err := rows.Scan(&rec.Row, &outcome, &rec.Cost, &rec.Score, &support, &act, &msg); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Outcome = audit.Outcome(outcome)
		rec.Error = msg.String
		if err := unmarshalNullable(support, &rec.Support); err != nil {
			return nil, fmt.Errorf("decode support of row %d: %w", rec.Row, err)
		}
		if err := unmarshalNullable(act, &rec.Action); err != nil {
			return nil, fmt.Errorf("decode action of row %d: %w", rec.Row, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func unmarshalNullable(v sql.NullString, dst any) error {
	if !v.Valid || v.String == "" || v.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(v.String), dst)
}
