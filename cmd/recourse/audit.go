package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/boshu2/recourse/internal/audit"
	"github.com/boshu2/recourse/internal/config"
	"github.com/boshu2/recourse/internal/formatter"
	"github.com/boshu2/recourse/internal/solver"
	"github.com/boshu2/recourse/internal/storage"
)

var (
	auditInputs   inputFlags
	auditCostType string
	auditWorkers  int
	auditGroupBy  []string
	auditMargin   float64
	auditRecords  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Measure recourse feasibility and cost over a population",
	Long: `Run one independent recourse query per row of --data and summarize how
many adverse rows can be flipped and at what cost.

Rows are audited in parallel with one solver instance per query. Favorable
rows are counted separately and excluded from the means. Results are stored
under the base directory (audit.storage: file, sqlite or none).

Examples:
  recourse audit --data credit.csv --model model.yaml
  recourse audit --data credit.csv --label-column y --model model.yaml \
    --group-by label,Married -o markdown`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditInputs.register(auditCmd)
	f := auditCmd.Flags()
	f.StringVar(&auditCostType, "cost-type", "", "Cost aggregation (total, local, max)")
	f.IntVar(&auditWorkers, "workers", 0, "Parallel queries (0 = one per CPU)")
	f.StringSliceVar(&auditGroupBy, "group-by", nil, `Columns to group the summary by ("label" groups by --label-column)`)
	f.Float64Var(&auditMargin, "margin", 0, "Minimum signed score of a flipped subject")
	f.BoolVar(&auditRecords, "records", false, "Include per-row records in json output")

	commandOverrides[auditCmd] = func(o *config.Config, changed func(string) bool) {
		if changed("cost-type") {
			o.Audit.CostType = auditCostType
		}
		if changed("workers") {
			o.Audit.Workers = auditWorkers
		}
		if changed("margin") {
			o.Search.Margin = auditMargin
		}
	}
}

func runAudit(cmd *cobra.Command, _ []string) error {
	out, err := formatter.New(app.cfg.Output)
	if err != nil {
		return err
	}
	in, err := auditInputs.load()
	if err != nil {
		return err
	}
	cf, err := costFunction(app.cfg.Audit.CostType, 0, nil)
	if err != nil {
		return err
	}
	if _, err := newSolver(); err != nil {
		return err
	}

	a := &audit.Auditor{
		ActionSet:  in.actionSet,
		Classifier: in.model,
		NewSolver: func() solver.Solver {
			s, _ := newSolver() //nolint:errcheck // resolved above
			return s
		},
		Cost:    cf,
		Margin:  app.cfg.Search.Margin,
		Workers: app.cfg.Audit.Workers,
		Logger:  app.logger,
		Metrics: app.metrics,
	}
	records, auditErr := a.Audit(cmd.Context(), in.matrix)
	if records == nil {
		return auditErr
	}

	summaries, err := audit.Summarize(records, in.matrix, auditGroupBy...)
	if err != nil {
		return err
	}

	report := &formatter.AuditReport{
		Backend:   string(app.backends.Primary()),
		CostType:  string(cf.Type),
		Summaries: summaries,
	}
	if auditRecords || app.cfg.Output == formatter.FormatJSONL {
		report.Records = records
	}

	var storeErr error
	if auditErr == nil {
		run := storage.NewRun(filepath.Base(auditInputs.data), report.Backend, report.CostType, records)
		path, err := storeRun(run, records)
		switch {
		case err != nil:
			storeErr = err
			app.logger.Warn("audit not stored", "error", err)
		case path != "":
			report.RunID = run.ID
			app.logger.Info("audit stored", "run_id", run.ID, "path", path)
		}
	}

	if err := out.FormatAudit(os.Stdout, report); err != nil {
		return fmt.Errorf("render audit: %w", err)
	}
	return errors.Join(auditErr, storeErr)
}

// openStorage returns the configured storage, or nil when storage is off.
func openStorage() (storage.Storage, error) {
	var st storage.Storage
	switch app.cfg.Audit.Storage {
	case "none":
		return nil, nil
	case "sqlite":
		st = storage.NewSQLiteStorage(filepath.Join(app.cfg.BaseDir, "audits.db"))
	default:
		st = storage.NewFileStorage(storage.WithBaseDir(app.cfg.BaseDir))
	}
	if err := st.Init(); err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return st, nil
}

func storeRun(run *storage.Run, records []audit.Record) (path string, err error) {
	st, err := openStorage()
	if err != nil || st == nil {
		return "", err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	path, err = st.WriteRun(run, records)
	if err != nil {
		return "", fmt.Errorf("store audit: %w", err)
	}
	return path, nil
}

var errStorageDisabled = errors.New("audit storage is disabled (audit.storage: none)")
