package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/boshu2/recourse/internal/audit"
	"github.com/boshu2/recourse/internal/formatter"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored audit runs",
	Long: `List audit runs stored under the base directory.

Examples:
  recourse runs
  recourse runs show 3f2a9c1e-...`,
	RunE: runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Summarize a stored audit run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsShowCmd)
}

func runRunsList(_ *cobra.Command, _ []string) error {
	st, err := openStorage()
	if err != nil {
		return err
	}
	if st == nil {
		return errStorageDisabled
	}
	defer st.Close() //nolint:errcheck // read-only

	runs, err := st.ListRuns()
	if err != nil {
		return err
	}

	if app.cfg.Output == formatter.FormatJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Println("no stored audit runs")
		return nil
	}
	tbl := formatter.NewTable(os.Stdout, "RUN", "CREATED", "LABEL", "BACKEND", "COST", "ROWS", "FEASIBLE")
	tbl.SetMaxWidth(2, 40)
	for _, r := range runs {
		tbl.AddRow(r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Label, r.Backend, r.CostType,
			strconv.Itoa(r.Rows), strconv.Itoa(r.Feasible))
	}
	return tbl.Render()
}

func runRunsShow(_ *cobra.Command, args []string) error {
	out, err := formatter.New(app.cfg.Output)
	if err != nil {
		return err
	}
	st, err := openStorage()
	if err != nil {
		return err
	}
	if st == nil {
		return errStorageDisabled
	}
	defer st.Close() //nolint:errcheck // read-only

	records, err := st.ReadRecords(args[0])
	if err != nil {
		return err
	}
	summaries, err := audit.Summarize(records, nil)
	if err != nil {
		return err
	}
	report := &formatter.AuditReport{RunID: args[0], Summaries: summaries, Records: records}
	runs, err := st.ListRuns()
	if err != nil {
		return err
	}
	for _, r := range runs {
		if r.ID == args[0] {
			report.Backend, report.CostType = r.Backend, r.CostType
		}
	}
	return out.FormatAudit(os.Stdout, report)
}
