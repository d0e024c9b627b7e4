package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/boshu2/recourse/internal/formatter"
)

var solversCmd = &cobra.Command{
	Use:   "solvers",
	Short: "Show solver backends and their availability",
	Long: `List every registered solver backend in the order queries will try
them, with the reason any backend is unusable.

Backends are probed once at startup. Use --solver to rank one first and
--disable-solver to exclude backends.`,
	RunE: runSolvers,
}

func init() {
	rootCmd.AddCommand(solversCmd)
}

type solverStatus struct {
	ID        string `json:"id"`
	Rank      int    `json:"rank,omitempty"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

func runSolvers(_ *cobra.Command, _ []string) error {
	var rows []solverStatus
	if app.backends != nil {
		for i, id := range app.backends.Available {
			rows = append(rows, solverStatus{ID: string(id), Rank: i + 1, Available: true})
		}
		for _, f := range app.backends.Unavailable {
			rows = append(rows, solverStatus{ID: string(f.ID), Reason: f.Reason})
		}
	}

	if app.cfg.Output == formatter.FormatJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return app.backendsErr
	}

	tbl := formatter.NewTable(os.Stdout, "RANK", "BACKEND", "STATUS", "REASON")
	for _, r := range rows {
		rank, status := "-", "unavailable"
		if r.Available {
			rank, status = strconv.Itoa(r.Rank), "available"
		}
		tbl.AddRow(rank, r.ID, status, r.Reason)
	}
	if err := tbl.Render(); err != nil {
		return err
	}
	if app.backendsErr == nil {
		fmt.Printf("\nqueries use %s first\n", app.backends.Primary())
	}
	return app.backendsErr
}
