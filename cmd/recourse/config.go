package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/recourse/internal/config"
	"github.com/boshu2/recourse/internal/formatter"
)

var (
	configShow bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View recourse configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (RECOURSE_*)
  3. Project config (.recourse/config.yaml)
  4. Home config (~/.recourse/config.yaml)
  5. Defaults

Environment variables:
  RECOURSE_CONFIG                - Explicit project config file path
  RECOURSE_OUTPUT                - Default output format
  RECOURSE_BASE_DIR              - Data directory path
  RECOURSE_VERBOSE               - Enable debug logging (true/1)
  RECOURSE_LOG_LEVEL             - debug, info, warn, error
  RECOURSE_LOG_JSON              - Log as JSON (true/1)
  RECOURSE_SOLVER_PREFERRED      - Solver backend tried first
  RECOURSE_SOLVER_DISABLED       - Comma-separated backends never used
  RECOURSE_SOLVER_TIMEOUT        - Time limit per solve (e.g. 30s)
  RECOURSE_SOLVER_MAX_NODES      - Search node limit per solve
  RECOURSE_SEARCH_MARGIN         - Minimum signed score of a flipped subject
  RECOURSE_SEARCH_MAX_GRID_POINTS - Grid points per feature direction
  RECOURSE_SEARCH_COST_TYPE      - Flipset cost (total, local, max)
  RECOURSE_SEARCH_MAX_CHANGES    - Local cost support limit
  RECOURSE_SEARCH_ENUMERATION    - distinct_subsets or mutually_exclusive
  RECOURSE_SEARCH_TOTAL_ITEMS    - Flipset size
  RECOURSE_AUDIT_COST_TYPE       - Audit cost (total, local, max)
  RECOURSE_AUDIT_WORKERS         - Audit parallelism
  RECOURSE_AUDIT_STORAGE         - file, sqlite or none

Examples:
  recourse config --show           # Show resolved configuration
  recourse config --show -o json   # Output as JSON`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	if !configShow {
		// Show help if no flags
		return cmd.Help()
	}

	entries, err := config.Resolve(flagOverrides(cmd))
	if err != nil {
		return err
	}

	if app.cfg.Output == formatter.FormatJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println("recourse configuration")
	fmt.Println()
	tbl := formatter.NewTable(os.Stdout, "KEY", "VALUE", "SOURCE")
	for _, e := range entries {
		tbl.AddRow(e.Key, e.Value, string(e.Source))
	}
	return tbl.Render()
}
