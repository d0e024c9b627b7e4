package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/recourse/internal/config"
	"github.com/boshu2/recourse/internal/logging"
	"github.com/boshu2/recourse/internal/metrics"
	"github.com/boshu2/recourse/internal/solver"
	"github.com/boshu2/recourse/internal/types"
)

var (
	// Global flags
	verbose    bool
	output     string
	cfgFile    string
	baseDir    string
	logLevel   string
	logJSON    bool
	preferred  string
	disabled   []string
	timeout    time.Duration
	maxNodes   int
	metricsOut string
	store      string
)

// appState is built once per invocation by the root pre-run hook.
type appState struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	registry *solver.Registry

	// backends lists usable and unusable backends; backendsErr is set when
	// none is usable.
	backends    *solver.Resolved
	backendsErr error
}

var app appState

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "recourse",
	Short: "Actionable recourse for linear classifiers",
	Long: `recourse finds minimal-cost, realistic changes to a feature vector that
flip the decision of a linear classifier.

Core Commands:
  flipset      Enumerate flipping actions for one subject
  audit        Measure recourse feasibility and cost over a population
  runs         List and show stored audit runs
  solvers      Show solver backends and their availability
  config       Show resolved configuration
  version      Show version information

Exit codes:
  0 success, 1 internal error, 2 configuration error,
  3 precondition failed (e.g. already favorable), 4 solver backend error`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if werr := writeMetrics(); werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		kind := types.KindOf(err)
		fmt.Fprintf(os.Stderr, "recourse: %s\n", err)
		os.Exit(kind.ExitCode())
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVarP(&output, "output", "o", "table", "Output format (table, markdown, html, latex, json, jsonl)")
	pf.StringVar(&cfgFile, "config", "", "Config file (default: .recourse/config.yaml)")
	pf.StringVar(&baseDir, "base-dir", "", "Data directory for stored audits (default: .recourse)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&logJSON, "log-json", false, "Log as JSON")
	pf.StringVar(&preferred, "solver", "", "Preferred solver backend (mip, branch-and-bound)")
	pf.StringSliceVar(&disabled, "disable-solver", nil, "Solver backends never to use")
	pf.DurationVar(&timeout, "timeout", 0, "Time limit per solve (0 = none)")
	pf.IntVar(&maxNodes, "max-nodes", 0, "Search node limit per solve (0 = none)")
	pf.StringVar(&store, "storage", "", "Audit run storage (file, sqlite, none)")
	pf.StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics to this textfile on exit")
}

// flagOverrides collects the changed flags of cmd into a sparse config.
func flagOverrides(cmd *cobra.Command) *config.Config {
	o := &config.Config{}
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("output") {
		o.Output = output
	}
	if changed("base-dir") {
		o.BaseDir = baseDir
	}
	o.Verbose = verbose
	if changed("log-level") {
		o.Log.Level = logLevel
	}
	o.Log.JSON = logJSON
	if changed("solver") {
		o.Solver.Preferred = preferred
	}
	if changed("disable-solver") {
		o.Solver.Disabled = disabled
	}
	if changed("timeout") {
		o.Solver.Timeout = timeout
	}
	if changed("max-nodes") {
		o.Solver.MaxNodes = maxNodes
	}
	if changed("storage") {
		o.Audit.Storage = store
	}
	if apply, ok := commandOverrides[cmd]; ok {
		apply(o, changed)
	}
	return o
}

// commandOverrides lets subcommands map their local flags into the config.
var commandOverrides = map[*cobra.Command]func(o *config.Config, changed func(string) bool){}

func setup(cmd *cobra.Command, _ []string) error {
	syncConfigFlagToEnv()

	cfg, err := config.Load(flagOverrides(cmd))
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if cfg.Verbose {
		level = "debug"
	}
	logger, err := logging.Setup(logging.Options{Level: level, JSON: cfg.Log.JSON})
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	app = appState{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.New(),
		registry: solver.DefaultRegistry(),
	}
	app.backends, app.backendsErr = app.registry.Resolve(selection(cfg.Solver))
	if app.backendsErr != nil {
		logger.Debug("no solver backend available", "error", app.backendsErr)
	} else {
		logger.Debug("solver backends resolved", "available", app.backends.Available, "primary", app.backends.Primary())
	}
	return nil
}

func selection(sc config.SolverConfig) solver.Selection {
	var sel solver.Selection
	if sc.Preferred != "" {
		sel.Preferred = append(sel.Preferred, solver.ID(strings.ToLower(sc.Preferred)))
	}
	for _, d := range sc.Disabled {
		sel.Disabled = append(sel.Disabled, solver.ID(strings.ToLower(strings.TrimSpace(d))))
	}
	return sel
}

// newSolver returns a fresh instrumented solver for one query.
func newSolver() (solver.Solver, error) {
	if app.backendsErr != nil {
		return nil, app.backendsErr
	}
	if app.backends == nil {
		return nil, errors.New("solver backends not resolved")
	}
	opts := solver.Options{Timeout: app.cfg.Solver.Timeout, MaxNodes: app.cfg.Solver.MaxNodes}
	s := app.backends.New(opts, solver.WithChainLogger(app.logger))
	return solver.Instrument(s, app.metrics), nil
}

func writeMetrics() error {
	if metricsOut == "" || app.metrics == nil {
		return nil
	}
	if err := app.metrics.WriteTextfile(metricsOut); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(cfgFile)
	if path == "" {
		return
	}
	_ = os.Setenv("RECOURSE_CONFIG", path) //nolint:errcheck // best-effort
}
