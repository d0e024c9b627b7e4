package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boshu2/recourse/internal/types"
)

var envKeys = []string{
	"RECOURSE_OUTPUT", "RECOURSE_BASE_DIR", "RECOURSE_VERBOSE",
	"RECOURSE_LOG_LEVEL", "RECOURSE_LOG_JSON",
	"RECOURSE_SOLVER_PREFERRED", "RECOURSE_SOLVER_DISABLED",
	"RECOURSE_SOLVER_TIMEOUT", "RECOURSE_SOLVER_MAX_NODES",
	"RECOURSE_SEARCH_MARGIN", "RECOURSE_SEARCH_MAX_GRID_POINTS",
	"RECOURSE_SEARCH_COST_TYPE", "RECOURSE_SEARCH_MAX_CHANGES",
	"RECOURSE_SEARCH_ENUMERATION", "RECOURSE_SEARCH_TOTAL_ITEMS",
	"RECOURSE_AUDIT_COST_TYPE", "RECOURSE_AUDIT_WORKERS", "RECOURSE_AUDIT_STORAGE",
}

// isolate points home and project config at an empty temp dir and clears
// every RECOURSE_* variable. Returns the temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("RECOURSE_CONFIG", filepath.Join(dir, "project.yaml"))
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Output != "table" {
		t.Errorf("Default Output = %q, want %q", cfg.Output, "table")
	}
	if cfg.BaseDir != ".recourse" {
		t.Errorf("Default BaseDir = %q, want %q", cfg.BaseDir, ".recourse")
	}
	if cfg.Search.CostType != "local" || cfg.Audit.CostType != "max" {
		t.Errorf("Default cost types = %q/%q, want local/max", cfg.Search.CostType, cfg.Audit.CostType)
	}
	if cfg.Search.Enumeration != "distinct_subsets" {
		t.Errorf("Default Enumeration = %q", cfg.Search.Enumeration)
	}
	if cfg.Search.TotalItems != 10 {
		t.Errorf("Default TotalItems = %d, want 10", cfg.Search.TotalItems)
	}
	if cfg.Search.Margin <= 0 {
		t.Errorf("Default Margin = %v, want positive", cfg.Search.Margin)
	}
	if cfg.Audit.Storage != "file" {
		t.Errorf("Default Storage = %q", cfg.Audit.Storage)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestMerge(t *testing.T) {
	dst := Default()
	src := &Config{
		Output:  "json",
		BaseDir: "/custom/path",
		Solver:  SolverConfig{Disabled: []string{"mip"}, Timeout: time.Second},
		Search:  SearchConfig{TotalItems: 3},
	}

	result := merge(dst, src)

	if result.Output != "json" {
		t.Errorf("merge Output = %q, want %q", result.Output, "json")
	}
	if result.BaseDir != "/custom/path" {
		t.Errorf("merge BaseDir = %q, want %q", result.BaseDir, "/custom/path")
	}
	if result.Search.TotalItems != 3 {
		t.Errorf("merge TotalItems = %d, want 3", result.Search.TotalItems)
	}
	if len(result.Solver.Disabled) != 1 || result.Solver.Timeout != time.Second {
		t.Errorf("merge Solver = %+v", result.Solver)
	}
	// Defaults should be preserved when not overridden
	if result.Search.CostType != "local" {
		t.Errorf("merge preserved CostType = %q, want local", result.Search.CostType)
	}
}

func TestMerge_ZeroDoesNotOverride(t *testing.T) {
	dst := Default()
	dst.Verbose = true
	dst.Audit.Workers = 4

	result := merge(dst, &Config{})

	if !result.Verbose {
		t.Error("false should not override true")
	}
	if result.Audit.Workers != 4 {
		t.Errorf("zero should not override Workers, got %d", result.Audit.Workers)
	}
}

func TestEnvConfig(t *testing.T) {
	isolate(t)
	t.Setenv("RECOURSE_OUTPUT", "markdown")
	t.Setenv("RECOURSE_VERBOSE", "1")
	t.Setenv("RECOURSE_LOG_JSON", "true")
	t.Setenv("RECOURSE_SOLVER_DISABLED", " mip , ")
	t.Setenv("RECOURSE_SOLVER_TIMEOUT", "250ms")
	t.Setenv("RECOURSE_SEARCH_MARGIN", "0.5")
	t.Setenv("RECOURSE_SEARCH_TOTAL_ITEMS", "4")
	t.Setenv("RECOURSE_AUDIT_STORAGE", "sqlite")

	cfg, err := envConfig()
	if err != nil {
		t.Fatalf("envConfig: %v", err)
	}
	if cfg.Output != "markdown" || !cfg.Verbose || !cfg.Log.JSON {
		t.Errorf("unexpected top-level values: %+v", cfg)
	}
	if len(cfg.Solver.Disabled) != 1 || cfg.Solver.Disabled[0] != "mip" {
		t.Errorf("Disabled = %q, want [mip]", cfg.Solver.Disabled)
	}
	if cfg.Solver.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v", cfg.Solver.Timeout)
	}
	if cfg.Search.Margin != 0.5 || cfg.Search.TotalItems != 4 {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.Audit.Storage != "sqlite" {
		t.Errorf("Storage = %q", cfg.Audit.Storage)
	}
}

func TestEnvConfig_Malformed(t *testing.T) {
	isolate(t)
	t.Setenv("RECOURSE_AUDIT_WORKERS", "many")
	t.Setenv("RECOURSE_SOLVER_TIMEOUT", "soon")

	_, err := envConfig()
	if !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	for _, want := range []string{"RECOURSE_AUDIT_WORKERS", "RECOURSE_SOLVER_TIMEOUT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should name %s", err, want)
		}
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"false", false},
		{"yes", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Setenv("RECOURSE_TEST_BOOL", tt.value)
		got, _ := getEnvBool("RECOURSE_TEST_BOOL")
		if got != tt.want {
			t.Errorf("getEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
output: html
solver:
  preferred: branch-and-bound
  disabled: [mip]
  timeout: 2s
  max_nodes: 5000
search:
  margin: 0.01
  enumeration: mutually_exclusive
audit:
  workers: 8
`)

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("loadFromPath: %v", err)
	}
	if cfg.Output != "html" {
		t.Errorf("Output = %q", cfg.Output)
	}
	if cfg.Solver.Preferred != "branch-and-bound" || cfg.Solver.Timeout != 2*time.Second || cfg.Solver.MaxNodes != 5000 {
		t.Errorf("Solver = %+v", cfg.Solver)
	}
	if cfg.Search.Margin != 0.01 || cfg.Search.Enumeration != "mutually_exclusive" {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.Audit.Workers != 8 {
		t.Errorf("Workers = %d", cfg.Audit.Workers)
	}
}

func TestLoadFromPath_NotExists(t *testing.T) {
	cfg, err := loadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil || cfg != nil {
		t.Errorf("missing file should yield (nil, nil), got (%v, %v)", cfg, err)
	}
	cfg, err = loadFromPath("")
	if err != nil || cfg != nil {
		t.Errorf("empty path should yield (nil, nil), got (%v, %v)", cfg, err)
	}
}

func TestLoadFromPath_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "output: [unclosed")

	_, err := loadFromPath(path)
	if !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".recourse", "config.yaml"), `
output: markdown
base_dir: /home-base
search:
  total_items: 5
  cost_type: total
`)
	writeFile(t, filepath.Join(dir, "project.yaml"), `
output: html
search:
  total_items: 7
`)
	t.Setenv("RECOURSE_SEARCH_TOTAL_ITEMS", "9")

	cfg, err := Load(&Config{Output: "latex"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output != "latex" {
		t.Errorf("flag should win: Output = %q", cfg.Output)
	}
	if cfg.Search.TotalItems != 9 {
		t.Errorf("env should beat project: TotalItems = %d", cfg.Search.TotalItems)
	}
	if cfg.Search.CostType != "total" {
		t.Errorf("home should beat default: CostType = %q", cfg.Search.CostType)
	}
	if cfg.BaseDir != "/home-base" {
		t.Errorf("BaseDir = %q", cfg.BaseDir)
	}
}

func TestLoad_NilOverrides(t *testing.T) {
	isolate(t)
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load(nil): %v", err)
	}
	if cfg.Output != defaultOutput {
		t.Errorf("Output = %q, want default", cfg.Output)
	}
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)
	t.Setenv("RECOURSE_SEARCH_COST_TYPE", "cheapest")

	_, err := Load(nil)
	if !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "search.cost_type=cheapest") {
		t.Errorf("error should name the YAML key: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"output", func(c *Config) { c.Output = "yaml" }, "output"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"preferred", func(c *Config) { c.Solver.Preferred = "cplex" }, "solver.preferred"},
		{"disabled", func(c *Config) { c.Solver.Disabled = []string{"mip", "gurobi"} }, "solver.disabled[1]"},
		{"timeout", func(c *Config) { c.Solver.Timeout = -time.Second }, "solver.timeout"},
		{"margin", func(c *Config) { c.Search.Margin = -1 }, "search.margin"},
		{"enumeration", func(c *Config) { c.Search.Enumeration = "all" }, "search.enumeration"},
		{"total items", func(c *Config) { c.Search.TotalItems = -2 }, "search.total_items"},
		{"workers", func(c *Config) { c.Audit.Workers = -1 }, "audit.workers"},
		{"storage", func(c *Config) { c.Audit.Storage = "s3" }, "audit.storage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, types.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q should mention %s", err, tt.key)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".recourse", "config.yaml"), "audit:\n  workers: 2\n")
	writeFile(t, filepath.Join(dir, "project.yaml"), "output: html\n")
	t.Setenv("RECOURSE_LOG_LEVEL", "debug")

	entries, err := Resolve(&Config{Verbose: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := make(map[string]Entry, len(entries))
	for _, e := range entries {
		got[e.Key] = e
	}

	tests := []struct {
		key    string
		value  string
		source Source
	}{
		{"output", "html", SourceProject},
		{"verbose", "true", SourceFlag},
		{"log.level", "debug", SourceEnv},
		{"audit.workers", "2", SourceHome},
		{"audit.storage", "file", SourceDefault},
		{"search.total_items", "10", SourceDefault},
	}
	for _, tt := range tests {
		e, ok := got[tt.key]
		if !ok {
			t.Errorf("missing key %s", tt.key)
			continue
		}
		if e.Value != tt.value || e.Source != tt.source {
			t.Errorf("%s = %q from %s, want %q from %s", tt.key, e.Value, e.Source, tt.value, tt.source)
		}
	}
}

func TestProjectConfigPath_UsesEnv(t *testing.T) {
	t.Setenv("RECOURSE_CONFIG", "/custom/config.yaml")
	if got := projectConfigPath(); got != "/custom/config.yaml" {
		t.Errorf("projectConfigPath = %q", got)
	}
}

func TestProjectConfigPath_DefaultFromCwd(t *testing.T) {
	t.Setenv("RECOURSE_CONFIG", "  ")
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if got := projectConfigPath(); got != filepath.Join(cwd, ".recourse", "config.yaml") {
		t.Errorf("projectConfigPath = %q", got)
	}
}
