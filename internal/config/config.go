// Package config provides configuration management for recourse.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (RECOURSE_*)
// 3. Project config (.recourse/config.yaml in cwd, or RECOURSE_CONFIG)
// 4. Home config (~/.recourse/config.yaml)
// 5. Defaults
//
// Zero values never override a lower layer, so a layer cannot reset an
// integer to 0 or a boolean to false once a lower layer has set it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/boshu2/recourse/internal/action"
	"github.com/boshu2/recourse/internal/cost"
	"github.com/boshu2/recourse/internal/flipset"
	"github.com/boshu2/recourse/internal/solver"
	"github.com/boshu2/recourse/internal/types"
)

// Config holds all recourse configuration.
type Config struct {
	// Output controls the default output format.
	Output string `yaml:"output" json:"output" validate:"oneof=table markdown html latex json jsonl"`

	// BaseDir is the recourse data directory (default: .recourse).
	BaseDir string `yaml:"base_dir" json:"base_dir" validate:"required"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`

	Log    LogConfig    `yaml:"log" json:"log"`
	Solver SolverConfig `yaml:"solver" json:"solver"`
	Search SearchConfig `yaml:"search" json:"search"`
	Audit  AuditConfig  `yaml:"audit" json:"audit"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json" json:"json"`
}

// SolverConfig selects and bounds the solver backends.
type SolverConfig struct {
	// Preferred is tried first when it is available.
	Preferred string `yaml:"preferred" json:"preferred" validate:"omitempty,oneof=mip branch-and-bound"`

	// Disabled backends are never used.
	Disabled []string `yaml:"disabled" json:"disabled" validate:"dive,oneof=mip branch-and-bound"`

	// Timeout bounds one solve (0 = none).
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`

	// MaxNodes bounds the search tree of one solve (0 = none).
	MaxNodes int `yaml:"max_nodes" json:"max_nodes" validate:"min=0"`
}

// SearchConfig holds flipset settings.
type SearchConfig struct {
	Margin        float64 `yaml:"margin" json:"margin" validate:"gt=0"`
	MaxGridPoints int     `yaml:"max_grid_points" json:"max_grid_points" validate:"min=1"`
	CostType      string  `yaml:"cost_type" json:"cost_type" validate:"oneof=total local max"`

	// MaxChanges bounds the support of local-cost actions (0 = none).
	MaxChanges  int    `yaml:"max_changes" json:"max_changes" validate:"min=0"`
	Enumeration string `yaml:"enumeration" json:"enumeration" validate:"oneof=mutually_exclusive distinct_subsets"`
	TotalItems  int    `yaml:"total_items" json:"total_items" validate:"min=1"`
}

// AuditConfig holds population audit settings.
type AuditConfig struct {
	CostType string `yaml:"cost_type" json:"cost_type" validate:"oneof=total local max"`

	// Workers is the audit parallelism (0 = one per CPU).
	Workers int    `yaml:"workers" json:"workers" validate:"min=0"`
	Storage string `yaml:"storage" json:"storage" validate:"oneof=file sqlite none"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput   = "table"
	defaultBaseDir  = ".recourse"
	defaultLogLevel = "info"
	defaultStorage  = "file"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:  defaultOutput,
		BaseDir: defaultBaseDir,
		Log: LogConfig{
			Level: defaultLogLevel,
		},
		Search: SearchConfig{
			Margin:        solver.DefaultMargin,
			MaxGridPoints: action.DefaultMaxGridPoints,
			CostType:      string(cost.DefaultFlipsetType),
			Enumeration:   string(flipset.DefaultEnumeration),
			TotalItems:    flipset.DefaultTotalItems,
		},
		Audit: AuditConfig{
			CostType: string(cost.DefaultAuditType),
			Storage:  defaultStorage,
		},
	}
}

// Load loads configuration with proper precedence and validates the result.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	home, err := loadFromPath(homeConfigPath())
	if err != nil {
		return nil, err
	}
	if home != nil {
		cfg = merge(cfg, home)
	}

	project, err := loadFromPath(projectConfigPath())
	if err != nil {
		return nil, err
	}
	if project != nil {
		cfg = merge(cfg, project)
	}

	env, err := envConfig()
	if err != nil {
		return nil, err
	}
	cfg = merge(cfg, env)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".recourse", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("RECOURSE_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".recourse", "config.yaml")
}

// loadFromPath loads config from a YAML file. A missing file is not an error.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", types.ErrConfiguration, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", types.ErrConfiguration, path, err)
	}

	return &cfg, nil
}

// envConfig reads every RECOURSE_* override into a sparse Config.
func envConfig() (*Config, error) {
	var cfg Config
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := getEnvString(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := getEnvString(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}

	str("RECOURSE_OUTPUT", &cfg.Output)
	str("RECOURSE_BASE_DIR", &cfg.BaseDir)
	cfg.Verbose, _ = getEnvBool("RECOURSE_VERBOSE")
	str("RECOURSE_LOG_LEVEL", &cfg.Log.Level)
	cfg.Log.JSON, _ = getEnvBool("RECOURSE_LOG_JSON")

	str("RECOURSE_SOLVER_PREFERRED", &cfg.Solver.Preferred)
	if v, ok := getEnvString("RECOURSE_SOLVER_DISABLED"); ok {
		cfg.Solver.Disabled = splitList(v)
	}
	if v, ok := getEnvString("RECOURSE_SOLVER_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("RECOURSE_SOLVER_TIMEOUT=%q is not a duration", v))
		}
		cfg.Solver.Timeout = d
	}
	num("RECOURSE_SOLVER_MAX_NODES", &cfg.Solver.MaxNodes)

	if v, ok := getEnvString("RECOURSE_SEARCH_MARGIN"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RECOURSE_SEARCH_MARGIN=%q is not a number", v))
		}
		cfg.Search.Margin = f
	}
	num("RECOURSE_SEARCH_MAX_GRID_POINTS", &cfg.Search.MaxGridPoints)
	str("RECOURSE_SEARCH_COST_TYPE", &cfg.Search.CostType)
	num("RECOURSE_SEARCH_MAX_CHANGES", &cfg.Search.MaxChanges)
	str("RECOURSE_SEARCH_ENUMERATION", &cfg.Search.Enumeration)
	num("RECOURSE_SEARCH_TOTAL_ITEMS", &cfg.Search.TotalItems)

	str("RECOURSE_AUDIT_COST_TYPE", &cfg.Audit.CostType)
	num("RECOURSE_AUDIT_WORKERS", &cfg.Audit.Workers)
	str("RECOURSE_AUDIT_STORAGE", &cfg.Audit.Storage)

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", types.ErrConfiguration, errors.Join(errs...))
	}
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	mergeStr(&dst.BaseDir, src.BaseDir)
	if src.Verbose {
		dst.Verbose = true
	}

	mergeStr(&dst.Log.Level, src.Log.Level)
	if src.Log.JSON {
		dst.Log.JSON = true
	}

	mergeSolver(&dst.Solver, &src.Solver)
	mergeSearch(&dst.Search, &src.Search)
	mergeAudit(&dst.Audit, &src.Audit)

	return dst
}

func mergeSolver(dst, src *SolverConfig) {
	mergeStr(&dst.Preferred, src.Preferred)
	if src.Disabled != nil {
		dst.Disabled = append([]string(nil), src.Disabled...)
	}
	if src.Timeout != 0 {
		dst.Timeout = src.Timeout
	}
	mergeInt(&dst.MaxNodes, src.MaxNodes)
}

func mergeSearch(dst, src *SearchConfig) {
	if src.Margin != 0 {
		dst.Margin = src.Margin
	}
	mergeInt(&dst.MaxGridPoints, src.MaxGridPoints)
	mergeStr(&dst.CostType, src.CostType)
	mergeInt(&dst.MaxChanges, src.MaxChanges)
	mergeStr(&dst.Enumeration, src.Enumeration)
	mergeInt(&dst.TotalItems, src.TotalItems)
}

func mergeAudit(dst, src *AuditConfig) {
	mergeStr(&dst.CostType, src.CostType)
	mergeInt(&dst.Workers, src.Workers)
	mergeStr(&dst.Storage, src.Storage)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML keys.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every setting. Failures wrap types.ErrConfiguration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		msgs[i] = fmt.Sprintf("%s=%v fails %s", key, fe.Value(), constraint(fe))
	}
	return fmt.Errorf("%w: %s", types.ErrConfiguration, strings.Join(msgs, "; "))
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.recourse/config.yaml"
	SourceProject Source = ".recourse/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// getEnvString returns the trimmed value and whether the env var was set.
func getEnvString(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// getEnvBool returns the boolean value and whether it was truthy.
func getEnvBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "true" || v == "1" {
		return true, true
	}
	return false, false
}
