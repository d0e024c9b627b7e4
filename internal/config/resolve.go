package config

import (
	"strconv"
	"strings"
)

// Entry is one resolved setting and the layer that supplied it.
type Entry struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source Source `json:"source"`
}

type field struct {
	key   string
	value string
	set   bool
}

// fields flattens c into its dotted keys in display order.
func fields(c *Config) []field {
	str := func(k, v string) field { return field{k, v, v != ""} }
	num := func(k string, v int) field { return field{k, strconv.Itoa(v), v != 0} }
	flag := func(k string, v bool) field { return field{k, strconv.FormatBool(v), v} }
	timeout := field{"solver.timeout", c.Solver.Timeout.String(), c.Solver.Timeout != 0}
	margin := field{"search.margin", strconv.FormatFloat(c.Search.Margin, 'g', -1, 64), c.Search.Margin != 0}
	return []field{
		str("output", c.Output),
		str("base_dir", c.BaseDir),
		flag("verbose", c.Verbose),
		str("log.level", c.Log.Level),
		flag("log.json", c.Log.JSON),
		str("solver.preferred", c.Solver.Preferred),
		{"solver.disabled", strings.Join(c.Solver.Disabled, ","), c.Solver.Disabled != nil},
		timeout,
		num("solver.max_nodes", c.Solver.MaxNodes),
		margin,
		num("search.max_grid_points", c.Search.MaxGridPoints),
		str("search.cost_type", c.Search.CostType),
		num("search.max_changes", c.Search.MaxChanges),
		str("search.enumeration", c.Search.Enumeration),
		num("search.total_items", c.Search.TotalItems),
		str("audit.cost_type", c.Audit.CostType),
		num("audit.workers", c.Audit.Workers),
		str("audit.storage", c.Audit.Storage),
	}
}

// Resolve returns every setting with the layer that supplied it.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flagOverrides *Config) ([]Entry, error) {
	home, err := loadFromPath(homeConfigPath())
	if err != nil {
		return nil, err
	}
	project, err := loadFromPath(projectConfigPath())
	if err != nil {
		return nil, err
	}
	env, err := envConfig()
	if err != nil {
		return nil, err
	}

	layers := []struct {
		source Source
		cfg    *Config
	}{
		{SourceHome, home},
		{SourceProject, project},
		{SourceEnv, env},
		{SourceFlag, flagOverrides},
	}

	defaults := fields(Default())
	entries := make([]Entry, len(defaults))
	for i, f := range defaults {
		entries[i] = Entry{Key: f.key, Value: f.value, Source: SourceDefault}
	}
	for _, layer := range layers {
		if layer.cfg == nil {
			continue
		}
		for i, f := range fields(layer.cfg) {
			if f.set {
				entries[i] = Entry{Key: f.key, Value: f.value, Source: layer.source}
			}
		}
	}
	return entries, nil
}
