package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/recourse/internal/action"
	"github.com/boshu2/recourse/internal/cost"
	"github.com/boshu2/recourse/internal/dataset"
	"github.com/boshu2/recourse/internal/model"
	"github.com/boshu2/recourse/internal/types"
)

// inputFlags are shared by the commands that load a dataset and a model.
type inputFlags struct {
	data        string
	labelColumn string
	model       string
	actions     string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.data, "data", "", "CSV of feature values with a header row (required)")
	cmd.Flags().StringVar(&f.labelColumn, "label-column", "", "Column holding outcome labels, excluded from features")
	cmd.Flags().StringVar(&f.model, "model", "", "YAML linear model file (required)")
	cmd.Flags().StringVar(&f.actions, "actions", "", "YAML action set overrides")
	_ = cmd.MarkFlagRequired("data")  //nolint:errcheck // flag exists
	_ = cmd.MarkFlagRequired("model") //nolint:errcheck // flag exists
}

// inputs is a loaded dataset with its action set and a model ordered like it.
type inputs struct {
	matrix    *dataset.Matrix
	actionSet *action.ActionSet
	model     *model.LinearModel
}

func (f *inputFlags) load() (*inputs, error) {
	m, err := dataset.ReadCSVFile(f.data, dataset.ReadOptions{LabelColumn: f.labelColumn})
	if err != nil {
		return nil, err
	}

	as, err := action.New(m,
		action.WithMaxGridPoints(app.cfg.Search.MaxGridPoints),
		action.WithLogger(app.logger))
	if err != nil {
		return nil, err
	}
	if f.actions != "" {
		af, err := action.LoadFile(f.actions)
		if err != nil {
			return nil, err
		}
		if err := as.Apply(af); err != nil {
			return nil, err
		}
	}

	lm, err := model.Load(f.model)
	if err != nil {
		return nil, err
	}
	lm, err = lm.Reorder(as.Names())
	if err != nil {
		return nil, err
	}

	warnings, err := as.SetAlignment(lm)
	if err != nil {
		return nil, err
	}
	app.logger.Debug("inputs loaded",
		"rows", m.NumRows(),
		"features", as.Len(),
		"alignment_warnings", len(warnings))
	return &inputs{matrix: m, actionSet: as, model: lm}, nil
}

// parseVector parses a comma-separated feature vector of length n.
func parseVector(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%w: subject has %d values, action set has %d features", types.ErrConfiguration, len(parts), n)
	}
	x := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: subject value %d: %v", types.ErrConfiguration, i, err)
		}
		x[i] = v
	}
	return x, nil
}

// parseWeights parses name=weight pairs for local cost. Every name must be
// one of features.
func parseWeights(pairs, features []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	known := make(map[string]bool, len(features))
	for _, f := range features {
		known[f] = true
	}
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		name, val, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("%w: weight %q must be name=value", types.ErrConfiguration, p)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: weight %q: %v", types.ErrConfiguration, p, err)
		}
		name = strings.TrimSpace(name)
		if !known[name] {
			return nil, fmt.Errorf("%w: weight for unknown feature %q", types.ErrConfiguration, name)
		}
		out[name] = w
	}
	return out, nil
}

// costFunction builds a validated cost function.
func costFunction(typ string, maxChanges int, weights map[string]float64) (cost.Function, error) {
	t, err := cost.ParseType(typ)
	if err != nil {
		return cost.Function{}, err
	}
	cf := cost.Function{Type: t, MaxChanges: maxChanges, Weights: weights}
	if err := cf.Validate(); err != nil {
		return cost.Function{}, err
	}
	return cf, nil
}
