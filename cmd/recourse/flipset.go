package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/recourse/internal/config"
	"github.com/boshu2/recourse/internal/flipset"
	"github.com/boshu2/recourse/internal/formatter"
	"github.com/boshu2/recourse/internal/types"
)

var (
	flipsetInputs      inputFlags
	flipsetRow         int
	flipsetSubject     string
	flipsetCostType    string
	flipsetMaxChanges  int
	flipsetWeights     []string
	flipsetEnumeration string
	flipsetItems       int
	flipsetMargin      float64
	flipsetGridPoints  int
)

var flipsetCmd = &cobra.Command{
	Use:   "flipset",
	Short: "Enumerate flipping actions for one subject",
	Long: `Find up to --items minimal-cost actions that move one subject from the
adverse to the favorable class, ranked by cost.

The subject is a row of --data (--row, 0-based) or an explicit vector (--x)
in the column order of --data.

Enumeration:
  distinct_subsets    every item changes a different set of features (default)
  mutually_exclusive  no two items change the same feature

Examples:
  recourse flipset --data credit.csv --model model.yaml --row 2
  recourse flipset --data credit.csv --model model.yaml --actions actions.yaml \
    --x 1,0,2,0 --cost-type max -o markdown`,
	RunE: runFlipset,
}

func init() {
	rootCmd.AddCommand(flipsetCmd)
	flipsetInputs.register(flipsetCmd)
	f := flipsetCmd.Flags()
	f.IntVar(&flipsetRow, "row", -1, "Subject row of --data (0-based)")
	f.StringVar(&flipsetSubject, "x", "", "Subject feature vector, comma separated")
	f.StringVar(&flipsetCostType, "cost-type", "", "Cost aggregation (total, local, max)")
	f.IntVar(&flipsetMaxChanges, "max-changes", 0, "Maximum features changed under local cost (0 = none)")
	f.StringSliceVar(&flipsetWeights, "weight", nil, "Local cost weight as name=value (repeatable)")
	f.StringVar(&flipsetEnumeration, "enumeration", "", "Enumeration policy (distinct_subsets, mutually_exclusive)")
	f.IntVar(&flipsetItems, "items", 0, "Maximum number of items")
	f.Float64Var(&flipsetMargin, "margin", 0, "Minimum signed score of a flipped subject")
	f.IntVar(&flipsetGridPoints, "max-grid-points", 0, "Grid points per feature direction")
	flipsetCmd.MarkFlagsMutuallyExclusive("row", "x")

	commandOverrides[flipsetCmd] = func(o *config.Config, changed func(string) bool) {
		if changed("cost-type") {
			o.Search.CostType = flipsetCostType
		}
		if changed("max-changes") {
			o.Search.MaxChanges = flipsetMaxChanges
		}
		if changed("enumeration") {
			o.Search.Enumeration = flipsetEnumeration
		}
		if changed("items") {
			o.Search.TotalItems = flipsetItems
		}
		if changed("margin") {
			o.Search.Margin = flipsetMargin
		}
		if changed("max-grid-points") {
			o.Search.MaxGridPoints = flipsetGridPoints
		}
	}
}

func runFlipset(cmd *cobra.Command, _ []string) error {
	out, err := formatter.New(app.cfg.Output)
	if err != nil {
		return err
	}
	in, err := flipsetInputs.load()
	if err != nil {
		return err
	}

	x, err := subject(in)
	if err != nil {
		return err
	}
	weights, err := parseWeights(flipsetWeights, in.actionSet.Names())
	if err != nil {
		return err
	}
	sc := app.cfg.Search
	cf, err := costFunction(sc.CostType, sc.MaxChanges, weights)
	if err != nil {
		return err
	}
	enum, err := flipset.ParseEnumeration(sc.Enumeration)
	if err != nil {
		return err
	}
	s, err := newSolver()
	if err != nil {
		return err
	}

	fs, err := flipset.New(x, in.actionSet, in.model, s,
		flipset.WithCost(cf),
		flipset.WithMargin(sc.Margin),
		flipset.WithLogger(app.logger),
		flipset.WithMetrics(app.metrics))
	if err != nil {
		return err
	}
	if err := fs.Populate(cmd.Context(), enum, sc.TotalItems); err != nil {
		if errors.Is(err, flipset.ErrAlreadyFavorable) {
			app.logger.Info("subject already receives the favorable outcome", "score", fs.Score())
		}
		return err
	}

	if err := out.FormatFlipset(os.Stdout, formatter.NewFlipsetReport(fs)); err != nil {
		return fmt.Errorf("render flipset: %w", err)
	}
	if fs.Status() == flipset.StatusBackendError {
		return fs.Err()
	}
	return nil
}

func subject(in *inputs) ([]float64, error) {
	switch {
	case flipsetSubject != "":
		return parseVector(flipsetSubject, in.actionSet.Len())
	case flipsetRow >= 0:
		if flipsetRow >= in.matrix.NumRows() {
			return nil, fmt.Errorf("%w: row %d out of range (%d rows)", types.ErrConfiguration, flipsetRow, in.matrix.NumRows())
		}
		return in.matrix.Row(flipsetRow), nil
	}
	return nil, fmt.Errorf("%w: one of --row or --x is required", types.ErrConfiguration)
}
