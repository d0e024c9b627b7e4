package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boshu2/recourse/internal/types"
)

// Chain tries backends in order, falling back to the next one only when a
// backend fails with a BackendError. Configuration errors and definitive
// results are returned as is.
type Chain struct {
	solvers []Solver
	logger  *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithChainLogger sets the logger used to report fallbacks.
func WithChainLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// NewChain builds a fallback chain.
func NewChain(solvers []Solver, opts ...ChainOption) *Chain {
	c := &Chain{solvers: solvers, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) Name() string {
	names := make([]string, len(c.solvers))
	for i, s := range c.solvers {
		names[i] = s.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c *Chain) Solve(ctx context.Context, p *Problem) (Result, error) {
	if len(c.solvers) == 0 {
		return Result{}, fmt.Errorf("%w: empty chain", ErrNoBackend)
	}
	var errs []error
	for _, s := range c.solvers {
		r, err := s.Solve(ctx, p)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, types.ErrBackend) {
			return r, err
		}
		c.logger.Warn("solver backend failed, falling back",
			"backend", s.Name(),
			"error", err)
		errs = append(errs, err)
	}
	return Result{}, errors.Join(errs...)
}
