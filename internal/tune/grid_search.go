// Package tune is an offline grid search: every candidate gain set is
// scored by its own headless run with fixed gains.
package tune

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/admitsim/internal/config"
	"github.com/san-kum/admitsim/internal/metrics"
	"github.com/san-kum/admitsim/internal/scenario"
	"github.com/san-kum/admitsim/internal/sim"
)

// Objective scores one parameter assignment; lower is better.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

// GridSearch evaluates every combination of the candidate values.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("tune: %d params but %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("tune: no values for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search returns the best assignment and its score. Points the driver
// rejects as invalid are skipped; any other error aborts the search.
func (g *GridSearch) Search(ctx context.Context, objective Objective) (map[string]float64, float64, error) {
	best := math.Inf(1)
	var bestParams map[string]float64

	err := g.searchRecursive(ctx, 0, make(map[string]float64), objective, &best, &bestParams)
	if err != nil {
		return nil, 0, err
	}
	if bestParams == nil {
		return nil, 0, fmt.Errorf("tune: no valid grid point")
	}
	return bestParams, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	objective Objective,
	best *float64,
	bestParams *map[string]float64,
) error {
	if depth == len(g.paramNames) {
		if err := ctx.Err(); err != nil {
			return err
		}
		val, err := objective(ctx, current)
		if errors.Is(err, sim.ErrValidation) {
			logrus.WithError(err).Debugf("grid point %v skipped", current)
			return nil
		}
		if err != nil {
			return err
		}

		if val < *best {
			*best = val
			*bestParams = make(map[string]float64, len(current))
			for k, v := range current {
				(*bestParams)[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, objective, best, bestParams); err != nil {
			return err
		}
	}
	return nil
}

// RunObjective scores a headless run of base with params applied, by the
// named collector metric. sc may be nil.
func RunObjective(base *config.Config, sc *scenario.Scenario, metric string) Objective {
	return func(ctx context.Context, params map[string]float64) (float64, error) {
		cfg := base.Clone()
		for k, v := range params {
			if err := cfg.SetParam(k, v); err != nil {
				return 0, err
			}
		}

		collector := metrics.NewCollector(metrics.DefaultBand)
		d, err := sim.NewDriver(cfg, collector)
		if err != nil {
			return 0, err
		}
		if _, err := scenario.Run(ctx, d, sc, nil); err != nil {
			return 0, err
		}

		val, ok := collector.Values()[metric]
		if !ok {
			return 0, fmt.Errorf("tune: unknown metric %q", metric)
		}
		return val, nil
	}
}
