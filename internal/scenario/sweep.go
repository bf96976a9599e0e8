package scenario

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/admitsim/internal/config"
	"github.com/san-kum/admitsim/internal/metrics"
	"github.com/san-kum/admitsim/internal/sim"
)

// ParameterSweep runs the same scenario across evenly spaced values of
// one configuration parameter.
type ParameterSweep struct {
	Param    string
	ParamMin float64
	ParamMax float64
	NumSteps int
}

// SweepResult holds the scorecard of one sweep point.
type SweepResult struct {
	ParamValue float64
	Summary    metrics.Summary
}

// Values returns the parameter values the sweep visits.
func (s *ParameterSweep) Values() ([]float64, error) {
	if s.NumSteps < 1 {
		return nil, fmt.Errorf("scenario: sweep needs at least one step")
	}
	if s.NumSteps == 1 {
		return []float64{s.ParamMin}, nil
	}
	return floats.Span(make([]float64, s.NumSteps), s.ParamMin, s.ParamMax), nil
}

// RunSweep executes the sweep unpaced. sc may be nil.
func RunSweep(ctx context.Context, base *config.Config, sweep *ParameterSweep, sc *Scenario) ([]SweepResult, error) {
	values, err := sweep.Values()
	if err != nil {
		return nil, err
	}
	results := make([]SweepResult, 0, len(values))

	for i, v := range values {
		cfg := base.Clone()
		if err := cfg.SetParam(sweep.Param, v); err != nil {
			return results, err
		}

		collector := metrics.NewCollector(metrics.DefaultBand)
		d, err := sim.NewDriver(cfg, collector)
		if err != nil {
			return results, fmt.Errorf("sweep %s=%g: %w", sweep.Param, v, err)
		}
		if _, err := Run(ctx, d, sc, nil); err != nil {
			return results, fmt.Errorf("sweep %s=%g: %w", sweep.Param, v, err)
		}

		results = append(results, SweepResult{ParamValue: v, Summary: collector.Summary()})
		logrus.Debugf("sweep %d/%d: %s=%.4f", i+1, len(values), sweep.Param, v)
	}

	return results, nil
}
