// Package metrics scores an admission-control run: tracking error,
// throttling and control effort, accumulated frame by frame.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/admitsim/internal/control"
	"github.com/san-kum/admitsim/internal/signal"
	"github.com/san-kum/admitsim/internal/sim"
)

type Metric interface {
	Name() string
	Observe(s control.Sample, ref float64)
	Value() float64
	Reset()
}

// Summary is the scorecard of one run.
type Summary struct {
	Steps            int     `json:"steps" yaml:"steps"`
	IAE              float64 `json:"iae" yaml:"iae"`
	ControlEffort    float64 `json:"control_effort" yaml:"control_effort"`
	Overshoot        float64 `json:"overshoot" yaml:"overshoot"`
	SteadyStateError float64 `json:"steady_state_error" yaml:"steady_state_error"`
	RejectionRatio   float64 `json:"rejection_ratio" yaml:"rejection_ratio"`
	InBand           float64 `json:"in_band" yaml:"in_band"`
	ErrorP50         float64 `json:"error_p50" yaml:"error_p50"`
	ErrorP95         float64 `json:"error_p95" yaml:"error_p95"`
	ErrorP99         float64 `json:"error_p99" yaml:"error_p99"`
	RejectedP50      float64 `json:"rejected_p50" yaml:"rejected_p50"`
	RejectedP95      float64 `json:"rejected_p95" yaml:"rejected_p95"`
	RejectedP99      float64 `json:"rejected_p99" yaml:"rejected_p99"`
	RejectedMax      float64 `json:"rejected_max" yaml:"rejected_max"`
	OutputMean       float64 `json:"output_mean" yaml:"output_mean"`
	OutputStdDev     float64 `json:"output_stddev" yaml:"output_stddev"`
}

// Collector is a sim.Renderer that feeds every advanced sample to its
// metrics. The initial frame at kt 0 carries no sample and is skipped.
type Collector struct {
	effort    *ControlEffort
	iae       *IAE
	rejection *RejectionRatio
	overshoot *Overshoot
	inBand    *InBand
	absErr    *Quantiles
	rejected  *Quantiles
	extra     []Metric

	// last.View aliases the driver buffer. Summary only reads Measured
	// and Error, which are never rewritten at or before Kt.
	last sim.Frame
}

func NewCollector(band float64, extra ...Metric) *Collector {
	return &Collector{
		effort:    NewControlEffort(),
		iae:       NewIAE(),
		rejection: NewRejectionRatio(),
		overshoot: NewOvershoot(),
		inBand:    NewInBand(band),
		absErr:    NewAbsErrorQuantiles(),
		rejected:  NewRejectedQuantiles(),
		extra:     extra,
	}
}

func (c *Collector) all() []Metric {
	ms := []Metric{c.effort, c.iae, c.rejection, c.overshoot, c.inBand, c.absErr, c.rejected}
	return append(ms, c.extra...)
}

func (c *Collector) OnFrame(f sim.Frame) {
	c.last = f
	if f.Kt == 0 {
		return
	}
	ref := f.View.At(signal.Reference, f.Kt)
	for _, m := range c.all() {
		m.Observe(f.Sample, ref)
	}
}

func (c *Collector) OnReset() {
	for _, m := range c.all() {
		m.Reset()
	}
	c.last = sim.Frame{}
}

// Values returns every metric keyed by name.
func (c *Collector) Values() map[string]float64 {
	out := make(map[string]float64)
	for _, m := range c.all() {
		out[m.Name()] = m.Value()
	}
	return out
}

// Summary scores everything observed since the last reset.
func (c *Collector) Summary() Summary {
	s := Summary{
		Steps:          c.last.Kt,
		IAE:            c.iae.Value(),
		ControlEffort:  c.effort.Value(),
		Overshoot:      c.overshoot.Value(),
		RejectionRatio: c.rejection.Value(),
		InBand:         c.inBand.Value(),
		ErrorP50:       c.absErr.Quantile(0.5),
		ErrorP95:       c.absErr.Quantile(0.95),
		ErrorP99:       c.absErr.Quantile(0.99),
		RejectedP50:    c.rejected.Quantile(0.5),
		RejectedP95:    c.rejected.Quantile(0.95),
		RejectedP99:    c.rejected.Quantile(0.99),
		RejectedMax:    c.rejected.Max(),
	}

	v := c.last.View
	if v.Len() < 2 {
		return s
	}
	// Index 0 holds initial values, not samples.
	ym := v.Series(signal.Measured)[1:]
	s.OutputMean, s.OutputStdDev = stat.MeanStdDev(ym, nil)
	if math.IsNaN(s.OutputStdDev) {
		s.OutputStdDev = 0
	}

	tail := max(1, len(ym)/10)
	s.SteadyStateError = stat.Mean(v.Tail(signal.Error, tail), nil)
	return s
}

// Aggregate returns the per-field mean and standard deviation across runs.
func Aggregate(runs []Summary) (mean, stddev Summary) {
	if len(runs) == 0 {
		return mean, stddev
	}
	mean.Steps = runs[0].Steps
	stddev.Steps = runs[0].Steps

	mf, sf := mean.fields(), stddev.fields()
	vals := make([]float64, len(runs))
	for i := range mf {
		for j := range runs {
			vals[j] = *runs[j].fields()[i]
		}
		*mf[i], *sf[i] = stat.MeanStdDev(vals, nil)
		if math.IsNaN(*sf[i]) {
			*sf[i] = 0
		}
	}
	return mean, stddev
}

func (s *Summary) fields() []*float64 {
	return []*float64{
		&s.IAE, &s.ControlEffort, &s.Overshoot, &s.SteadyStateError,
		&s.RejectionRatio, &s.InBand,
		&s.ErrorP50, &s.ErrorP95, &s.ErrorP99,
		&s.RejectedP50, &s.RejectedP95, &s.RejectedP99, &s.RejectedMax,
		&s.OutputMean, &s.OutputStdDev,
	}
}
