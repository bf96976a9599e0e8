package control

import (
	"github.com/san-kum/admitsim/internal/config"
	"github.com/san-kum/admitsim/internal/signal"
)

// Sample holds everything computed for one index.
type Sample struct {
	Kt        int
	Error     float64
	DError    float64
	Control   float64
	Factor    float64
	Incoming  float64
	Processed float64
	Rejected  float64
	Output    float64
	Measured  float64
}

type Loop struct {
	Reference float64
	PD        PD
	Limiter   RateLimiter
	Plant     Plant
}

func NewLoop(cfg *config.Config) *Loop {
	return &Loop{
		Reference: cfg.Reference,
		PD:        NewPD(cfg.Controller.Kp, cfg.Controller.Kd),
		Limiter:   RateLimiter{Scale: cfg.SaturationScale},
		Plant:     Plant{A: cfg.Plant.A, B: cfg.Plant.B, D: cfg.Plant.D},
	}
}

// Params returns every coefficient of the loop keyed as in
// config.Config.Params.
func (l *Loop) Params() map[string]float64 {
	params := map[string]float64{
		"R": l.Reference,
		"S": l.Limiter.Scale,
	}
	for k, v := range l.PD.GetParams() {
		params[k] = v
	}
	for k, v := range l.Plant.GetParams() {
		params[k] = v
	}
	return params
}

// Step advances the recurrence to index kt. Incoming traffic and the
// perturbation at kt must already be in buf. Index 0 holds initial values
// and is left alone.
func (l *Loop) Step(buf *signal.Buffer, kt int) (Sample, error) {
	if kt == 0 {
		return Sample{}, nil
	}
	if kt >= buf.Len() || kt < 0 {
		return Sample{}, &signal.OutOfRangeError{Field: signal.Error, Index: kt, Len: buf.Len()}
	}

	// kt-1 and kt are both in range from here on.
	v := buf.View(kt + 1)
	prevE := v.At(signal.Error, kt-1)
	prevY := v.At(signal.Output, kt-1)
	prevYm := v.At(signal.Measured, kt-1)
	in := v.At(signal.Incoming, kt)
	p := v.At(signal.Perturbation, kt)

	s := Sample{Kt: kt, Incoming: in}
	s.Error = l.Reference - prevYm
	s.DError = s.Error - prevE
	s.Control = l.PD.Compute(s.Error, prevE)
	s.Factor = l.Limiter.Factor(s.Control)
	s.Processed, s.Rejected = l.Limiter.Admit(in, s.Control)
	s.Output = l.Plant.Next(prevY, s.Processed, p)
	s.Measured = s.Output

	writes := [...]struct {
		f signal.Field
		v float64
	}{
		{signal.Reference, l.Reference},
		{signal.Error, s.Error},
		{signal.Control, s.Control},
		{signal.Processed, s.Processed},
		{signal.Rejected, s.Rejected},
		{signal.Output, s.Output},
		{signal.Measured, s.Measured},
	}
	for _, w := range writes {
		if err := buf.Write(kt, w.f, w.v); err != nil {
			return s, err
		}
	}
	return s, nil
}
