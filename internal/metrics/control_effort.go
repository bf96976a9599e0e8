package metrics

import (
	"math"

	"github.com/san-kum/admitsim/internal/control"
)

// ControlEffort is the mean absolute control signal.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(s control.Sample, ref float64) {
	c.sum += math.Abs(s.Control)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// IAE is the integrated absolute tracking error over unit samples.
type IAE struct {
	sum float64
}

func NewIAE() *IAE { return &IAE{} }

func (m *IAE) Name() string { return "iae" }

func (m *IAE) Observe(s control.Sample, ref float64) {
	m.sum += math.Abs(s.Error)
}

func (m *IAE) Value() float64 { return m.sum }

func (m *IAE) Reset() { m.sum = 0 }

// RejectionRatio is total rejected over total incoming requests.
type RejectionRatio struct {
	rejected float64
	incoming float64
}

func NewRejectionRatio() *RejectionRatio { return &RejectionRatio{} }

func (m *RejectionRatio) Name() string { return "rejection_ratio" }

func (m *RejectionRatio) Observe(s control.Sample, ref float64) {
	m.rejected += s.Rejected
	m.incoming += s.Incoming
}

func (m *RejectionRatio) Value() float64 {
	if m.incoming == 0 {
		return 0
	}
	return m.rejected / m.incoming
}

func (m *RejectionRatio) Reset() {
	m.rejected = 0
	m.incoming = 0
}

// Overshoot is the largest excursion of the measured output above the
// reference, relative to the reference.
type Overshoot struct {
	peak float64
}

func NewOvershoot() *Overshoot { return &Overshoot{} }

func (m *Overshoot) Name() string { return "overshoot" }

func (m *Overshoot) Observe(s control.Sample, ref float64) {
	if ref == 0 {
		return
	}
	if o := (s.Measured - ref) / math.Abs(ref); o > m.peak {
		m.peak = o
	}
}

func (m *Overshoot) Value() float64 { return m.peak }

func (m *Overshoot) Reset() { m.peak = 0 }
