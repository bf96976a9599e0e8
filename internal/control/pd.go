package control

// PD is a proportional-derivative controller with a unit sample period.
type PD struct {
	Kp float64
	Kd float64
}

func NewPD(kp, kd float64) PD {
	return PD{Kp: kp, Kd: kd}
}

// Compute returns the control signal for the current error e and the
// previous error prev.
func (p PD) Compute(e, prev float64) float64 {
	return p.Kp*e + p.Kd*(e-prev)
}

// GetParams returns the gains keyed as in the configuration.
func (p PD) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp": p.Kp,
		"Kd": p.Kd,
	}
}
