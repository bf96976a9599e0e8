package control

// Plant is y[k] = A*y[k-1] + B*admitted[k] + D*p[k].
type Plant struct {
	A float64
	B float64
	D float64
}

func (p Plant) Next(prev, admitted, perturbation float64) float64 {
	return p.A*prev + p.B*admitted + p.D*perturbation
}

func (p Plant) GetParams() map[string]float64 {
	return map[string]float64{
		"a": p.A,
		"b": p.B,
		"d": p.D,
	}
}
