package perturb

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Kind is the disturbance shape.
type Kind int

const (
	Step Kind = iota
	Drift
	RFI
	EMI
)

var kindNames = map[Kind]string{
	Step:  "step",
	Drift: "drift",
	RFI:   "rfi",
	EMI:   "emi",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Label is the overlay caption used by renderers, e.g. "Step".
func (k Kind) Label() string {
	switch k {
	case Step:
		return "Step"
	case Drift:
		return "Drift"
	case RFI:
		return "RFI"
	case EMI:
		return "EMI"
	}
	return k.String()
}

// Color is the overlay colour used by renderers.
func (k Kind) Color() string {
	switch k {
	case Step:
		return "purple"
	case Drift:
		return "orange"
	case RFI:
		return "green"
	case EMI:
		return "red"
	}
	return "gray"
}

// ParseKind accepts the lower-case names returned by String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("perturb: unknown kind %q", s)
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind { return []Kind{Step, Drift, RFI, EMI} }

// linspace mirrors numpy.linspace: n evenly spaced samples over [lo, hi]
// inclusive, with a single sample equal to lo.
func linspace(n int, lo, hi float64) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

func stepWave(n int, m float64) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = m
	}
	return w
}

// driftWave ramps 0->m over ramp samples, holds m for ramp samples and
// ramps m->0 over what is left of n. n must be at least 2*ramp.
func driftWave(n, ramp int, m float64) []float64 {
	w := make([]float64, 0, n)
	w = append(w, linspace(ramp, 0, m)...)
	w = append(w, stepWave(ramp, m)...)
	w = append(w, linspace(n-2*ramp, m, 0)...)
	return w
}

// rfiWave is five full sine periods scaled to a quarter of m.
func rfiWave(n int, m float64) []float64 {
	phase := linspace(n, 0, math.Pi)
	w := make([]float64, n)
	for i, p := range phase {
		w[i] = m / 4 * math.Sin(10*p)
	}
	return w
}

// emiWave is white Gaussian noise with standard deviation m/4.
func emiWave(n int, m float64, noise distuv.Normal) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = m / 4 * noise.Rand()
	}
	return w
}
