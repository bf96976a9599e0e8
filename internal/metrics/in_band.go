package metrics

import (
	"math"

	"github.com/san-kum/admitsim/internal/control"
)

// DefaultBand is the relative tolerance around the reference.
const DefaultBand = 0.15

// InBand is the fraction of samples whose measured output lies within
// band*|R| of the reference.
type InBand struct {
	name       string
	band       float64
	violations int
	samples    int
}

func NewInBand(band float64) *InBand {
	return &InBand{
		name: "in_band",
		band: band,
	}
}

func (s *InBand) Name() string {
	return s.name
}

func (s *InBand) Observe(x control.Sample, ref float64) {
	s.samples++
	if math.Abs(x.Measured-ref) > s.band*math.Abs(ref) {
		s.violations++
	}
}

func (s *InBand) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *InBand) Reset() {
	s.violations = 0
	s.samples = 0
}
