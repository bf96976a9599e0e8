// Package traffic produces the incoming-request series that feeds the
// admission controller.
package traffic

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/admitsim/internal/config"
)

const (
	// Alpha is the smoothing weight on the previous sample.
	Alpha = 0.9
	// NoiseStdDev is the standard deviation of the per-sample jitter.
	NoiseStdDev = 30.0
	// Band is the relative clamp around the base rate.
	Band = 0.15
)

type Generator struct {
	mode  string
	base  float64
	noise distuv.Normal
}

// New returns a generator for the given mode. src is only consulted in
// smoothed mode and may be nil for constant traffic.
func New(mode string, base float64, src rand.Source) (*Generator, error) {
	switch mode {
	case config.TrafficConstant, config.TrafficSmoothed:
	default:
		return nil, fmt.Errorf("traffic: unknown mode %q", mode)
	}
	if mode == config.TrafficSmoothed && src == nil {
		return nil, fmt.Errorf("traffic: smoothed mode needs a random source")
	}
	return &Generator{
		mode:  mode,
		base:  base,
		noise: distuv.Normal{Mu: 0, Sigma: NoiseStdDev, Src: src},
	}, nil
}

func (g *Generator) Mode() string { return g.mode }

// Fill writes len(dst) samples into dst and returns it.
func (g *Generator) Fill(dst []float64) []float64 {
	if len(dst) == 0 {
		return dst
	}
	dst[0] = g.base
	if g.mode == config.TrafficConstant {
		for i := 1; i < len(dst); i++ {
			dst[i] = g.base
		}
		return dst
	}

	lo, hi := g.base*(1-Band), g.base*(1+Band)
	for i := 1; i < len(dst); i++ {
		v := Alpha*dst[i-1] + (1-Alpha)*g.base + g.noise.Rand()
		dst[i] = clamp(v, lo, hi)
	}
	return dst
}

// Generate allocates and fills a series of n samples.
func (g *Generator) Generate(n int) []float64 {
	return g.Fill(make([]float64, n))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
