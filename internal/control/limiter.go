package control

import "math"

// RateLimiter maps the control signal to the fraction of incoming traffic
// that is admitted. Scale is the control magnitude at which the limiter
// fully closes.
type RateLimiter struct {
	Scale float64
}

// Factor is clamp(1 + u/Scale, 0, 1). A NaN input closes the limiter.
func (r RateLimiter) Factor(u float64) float64 {
	f := 1 + u/r.Scale
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Admit splits in into the admitted and rejected request counts.
func (r RateLimiter) Admit(in, u float64) (processed, rejected float64) {
	processed = in * r.Factor(u)
	rejected = math.Max(0, in-processed)
	return processed, rejected
}
