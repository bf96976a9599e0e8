package metrics

import (
	"math"

	"github.com/influxdata/tdigest"

	"github.com/san-kum/admitsim/internal/control"
)

const digestCompression = 100

// Quantiles tracks a streaming distribution of one sample quantity.
type Quantiles struct {
	name    string
	extract func(control.Sample) float64
	size    uint
	max     float64
	*tdigest.TDigest
}

func newQuantiles(name string, extract func(control.Sample) float64) *Quantiles {
	return &Quantiles{
		name:    name,
		extract: extract,
		TDigest: tdigest.NewWithCompression(digestCompression),
	}
}

// NewAbsErrorQuantiles tracks |E|.
func NewAbsErrorQuantiles() *Quantiles {
	return newQuantiles("abs_error", func(s control.Sample) float64 { return math.Abs(s.Error) })
}

// NewRejectedQuantiles tracks rejected requests per sample.
func NewRejectedQuantiles() *Quantiles {
	return newQuantiles("rejected", func(s control.Sample) float64 { return s.Rejected })
}

func (q *Quantiles) Name() string { return q.name }

func (q *Quantiles) Observe(s control.Sample, ref float64) {
	v := q.extract(s)
	if q.size == 0 {
		q.max = v
	} else {
		q.max = max(q.max, v)
	}
	q.size++
	q.TDigest.Add(v, 1)
}

// Value is the median.
func (q *Quantiles) Value() float64 { return q.Quantile(0.5) }

// Quantile returns 0 when nothing has been observed.
func (q *Quantiles) Quantile(p float64) float64 {
	if q.size == 0 {
		return 0
	}
	return q.TDigest.Quantile(p)
}

func (q *Quantiles) Max() float64 { return q.max }

func (q *Quantiles) Reset() {
	q.TDigest.Reset()
	q.size = 0
	q.max = 0
}
