// Package signal stores the fixed-length time series of a simulation run.
//
// A [Buffer] holds one series per [Field], all of the same length. Writes
// past the end fail with [*OutOfRangeError]; the buffer never grows. Use
// [Buffer.View] to hand a read-only prefix to renderers.
package signal

import "fmt"

// Field identifies one series in a Buffer.
type Field int

const (
	Reference Field = iota
	Incoming
	Processed
	Rejected
	Error
	Control
	Output
	Measured
	Perturbation
	NumFields
)

var fieldNames = [NumFields]string{
	Reference:    "reference",
	Incoming:     "incoming",
	Processed:    "processed",
	Rejected:     "rejected",
	Error:        "error",
	Control:      "control",
	Output:       "output",
	Measured:     "measured",
	Perturbation: "perturbation",
}

func (f Field) String() string {
	if f < 0 || f >= NumFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Fields returns every field in storage order.
func Fields() []Field {
	fs := make([]Field, NumFields)
	for i := range fs {
		fs[i] = Field(i)
	}
	return fs
}

// OutOfRangeError reports an access outside [0, Len).
type OutOfRangeError struct {
	Field Field
	Index int
	Len   int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("signal: %s index %d out of range [0, %d)", e.Field, e.Index, e.Len)
}

type Buffer struct {
	series [NumFields][]float64
	n      int
}

// NewBuffer returns a zero-filled buffer of the given length.
func NewBuffer(steps int) *Buffer {
	b := &Buffer{}
	b.Allocate(steps)
	return b
}

// Allocate replaces all storage with zero-filled series of length steps.
// Views taken earlier keep referring to the previous storage.
func (b *Buffer) Allocate(steps int) {
	if steps < 0 {
		steps = 0
	}
	for i := range b.series {
		b.series[i] = make([]float64, steps)
	}
	b.n = steps
}

func (b *Buffer) Len() int { return b.n }

func (b *Buffer) Write(index int, f Field, v float64) error {
	if err := b.check(index, f); err != nil {
		return err
	}
	b.series[f][index] = v
	return nil
}

// Read returns the stored sample. Unwritten samples read as zero, which is
// the initial value of every derived series.
func (b *Buffer) Read(index int, f Field) (float64, error) {
	if err := b.check(index, f); err != nil {
		return 0, err
	}
	return b.series[f][index], nil
}

// Fill sets every sample of f to v.
func (b *Buffer) Fill(f Field, v float64) {
	s := b.series[f]
	for i := range s {
		s[i] = v
	}
}

// WriteRange copies vals into f starting at start. When accumulate is true
// the values are added to what is already stored.
func (b *Buffer) WriteRange(start int, f Field, vals []float64, accumulate bool) error {
	if len(vals) == 0 {
		return nil
	}
	if err := b.check(start, f); err != nil {
		return err
	}
	if err := b.check(start+len(vals)-1, f); err != nil {
		return err
	}
	dst := b.series[f][start : start+len(vals)]
	if !accumulate {
		copy(dst, vals)
		return nil
	}
	for i, v := range vals {
		dst[i] += v
	}
	return nil
}

// View returns a read-only view of the first n samples of every series.
// n is clamped to [0, Len].
func (b *Buffer) View(n int) View {
	if n < 0 {
		n = 0
	}
	if n > b.n {
		n = b.n
	}
	return View{series: b.series, n: n}
}

func (b *Buffer) check(index int, f Field) error {
	if f < 0 || f >= NumFields {
		return fmt.Errorf("signal: unknown field %d", int(f))
	}
	if index < 0 || index >= b.n {
		return &OutOfRangeError{Field: f, Index: index, Len: b.n}
	}
	return nil
}

// View is a prefix of a Buffer. It shares storage with the buffer, so it is
// cheap to create; Series returns copies.
type View struct {
	series [NumFields][]float64
	n      int
}

// Len is the number of samples visible through the view.
func (v View) Len() int { return v.n }

// At returns sample i of f, or 0 outside the view.
func (v View) At(f Field, i int) float64 {
	if i < 0 || i >= v.n || f < 0 || f >= NumFields {
		return 0
	}
	return v.series[f][i]
}

// Last returns the most recent visible sample of f.
func (v View) Last(f Field) float64 {
	return v.At(f, v.n-1)
}

// Series returns a copy of the visible prefix of f.
func (v View) Series(f Field) []float64 {
	out := make([]float64, v.n)
	if f >= 0 && f < NumFields {
		copy(out, v.series[f][:v.n])
	}
	return out
}

// Tail returns a copy of at most the last k visible samples of f.
// A negative k yields an empty slice.
func (v View) Tail(f Field, k int) []float64 {
	if k < 0 {
		k = 0
	}
	start := v.n - k
	if start < 0 {
		start = 0
	}
	out := make([]float64, v.n-start)
	if f >= 0 && f < NumFields {
		copy(out, v.series[f][start:v.n])
	}
	return out
}
