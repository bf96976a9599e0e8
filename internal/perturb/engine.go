// Package perturb injects disturbance waveforms into the perturbation
// series of a signal buffer and tracks the lifecycle of each injection.
//
// Waveforms are written in full at the moment an event is added; the
// event's Active flag only tells renderers whether its overlay should
// still be drawn.
package perturb

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/admitsim/internal/config"
	"github.com/san-kum/admitsim/internal/signal"
)

// ErrInvalid is wrapped by every rejected request.
var ErrInvalid = errors.New("perturb: invalid request")

// Request describes a disturbance to inject at the current clock index.
// Duration applies to Step, RFI and EMI; Drift spans 3*RampTime.
type Request struct {
	Kind      Kind
	Magnitude float64
	Duration  int
	RampTime  int
}

type Event struct {
	ID        int
	Kind      Kind
	Start     int
	End       int
	Magnitude float64
	Active    bool
}

// Label is the overlay caption, e.g. "Step 8000".
func (e Event) Label() string {
	return fmt.Sprintf("%s %g", e.Kind.Label(), e.Magnitude)
}

// Len is the number of samples covered by the event.
func (e Event) Len() int { return e.End - e.Start }

type Engine struct {
	buf        *signal.Buffer
	accumulate bool
	noise      distuv.Normal
	events     []Event
	nextID     int
}

// NewEngine binds an engine to buf. overlap selects how intersecting
// windows combine (config.OverlapOverwrite or config.OverlapAccumulate).
// src feeds the EMI noise.
func NewEngine(buf *signal.Buffer, overlap string, src rand.Source) (*Engine, error) {
	switch overlap {
	case config.OverlapOverwrite, config.OverlapAccumulate:
	default:
		return nil, fmt.Errorf("perturb: unknown overlap policy %q", overlap)
	}
	return &Engine{
		buf:        buf,
		accumulate: overlap == config.OverlapAccumulate,
		noise:      distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		nextID:     1,
	}, nil
}

// Add computes the waveform for req, writes it into the perturbation series
// over [start, end) and registers an active event. end is clamped to the
// buffer length.
func (e *Engine) Add(start int, req Request) (Event, error) {
	steps := e.buf.Len()
	if start < 0 || start >= steps {
		return Event{}, fmt.Errorf("%w: start %d outside [0, %d)", ErrInvalid, start, steps)
	}
	if math.IsNaN(req.Magnitude) || math.IsInf(req.Magnitude, 0) {
		return Event{}, fmt.Errorf("%w: magnitude must be finite", ErrInvalid)
	}

	// Clamp before adding: Duration may be as large as math.MaxInt.
	left := steps - start
	span := req.Duration
	if req.Kind == Drift {
		if req.RampTime < 1 {
			return Event{}, fmt.Errorf("%w: ramp time must be at least 1, got %d", ErrInvalid, req.RampTime)
		}
		if req.RampTime > left {
			return Event{}, fmt.Errorf("%w: ramp time %d exceeds the %d samples left", ErrInvalid, req.RampTime, left)
		}
		span = 3 * req.RampTime
	} else if req.Duration < 1 {
		return Event{}, fmt.Errorf("%w: duration must be at least 1, got %d", ErrInvalid, req.Duration)
	}
	n := min(span, left)
	end := start + n

	var wave []float64
	switch req.Kind {
	case Step:
		wave = stepWave(n, req.Magnitude)
	case Drift:
		if n < 2*req.RampTime {
			return Event{}, fmt.Errorf("%w: drift needs %d samples before the end of the run, only %d left",
				ErrInvalid, 2*req.RampTime, n)
		}
		wave = driftWave(n, req.RampTime, req.Magnitude)
	case RFI:
		wave = rfiWave(n, req.Magnitude)
	case EMI:
		wave = emiWave(n, req.Magnitude, e.noise)
	default:
		return Event{}, fmt.Errorf("%w: unknown kind %d", ErrInvalid, int(req.Kind))
	}

	if err := e.buf.WriteRange(start, signal.Perturbation, wave, e.accumulate); err != nil {
		return Event{}, err
	}

	ev := Event{
		ID:        e.nextID,
		Kind:      req.Kind,
		Start:     start,
		End:       end,
		Magnitude: req.Magnitude,
		Active:    true,
	}
	e.nextID++
	e.events = append(e.events, ev)
	return ev, nil
}

// RetireExpired deactivates every active event whose end lies before kt
// and returns the events that changed.
func (e *Engine) RetireExpired(kt int) []Event {
	var retired []Event
	for i := range e.events {
		ev := &e.events[i]
		if ev.Active && kt > ev.End {
			ev.Active = false
			retired = append(retired, *ev)
		}
	}
	return retired
}

// Events returns a copy of every registered event.
func (e *Engine) Events() []Event {
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// Active returns a copy of the events still flagged active.
func (e *Engine) Active() []Event {
	var out []Event
	for _, ev := range e.events {
		if ev.Active {
			out = append(out, ev)
		}
	}
	return out
}

// Clear drops every event. It does not touch the buffer.
func (e *Engine) Clear() {
	e.events = nil
}
