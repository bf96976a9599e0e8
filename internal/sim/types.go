package sim

import (
	"github.com/san-kum/admitsim/internal/control"
	"github.com/san-kum/admitsim/internal/perturb"
	"github.com/san-kum/admitsim/internal/signal"
)

// RunState is the driver lifecycle state.
type RunState int

const (
	Idle RunState = iota
	Running
	Paused
	// Completed is entered once the clock reaches the last index. Only
	// Reset leaves it.
	Completed
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Frame is what renderers see after a tick: the written prefix [0..Kt]
// and the overlay bookkeeping. Steps is the full run length.
//
// View shares storage with the driver's buffer and must be treated as
// read-only. It is valid until the next Tick, AddPerturbation or Reset:
// AddPerturbation writes the perturbation series from Kt onward, so a
// retained frame sees the new value at P[Kt]. Sample, Active and Retired
// are copies and never change after delivery.
type Frame struct {
	Kt      int
	Steps   int
	State   RunState
	View    signal.View
	Sample  control.Sample
	Active  []perturb.Event
	Retired []perturb.Event
}

type Renderer interface {
	OnFrame(f Frame)
	OnReset()
}
