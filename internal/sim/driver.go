// Package sim drives an admission-control run: it owns the configuration,
// the signal buffer and the perturbation events, and advances the control
// loop one index per Tick.
//
// The driver defines no scheduling policy. A timer (the TUI tick, a rate
// pacer or a plain loop) calls Tick while the run state is Running.
package sim

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/admitsim/internal/config"
	"github.com/san-kum/admitsim/internal/control"
	"github.com/san-kum/admitsim/internal/perturb"
	"github.com/san-kum/admitsim/internal/rng"
	"github.com/san-kum/admitsim/internal/signal"
	"github.com/san-kum/admitsim/internal/traffic"
)

// Driver is safe for concurrent use. Renderers are called with the driver
// locked and must not call back into it.
type Driver struct {
	mu sync.Mutex

	cfg    *config.Config
	state  RunState
	kt     int
	seed   int64
	buf    *signal.Buffer
	loop   *control.Loop
	engine *perturb.Engine
	last   control.Sample

	renderers []Renderer
}

// NewDriver returns an Idle driver for cfg. The configuration is copied.
func NewDriver(cfg *config.Config, renderers ...Renderer) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, validationError(err)
	}
	cfg = cfg.Clone()
	return &Driver{
		cfg:       cfg,
		state:     Idle,
		buf:       signal.NewBuffer(cfg.Steps),
		renderers: renderers,
	}, nil
}

// AddRenderer registers r for subsequent frames.
func (d *Driver) AddRenderer(r Renderer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderers = append(d.renderers, r)
}

// Configure replaces the configuration. Only allowed while Idle; on any
// error the previous configuration is kept.
func (d *Driver) Configure(cfg *config.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Idle {
		return &InvalidStateError{Op: "configure", State: d.state}
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Warn("configuration rejected")
		return validationError(err)
	}
	d.cfg = cfg.Clone()
	d.buf.Allocate(d.cfg.Steps)
	logrus.WithFields(logrus.Fields{
		"steps": d.cfg.Steps,
		"R":     d.cfg.Reference,
		"Kp":    d.cfg.Controller.Kp,
		"Kd":    d.cfg.Controller.Kd,
	}).Debug("configured")
	return nil
}

// Start allocates the buffer, seeds the reference and traffic series and
// begins the run.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Idle {
		return &InvalidStateError{Op: "start", State: d.state}
	}

	src := rng.New(d.cfg.Traffic.Seed)
	gen, err := traffic.New(d.cfg.Traffic.Mode, d.cfg.BaseTraffic, src.Source(rng.SubsystemTraffic))
	if err != nil {
		return validationError(err)
	}
	engine, err := perturb.NewEngine(d.buf, d.cfg.Perturbation.Overlap, src.Source(rng.SubsystemEMI))
	if err != nil {
		return validationError(err)
	}

	d.buf.Allocate(d.cfg.Steps)
	d.buf.Fill(signal.Reference, d.cfg.Reference)
	incoming := gen.Generate(d.cfg.Steps)
	if err := d.buf.WriteRange(0, signal.Incoming, incoming, false); err != nil {
		logrus.Panicf("seeding traffic: %v", err)
	}

	d.seed = src.Seed()
	d.loop = control.NewLoop(d.cfg)
	d.engine = engine
	d.kt = 0
	d.last = control.Sample{}
	d.state = Running

	fields := logrus.Fields{
		"steps":   d.cfg.Steps,
		"traffic": gen.Mode(),
		"seed":    d.seed,
	}
	for k, v := range d.loop.Params() {
		fields[k] = v
	}
	logrus.WithFields(fields).Info("run started")

	d.notifyLocked(nil)
	return nil
}

// Tick advances the clock by one index if the driver is Running and
// reports whether it did.
func (d *Driver) Tick() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Running {
		return false
	}
	next := d.kt + 1
	if next >= d.cfg.Steps {
		// Only a one-step run is still Running at its last index.
		d.state = Completed
		logrus.WithField("steps", d.cfg.Steps).Info("run completed")
		return false
	}

	s, err := d.loop.Step(d.buf, next)
	if err != nil {
		logrus.Panicf("control step at kt=%d: %v", next, err)
	}
	retired := d.engine.RetireExpired(next)
	d.kt = next
	d.last = s

	for _, ev := range retired {
		logrus.WithFields(logrus.Fields{"id": ev.ID, "kind": ev.Kind, "kt": next}).Debug("perturbation retired")
	}
	if d.kt == d.cfg.Steps-1 {
		d.state = Completed
		logrus.WithField("steps", d.cfg.Steps).Info("run completed")
	}

	d.notifyLocked(retired)
	return true
}

// PauseResume toggles Running and Paused and returns the resulting state.
// Other states are left alone.
func (d *Driver) PauseResume() RunState {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case Running:
		d.state = Paused
	case Paused:
		d.state = Running
	default:
		return d.state
	}
	logrus.WithField("kt", d.kt).Debugf("run %s", d.state)
	return d.state
}

// AddPerturbation injects req starting at the current clock index. Only
// allowed while Running or Paused.
func (d *Driver) AddPerturbation(req perturb.Request) (perturb.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Running && d.state != Paused {
		return perturb.Event{}, &InvalidStateError{Op: "add perturbation", State: d.state}
	}

	ev, err := d.engine.Add(d.kt, req)
	if err != nil {
		var oor *signal.OutOfRangeError
		if errors.As(err, &oor) {
			logrus.Panicf("perturbation write: %v", err)
		}
		logrus.WithError(err).Warn("perturbation rejected")
		return perturb.Event{}, &ValidationError{Field: "perturbation", Reason: err.Error(), Wrapped: err}
	}

	logrus.WithFields(logrus.Fields{
		"id":        ev.ID,
		"kind":      ev.Kind,
		"start":     ev.Start,
		"end":       ev.End,
		"magnitude": ev.Magnitude,
	}).Info("perturbation added")
	return ev, nil
}

// DefaultRequest builds a request for kind from the configured
// perturbation defaults.
func (d *Driver) DefaultRequest(kind perturb.Kind) perturb.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.cfg.Perturbation
	return perturb.Request{
		Kind:      kind,
		Magnitude: p.Magnitude,
		Duration:  p.Duration,
		RampTime:  p.RampTime,
	}
}

// Reset discards all events and samples, reallocates the buffer to the
// configured length and returns to Idle. It is allowed in every state.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.engine != nil {
		d.engine.Clear()
	}
	d.engine = nil
	d.loop = nil
	d.buf.Allocate(d.cfg.Steps)
	d.kt = 0
	d.last = control.Sample{}
	prev := d.state
	d.state = Idle

	logrus.WithField("from", prev).Info("reset")
	for _, r := range d.renderers {
		r.OnReset()
	}
}

func (d *Driver) State() RunState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) Kt() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.kt
}

// Seed is the effective random seed of the current run, or 0 before Start.
func (d *Driver) Seed() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seed
}

// Config returns a copy of the active configuration.
func (d *Driver) Config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Clone()
}

// Frame returns the current prefix without retirement information.
func (d *Driver) Frame() Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameLocked(nil)
}

// Events returns every perturbation of the current run.
func (d *Driver) Events() []perturb.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return nil
	}
	return d.engine.Events()
}

func (d *Driver) frameLocked(retired []perturb.Event) Frame {
	f := Frame{
		Kt:      d.kt,
		Steps:   d.cfg.Steps,
		State:   d.state,
		Sample:  d.last,
		Retired: retired,
	}
	if d.state != Idle {
		f.View = d.buf.View(d.kt + 1)
	}
	if d.engine != nil {
		f.Active = d.engine.Active()
	}
	return f
}

func (d *Driver) notifyLocked(retired []perturb.Event) {
	if len(d.renderers) == 0 {
		return
	}
	f := d.frameLocked(retired)
	for _, r := range d.renderers {
		r.OnFrame(f)
	}
}

func validationError(err error) error {
	var fe *config.FieldError
	if errors.As(err, &fe) {
		return &ValidationError{Field: fe.Field, Reason: fe.Reason, Wrapped: err}
	}
	return &ValidationError{Field: "config", Reason: err.Error(), Wrapped: err}
}
