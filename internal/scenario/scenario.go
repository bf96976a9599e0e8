// Package scenario scripts perturbations against a running driver and
// drives headless runs, optionally paced in wall-clock time.
package scenario

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/admitsim/internal/perturb"
	"github.com/san-kum/admitsim/internal/sim"
)

// Scenario is a scripted perturbation schedule.
type Scenario struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Events      []Event `yaml:"events"`
}

// Event fires when the clock reaches At. Zero Magnitude, Duration or
// RampTime fall back to the configured perturbation defaults.
type Event struct {
	At        int     `yaml:"at"`
	Kind      string  `yaml:"kind"`
	Magnitude float64 `yaml:"magnitude,omitempty"`
	Duration  int     `yaml:"duration,omitempty"`
	RampTime  int     `yaml:"ramp_time,omitempty"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	sc.sort()
	return &sc, nil
}

func (sc *Scenario) Validate() error {
	for i, ev := range sc.Events {
		if ev.At < 0 {
			return fmt.Errorf("scenario: event %d: at must not be negative", i+1)
		}
		if _, err := perturb.ParseKind(ev.Kind); err != nil {
			return fmt.Errorf("scenario: event %d: %w", i+1, err)
		}
		if ev.Duration < 0 || ev.RampTime < 0 {
			return fmt.Errorf("scenario: event %d: duration and ramp_time must not be negative", i+1)
		}
	}
	return nil
}

func (sc *Scenario) sort() {
	sort.SliceStable(sc.Events, func(i, j int) bool { return sc.Events[i].At < sc.Events[j].At })
}

// Request resolves ev against the driver's perturbation defaults.
func (ev Event) Request(d *sim.Driver) (perturb.Request, error) {
	kind, err := perturb.ParseKind(ev.Kind)
	if err != nil {
		return perturb.Request{}, err
	}
	req := d.DefaultRequest(kind)
	if ev.Magnitude != 0 {
		req.Magnitude = ev.Magnitude
	}
	if ev.Duration != 0 {
		req.Duration = ev.Duration
	}
	if ev.RampTime != 0 {
		req.RampTime = ev.RampTime
	}
	return req, nil
}

// Pacer blocks until the next tick may run. *rate.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NewPacer allows one tick per interval. A non-positive interval yields a
// nil pacer, which means unpaced.
func NewPacer(interval time.Duration) Pacer {
	if interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Run starts d if it is Idle, then ticks it until it stops advancing,
// applying each scenario event once the clock reaches its index. sc and
// pacer may be nil. It returns the events that were injected.
func Run(ctx context.Context, d *sim.Driver, sc *Scenario, pacer Pacer) ([]perturb.Event, error) {
	if d.State() == sim.Idle {
		if err := d.Start(); err != nil {
			return nil, err
		}
	}

	var pending []Event
	if sc != nil {
		pending = sc.Events
	}
	var injected []perturb.Event

	for {
		kt := d.Kt()
		for len(pending) > 0 && pending[0].At <= kt {
			ev := pending[0]
			pending = pending[1:]
			if ev.At < kt {
				logrus.Warnf("scenario event %s at %d skipped, clock already at %d", ev.Kind, ev.At, kt)
				continue
			}
			req, err := ev.Request(d)
			if err != nil {
				return injected, err
			}
			pe, err := d.AddPerturbation(req)
			if err != nil {
				return injected, fmt.Errorf("scenario: event at %d: %w", ev.At, err)
			}
			logrus.Infof("scenario: %s at kt=%d until %d", pe.Label(), pe.Start, pe.End)
			injected = append(injected, pe)
		}

		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				return injected, err
			}
		} else if err := ctx.Err(); err != nil {
			return injected, err
		}

		if !d.Tick() {
			break
		}
	}

	for _, ev := range pending {
		logrus.Warnf("scenario event %s at %d never reached", ev.Kind, ev.At)
	}
	return injected, nil
}

// Drive adapts Run to sim.DriveFunc for ensembles.
func Drive(sc *Scenario, pacer Pacer) sim.DriveFunc {
	return func(ctx context.Context, d *sim.Driver) error {
		_, err := Run(ctx, d, sc, pacer)
		return err
	}
}
