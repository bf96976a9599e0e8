package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultReference       = 5000.0
	DefaultKp              = 0.7
	DefaultKd              = 0.4
	DefaultA               = 0.88
	DefaultB               = 0.12
	DefaultD               = 0.15
	DefaultSteps           = 300
	DefaultBaseTraffic     = 4500.0
	DefaultSaturationScale = 2000.0
	DefaultTickInterval    = 80 * time.Millisecond

	DefaultPerturbDuration  = 20
	DefaultPerturbMagnitude = 8000.0
	DefaultRampTime         = 10
)

// Traffic modes.
const (
	TrafficConstant = "constant"
	TrafficSmoothed = "smoothed"
)

// Overlap policies for perturbation windows that intersect.
const (
	OverlapOverwrite  = "overwrite"
	OverlapAccumulate = "accumulate"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// FieldError names the offending field of a rejected configuration.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalid }

type Config struct {
	Reference       float64          `yaml:"reference"`
	Steps           int              `yaml:"steps"`
	BaseTraffic     float64          `yaml:"base_traffic"`
	SaturationScale float64          `yaml:"saturation_scale"`
	Controller      ControllerConfig `yaml:"controller"`
	Plant           PlantConfig      `yaml:"plant"`
	Traffic         TrafficConfig    `yaml:"traffic"`
	Perturbation    PerturbConfig    `yaml:"perturbation"`
	TickInterval    time.Duration    `yaml:"tick_interval"`
}

type ControllerConfig struct {
	Kp float64 `yaml:"kp"`
	Kd float64 `yaml:"kd"`
}

// PlantConfig holds the first-order plant coefficients:
// Y[k] = A*Y[k-1] + B*I_processed[k] + D*P[k].
type PlantConfig struct {
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
	D float64 `yaml:"d"`
}

type TrafficConfig struct {
	Mode string `yaml:"mode"`
	Seed int64  `yaml:"seed"`
}

type PerturbConfig struct {
	Overlap   string  `yaml:"overlap"`
	Duration  int     `yaml:"duration"`
	Magnitude float64 `yaml:"magnitude"`
	RampTime  int     `yaml:"ramp_time"`
}

func DefaultConfig() *Config {
	return &Config{
		Reference:       DefaultReference,
		Steps:           DefaultSteps,
		BaseTraffic:     DefaultBaseTraffic,
		SaturationScale: DefaultSaturationScale,
		Controller: ControllerConfig{
			Kp: DefaultKp,
			Kd: DefaultKd,
		},
		Plant: PlantConfig{
			A: DefaultA,
			B: DefaultB,
			D: DefaultD,
		},
		Traffic: TrafficConfig{
			Mode: TrafficConstant,
		},
		Perturbation: PerturbConfig{
			Overlap:   OverlapOverwrite,
			Duration:  DefaultPerturbDuration,
			Magnitude: DefaultPerturbMagnitude,
			RampTime:  DefaultRampTime,
		},
		TickInterval: DefaultTickInterval,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns an independent copy; Config has no reference fields so a
// value copy suffices.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Validate checks every numeric field for domain errors. The first
// offending field is reported as a *FieldError.
func (c *Config) Validate() error {
	finite := []struct {
		name string
		v    float64
	}{
		{"reference", c.Reference},
		{"base_traffic", c.BaseTraffic},
		{"saturation_scale", c.SaturationScale},
		{"controller.kp", c.Controller.Kp},
		{"controller.kd", c.Controller.Kd},
		{"plant.a", c.Plant.A},
		{"plant.b", c.Plant.B},
		{"plant.d", c.Plant.D},
		{"perturbation.magnitude", c.Perturbation.Magnitude},
	}
	for _, f := range finite {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &FieldError{Field: f.name, Reason: "must be a finite number"}
		}
	}

	if c.Steps < 1 {
		return &FieldError{Field: "steps", Reason: fmt.Sprintf("must be at least 1, got %d", c.Steps)}
	}
	if c.BaseTraffic < 0 {
		return &FieldError{Field: "base_traffic", Reason: "must not be negative"}
	}
	if c.SaturationScale <= 0 {
		return &FieldError{Field: "saturation_scale", Reason: "must be positive"}
	}

	switch c.Traffic.Mode {
	case TrafficConstant, TrafficSmoothed:
	default:
		return &FieldError{Field: "traffic.mode", Reason: fmt.Sprintf("unknown mode %q", c.Traffic.Mode)}
	}
	switch c.Perturbation.Overlap {
	case OverlapOverwrite, OverlapAccumulate:
	default:
		return &FieldError{Field: "perturbation.overlap", Reason: fmt.Sprintf("unknown policy %q", c.Perturbation.Overlap)}
	}

	if c.Perturbation.Duration < 1 {
		return &FieldError{Field: "perturbation.duration", Reason: "must be at least 1"}
	}
	if c.Perturbation.RampTime < 1 {
		return &FieldError{Field: "perturbation.ramp_time", Reason: "must be at least 1"}
	}
	if c.TickInterval <= 0 {
		return &FieldError{Field: "tick_interval", Reason: "must be positive"}
	}
	return nil
}

// Params exposes the tunable scalar fields by name for live editing.
func (c *Config) Params() map[string]float64 {
	return map[string]float64{
		"R":     c.Reference,
		"Kp":    c.Controller.Kp,
		"Kd":    c.Controller.Kd,
		"a":     c.Plant.A,
		"b":     c.Plant.B,
		"d":     c.Plant.D,
		"steps": float64(c.Steps),
		"I":     c.BaseTraffic,
		"S":     c.SaturationScale,
	}
}

// ParamNames lists Params keys in display order.
func ParamNames() []string {
	return []string{"R", "steps", "Kp", "Kd", "I", "a", "b", "d", "S"}
}

// SetParam adjusts a single named field. It does not validate.
func (c *Config) SetParam(name string, value float64) error {
	switch name {
	case "R":
		c.Reference = value
	case "Kp":
		c.Controller.Kp = value
	case "Kd":
		c.Controller.Kd = value
	case "a":
		c.Plant.A = value
	case "b":
		c.Plant.B = value
	case "d":
		c.Plant.D = value
	case "steps":
		c.Steps = int(math.Round(value))
	case "I":
		c.BaseTraffic = value
	case "S":
		c.SaturationScale = value
	default:
		return &FieldError{Field: name, Reason: "unknown parameter"}
	}
	return nil
}
