package config

import "sort"

func preset(mut func(c *Config)) *Config {
	c := DefaultConfig()
	mut(c)
	return c
}

var Presets = map[string]*Config{
	"default": DefaultConfig(),
	"aggressive": preset(func(c *Config) {
		c.Controller = ControllerConfig{Kp: 1.6, Kd: 0.9}
	}),
	"sluggish": preset(func(c *Config) {
		c.Controller = ControllerConfig{Kp: 0.2, Kd: 0.05}
	}),
	"open_loop": preset(func(c *Config) {
		c.Controller = ControllerConfig{Kp: 0, Kd: 0}
	}),
	"noisy": preset(func(c *Config) {
		c.Traffic = TrafficConfig{Mode: TrafficSmoothed, Seed: 42}
	}),
	"overload": preset(func(c *Config) {
		c.BaseTraffic = 9000
		c.Steps = 400
		c.Perturbation.Overlap = OverlapAccumulate
	}),
}

// GetPreset returns a copy of the named preset or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
