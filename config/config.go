// Package config loads the engine's startup options from a YAML file: a
// plain struct with yaml tags, a Default() fallback, and an explicit Load
// that errors loudly rather than silently running with half a config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/desim/desim/rng"
	"github.com/desim/desim/simtime"
)

// Config carries every option the engine consumes.
type Config struct {
	SimTime struct {
		BaseTimeUnit string `yaml:"BaseTimeUnit"`
	} `yaml:"SimTime"`

	SimRandom struct {
		StreamsPerRun   int `yaml:"StreamsPerRun"`
		MaxReplications int `yaml:"MaxReplications"`
	} `yaml:"SimRandom"`

	DataCollection struct {
		DisableElements []string `yaml:"DisableElements"`
		DisableDatasets []string `yaml:"DisableDatasets"`
	} `yaml:"DataCollection"`

	SimTrace struct {
		Enabled     bool   `yaml:"enabled"`
		MaxEvents   int    `yaml:"MaxEvents"`
		TraceType   string `yaml:"TraceType"`
		Destination string `yaml:"Destination"`
	} `yaml:"SimTrace"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	c := &Config{}
	c.SimTime.BaseTimeUnit = "seconds"
	c.SimRandom.StreamsPerRun = rng.DefaultStreamsPerRun
	c.SimRandom.MaxReplications = rng.DefaultMaxReplications
	c.SimTrace.MaxEvents = 1000
	return c
}

// Load reads and validates a YAML config file, filling unset options from
// Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if _, err := c.BaseUnit(); err != nil {
		return nil, err
	}
	if c.SimRandom.StreamsPerRun <= 0 {
		return nil, fmt.Errorf("config: SimRandom.StreamsPerRun must be > 0")
	}
	if c.SimRandom.MaxReplications <= 0 {
		return nil, fmt.Errorf("config: SimRandom.MaxReplications must be > 0")
	}
	return c, nil
}

// BaseUnit parses SimTime.BaseTimeUnit.
func (c *Config) BaseUnit() (simtime.Unit, error) {
	switch c.SimTime.BaseTimeUnit {
	case "seconds", "":
		return simtime.Seconds, nil
	case "minutes":
		return simtime.Minutes, nil
	case "hours":
		return simtime.Hours, nil
	case "none":
		return simtime.Dimensionless, nil
	default:
		return simtime.Dimensionless, fmt.Errorf(
			"config: unrecognized SimTime.BaseTimeUnit %q", c.SimTime.BaseTimeUnit)
	}
}

// Apply installs the process-wide options: the base time unit. Called once
// at startup, before any model construction.
func (c *Config) Apply() error {
	u, err := c.BaseUnit()
	if err != nil {
		return err
	}
	simtime.SetBaseUnit(u)
	return nil
}
