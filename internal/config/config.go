// Package config loads the simulation's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/timberline/internal/agents"
	"github.com/talgya/timberline/internal/world"
)

// Config is the top-level configuration for a timberline run.
type Config struct {
	Seed   int64 `yaml:"seed"`
	Agents int   `yaml:"agents"` // Crew size at start

	// CampRadius is how far from the forest centre the crew spawns.
	CampRadius float64 `yaml:"camp_radius"`

	Clock   ClockConfig        `yaml:"clock"`
	Forest  world.ForestConfig `yaml:"forest"`
	Agent   agents.Config      `yaml:"agent"`
	Storage StorageConfig      `yaml:"storage"`
	API     APIConfig          `yaml:"api"`
}

// ClockConfig controls the tick loop.
type ClockConfig struct {
	Delta       float64 `yaml:"delta"`        // Sim-seconds per tick
	IntervalMS  int     `yaml:"interval_ms"`  // Wall milliseconds per tick at speed 1
	Speed       float64 `yaml:"speed"`        // Initial speed multiplier (0 = start paused)
	ReportEvery uint64  `yaml:"report_every"` // Ticks between simulation reports
	Workers     int     `yaml:"workers"`      // Agent update workers (1 = sequential)
}

// StorageConfig controls the run journal.
type StorageConfig struct {
	Path            string `yaml:"path"`             // SQLite file; empty disables the journal
	CheckpointEvery uint64 `yaml:"checkpoint_every"` // Ticks between journal checkpoints
}

// APIConfig controls the HTTP observation API.
type APIConfig struct {
	Port    int  `yaml:"port"`
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Seed:       42,
		Agents:     6,
		CampRadius: 1.5,
		Clock: ClockConfig{
			Delta:       0.1,
			IntervalMS:  100,
			Speed:       1,
			ReportEvery: 600,
			Workers:     1,
		},
		Forest: world.DefaultForestConfig(),
		Agent:  agents.DefaultConfig(),
		Storage: StorageConfig{
			Path:            "data/timberline.db",
			CheckpointEvery: 600,
		},
		API: APIConfig{
			Port:    8080,
			Enabled: true,
		},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks all sections.
func (c Config) Validate() error {
	var errs []error
	if c.Agents < 0 {
		errs = append(errs, fmt.Errorf("agents must be >= 0, got %d", c.Agents))
	}
	if c.CampRadius < 0 {
		errs = append(errs, fmt.Errorf("camp_radius must be >= 0, got %g", c.CampRadius))
	}
	if c.Clock.Delta <= 0 {
		errs = append(errs, fmt.Errorf("clock.delta must be > 0, got %g", c.Clock.Delta))
	}
	if c.Clock.IntervalMS < 1 {
		errs = append(errs, fmt.Errorf("clock.interval_ms must be >= 1, got %d", c.Clock.IntervalMS))
	}
	if c.Clock.Speed < 0 {
		errs = append(errs, fmt.Errorf("clock.speed must be >= 0, got %g", c.Clock.Speed))
	}
	if c.Clock.Workers < 1 {
		errs = append(errs, fmt.Errorf("clock.workers must be >= 1, got %d", c.Clock.Workers))
	}
	if c.Forest.Radius <= 0 || c.Forest.Spacing <= 0 {
		errs = append(errs, fmt.Errorf("forest.radius and forest.spacing must be > 0"))
	}
	if err := c.Agent.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("agent: %w", err))
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	return errors.Join(errs...)
}

// YAML renders the configuration as a YAML document.
func (c Config) YAML() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return b, nil
}
