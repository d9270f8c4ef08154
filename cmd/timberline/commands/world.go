package commands

import (
	"log/slog"

	"github.com/talgya/timberline/internal/agents"
	"github.com/talgya/timberline/internal/config"
	"github.com/talgya/timberline/internal/engine"
	"github.com/talgya/timberline/internal/registry"
	"github.com/talgya/timberline/internal/world"
)

// buildSimulation grows the forest, spawns the crew at the camp and wires
// them to a fresh registry.
func buildSimulation(cfg config.Config) *engine.Simulation {
	trees := world.GenerateForest(cfg.Forest)
	field := world.NewField(trees)
	reg := registry.New(cfg.Agent.Locator.MinClearance)

	spawner := agents.NewSpawner(cfg.Seed)
	crew := spawner.SpawnCrew(cfg.Agents, cfg.Forest.Center, cfg.CampRadius, cfg.Agent)

	sim := engine.NewSimulation(field, reg, crew, cfg.Agent)
	sim.Spawner = spawner
	sim.Workers = cfg.Clock.Workers

	slog.Info("world ready",
		"seed", cfg.Seed,
		"trees", len(trees),
		"agents", len(crew),
		"workers", cfg.Clock.Workers,
	)
	return sim
}

// forestFor returns a generator that regrows the configured forest,
// optionally with a different seed.
func forestFor(cfg world.ForestConfig) func(seed int64) []world.Vec3 {
	return func(seed int64) []world.Vec3 {
		c := cfg
		if seed != 0 {
			c.Seed = seed
		}
		return world.GenerateForest(c)
	}
}
