package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/timberline/internal/api"
	"github.com/talgya/timberline/internal/engine"
	"github.com/talgya/timberline/internal/persistence"
)

var (
	runTicks  uint64
	runNoAPI  bool
	runPaused bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation in real time with the HTTP API",
	Long: `Run the simulation at the configured tick rate until interrupted.

The HTTP API serves read-only observation endpoints and a websocket stream.
Admin endpoints (speed, reset, spawning) require TIMBERLINE_ADMIN_KEY, which
may be set in the environment or a local .env file.

Examples:
  # Run with defaults
  timberline run

  # Run a config file for 10,000 ticks, starting paused
  timberline run -c colony.yaml --ticks 10000 --paused`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Uint64Var(&runTicks, "ticks", 0, "Stop after this many ticks (0 = until interrupted)")
	runCmd.Flags().BoolVar(&runNoAPI, "no-api", false, "Do not start the HTTP API")
	runCmd.Flags().BoolVar(&runPaused, "paused", false, "Start with speed 0")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// ── Journal ───────────────────────────────────────────────────────
	var db *persistence.DB
	var runID string
	if cfg.Storage.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create storage dir: %w", err)
		}
		db, err = persistence.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer db.Close()

		doc, err := cfg.YAML()
		if err != nil {
			return err
		}
		runID, err = db.BeginRun(cfg.Seed, string(doc))
		if err != nil {
			return fmt.Errorf("failed to start run: %w", err)
		}
		slog.Info("journal opened", "path", cfg.Storage.Path, "run", runID)
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim := buildSimulation(cfg)

	eng := engine.NewEngine(cfg.Clock.Delta, time.Duration(cfg.Clock.IntervalMS)*time.Millisecond)
	eng.ReportEvery = cfg.Clock.ReportEvery
	speed := cfg.Clock.Speed
	if runPaused {
		speed = 0
	}
	if err := eng.SetSpeed(speed); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.OnTick = func(tick uint64, dt float64) {
		sim.TickAgents(tick, dt)

		if db != nil && cfg.Storage.CheckpointEvery > 0 && tick%cfg.Storage.CheckpointEvery == 0 {
			if _, err := db.SaveCheckpoint(runID, sim); err != nil {
				slog.Error("checkpoint failed", "tick", tick, "error", err)
			}
		}
		if runTicks > 0 && tick >= runTicks {
			stop()
		}
	}
	eng.OnReport = sim.Report

	// ── HTTP API ──────────────────────────────────────────────────────
	var server *api.Server
	if cfg.API.Enabled && !runNoAPI {
		adminKey := os.Getenv("TIMBERLINE_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("TIMBERLINE_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		server = &api.Server{
			Sim:      sim,
			Eng:      eng,
			DB:       db,
			RunID:    runID,
			Port:     cfg.API.Port,
			AdminKey: adminKey,
			Forest:   forestFor(cfg.Forest),
		}
		server.Start()
		fmt.Fprintf(cmd.OutOrStdout(), "API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Starting simulation... (Ctrl+C to stop)")
	eng.Run(ctx)

	// ── Shutdown ──────────────────────────────────────────────────────
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("API shutdown", "error", err)
		}
	}

	if db != nil {
		slog.Info("final checkpoint...")
		if _, err := db.SaveCheckpoint(runID, sim); err != nil {
			slog.Error("final checkpoint failed", "error", err)
		}
		if err := db.EndRun(runID, sim.CurrentTick()); err != nil {
			slog.Error("failed to close run", "error", err)
		}
	}

	st := sim.StatsSnapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "Simulation stopped at tick %d: %d trees felled, %d structures built.\n",
		sim.CurrentTick(), st.Harvested, st.Structures)
	return nil
}
