package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/timberline/internal/agents"
	"github.com/talgya/timberline/internal/engine"
)

var (
	benchTicks   uint64
	benchWorkers int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the simulation headless as fast as possible and print a summary",
	Long: `Run a fixed number of ticks without the real-time clock, API or journal,
then print throughput and colony statistics.

Examples:
  timberline bench --ticks 50000
  timberline bench --ticks 50000 --workers 8`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().Uint64Var(&benchTicks, "ticks", 10000, "Number of ticks to run")
	benchCmd.Flags().IntVar(&benchWorkers, "workers", 0, "Agent update workers (0 = from config)")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if benchWorkers > 0 {
		cfg.Clock.Workers = benchWorkers
	}

	sim := buildSimulation(cfg)
	eng := engine.NewEngine(cfg.Clock.Delta, 0)
	eng.ReportEvery = cfg.Clock.ReportEvery
	eng.OnTick = sim.TickAgents
	eng.OnReport = sim.Report

	start := time.Now()
	eng.RunFor(benchTicks)
	elapsed := time.Since(start)
	slog.Debug("bench finished", "ticks", benchTicks, "elapsed", elapsed)

	st := sim.StatsSnapshot()
	rate := float64(benchTicks) / elapsed.Seconds()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ticks:       %s in %s (%s ticks/s)\n",
		humanize.Comma(int64(benchTicks)), elapsed.Round(time.Millisecond), humanize.CommafWithDigits(rate, 0))
	fmt.Fprintf(out, "sim time:    %s\n", engine.SimTime(benchTicks, cfg.Clock.Delta))
	fmt.Fprintf(out, "agents:      %d\n", st.Agents)
	for _, s := range agents.States() {
		fmt.Fprintf(out, "  %-22s %d\n", s.Label(), st.States[s.String()])
	}
	fmt.Fprintf(out, "trees left:  %s\n", humanize.Comma(int64(st.Trees)))
	fmt.Fprintf(out, "harvested:   %s\n", humanize.Comma(int64(st.Harvested)))
	fmt.Fprintf(out, "inventory:   %d\n", st.Inventory)
	fmt.Fprintf(out, "structures:  %d\n", st.Structures)
	fmt.Fprintf(out, "conflicts:   %d (no site: %d, lost: %d)\n", st.Conflicts, st.NoSite, st.Lost)
	return nil
}
