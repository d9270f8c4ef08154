package persistence

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/timberline/internal/agents"
	"github.com/talgya/timberline/internal/engine"
	"github.com/talgya/timberline/internal/registry"
	"github.com/talgya/timberline/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBeginAndEndRun(t *testing.T) {
	db := openTestDB(t)

	first, err := db.BeginRun(1, "seed: 1\n")
	require.NoError(t, err)
	second, err := db.BeginRun(2, "seed: 2\n")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.NoError(t, db.EndRun(first, 500))

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Nil(t, runs[0].EndedAt)
	assert.Equal(t, first, runs[1].ID)
	assert.NotNil(t, runs[1].EndedAt)
	assert.Equal(t, uint64(500), runs[1].LastTick)
	assert.Equal(t, "seed: 1\n", runs[1].Config)
}

func TestSaveEvents_Idempotent(t *testing.T) {
	db := openTestDB(t)
	run, err := db.BeginRun(1, "")
	require.NoError(t, err)

	events := []engine.Event{
		{Seq: 1, Tick: 3, AgentID: 2, Kind: "claimed", Category: "harvest", Description: "claimed a tree"},
		{Seq: 2, Tick: 4, AgentID: 2, Kind: "harvested", Category: "harvest", Description: "felled a tree"},
	}
	require.NoError(t, db.SaveEvents(run, events))
	require.NoError(t, db.SaveEvents(run, events))

	got, err := db.RecentEvents(run, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Seq)
	assert.Equal(t, "harvested", got[0].Kind)
	assert.Equal(t, agents.AgentID(2), got[0].AgentID)

	other, err := db.BeginRun(2, "")
	require.NoError(t, err)
	got, err = db.RecentEvents(other, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveStructures(t *testing.T) {
	db := openTestDB(t)
	run, err := db.BeginRun(1, "")
	require.NoError(t, err)

	structures := []registry.Structure{
		{ID: 1, Owner: 3, Position: world.Vec3{X: 1, Z: 2}, Completed: true, Tick: 10},
		{ID: 2, Owner: 4, Position: world.Vec3{X: 5, Z: -2}, Completed: true, Tick: 12},
	}
	require.NoError(t, db.SaveStructures(run, structures))
	require.NoError(t, db.SaveStructures(run, structures[:1]))

	rows, err := db.Structures(run)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, StructureRow{ID: 1, Owner: 3, X: 1, Z: 2, Tick: 10}, rows[0])
}

func TestSaveCheckpoint(t *testing.T) {
	db := openTestDB(t)
	run, err := db.BeginRun(42, "")
	require.NoError(t, err)

	cfg := agents.DefaultConfig()
	cfg.ChopDuration = 0.5
	field := world.NewField([]world.Vec3{{X: 1}, {X: -1}})
	reg := registry.New(cfg.Locator.MinClearance)
	crew := agents.NewSpawner(42).SpawnCrew(1, world.Vec3{}, 0, cfg)
	sim := engine.NewSimulation(field, reg, crew, cfg)

	for tick := uint64(1); tick <= 4; tick++ {
		sim.TickAgents(tick, 0.5)
	}

	seq, err := db.SaveCheckpoint(run, sim)
	require.NoError(t, err)
	assert.Greater(t, seq, uint64(0))

	// A second checkpoint with nothing new is harmless.
	seq2, err := db.SaveCheckpoint(run, sim)
	require.NoError(t, err)
	assert.Equal(t, seq, seq2)

	events, err := db.RecentEvents(run, 100)
	require.NoError(t, err)
	assert.Len(t, events, int(seq))

	history, err := db.AgentHistory(run, crew[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, uint64(4), history[0].Tick)
	assert.Equal(t, crew[0].Name, history[0].Name)
	assert.Equal(t, crew[0].Harvested, history[0].Harvested)

	runs, err := db.Runs()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), runs[0].LastTick)
}

func newEmptySim() *engine.Simulation {
	cfg := agents.DefaultConfig()
	return engine.NewSimulation(world.NewField(nil), registry.New(cfg.Locator.MinClearance), nil, cfg)
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

func TestSaveCheckpoint_KeepsStructuresAcrossReset(t *testing.T) {
	db := openTestDB(t)
	run, err := db.BeginRun(1, "")
	require.NoError(t, err)
	sim := newEmptySim()

	require.True(t, sim.Registry.TryReserveSite(world.Vec3{}, 1))
	_, ok := sim.Registry.CompleteSite(world.Vec3{}, 5)
	require.True(t, ok)
	_, err = db.SaveCheckpoint(run, sim)
	require.NoError(t, err)

	sim.Reset(nil)
	require.True(t, sim.Registry.TryReserveSite(world.Vec3{X: 50}, 1))
	_, ok = sim.Registry.CompleteSite(world.Vec3{X: 50}, 9)
	require.True(t, ok)
	_, err = db.SaveCheckpoint(run, sim)
	require.NoError(t, err)

	rows, err := db.Structures(run)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0.0, rows[0].X)
	assert.Equal(t, 50.0, rows[1].X)
}

func TestSaveCheckpoint_ResumesFromPreviousCheckpoint(t *testing.T) {
	db := openTestDB(t)
	run, err := db.BeginRun(1, "")
	require.NoError(t, err)
	sim := newEmptySim()
	logs := captureLogs(t)

	plant := func(n int) {
		for i := 0; i < n; i++ {
			sim.AddResource(world.Vec3{X: float64(i)})
		}
	}

	// More events in total than the ring holds, but never more than the
	// ring between two checkpoints.
	plant(600)
	_, err = db.SaveCheckpoint(run, sim)
	require.NoError(t, err)
	plant(600)
	seq, err := db.SaveCheckpoint(run, sim)
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), seq)
	assert.NotContains(t, logs.String(), "overran")

	events, err := db.RecentEvents(run, 2000)
	require.NoError(t, err)
	assert.Len(t, events, 1200)

	plant(1100)
	_, err = db.SaveCheckpoint(run, sim)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "overran")
	assert.Contains(t, logs.String(), "missing=100")
}

func TestOpen_AppliesPragmas(t *testing.T) {
	db := openTestDB(t)

	var mode string
	require.NoError(t, db.conn.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, db.conn.Get(&timeout, "PRAGMA busy_timeout"))
	assert.Equal(t, 5000, timeout)
}
