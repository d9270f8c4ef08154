package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/timberline/internal/agents"
	"github.com/talgya/timberline/internal/registry"
	"github.com/talgya/timberline/internal/world"
)

func fastConfig() agents.Config {
	cfg := agents.DefaultConfig()
	cfg.ChopDuration = 1
	cfg.BuildDuration = 2
	cfg.RetryBackoff = 0.5
	return cfg
}

func newTestSim(t *testing.T, crew, workers int) *Simulation {
	t.Helper()
	cfg := fastConfig()
	field := world.NewField(world.GenerateForest(world.SmallTestForest()))
	require.Greater(t, field.Len(), 10)
	reg := registry.New(cfg.Locator.MinClearance)
	spawner := agents.NewSpawner(42)
	sim := NewSimulation(field, reg, spawner.SpawnCrew(crew, world.Vec3{}, 1, cfg), cfg)
	sim.Spawner = spawner
	sim.Workers = workers
	return sim
}

func assertClearance(t *testing.T, snap registry.Snapshot, min float64) {
	t.Helper()
	var positions []world.Vec3
	for _, s := range snap.Sites {
		positions = append(positions, s.Position)
	}
	for _, s := range snap.Structures {
		positions = append(positions, s.Position)
	}
	for i := range positions {
		for j := i + 1; j < len(positions); j++ {
			require.GreaterOrEqual(t, world.Distance(positions[i], positions[j]), min,
				"sites %v and %v overlap", positions[i], positions[j])
		}
	}
}

func TestSimulation_ClearanceInvariant(t *testing.T) {
	sim := newTestSim(t, 6, 1)
	min := sim.Registry.MinClearance()

	for tick := uint64(1); tick <= 2000; tick++ {
		sim.TickAgents(tick, 0.5)
		assertClearance(t, sim.Registry.Snapshot(), min)
	}
	assert.Greater(t, sim.StatsSnapshot().Structures, 0)
}

func TestSimulation_ParallelConservation(t *testing.T) {
	sim := newTestSim(t, 16, 8)
	initial := sim.Field.Len()
	cost := sim.AgentConfig.BuildCost

	for tick := uint64(1); tick <= 1500; tick++ {
		sim.TickAgents(tick, 0.5)
	}

	harvested, built, inventory := 0, 0, 0
	for _, a := range sim.Agents {
		harvested += a.Harvested
		built += a.Built
		inventory += a.Inventory
	}
	// No tree is ever felled twice.
	assert.Equal(t, initial-sim.Field.Len(), harvested)
	assert.Equal(t, harvested-cost*built, inventory)
	assertClearance(t, sim.Registry.Snapshot(), sim.Registry.MinClearance())

	// Every claim is held by an agent that is targeting that node.
	for _, c := range sim.Registry.Snapshot().Claims {
		a := sim.AgentIndex[agents.AgentID(c.Owner)]
		require.NotNil(t, a)
		if a.Target != nil {
			assert.Equal(t, c.Node, *a.Target)
		}
	}
}

func TestSimulation_ParallelMatchesEventOrder(t *testing.T) {
	sim := newTestSim(t, 8, 4)
	for tick := uint64(1); tick <= 50; tick++ {
		sim.TickAgents(tick, 0.5)
	}
	events := sim.EventsSince(0, 0)
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Seq+1, events[i].Seq)
		if events[i-1].Tick == events[i].Tick && events[i].AgentID != 0 && events[i-1].AgentID != 0 {
			assert.LessOrEqual(t, events[i-1].AgentID, events[i].AgentID, "events merge in agent order")
		}
	}
}

func TestSimulation_DestroyAgent(t *testing.T) {
	cfg := fastConfig()
	field := world.NewField([]world.Vec3{{X: 1}})
	reg := registry.New(cfg.Locator.MinClearance)
	a := agents.NewSpawner(1).Spawn(world.Vec3{}, cfg)
	sim := NewSimulation(field, reg, []*agents.Agent{a}, cfg)

	sim.TickAgents(1, 0.5)
	require.True(t, reg.IsClaimed(1))

	assert.True(t, sim.DestroyAgent(a.ID))
	assert.False(t, sim.DestroyAgent(a.ID))
	assert.False(t, reg.IsClaimed(1))
	assert.Empty(t, sim.Agents)
	_, ok := sim.AgentSnapshot(a.ID)
	assert.False(t, ok)

	events := sim.EventsSince(0, 0)
	assert.Equal(t, "agent_removed", events[len(events)-1].Kind)
}

func TestSimulation_DestroyResourceMidChop(t *testing.T) {
	cfg := fastConfig()
	field := world.NewField([]world.Vec3{{X: 1}})
	reg := registry.New(cfg.Locator.MinClearance)
	a := agents.NewSpawner(1).Spawn(world.Vec3{}, cfg)
	sim := NewSimulation(field, reg, []*agents.Agent{a}, cfg)

	sim.TickAgents(1, 0.5)
	require.Equal(t, agents.StateChopping, a.State)

	assert.True(t, sim.DestroyResource(1))
	assert.False(t, sim.DestroyResource(1))

	require.NotPanics(t, func() { sim.TickAgents(2, 0.5) })
	assert.Equal(t, agents.StateSearching, a.State)
	assert.Zero(t, a.Inventory)

	sim.TickAgents(3, 0.5)
	assert.Equal(t, agents.StateIdle, a.State)

	id := sim.AddResource(world.Vec3{Z: 4})
	assert.Equal(t, world.NodeID(2), id)
	sim.TickAgents(4, 0.5)
	assert.Equal(t, agents.StateIdle, a.State, "idle re-check interval not yet elapsed")
	sim.TickAgents(5, 0.5)
	assert.Equal(t, agents.StateSearching, a.State)
}

func TestSimulation_AddAgent(t *testing.T) {
	sim := newTestSim(t, 3, 1)
	snap := sim.AddAgent(world.Vec3{X: 2})
	assert.Equal(t, agents.AgentID(4), snap.ID)
	assert.Equal(t, agents.StateSearching, snap.State)
	assert.Equal(t, 4, sim.StatsSnapshot().Agents)
}

func TestSimulation_Reset(t *testing.T) {
	sim := newTestSim(t, 4, 1)
	for tick := uint64(1); tick <= 200; tick++ {
		sim.TickAgents(tick, 0.5)
	}
	require.Greater(t, sim.StatsSnapshot().Harvested, 0)

	trees := []world.Vec3{{X: 5}, {X: -5}}
	sim.Reset(trees)

	st := sim.StatsSnapshot()
	assert.Equal(t, 2, st.Trees)
	assert.Zero(t, st.Harvested)
	assert.Zero(t, st.Claims)
	assert.Zero(t, st.Structures)
	assert.Equal(t, 4, st.States[agents.StateSearching.String()])
	for _, a := range sim.Agents {
		assert.Equal(t, a.Home, a.Position)
	}
}

func TestSimulation_Snapshot(t *testing.T) {
	sim := newTestSim(t, 2, 1)
	sim.TickAgents(1, 0.5)

	snap := sim.Snapshot(true)
	assert.Equal(t, uint64(1), snap.Tick)
	assert.Len(t, snap.Agents, 2)
	assert.Len(t, snap.Trees, sim.Field.Len())
	assert.Equal(t, "0:00:00", snap.SimTime)
	assert.Empty(t, sim.Snapshot(false).Trees)

	// Snapshots are copies.
	snap.Stats.States["searching"] = 99
	assert.NotEqual(t, 99, sim.StatsSnapshot().States["searching"])
}

func TestEventLog_Ring(t *testing.T) {
	l := newEventLog(3)
	for i := 0; i < 5; i++ {
		l.push(Event{Kind: "k"})
	}
	all := l.since(0, 0)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(3), all[0].Seq)
	assert.Equal(t, uint64(5), all[2].Seq)

	assert.Len(t, l.since(4, 0), 1)
	assert.Len(t, l.since(0, 2), 2)
	assert.Empty(t, l.since(5, 0))
}

func TestEngine_StepAndReport(t *testing.T) {
	e := NewEngine(0.5, time.Millisecond)
	e.ReportEvery = 4

	var ticks, reports int
	var lastDT float64
	e.OnTick = func(tick uint64, dt float64) {
		ticks++
		lastDT = dt
	}
	e.OnReport = func(tick uint64) { reports++ }

	e.RunFor(10)
	assert.Equal(t, uint64(10), e.Tick)
	assert.Equal(t, 10, ticks)
	assert.Equal(t, 2, reports)
	assert.Equal(t, 0.5, lastDT)
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e := NewEngine(0.1, time.Millisecond)
	var ticks atomic.Int64
	e.OnTick = func(uint64, float64) { ticks.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 5 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
	assert.False(t, e.Running())
}

func TestEngine_Stop(t *testing.T) {
	e := NewEngine(0.1, time.Millisecond)
	require.NoError(t, e.SetSpeed(0))
	done := make(chan struct{})
	go func() {
		e.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, e.Running, time.Second, time.Millisecond)
	e.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestEngine_SetSpeed(t *testing.T) {
	e := NewEngine(0.1, time.Second)
	assert.Equal(t, 1.0, e.Speed())
	assert.NoError(t, e.SetSpeed(4))
	assert.Equal(t, 4.0, e.Speed())
	assert.Error(t, e.SetSpeed(-1))
	assert.Equal(t, 4.0, e.Speed())
}

func TestSimTime(t *testing.T) {
	assert.Equal(t, "0:00:00", SimTime(0, 0.5))
	assert.Equal(t, "0:01:30", SimTime(180, 0.5))
	assert.Equal(t, "1:00:00", SimTime(36000, 0.1))
}
