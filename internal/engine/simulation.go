// Simulation ties the resource field, the coordination registry and the crew
// together and advances them each tick.
package engine

import (
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/timberline/internal/agents"
	"github.com/talgya/timberline/internal/registry"
	"github.com/talgya/timberline/internal/world"
)

// Simulation holds the complete world state and wires systems together.
type Simulation struct {
	mu sync.RWMutex

	Field      *world.Field
	Registry   *registry.Registry
	Agents     []*agents.Agent // Update order, stable across ticks
	AgentIndex map[agents.AgentID]*agents.Agent
	LastTick   uint64 // Most recent tick processed
	Delta      float64

	// Agent spawner for crew added at runtime.
	Spawner     *agents.Spawner
	AgentConfig agents.Config

	// Workers > 1 evaluates agents on a worker pool; events are still
	// merged in agent order.
	Workers int

	events eventLog
	Stats  SimStats
}

// NewSimulation creates a Simulation from generated components.
func NewSimulation(field *world.Field, reg *registry.Registry, crew []*agents.Agent, cfg agents.Config) *Simulation {
	index := make(map[agents.AgentID]*agents.Agent, len(crew))
	var maxID agents.AgentID
	for _, a := range crew {
		index[a.ID] = a
		if a.ID > maxID {
			maxID = a.ID
		}
	}

	sim := &Simulation{
		Field:       field,
		Registry:    reg,
		Agents:      crew,
		AgentIndex:  index,
		AgentConfig: cfg,
		Spawner:     agents.NewSpawner(0),
		events:      newEventLog(DefaultEventCapacity),
	}
	sim.Spawner.SetNextID(maxID + 1)
	sim.updateStats()
	return sim
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastTick
}

// TickAgents runs every tick: each live agent advances by dt in order.
func (s *Simulation) TickAgents(tick uint64, dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastTick = tick
	s.Delta = dt
	env := agents.Env{Field: s.Field, Registry: s.Registry, Tick: tick}

	var results [][]agents.Event
	if s.Workers > 1 && len(s.Agents) > 1 {
		results = s.updateParallel(env, dt)
	} else {
		results = make([][]agents.Event, len(s.Agents))
		for i, a := range s.Agents {
			results[i] = a.Update(env, dt)
		}
	}

	for _, evs := range results {
		for _, ev := range evs {
			s.recordAgentEvent(tick, ev)
		}
	}
	s.updateStats()
}

// updateParallel fans agents out over the worker pool. Each worker writes
// only its own agents' result slots.
func (s *Simulation) updateParallel(env agents.Env, dt float64) [][]agents.Event {
	results := make([][]agents.Event, len(s.Agents))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := s.Workers
	if workers > len(s.Agents) {
		workers = len(s.Agents)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.Agents[i].Update(env, dt)
			}
		}()
	}
	for i := range s.Agents {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (s *Simulation) recordAgentEvent(tick uint64, ev agents.Event) {
	e := s.events.push(Event{
		Tick:        tick,
		AgentID:     ev.AgentID,
		Kind:        ev.Kind.String(),
		Category:    categoryOf(ev.Kind),
		Description: ev.Detail,
		Position:    ev.Position,
	})
	switch ev.Kind {
	case agents.EventClaimConflict, agents.EventSiteConflict:
		s.Stats.Conflicts++
	case agents.EventNoSite:
		s.Stats.NoSite++
	case agents.EventTargetLost, agents.EventSiteLost:
		s.Stats.Lost++
	}

	if ev.Err != nil {
		slog.Debug("agent event", "seq", e.Seq, "tick", tick, "agent", ev.AgentID, "kind", e.Kind, "error", ev.Err)
	} else {
		slog.Debug("agent event", "seq", e.Seq, "tick", tick, "agent", ev.AgentID, "kind", e.Kind, "detail", ev.Detail)
	}
}

// recordWorldEvent logs an outside change to the world. Caller holds s.mu.
func (s *Simulation) recordWorldEvent(kind, description string, pos world.Vec3) Event {
	e := s.events.push(Event{
		Tick:        s.LastTick,
		Kind:        kind,
		Category:    "world",
		Description: description,
		Position:    pos,
	})
	slog.Info("world event", "seq", e.Seq, "kind", kind, "description", description)
	return e
}

// Report logs a periodic summary. Wired to the engine's OnReport.
func (s *Simulation) Report(tick uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.Stats
	slog.Info("simulation report",
		"tick", humanize.Comma(int64(tick)),
		"time", SimTime(tick, s.Delta),
		"agents", st.Agents,
		"searching", st.States[agents.StateSearching.String()],
		"chopping", st.States[agents.StateChopping.String()],
		"building", st.States[agents.StateBuilding.String()],
		"idle", st.States[agents.StateIdle.String()],
		"trees", humanize.Comma(int64(st.Trees)),
		"harvested", humanize.Comma(int64(st.Harvested)),
		"inventory", st.Inventory,
		"structures", st.Structures,
		"reserved", st.Sites,
		"conflicts", st.Conflicts,
		"events", humanize.Comma(int64(s.events.lastSeq())),
	)
}

// AddAgent spawns a new agent at pos with the simulation's agent tuning.
func (s *Simulation) AddAgent(pos world.Vec3) agents.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.Spawner.Spawn(pos, s.AgentConfig)
	s.Agents = append(s.Agents, a)
	s.AgentIndex[a.ID] = a
	s.recordWorldEvent("agent_added", a.Name+" joined the crew", pos)
	s.updateStats()
	return a.Snapshot()
}

// DestroyAgent removes an agent, rolling back its claim and any unfinished
// build. Returns false if no such agent exists.
func (s *Simulation) DestroyAgent(id agents.AgentID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.AgentIndex[id]
	if !ok {
		return false
	}
	released := a.Destroy(s.Registry)
	delete(s.AgentIndex, id)
	for i, other := range s.Agents {
		if other == a {
			s.Agents = append(s.Agents[:i], s.Agents[i+1:]...)
			break
		}
	}
	s.recordWorldEvent("agent_removed", a.Name+" left the crew", a.Position)
	slog.Info("agent destroyed", "agent", id, "released", released)
	s.updateStats()
	return true
}

// AddResource plants a new tree.
func (s *Simulation) AddResource(pos world.Vec3) world.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.Field.Add(pos)
	s.recordWorldEvent("tree_added", "a tree grew", pos)
	s.updateStats()
	return id
}

// DestroyResource removes a tree from the field. An agent holding a claim on
// it notices on its next update and goes back to searching.
func (s *Simulation) DestroyResource(id world.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.Field.Get(id)
	if !ok || !s.Field.Remove(id) {
		return false
	}
	s.Registry.Release(id)
	s.recordWorldEvent("tree_removed", "a tree was destroyed", node.Position)
	s.updateStats()
	return true
}

// Reset replaces the forest, clears the registry and returns every agent to
// its spawn point. The event log keeps counting.
func (s *Simulation) Reset(trees []world.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Field.Replace(trees)
	s.Registry.Reset()
	for _, a := range s.Agents {
		a.Reset()
	}
	s.Stats = SimStats{}
	s.recordWorldEvent("reset", "the forest was replanted", world.Vec3{})
	s.updateStats()
}

// WorldSnapshot is a consistent read-only view of the whole simulation.
type WorldSnapshot struct {
	Tick     uint64               `json:"tick"`
	SimTime  string               `json:"sim_time"`
	Agents   []agents.Snapshot    `json:"agents"`
	Registry registry.Snapshot    `json:"registry"`
	Trees    []world.ResourceNode `json:"trees,omitempty"`
	Stats    SimStats             `json:"stats"`
}

// Snapshot copies the current world state. Trees are included on request
// since forests can be large.
func (s *Simulation) Snapshot(withTrees bool) WorldSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := WorldSnapshot{
		Tick:     s.LastTick,
		SimTime:  SimTime(s.LastTick, s.Delta),
		Agents:   s.agentSnapshotsLocked(),
		Registry: s.Registry.Snapshot(),
		Stats:    s.Stats.clone(),
	}
	if withTrees {
		snap.Trees = s.Field.Nodes(s.Registry)
	}
	return snap
}

// AgentSnapshots returns every agent's public state in update order.
func (s *Simulation) AgentSnapshots() []agents.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentSnapshotsLocked()
}

func (s *Simulation) agentSnapshotsLocked() []agents.Snapshot {
	out := make([]agents.Snapshot, len(s.Agents))
	for i, a := range s.Agents {
		out[i] = a.Snapshot()
	}
	return out
}

// AgentSnapshot returns one agent's public state.
func (s *Simulation) AgentSnapshot(id agents.AgentID) (agents.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.AgentIndex[id]
	if !ok {
		return agents.Snapshot{}, false
	}
	return a.Snapshot(), true
}

// EventsSince returns up to limit retained events with Seq > after, oldest
// first. limit <= 0 means no limit.
func (s *Simulation) EventsSince(after uint64, limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events.since(after, limit)
}

// StatsSnapshot returns a copy of the current statistics.
func (s *Simulation) StatsSnapshot() SimStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stats.clone()
}
