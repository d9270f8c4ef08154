package engine

import "github.com/talgya/timberline/internal/agents"

// SimStats tracks aggregate world statistics.
type SimStats struct {
	Agents     int            `json:"agents"`
	States     map[string]int `json:"states"` // agent count per state name
	Inventory  int            `json:"inventory"`
	Harvested  int            `json:"harvested"`
	Built      int            `json:"built"`
	Trees      int            `json:"trees"`
	Claims     int            `json:"claims"`
	Sites      int            `json:"sites"`
	Structures int            `json:"structures"`

	// Cumulative since the last reset.
	Conflicts int `json:"conflicts"`
	NoSite    int `json:"no_site"`
	Lost      int `json:"lost"`
}

func (st SimStats) clone() SimStats {
	states := make(map[string]int, len(st.States))
	for k, v := range st.States {
		states[k] = v
	}
	st.States = states
	return st
}

// updateStats recomputes the gauges. Caller holds s.mu.
func (s *Simulation) updateStats() {
	states := make(map[string]int, len(agents.States()))
	for _, st := range agents.States() {
		states[st.String()] = 0
	}

	inventory, harvested, built, alive := 0, 0, 0, 0
	for _, a := range s.Agents {
		if !a.Alive {
			continue
		}
		alive++
		states[a.State.String()]++
		inventory += a.Inventory
		harvested += a.Harvested
		built += a.Built
	}

	s.Stats.Agents = alive
	s.Stats.States = states
	s.Stats.Inventory = inventory
	s.Stats.Harvested = harvested
	s.Stats.Built = built
	s.Stats.Trees = s.Field.Len()
	s.Stats.Claims, s.Stats.Sites, s.Stats.Structures = s.Registry.Counts()
}
