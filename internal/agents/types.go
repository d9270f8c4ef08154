// Package agents provides the woodcutter agent data model and its
// per-tick state machine.
package agents

import (
	"fmt"

	"github.com/talgya/timberline/internal/registry"
	"github.com/talgya/timberline/internal/world"
)

// AgentID is a unique identifier for an agent.
type AgentID uint64

// State is the agent's current behavior.
type State uint8

const (
	StateSearching          State = iota // Looking for a tree, walking to it
	StateChopping                        // Felling a claimed tree
	StateSelectingBuildSpot              // Running the site locator
	StateMovingToBuildSpot               // Walking to a reserved site
	StateBuilding                        // Raising a structure
	StateIdle                            // Nothing to harvest and not enough wood to build
	numStates
)

var stateNames = [numStates]string{
	StateSearching:          "searching",
	StateChopping:           "chopping",
	StateSelectingBuildSpot: "selecting_build_spot",
	StateMovingToBuildSpot:  "moving_to_build_spot",
	StateBuilding:           "building",
	StateIdle:               "idle",
}

var stateLabels = [numStates]string{
	StateSearching:          "Searching for Trees",
	StateChopping:           "Chopping Trees",
	StateSelectingBuildSpot: "Selecting Build Spot",
	StateMovingToBuildSpot:  "Moving to Build",
	StateBuilding:           "Building",
	StateIdle:               "Idle (No trees)",
}

// States lists every state in declaration order.
func States() []State {
	out := make([]State, numStates)
	for i := range out {
		out[i] = State(i)
	}
	return out
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Label returns display text for overlays.
func (s State) Label() string {
	if s < numStates {
		return stateLabels[s]
	}
	return s.String()
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown agent state %q", b)
}

// Config holds per-agent tuning. Distances are world units, durations and
// rates are sim-seconds.
type Config struct {
	MoveSpeed      float64 `yaml:"move_speed" json:"move_speed"`           // Units per second
	TurnRate       float64 `yaml:"turn_rate" json:"turn_rate"`             // Radians per second (0 = instant)
	HarvestRange   float64 `yaml:"harvest_range" json:"harvest_range"`     // Chop when this close to a tree
	ChopDuration   float64 `yaml:"chop_duration" json:"chop_duration"`     // Seconds to fell one tree
	BuildThreshold int     `yaml:"build_threshold" json:"build_threshold"` // Wood needed before looking for a site
	BuildCost      int     `yaml:"build_cost" json:"build_cost"`           // Wood consumed per structure
	BuildRange     float64 `yaml:"build_range" json:"build_range"`         // Build when this close to the site
	BuildDuration  float64 `yaml:"build_duration" json:"build_duration"`   // Seconds to raise one structure
	IdleRecheck    float64 `yaml:"idle_recheck" json:"idle_recheck"`       // Seconds between idle re-checks (0 = every tick)
	RetryBackoff   float64 `yaml:"retry_backoff" json:"retry_backoff"`     // Seconds before retrying a failed site search (0 = immediate)

	Locator world.LocatorParams `yaml:"locator" json:"locator"`
}

// DefaultConfig returns the standard woodcutter tuning.
func DefaultConfig() Config {
	return Config{
		MoveSpeed:      3,
		TurnRate:       6,
		HarvestRange:   1.5,
		ChopDuration:   5,
		BuildThreshold: 3,
		BuildCost:      3,
		BuildRange:     1.5,
		BuildDuration:  8,
		IdleRecheck:    1,
		RetryBackoff:   2,
		Locator:        world.DefaultLocatorParams(),
	}
}

// Validate checks the configuration for values the state machine cannot run with.
func (c Config) Validate() error {
	if c.MoveSpeed <= 0 {
		return fmt.Errorf("move_speed must be > 0, got %g", c.MoveSpeed)
	}
	if c.TurnRate < 0 {
		return fmt.Errorf("turn_rate must be >= 0, got %g", c.TurnRate)
	}
	if c.HarvestRange <= 0 || c.BuildRange <= 0 {
		return fmt.Errorf("harvest_range and build_range must be > 0")
	}
	if c.ChopDuration < 0 || c.BuildDuration < 0 || c.IdleRecheck < 0 || c.RetryBackoff < 0 {
		return fmt.Errorf("durations must be >= 0")
	}
	if c.BuildThreshold < 1 {
		return fmt.Errorf("build_threshold must be >= 1, got %d", c.BuildThreshold)
	}
	if c.BuildCost < 0 || c.BuildCost > c.BuildThreshold {
		return fmt.Errorf("build_cost must be between 0 and build_threshold (%d), got %d", c.BuildThreshold, c.BuildCost)
	}
	l := c.Locator
	if l.MinClearance <= 0 {
		return fmt.Errorf("locator.min_clearance must be > 0, got %g", l.MinClearance)
	}
	if l.Samples < 1 || l.RadiusStep <= 0 {
		return fmt.Errorf("locator.samples must be >= 1 and locator.radius_step > 0")
	}
	if l.RadiusStart < 0 || l.RadiusMax < l.RadiusStart {
		return fmt.Errorf("locator radius bounds invalid: start %g, max %g", l.RadiusStart, l.RadiusMax)
	}
	return nil
}

// Agent is a woodcutter. Its fields are owned by the agent alone; shared
// state is reached only through the field and registry in Env.
type Agent struct {
	ID   AgentID `json:"id"`
	Name string  `json:"name"`

	Position world.Vec3 `json:"position"`
	Heading  float64    `json:"heading"` // Yaw in radians, clockwise from +Z
	Home     world.Vec3 `json:"home"`    // Spawn position, restored on reset

	State     State `json:"state"`
	Inventory int   `json:"inventory"`

	Target    *world.NodeID `json:"target,omitempty"` // Claimed tree
	targetPos world.Vec3
	Site      *world.Vec3   `json:"site,omitempty"` // Reserved build site

	ChopTimer     float64 `json:"chop_timer"`
	BuildTimer    float64 `json:"build_timer"`
	BuildProgress float64 `json:"build_progress"` // 0.0–1.0 while building
	IdleTimer     float64 `json:"idle_timer"`
	RetryTimer    float64 `json:"retry_timer"` // Seconds until the next site search is allowed

	Harvested int `json:"harvested"`
	Built     int `json:"built"`

	Config Config `json:"-"`
	Alive  bool   `json:"alive"`

	pending []Event
}

// Env is the shared state an agent may touch during its update.
type Env struct {
	Field    *world.Field
	Registry *registry.Registry
	Tick     uint64
}

// Snapshot is the read-only view of an agent for presentation.
type Snapshot struct {
	ID            AgentID       `json:"id"`
	Name          string        `json:"name"`
	Position      world.Vec3    `json:"position"`
	Heading       float64       `json:"heading"`
	State         State         `json:"state"`
	Label         string        `json:"label"`
	Inventory     int           `json:"inventory"`
	BuildProgress float64       `json:"build_progress"`
	Target        *world.NodeID `json:"target,omitempty"`
	Site          *world.Vec3   `json:"site,omitempty"`
	Harvested     int           `json:"harvested"`
	Built         int           `json:"built"`
	Alive         bool          `json:"alive"`
}

// Snapshot returns a copy of the agent's public state.
func (a *Agent) Snapshot() Snapshot {
	s := Snapshot{
		ID:            a.ID,
		Name:          a.Name,
		Position:      a.Position,
		Heading:       a.Heading,
		State:         a.State,
		Label:         a.State.Label(),
		Inventory:     a.Inventory,
		BuildProgress: a.BuildProgress,
		Harvested:     a.Harvested,
		Built:         a.Built,
		Alive:         a.Alive,
	}
	if a.Target != nil {
		t := *a.Target
		s.Target = &t
	}
	if a.Site != nil {
		p := *a.Site
		s.Site = &p
	}
	return s
}

func (a *Agent) owner() registry.Owner {
	return registry.Owner(a.ID)
}
