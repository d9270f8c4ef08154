package agents

import "github.com/talgya/timberline/internal/world"

// EventKind enumerates notable things an agent can do or run into.
type EventKind uint8

const (
	EventClaimed       EventKind = iota // Claimed a tree
	EventClaimConflict                  // Lost a tree to another agent
	EventHarvested                      // Felled a tree
	EventTargetLost                     // Claimed tree disappeared
	EventReserved                       // Reserved a build site
	EventNoSite                         // Locator found nothing
	EventSiteConflict                   // Lost a site to another agent
	EventSiteLost                       // Reservation disappeared
	EventBuildStarted                   // Began construction
	EventBuilt                          // Completed a structure
	EventIdle                           // Went idle
	EventWoke                           // Left idle
)

var eventKindNames = [...]string{
	EventClaimed:       "claimed",
	EventClaimConflict: "claim_conflict",
	EventHarvested:     "harvested",
	EventTargetLost:    "target_lost",
	EventReserved:      "reserved",
	EventNoSite:        "no_site",
	EventSiteConflict:  "site_conflict",
	EventSiteLost:      "site_lost",
	EventBuildStarted:  "build_started",
	EventBuilt:         "built",
	EventIdle:          "idle",
	EventWoke:          "woke",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is something an agent did during its update.
type Event struct {
	AgentID  AgentID      `json:"agent_id"`
	Kind     EventKind    `json:"kind"`
	Node     world.NodeID `json:"node,omitempty"`
	Position world.Vec3   `json:"position"`
	Detail   string       `json:"detail"`
	Err      error        `json:"-"` // One of the recoverable sentinel errors, if any
}

func (a *Agent) emit(kind EventKind, err error, detail string) {
	a.pending = append(a.pending, Event{
		AgentID:  a.ID,
		Kind:     kind,
		Position: a.Position,
		Detail:   a.Name + " " + detail,
		Err:      err,
	})
}

func (a *Agent) emitNode(kind EventKind, err error, node world.ResourceNode, detail string) {
	a.pending = append(a.pending, Event{
		AgentID:  a.ID,
		Kind:     kind,
		Node:     node.ID,
		Position: node.Position,
		Detail:   a.Name + " " + detail,
		Err:      err,
	})
}

func (a *Agent) emitAt(kind EventKind, err error, pos world.Vec3, detail string) {
	a.pending = append(a.pending, Event{
		AgentID:  a.ID,
		Kind:     kind,
		Position: pos,
		Detail:   a.Name + " " + detail,
		Err:      err,
	})
}
