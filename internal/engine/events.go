package engine

import (
	"github.com/talgya/timberline/internal/agents"
	"github.com/talgya/timberline/internal/world"
)

// DefaultEventCapacity is how many recent events the simulation retains.
const DefaultEventCapacity = 1000

// Event is a notable occurrence in the world.
type Event struct {
	Seq         uint64         `json:"seq" db:"seq"`
	Tick        uint64         `json:"tick" db:"tick"`
	AgentID     agents.AgentID `json:"agent_id,omitempty" db:"agent_id"`
	Kind        string         `json:"kind" db:"kind"`
	Category    string         `json:"category" db:"category"` // "harvest", "build", "conflict", "idle", "world"
	Description string         `json:"description" db:"description"`
	Position    world.Vec3     `json:"position" db:"-"`
}

func categoryOf(k agents.EventKind) string {
	switch k {
	case agents.EventClaimed, agents.EventHarvested, agents.EventTargetLost:
		return "harvest"
	case agents.EventReserved, agents.EventBuildStarted, agents.EventBuilt, agents.EventSiteLost:
		return "build"
	case agents.EventClaimConflict, agents.EventSiteConflict, agents.EventNoSite:
		return "conflict"
	default:
		return "idle"
	}
}

// eventLog is a fixed-capacity ring of recent events with monotonically
// increasing sequence numbers.
type eventLog struct {
	buf   []Event
	start int // index of the oldest event
	n     int
	seq   uint64
}

func newEventLog(capacity int) eventLog {
	if capacity < 1 {
		capacity = 1
	}
	return eventLog{buf: make([]Event, capacity)}
}

func (l *eventLog) push(e Event) Event {
	l.seq++
	e.Seq = l.seq
	if l.n < len(l.buf) {
		l.buf[(l.start+l.n)%len(l.buf)] = e
		l.n++
	} else {
		l.buf[l.start] = e
		l.start = (l.start + 1) % len(l.buf)
	}
	return e
}

func (l *eventLog) lastSeq() uint64 {
	return l.seq
}

func (l *eventLog) since(after uint64, limit int) []Event {
	var out []Event
	for i := 0; i < l.n; i++ {
		e := l.buf[(l.start+i)%len(l.buf)]
		if e.Seq <= after {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
