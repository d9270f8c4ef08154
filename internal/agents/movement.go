package agents

import "github.com/talgya/timberline/internal/world"

// approach moves the agent one tick's worth straight toward target,
// turning its heading at the configured rate. It reports whether the agent
// is within reach of target after the move.
func (a *Agent) approach(target world.Vec3, reach, dt float64) bool {
	if world.Distance(a.Position, target) <= reach {
		return true
	}

	if h, ok := world.Heading(target.Sub(a.Position)); ok {
		if a.Config.TurnRate <= 0 {
			a.Heading = h
		} else {
			a.Heading = world.TurnToward(a.Heading, h, a.Config.TurnRate*dt)
		}
	}
	a.Position = world.MoveToward(a.Position, target, a.Config.MoveSpeed*dt)

	return world.Distance(a.Position, target) <= reach
}
