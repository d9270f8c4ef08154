package agents

import "github.com/talgya/timberline/internal/registry"

// Destroy removes the agent from play, releasing its claim and any
// reservation. A structure it was still raising is discarded; completed
// structures stay. Returns the number of registry entries released.
func (a *Agent) Destroy(reg *registry.Registry) int {
	a.Alive = false
	a.Target = nil
	a.Site = nil
	a.BuildTimer = 0
	a.BuildProgress = 0
	a.pending = nil
	return reg.ReleaseOwner(a.owner())
}

// Reset returns the agent to its spawn state. Registry entries are not
// touched; callers reset the registry separately.
func (a *Agent) Reset() {
	a.Position = a.Home
	a.Heading = 0
	a.State = StateSearching
	a.Inventory = 0
	a.Target = nil
	a.Site = nil
	a.ChopTimer = 0
	a.BuildTimer = 0
	a.BuildProgress = 0
	a.IdleTimer = 0
	a.RetryTimer = 0
	a.Harvested = 0
	a.Built = 0
	a.Alive = true
	a.pending = nil
}
