// Woodcutter behavior: a table-driven state machine.
// Every tick an agent runs the handler for its current state once. Handlers
// compute one increment of motion or work and never wait; anything that
// spans ticks lives in the agent's timers and stored targets.
package agents

import (
	"fmt"
	"math"

	"github.com/talgya/timberline/internal/world"
)

// stateHandler pairs a state's per-tick update with the states it may exit to.
type stateHandler struct {
	update func(a *Agent, env Env, dt float64)
	exits  []State
}

var machine [numStates]stateHandler

func init() {
	machine = [numStates]stateHandler{
		StateSearching: {
			update: updateSearching,
			exits:  []State{StateSelectingBuildSpot, StateChopping, StateIdle},
		},
		StateChopping: {
			update: updateChopping,
			exits:  []State{StateSelectingBuildSpot, StateSearching},
		},
		StateSelectingBuildSpot: {
			update: updateSelectingBuildSpot,
			exits:  []State{StateMovingToBuildSpot, StateSearching},
		},
		StateMovingToBuildSpot: {
			update: updateMovingToBuildSpot,
			exits:  []State{StateBuilding, StateSearching},
		},
		StateBuilding: {
			update: updateBuilding,
			exits:  []State{StateSearching},
		},
		StateIdle: {
			update: updateIdle,
			exits:  []State{StateSelectingBuildSpot, StateSearching},
		},
	}
	for s, h := range machine {
		if h.update == nil {
			panic(fmt.Sprintf("agents: no handler for %s", State(s)))
		}
	}
}

// CanTransition reports whether the machine allows from → to.
func CanTransition(from, to State) bool {
	if from >= numStates {
		return false
	}
	for _, s := range machine[from].exits {
		if s == to {
			return true
		}
	}
	return false
}

// Update advances the agent by dt sim-seconds and returns what happened.
func (a *Agent) Update(env Env, dt float64) []Event {
	if !a.Alive {
		return nil
	}
	if a.State >= numStates {
		panic(fmt.Errorf("%w: agent %d in unknown %s", ErrInvalidTransition, a.ID, a.State))
	}
	if a.RetryTimer > 0 {
		a.RetryTimer = math.Max(0, a.RetryTimer-dt)
	}

	machine[a.State].update(a, env, dt)

	events := a.pending
	a.pending = nil
	return events
}

// transition moves the agent to a new state, enforcing the exit table and
// each state's entry requirements.
func (a *Agent) transition(to State) {
	if !CanTransition(a.State, to) {
		panic(fmt.Errorf("%w: agent %d %s → %s", ErrInvalidTransition, a.ID, a.State, to))
	}
	switch to {
	case StateChopping:
		if a.Target == nil {
			panic(fmt.Errorf("%w: agent %d chopping without a target", ErrInvalidTransition, a.ID))
		}
		a.ChopTimer = 0
	case StateSelectingBuildSpot:
		if a.Inventory < a.Config.BuildThreshold {
			panic(fmt.Errorf("%w: agent %d selecting a site with %d wood", ErrInvalidTransition, a.ID, a.Inventory))
		}
	case StateMovingToBuildSpot, StateBuilding:
		if a.Site == nil {
			panic(fmt.Errorf("%w: agent %d %s without a site", ErrInvalidTransition, a.ID, to))
		}
		if to == StateBuilding {
			a.BuildTimer = 0
			a.BuildProgress = 0
		}
	case StateIdle:
		a.IdleTimer = 0
	}
	a.State = to
}

func updateSearching(a *Agent, env Env, dt float64) {
	if a.Inventory >= a.Config.BuildThreshold && a.RetryTimer <= 0 {
		a.dropTarget(env)
		a.transition(StateSelectingBuildSpot)
		return
	}

	if !a.refreshTarget(env) {
		a.dropTarget(env)

		node, ok := env.Field.FindNearestUnclaimed(a.Position, env.Registry)
		if !ok {
			if a.Inventory < a.Config.BuildThreshold {
				a.emit(EventIdle, ErrNoResourceAvailable, "no trees left to harvest")
				a.transition(StateIdle)
			}
			return
		}
		if !env.Registry.TryClaim(node.ID, a.owner()) {
			a.emitNode(EventClaimConflict, ErrClaimConflict, node, "lost tree to another agent")
			return
		}
		id := node.ID
		a.Target = &id
		a.targetPos = node.Position
		a.emitNode(EventClaimed, nil, node, "claimed a tree")
	}

	if a.approach(a.targetPos, a.Config.HarvestRange, dt) {
		a.transition(StateChopping)
	}
}

func updateChopping(a *Agent, env Env, dt float64) {
	if !a.refreshTarget(env) {
		a.emit(EventTargetLost, nil, "tree vanished before it was felled")
		a.dropTarget(env)
		a.transition(StateSearching)
		return
	}

	a.ChopTimer += dt
	if a.ChopTimer < a.Config.ChopDuration {
		return
	}

	id := *a.Target
	node := world.ResourceNode{ID: id, Position: a.targetPos}
	// Remove before releasing so no one can claim a tree that is already down.
	removed := env.Field.Remove(id)
	env.Registry.Release(id)
	a.Target = nil
	if !removed {
		a.emitNode(EventTargetLost, nil, node, "tree vanished before it was felled")
		a.transition(StateSearching)
		return
	}

	a.Inventory++
	a.Harvested++
	a.emitNode(EventHarvested, nil, node, fmt.Sprintf("felled a tree (wood %d)", a.Inventory))

	if a.Inventory >= a.Config.BuildThreshold && a.RetryTimer <= 0 {
		a.transition(StateSelectingBuildSpot)
	} else {
		a.transition(StateSearching)
	}
}

func updateSelectingBuildSpot(a *Agent, env Env, dt float64) {
	pos, ok := world.FindSite(a.Position, env.Registry, env.Field, a.Config.Locator)
	if !ok {
		a.emit(EventNoSite, ErrNoSiteFound, "no clear ground within reach")
		a.backOff()
		a.transition(StateSearching)
		return
	}
	if !env.Registry.TryReserveSite(pos, a.owner()) {
		a.emitAt(EventSiteConflict, ErrClaimConflict, pos, "build site taken by another agent")
		a.backOff()
		a.transition(StateSearching)
		return
	}
	a.Site = &pos
	a.emitAt(EventReserved, nil, pos, "reserved a build site")
	a.transition(StateMovingToBuildSpot)
}

func updateMovingToBuildSpot(a *Agent, env Env, dt float64) {
	if a.Site == nil {
		a.loseSite()
		return
	}
	site := *a.Site
	if world.Distance(a.Position, site) > a.Config.BuildRange {
		if !a.holdsSite(env) {
			a.loseSite()
			return
		}
		if !a.approach(site, a.Config.BuildRange, dt) {
			return
		}
	}
	if h, ok := world.Heading(site.Sub(a.Position)); ok {
		a.Heading = h
	}
	// BeginConstruction rechecks ownership under the registry lock.
	if !env.Registry.BeginConstruction(site, a.owner()) {
		a.loseSite()
		return
	}
	a.emitAt(EventBuildStarted, nil, site, "started building")
	a.transition(StateBuilding)
}

func updateBuilding(a *Agent, env Env, dt float64) {
	if !a.holdsSite(env) {
		a.loseSite()
		return
	}

	a.BuildTimer += dt
	if a.Config.BuildDuration > 0 {
		a.BuildProgress = math.Min(1, a.BuildTimer/a.Config.BuildDuration)
	} else {
		a.BuildProgress = 1
	}
	if a.BuildTimer < a.Config.BuildDuration {
		return
	}

	site := *a.Site
	st, ok := env.Registry.CompleteSite(site, env.Tick)
	env.Registry.ReleaseSite(site)
	a.Site = nil
	a.BuildProgress = 0
	if !ok {
		a.emitAt(EventSiteLost, nil, site, "build site reservation vanished")
		a.transition(StateSearching)
		return
	}

	a.Inventory -= a.Config.BuildCost
	a.Built++
	a.emitAt(EventBuilt, nil, st.Position, fmt.Sprintf("completed structure %d", st.ID))
	a.transition(StateSearching)
}

func updateIdle(a *Agent, env Env, dt float64) {
	a.IdleTimer += dt
	if a.IdleTimer < a.Config.IdleRecheck {
		return
	}
	a.IdleTimer = 0

	if a.Inventory >= a.Config.BuildThreshold {
		a.transition(StateSelectingBuildSpot)
		return
	}
	if env.Field.AnyUnclaimed(env.Registry) {
		a.emit(EventWoke, nil, "trees available again")
		a.transition(StateSearching)
	}
}

// refreshTarget reports whether the claimed tree still exists and is still
// claimed by this agent, updating its cached position.
func (a *Agent) refreshTarget(env Env) bool {
	if a.Target == nil {
		return false
	}
	node, ok := env.Field.Get(*a.Target)
	if !ok {
		return false
	}
	if owner, ok := env.Registry.ClaimOwner(*a.Target); !ok || owner != a.owner() {
		return false
	}
	a.targetPos = node.Position
	return true
}

// dropTarget gives up the current tree, releasing the claim if still held.
func (a *Agent) dropTarget(env Env) {
	if a.Target == nil {
		return
	}
	if owner, ok := env.Registry.ClaimOwner(*a.Target); ok && owner == a.owner() {
		env.Registry.Release(*a.Target)
	}
	a.Target = nil
}

func (a *Agent) holdsSite(env Env) bool {
	if a.Site == nil {
		return false
	}
	owner, ok := env.Registry.SiteOwner(*a.Site)
	return ok && owner == a.owner()
}

func (a *Agent) loseSite() {
	if a.Site != nil {
		a.emitAt(EventSiteLost, nil, *a.Site, "build site reservation vanished")
	}
	a.Site = nil
	a.BuildProgress = 0
	a.transition(StateSearching)
}

func (a *Agent) backOff() {
	a.RetryTimer = a.Config.RetryBackoff
}
