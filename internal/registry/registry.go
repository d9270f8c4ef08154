// Package registry provides the coordination registry: the single source of
// truth for resource claims, build-site reservations, and completed
// structures. Every mutation is one indivisible step under a single mutex,
// so two agents racing for the same tree or overlapping sites can never
// both win.
package registry

import (
	"sync"

	"github.com/talgya/timberline/internal/world"
)

// Owner identifies the agent holding a claim or reservation.
type Owner uint64

// StructureID identifies a completed structure.
type StructureID uint64

// SiteStatus is the lifecycle stage of a build site.
type SiteStatus uint8

const (
	SiteReserved SiteStatus = iota
	SiteUnderConstruction
	SiteCompleted
)

var siteStatusNames = [...]string{"reserved", "under_construction", "completed"}

func (s SiteStatus) String() string {
	if int(s) < len(siteStatusNames) {
		return siteStatusNames[s]
	}
	return "unknown"
}

// BuildSite is a reserved position that has not been completed yet.
type BuildSite struct {
	Position world.Vec3 `json:"position"`
	Status   SiteStatus `json:"status"`
	Owner    Owner      `json:"owner"`
}

// Structure is a completed build. Immutable once recorded.
type Structure struct {
	ID        StructureID `json:"id"`
	Position  world.Vec3  `json:"position"`
	Owner     Owner       `json:"owner"`
	Completed bool        `json:"completed"`
	Tick      uint64      `json:"tick"`
}

// Claim is a resource node currently being harvested.
type Claim struct {
	Node  world.NodeID `json:"node"`
	Owner Owner        `json:"owner"`
}

// Snapshot is a read-only copy of registry state for observers.
type Snapshot struct {
	Claims     []Claim     `json:"claims"`
	Sites      []BuildSite `json:"sites"`
	Structures []Structure `json:"structures"`
}

// Registry tracks claims, reservations, and completed structures.
// It is safe for concurrent use.
type Registry struct {
	mu           sync.Mutex
	minClearance float64

	claims     map[world.NodeID]Owner
	claimOrder []world.NodeID // insertion order, for stable snapshots
	sites      []BuildSite    // reserved or under construction, reservation order
	structures []Structure    // completion order

	nextStructure StructureID
}

// New creates an empty registry enforcing the given site clearance.
func New(minClearance float64) *Registry {
	return &Registry{
		minClearance:  minClearance,
		claims:        make(map[world.NodeID]Owner),
		nextStructure: 1,
	}
}

// MinClearance returns the clearance enforced between sites.
func (r *Registry) MinClearance() float64 {
	return r.minClearance
}

// TryClaim registers owner's claim on node. It fails without changing
// anything if the node is already claimed, by anyone.
func (r *Registry) TryClaim(node world.NodeID, owner Owner) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.claims[node]; taken {
		return false
	}
	r.claims[node] = owner
	r.claimOrder = append(r.claimOrder, node)
	return true
}

// Release drops the claim on node. Releasing an unclaimed node is a no-op.
func (r *Registry) Release(node world.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(node)
}

func (r *Registry) releaseLocked(node world.NodeID) {
	if _, ok := r.claims[node]; !ok {
		return
	}
	delete(r.claims, node)
	for i, id := range r.claimOrder {
		if id == node {
			r.claimOrder = append(r.claimOrder[:i], r.claimOrder[i+1:]...)
			break
		}
	}
}

// IsClaimed reports whether node is claimed. Implements world.ClaimChecker.
func (r *Registry) IsClaimed(node world.NodeID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.claims[node]
	return ok
}

// ClaimOwner returns the owner of the claim on node.
func (r *Registry) ClaimOwner(node world.NodeID) (Owner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.claims[node]
	return o, ok
}

// TryReserveSite reserves pos for owner. It fails without changing anything
// if pos is closer than the minimum clearance to any reserved site or
// completed structure.
func (r *Registry) TryReserveSite(pos world.Vec3, owner Owner) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sites {
		if world.Distance(pos, s.Position) < r.minClearance {
			return false
		}
	}
	for _, s := range r.structures {
		if world.Distance(pos, s.Position) < r.minClearance {
			return false
		}
	}
	r.sites = append(r.sites, BuildSite{Position: pos, Status: SiteReserved, Owner: owner})
	return true
}

// BeginConstruction moves owner's reservation at pos to under construction.
func (r *Registry) BeginConstruction(pos world.Vec3, owner Owner) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.siteIndexLocked(pos)
	if i < 0 || r.sites[i].Owner != owner {
		return false
	}
	r.sites[i].Status = SiteUnderConstruction
	return true
}

// ReleaseSite drops the reservation at pos. Releasing an unreserved
// position is a no-op.
func (r *Registry) ReleaseSite(pos world.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.siteIndexLocked(pos); i >= 0 {
		r.sites = append(r.sites[:i], r.sites[i+1:]...)
	}
}

// CompleteSite turns the reservation at pos into a completed structure.
// It returns false if pos is not reserved.
func (r *Registry) CompleteSite(pos world.Vec3, tick uint64) (Structure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.siteIndexLocked(pos)
	if i < 0 {
		return Structure{}, false
	}
	site := r.sites[i]
	r.sites = append(r.sites[:i], r.sites[i+1:]...)

	st := Structure{
		ID:        r.nextStructure,
		Position:  site.Position,
		Owner:     site.Owner,
		Completed: true,
		Tick:      tick,
	}
	r.nextStructure++
	r.structures = append(r.structures, st)
	return st, true
}

// SiteOwner returns the owner of the reservation at pos.
func (r *Registry) SiteOwner(pos world.Vec3) (Owner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.siteIndexLocked(pos); i >= 0 {
		return r.sites[i].Owner, true
	}
	return 0, false
}

func (r *Registry) siteIndexLocked(pos world.Vec3) int {
	for i, s := range r.sites {
		if s.Position == pos {
			return i
		}
	}
	return -1
}

// ReleaseOwner drops every claim and uncompleted reservation held by owner.
// Completed structures are untouched. It returns the number of entries
// released.
func (r *Registry) ReleaseOwner(owner Owner) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	released := 0
	for _, node := range append([]world.NodeID(nil), r.claimOrder...) {
		if r.claims[node] == owner {
			r.releaseLocked(node)
			released++
		}
	}
	kept := r.sites[:0]
	for _, s := range r.sites {
		if s.Owner == owner {
			released++
			continue
		}
		kept = append(kept, s)
	}
	r.sites = kept
	return released
}

// OccupiedSites returns reserved and completed positions.
// Implements world.SiteSource.
func (r *Registry) OccupiedSites() []world.Vec3 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]world.Vec3, 0, len(r.sites)+len(r.structures))
	for _, s := range r.sites {
		out = append(out, s.Position)
	}
	for _, s := range r.structures {
		out = append(out, s.Position)
	}
	return out
}

// Structures returns completed structures in completion order.
func (r *Registry) Structures() []Structure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Structure(nil), r.structures...)
}

// Snapshot returns a copy of the registry state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Claims:     make([]Claim, 0, len(r.claimOrder)),
		Sites:      append([]BuildSite{}, r.sites...),
		Structures: append([]Structure{}, r.structures...),
	}
	for _, node := range r.claimOrder {
		snap.Claims = append(snap.Claims, Claim{Node: node, Owner: r.claims[node]})
	}
	return snap
}

// Counts returns the number of claims, reserved sites, and structures.
func (r *Registry) Counts() (claims, sites, structures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claims), len(r.sites), len(r.structures)
}

// Reset clears the registry entirely. Structure ids keep increasing so
// structures from before the reset are never confused with new ones.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims = make(map[world.NodeID]Owner)
	r.claimOrder = nil
	r.sites = nil
	r.structures = nil
}
