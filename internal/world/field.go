package world

import (
	"fmt"
	"math"
	"sync"
)

// NodeID identifies a harvestable resource node.
type NodeID uint64

// ResourceNode is a single harvestable resource (a tree) in the field.
// Claimed is filled from the claim checker when the node is listed; the
// field itself never stores claim state.
type ResourceNode struct {
	ID       NodeID `json:"id"`
	Position Vec3   `json:"position"`
	Claimed  bool   `json:"claimed"`
}

// ClaimChecker reports whether a node is currently claimed.
// The coordination registry is the only implementation in production.
type ClaimChecker interface {
	IsClaimed(id NodeID) bool
}

// Field holds the process-wide set of resource nodes in insertion order.
// It is safe for concurrent use.
type Field struct {
	mu     sync.RWMutex
	nodes  []ResourceNode
	index  map[NodeID]int
	nextID NodeID
}

// NewField creates a field populated with nodes at the given positions.
func NewField(positions []Vec3) *Field {
	f := &Field{
		index:  make(map[NodeID]int, len(positions)),
		nextID: 1,
	}
	for _, p := range positions {
		f.addLocked(p)
	}
	return f
}

// Add inserts a node and returns its id.
func (f *Field) Add(pos Vec3) NodeID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(pos)
}

func (f *Field) addLocked(pos Vec3) NodeID {
	id := f.nextID
	f.nextID++
	f.index[id] = len(f.nodes)
	f.nodes = append(f.nodes, ResourceNode{ID: id, Position: pos})
	return id
}

// Remove deletes a node. It reports whether the node was present, so
// removing an already-removed node is a harmless no-op.
func (f *Field) Remove(id NodeID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	i, ok := f.index[id]
	if !ok {
		return false
	}
	copy(f.nodes[i:], f.nodes[i+1:])
	f.nodes = f.nodes[:len(f.nodes)-1]
	delete(f.index, id)
	for j := i; j < len(f.nodes); j++ {
		f.index[f.nodes[j].ID] = j
	}
	return true
}

// Get returns the node with the given id.
func (f *Field) Get(id NodeID) (ResourceNode, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	i, ok := f.index[id]
	if !ok {
		return ResourceNode{}, false
	}
	return f.nodes[i], true
}

// Has reports whether the node still exists.
func (f *Field) Has(id NodeID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.index[id]
	return ok
}

// FindNearestUnclaimed returns the unclaimed node closest to from.
// Ties go to the node inserted first.
func (f *Field) FindNearestUnclaimed(from Vec3, claims ClaimChecker) (ResourceNode, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	best := -1
	bestDist := math.Inf(1)
	for i, n := range f.nodes {
		if claims != nil && claims.IsClaimed(n.ID) {
			continue
		}
		if d := Distance(from, n.Position); d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 {
		return ResourceNode{}, false
	}
	return f.nodes[best], true
}

// AnyUnclaimed reports whether at least one node is unclaimed.
func (f *Field) AnyUnclaimed(claims ClaimChecker) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, n := range f.nodes {
		if claims == nil || !claims.IsClaimed(n.ID) {
			return true
		}
	}
	return false
}

// Positions returns the positions of every node, in insertion order.
func (f *Field) Positions() []Vec3 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Vec3, len(f.nodes))
	for i, n := range f.nodes {
		out[i] = n.Position
	}
	return out
}

// Nodes returns a copy of every node with Claimed resolved against claims.
func (f *Field) Nodes(claims ClaimChecker) []ResourceNode {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]ResourceNode, len(f.nodes))
	copy(out, f.nodes)
	if claims != nil {
		for i := range out {
			out[i].Claimed = claims.IsClaimed(out[i].ID)
		}
	}
	return out
}

// Replace discards every node and repopulates the field. Ids keep
// increasing so stale references never match a new node.
func (f *Field) Replace(positions []Vec3) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = f.nodes[:0]
	f.index = make(map[NodeID]int, len(positions))
	for _, p := range positions {
		f.addLocked(p)
	}
}

// Len returns the number of nodes remaining.
func (f *Field) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.nodes)
}

// String returns a summary of the field.
func (f *Field) String() string {
	return fmt.Sprintf("Field(nodes=%d)", f.Len())
}
