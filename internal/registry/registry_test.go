package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/timberline/internal/world"
)

func TestTryClaim_AtMostOneClaimant(t *testing.T) {
	r := New(3)

	assert.True(t, r.TryClaim(7, 1))
	assert.False(t, r.TryClaim(7, 2))
	assert.False(t, r.TryClaim(7, 1))

	owner, ok := r.ClaimOwner(7)
	require.True(t, ok)
	assert.Equal(t, Owner(1), owner)
}

func TestRelease_Idempotent(t *testing.T) {
	r := New(3)
	require.True(t, r.TryClaim(7, 1))
	require.True(t, r.TryClaim(8, 1))

	r.Release(7)
	before := r.Snapshot()
	r.Release(7)
	assert.Equal(t, before, r.Snapshot())
	assert.False(t, r.IsClaimed(7))
	assert.True(t, r.IsClaimed(8))

	// Released nodes can be claimed again.
	assert.True(t, r.TryClaim(7, 2))
}

func TestTryClaim_Concurrent(t *testing.T) {
	r := New(3)
	const agents = 32
	const nodes = 50

	var wins [nodes]atomic.Int32
	var wg sync.WaitGroup
	for a := 0; a < agents; a++ {
		wg.Add(1)
		go func(owner Owner) {
			defer wg.Done()
			for n := 0; n < nodes; n++ {
				if r.TryClaim(world.NodeID(n), owner) {
					wins[n].Add(1)
				}
			}
		}(Owner(a + 1))
	}
	wg.Wait()

	for n := range wins {
		assert.Equal(t, int32(1), wins[n].Load(), "node %d", n)
	}
}

func TestTryReserveSite_EnforcesClearance(t *testing.T) {
	r := New(3)

	assert.True(t, r.TryReserveSite(world.Vec3{}, 1))
	assert.False(t, r.TryReserveSite(world.Vec3{X: 2.9}, 2))
	assert.True(t, r.TryReserveSite(world.Vec3{X: 3}, 2))

	_, sites, _ := r.Counts()
	assert.Equal(t, 2, sites)
}

func TestTryReserveSite_BlockedByStructure(t *testing.T) {
	r := New(3)
	require.True(t, r.TryReserveSite(world.Vec3{}, 1))
	_, ok := r.CompleteSite(world.Vec3{}, 10)
	require.True(t, ok)

	assert.False(t, r.TryReserveSite(world.Vec3{Z: 1}, 2))
}

func TestTryReserveSite_ConcurrentOverlap(t *testing.T) {
	r := New(3)
	const agents = 16

	var wins atomic.Int32
	var wg sync.WaitGroup
	for a := 0; a < agents; a++ {
		wg.Add(1)
		go func(a int) {
			defer wg.Done()
			// All candidates lie within one clearance of each other.
			pos := world.Vec3{X: float64(a) * 0.1}
			if r.TryReserveSite(pos, Owner(a+1)) {
				wins.Add(1)
			}
		}(a)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestCompleteSite(t *testing.T) {
	r := New(3)
	pos := world.Vec3{X: 5}

	_, ok := r.CompleteSite(pos, 1)
	assert.False(t, ok, "completing an unreserved site is a no-op")

	require.True(t, r.TryReserveSite(pos, 4))
	require.True(t, r.BeginConstruction(pos, 4))

	st, ok := r.CompleteSite(pos, 99)
	require.True(t, ok)
	assert.Equal(t, StructureID(1), st.ID)
	assert.Equal(t, Owner(4), st.Owner)
	assert.True(t, st.Completed)
	assert.Equal(t, uint64(99), st.Tick)

	// The reservation is gone, so a follow-up release changes nothing.
	r.ReleaseSite(pos)
	snap := r.Snapshot()
	assert.Empty(t, snap.Sites)
	assert.Len(t, snap.Structures, 1)
}

func TestBeginConstruction_RequiresOwner(t *testing.T) {
	r := New(3)
	pos := world.Vec3{X: 5}
	require.True(t, r.TryReserveSite(pos, 4))

	assert.False(t, r.BeginConstruction(pos, 5))
	assert.False(t, r.BeginConstruction(world.Vec3{}, 4))
	assert.True(t, r.BeginConstruction(pos, 4))
	assert.Equal(t, SiteUnderConstruction, r.Snapshot().Sites[0].Status)
}

func TestReleaseSite_Idempotent(t *testing.T) {
	r := New(3)
	pos := world.Vec3{X: 1}
	require.True(t, r.TryReserveSite(pos, 1))

	r.ReleaseSite(pos)
	r.ReleaseSite(pos)
	_, ok := r.SiteOwner(pos)
	assert.False(t, ok)
	assert.True(t, r.TryReserveSite(pos, 2))
}

func TestReleaseOwner_RollsBackPartialWork(t *testing.T) {
	r := New(3)
	require.True(t, r.TryClaim(1, 1))
	require.True(t, r.TryClaim(2, 2))
	require.True(t, r.TryReserveSite(world.Vec3{}, 1))
	require.True(t, r.TryReserveSite(world.Vec3{X: 10}, 1))
	_, ok := r.CompleteSite(world.Vec3{X: 10}, 5)
	require.True(t, ok)

	assert.Equal(t, 2, r.ReleaseOwner(1))

	claims, sites, structures := r.Counts()
	assert.Equal(t, 1, claims)
	assert.Equal(t, 0, sites)
	assert.Equal(t, 1, structures, "completed structures survive their builder")
}

func TestOccupiedSites_IncludesReservedAndCompleted(t *testing.T) {
	r := New(1)
	require.True(t, r.TryReserveSite(world.Vec3{X: 1}, 1))
	require.True(t, r.TryReserveSite(world.Vec3{X: 5}, 2))
	_, ok := r.CompleteSite(world.Vec3{X: 5}, 1)
	require.True(t, ok)

	assert.ElementsMatch(t, []world.Vec3{{X: 1}, {X: 5}}, r.OccupiedSites())
}

func TestReset(t *testing.T) {
	r := New(3)
	require.True(t, r.TryClaim(1, 1))
	require.True(t, r.TryReserveSite(world.Vec3{}, 1))
	_, ok := r.CompleteSite(world.Vec3{}, 1)
	require.True(t, ok)

	r.Reset()
	claims, sites, structures := r.Counts()
	assert.Zero(t, claims)
	assert.Zero(t, sites)
	assert.Zero(t, structures)

	require.True(t, r.TryReserveSite(world.Vec3{}, 1))
	st, ok := r.CompleteSite(world.Vec3{}, 2)
	require.True(t, ok)
	assert.Equal(t, StructureID(2), st.ID, "structure ids keep counting across a reset")
}

func TestSiteStatusString(t *testing.T) {
	assert.Equal(t, "reserved", SiteReserved.String())
	assert.Equal(t, "completed", SiteCompleted.String())
	assert.Equal(t, "unknown", SiteStatus(9).String())
}
