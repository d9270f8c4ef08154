// Build-site placement: expanding ring search for a spot that keeps clear
// of trees, finished structures, and sites other agents have reserved.
package world

import "math"

// LocatorParams controls the ring search.
type LocatorParams struct {
	MinClearance  float64 `json:"min_clearance" yaml:"min_clearance"`   // Minimum distance to every obstacle
	RadiusStart   float64 `json:"radius_start" yaml:"radius_start"`     // First ring radius
	RadiusMax     float64 `json:"radius_max" yaml:"radius_max"`         // Give up beyond this radius
	RadiusStep    float64 `json:"radius_step" yaml:"radius_step"`       // Ring spacing
	Samples       int     `json:"samples" yaml:"samples"`               // Candidates on the first ring
	DensifyRadius float64 `json:"densify_radius" yaml:"densify_radius"` // Sample count doubles each time the radius reaches this (which then doubles)
}

// DefaultLocatorParams returns the standard search parameters.
func DefaultLocatorParams() LocatorParams {
	return LocatorParams{
		MinClearance:  3,
		RadiusStart:   3,
		RadiusMax:     30,
		RadiusStep:    1.5,
		Samples:       12,
		DensifyRadius: 9,
	}
}

// SiteSource lists positions that are already built on or reserved.
type SiteSource interface {
	OccupiedSites() []Vec3
}

// ResourceSource lists resource node positions.
type ResourceSource interface {
	Positions() []Vec3
}

// FindSite searches rings around origin for a build position.
// Candidates are tried at ascending angles so an identical obstacle
// snapshot always yields the same answer.
func FindSite(origin Vec3, sites SiteSource, resources ResourceSource, p LocatorParams) (Vec3, bool) {
	var obstacles []Vec3
	if resources != nil {
		obstacles = append(obstacles, resources.Positions()...)
	}
	if sites != nil {
		obstacles = append(obstacles, sites.OccupiedSites()...)
	}
	return FindSiteAmong(origin, obstacles, p)
}

// FindSiteAmong runs the ring search against an explicit obstacle snapshot.
func FindSiteAmong(origin Vec3, obstacles []Vec3, p LocatorParams) (Vec3, bool) {
	if p.Samples <= 0 || p.RadiusStep <= 0 {
		return Vec3{}, false
	}

	samples := p.Samples
	densifyAt := p.DensifyRadius

	for ring := 0; ; ring++ {
		radius := p.RadiusStart + float64(ring)*p.RadiusStep
		if radius > p.RadiusMax {
			break
		}
		for densifyAt > 0 && radius >= densifyAt {
			samples *= 2
			densifyAt *= 2
		}

		for i := 0; i < samples; i++ {
			angle := float64(i) / float64(samples) * 2 * math.Pi
			candidate := Vec3{
				X: origin.X + math.Sin(angle)*radius,
				Y: origin.Y,
				Z: origin.Z + math.Cos(angle)*radius,
			}
			if HasClearance(candidate, obstacles, p.MinClearance) {
				return candidate, true
			}
		}
	}
	return Vec3{}, false
}

// HasClearance reports whether pos is at least minClearance from every
// position in others.
func HasClearance(pos Vec3, others []Vec3, minClearance float64) bool {
	for _, o := range others {
		if Distance(pos, o) < minClearance {
			return false
		}
	}
	return true
}
