// Package world provides the spatial primitives, the shared resource field,
// forest generation, and build-site placement.
// Positions are 3D with Y up; agents travel and search in the XZ plane.
package world

import "math"

// Vec3 is a position or direction in world space.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Len returns the Euclidean length of v.
func (v Vec3) Len() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalized returns v scaled to unit length, or the zero vector.
func (v Vec3) Normalized() Vec3 {
	l := v.Len()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// Distance returns the Euclidean distance between two positions.
func Distance(a, b Vec3) float64 {
	return a.Sub(b).Len()
}

// Heading returns the yaw (radians, clockwise from +Z) that faces along dir.
// The second result is false when dir has no horizontal component.
func Heading(dir Vec3) (float64, bool) {
	if dir.X == 0 && dir.Z == 0 {
		return 0, false
	}
	return math.Atan2(dir.X, dir.Z), true
}

// WrapAngle maps an angle into [-π, π).
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// MoveToward steps from toward to by at most maxStep without overshooting.
func MoveToward(from, to Vec3, maxStep float64) Vec3 {
	delta := to.Sub(from)
	dist := delta.Len()
	if dist <= maxStep || dist == 0 {
		return to
	}
	return from.Add(delta.Scale(maxStep / dist))
}

// TurnToward rotates heading toward target by at most maxTurn radians,
// taking the shorter way around.
func TurnToward(heading, target, maxTurn float64) float64 {
	diff := WrapAngle(target - heading)
	if math.Abs(diff) <= maxTurn {
		return WrapAngle(target)
	}
	if diff < 0 {
		maxTurn = -maxTurn
	}
	return WrapAngle(heading + maxTurn)
}
