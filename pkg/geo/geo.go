// Package geo provides the planar geometry primitives used by path capture
// and reconstruction: 3-D vectors, poses, heading extraction, and angle
// normalization. Headings are radians about the vertical axis, 0 aligned
// with world -Z, positive clockwise when viewed from above.
package geo

import (
	"math"
)

// Vec3 represents a point or direction in world space. Y is up.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns the component-wise sum of v and w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{X: v.X + w.X, Y: v.Y + w.Y, Z: v.Z + w.Z}
}

// Sub returns the component-wise difference of v and w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{X: v.X - w.X, Y: v.Y - w.Y, Z: v.Z - w.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Pose is a position plus a forward direction. Only the horizontal-plane
// projection of Forward matters to the path engine.
type Pose struct {
	Position Vec3 `json:"position"`
	Forward  Vec3 `json:"forward"`
}

// PoseAt returns a pose at the given position facing along the given heading.
func PoseAt(position Vec3, heading float64) Pose {
	return Pose{
		Position: position,
		Forward:  HeadingVector(heading),
	}
}

// HeadingVector returns the unit horizontal direction for a heading.
func HeadingVector(heading float64) Vec3 {
	return Vec3{X: math.Sin(heading), Z: -math.Cos(heading)}
}

// PlanarDistance returns the Euclidean distance between a and b ignoring the
// vertical axis.
func PlanarDistance(a, b Vec3) float64 {
	dx := b.X - a.X
	dz := b.Z - a.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// Yaw returns the signed heading of the pose's forward direction projected
// onto the horizontal plane. A pose facing world -Z has yaw 0; rotating
// clockwise (viewed from above) increases the yaw.
func Yaw(p Pose) float64 {
	return math.Atan2(p.Forward.X, -p.Forward.Z)
}

// NormalizeAngle wraps an angle into (-pi, pi] by repeated +-2*pi
// adjustment. The loop form keeps results exact near the boundaries, where a
// remainder-based wrap can land on -pi.
func NormalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// Degrees converts radians to degrees. Presentation-layer use only; all
// stored angles stay in radians.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
