// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Ray is a half-line in world space starting at Origin and extending along Dir.
// Dir does not need to be normalized; intersection distances are expressed in units of Dir.
type Ray struct {
	Origin mgl32.Vec3
	Dir    mgl32.Vec3
}

// At returns the point along the ray at parameter t.
//
// Parameters:
//   - t: the ray parameter
//
// Returns:
//   - mgl32.Vec3: Origin + Dir*t
func (r Ray) At(t float32) mgl32.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// Valid reports whether the ray has a finite origin and a finite, non-zero direction.
//
// Returns:
//   - bool: true if the ray can be traced
func (r Ray) Valid() bool {
	if !FiniteVec3(r.Origin) || !FiniteVec3(r.Dir) {
		return false
	}
	return r.Dir.Dot(r.Dir) > 0
}

// AABB is an axis-aligned bounding box described by its min and max corners.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// CubeAABB builds the AABB of a cube with the given center and half extent.
//
// Parameters:
//   - center: the cube center
//   - halfSize: half the cube side length
//
// Returns:
//   - AABB: the cube bounds
func CubeAABB(center mgl32.Vec3, halfSize float32) AABB {
	h := mgl32.Vec3{halfSize, halfSize, halfSize}
	return AABB{Min: center.Sub(h), Max: center.Add(h)}
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Volume returns the box volume, or zero for an inverted box.
func (b AABB) Volume() float32 {
	d := b.Max.Sub(b.Min)
	if d[0] <= 0 || d[1] <= 0 || d[2] <= 0 {
		return 0
	}
	return d[0] * d[1] * d[2]
}

// DistanceTo returns the Euclidean distance from p to the closest point of the box.
// Points inside the box (including its surface) are at distance zero.
//
// Parameters:
//   - p: the query point
//
// Returns:
//   - float32: the distance to the box
func (b AABB) DistanceTo(p mgl32.Vec3) float32 {
	var sq float32
	for i := range 3 {
		if p[i] < b.Min[i] {
			d := b.Min[i] - p[i]
			sq += d * d
		} else if p[i] > b.Max[i] {
			d := p[i] - b.Max[i]
			sq += d * d
		}
	}
	return math32.Sqrt(sq)
}

// IntersectRay performs a slab test of the ray against the box.
// Axis-parallel rays are handled through IEEE infinities from the reciprocal direction.
//
// Parameters:
//   - r: the ray to test
//
// Returns:
//   - tEnter: the entry parameter, clamped to zero when the origin is inside the box
//   - tExit: the exit parameter
//   - hit: true if the ray intersects the box in front of its origin
func (b AABB) IntersectRay(r Ray) (tEnter, tExit float32, hit bool) {
	tEnter = 0
	tExit = math32.Inf(1)
	for i := range 3 {
		inv := 1 / r.Dir[i]
		t1 := (b.Min[i] - r.Origin[i]) * inv
		t2 := (b.Max[i] - r.Origin[i]) * inv
		// 0 * Inf yields NaN when the origin lies on a slab plane of a parallel axis.
		if math32.IsNaN(t1) || math32.IsNaN(t2) {
			if r.Origin[i] < b.Min[i] || r.Origin[i] > b.Max[i] {
				return 0, 0, false
			}
			continue
		}
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tEnter = max(tEnter, t1)
		tExit = min(tExit, t2)
		if tEnter > tExit {
			return 0, 0, false
		}
	}
	return tEnter, tExit, true
}
