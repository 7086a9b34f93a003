package octree

import (
	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// HitRecord describes where a ray first meets a qualifying leaf.
type HitRecord struct {
	Position mgl32.Vec3 // entry point on the leaf cube, or the ray origin if it starts inside
	Distance float32    // ray parameter of Position, in units of the ray direction
	Node     NodeIndex
	Center   mgl32.Vec3 // center of the hit leaf
	HalfSize float32    // half size of the hit leaf
}

// Raycast implements the Octree interface.
func (t *octreeImpl) Raycast(ray common.Ray, threshold float32) (HitRecord, bool) {
	if !ray.Valid() || math32.IsNaN(threshold) {
		return HitRecord{}, false
	}
	tEnter, _, ok := t.bounds(0).IntersectRay(ray)
	if !ok {
		return HitRecord{}, false
	}
	return t.raycast(0, tEnter, ray, threshold)
}

// raycast descends from node i, which the ray enters at tEnter. Intersected children are visited in order of entry
// distance; the ray spans of disjoint cubes do not overlap, so the first hit found is the nearest.
func (t *octreeImpl) raycast(i NodeIndex, tEnter float32, ray common.Ray, threshold float32) (HitRecord, bool) {
	n := &t.nodes[i]
	if n.IsLeaf() {
		if n.Density < threshold {
			return HitRecord{}, false
		}
		return HitRecord{Position: ray.At(tEnter), Distance: tEnter, Node: i, Center: n.Center, HalfSize: n.HalfSize}, true
	}

	type candidate struct {
		node   NodeIndex
		tEnter float32
	}
	var hits [8]candidate
	count := 0
	for _, c := range n.Children {
		te, _, ok := t.bounds(c).IntersectRay(ray)
		if !ok {
			continue
		}
		// Insertion sort by entry distance.
		j := count
		for j > 0 && hits[j-1].tEnter > te {
			hits[j] = hits[j-1]
			j--
		}
		hits[j] = candidate{node: c, tEnter: te}
		count++
	}

	for _, h := range hits[:count] {
		if rec, ok := t.raycast(h.node, h.tEnter, ray, threshold); ok {
			return rec, true
		}
	}
	return HitRecord{}, false
}

// bounds reads the cube of node i in place.
func (t *octreeImpl) bounds(i NodeIndex) common.AABB {
	n := &t.nodes[i]
	return common.CubeAABB(n.Center, n.HalfSize)
}
