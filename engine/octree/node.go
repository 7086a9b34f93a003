package octree

import (
	"math"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/go-gl/mathgl/mgl32"
)

// NodeIndex addresses a node inside the tree arena. Indices are assigned once during the build
// and stay valid for the lifetime of the tree.
type NodeIndex uint32

// NoNode marks an absent link: the parent of the root and the children of a leaf.
const NoNode NodeIndex = math.MaxUint32

// noChildren is the child table of a leaf.
var noChildren = [8]NodeIndex{NoNode, NoNode, NoNode, NoNode, NoNode, NoNode, NoNode, NoNode}

// Node is a single cube of the octree. Nodes handed out by an Octree are copies; the arena is never exposed.
// Every field except Active is fixed at build time.
type Node struct {
	Index    NodeIndex
	Parent   NodeIndex
	Children [8]NodeIndex // all NoNode for a leaf, otherwise all valid, in octant order
	Center   mgl32.Vec3
	HalfSize float32
	Depth    uint32
	Density  float32 // mean of the center and corner samples, fixed at build time
	Active   bool    // selected by the last LOD update, filled in when the copy is made
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool {
	return n.Children[0] == NoNode
}

// Bounds returns the axis-aligned cube covered by the node.
func (n Node) Bounds() common.AABB {
	return common.CubeAABB(n.Center, n.HalfSize)
}

// Volume returns the volume of the node cube.
func (n Node) Volume() float32 {
	side := 2 * n.HalfSize
	return side * side * side
}

// OctantOffset returns the unit direction of octant k relative to its parent center.
// Bit 0 of k selects +x, bit 1 selects +y and bit 2 selects +z. The order is fixed for all trees.
//
// Parameters:
//   - k: the octant in [0, 8)
//
// Returns:
//   - mgl32.Vec3: a vector whose components are each -1 or +1
func OctantOffset(k int) mgl32.Vec3 {
	var off mgl32.Vec3
	for axis := range 3 {
		if k&(1<<axis) != 0 {
			off[axis] = 1
		} else {
			off[axis] = -1
		}
	}
	return off
}

// childCenter returns the center of octant k of a parent cube whose children have half size childHalf.
func childCenter(parent mgl32.Vec3, childHalf float32, k int) mgl32.Vec3 {
	return parent.Add(OctantOffset(k).Mul(childHalf))
}
