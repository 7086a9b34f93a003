// Package octree implements an arena-backed adaptive octree over a density field, together with the per-frame
// LOD selection, ray queries and debug traversal that operate on it.
package octree

import (
	"iter"
	"time"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/Carmen-Shannon/oxy-sky/engine/density"
	"github.com/Carmen-Shannon/oxy-sky/engine/gizmo"
	"github.com/go-gl/mathgl/mgl32"
)

// BuildStats summarizes a finished build.
type BuildStats struct {
	Nodes            int
	Leaves           int
	ReachedDepth     uint32
	NonFiniteSamples int // samples replaced by density.FullyDense
	BudgetLeaves     int // nodes that would have subdivided but hit the node budget
	Elapsed          time.Duration
}

// Octree is a fully built, topologically immutable octree. Only the per-node active flags change after the build,
// and only through Update.
//
// The active flags live apart from the node arena, and Update writes nothing else. Raycast and Gizmos read only
// the arena, so they may run concurrently with each other and with Update. Node, Nodes, ActiveNodes and
// ActiveCount report LOD state and must not overlap with Update.
type Octree interface {
	// Len returns the number of nodes in the arena.
	//
	// Returns:
	//   - int: the node count
	Len() int

	// Root returns the index of the root node. The root is always index 0.
	//
	// Returns:
	//   - NodeIndex: the root index
	Root() NodeIndex

	// Node returns a copy of the node at index i.
	//
	// Parameters:
	//   - i: the node index
	//
	// Returns:
	//   - Node: the node copy
	//   - bool: false if i is out of range
	Node(i NodeIndex) (Node, bool)

	// Nodes returns a restartable sequence over all nodes in arena order.
	//
	// Returns:
	//   - iter.Seq[Node]: node copies
	Nodes() iter.Seq[Node]

	// MaxDepth returns the depth limit used during the build.
	//
	// Returns:
	//   - uint32: the maximum depth
	MaxDepth() uint32

	// HalfSize returns the half extent of the root cube.
	//
	// Returns:
	//   - float32: the root half size
	HalfSize() float32

	// Field returns the density field the tree was built from.
	//
	// Returns:
	//   - density.Field: the source field
	Field() density.Field

	// Stats returns the statistics collected while building.
	//
	// Returns:
	//   - BuildStats: the build statistics
	Stats() BuildStats

	// Update recomputes every node's active flag for the given viewpoint. See lod.go for the metric.
	//
	// Parameters:
	//   - voxelSize: LOD granularity; non-positive or non-finite values fall back to DefaultVoxelSize
	//   - fov: vertical field of view in radians; non-positive or non-finite selects the coarsest LOD
	//   - camera: world-space camera position; non-finite selects the coarsest LOD
	//
	// Returns:
	//   - int: number of nodes whose active flag flipped
	Update(voxelSize, fov float32, camera mgl32.Vec3) int

	// ActiveNodes appends the indices of all active nodes to dst in depth-first octant order.
	//
	// Parameters:
	//   - dst: the slice to append to, may be nil
	//
	// Returns:
	//   - []NodeIndex: dst extended with the active set
	ActiveNodes(dst []NodeIndex) []NodeIndex

	// ActiveCount returns the size of the active set.
	//
	// Returns:
	//   - int: number of active nodes
	ActiveCount() int

	// Raycast returns the nearest leaf along the ray whose density is at least threshold.
	//
	// Parameters:
	//   - ray: the query ray
	//   - threshold: minimum leaf density for a hit
	//
	// Returns:
	//   - HitRecord: the nearest hit
	//   - bool: false if nothing along the ray qualifies or the ray is invalid
	Raycast(ray common.Ray, threshold float32) (HitRecord, bool)

	// Gizmos returns a restartable sequence of wireframe boxes, one per node whose density is at least threshold.
	//
	// Parameters:
	//   - threshold: minimum node density
	//
	// Returns:
	//   - iter.Seq[gizmo.Box]: the boxes in depth-first octant order
	Gizmos(threshold float32) iter.Seq[gizmo.Box]
}

// octreeImpl is the implementation of the Octree interface.
type octreeImpl struct {
	nodes    []Node
	flags    []bool // active flag per node, written only by Update
	maxDepth uint32
	halfSize float32
	field    density.Field
	stats    BuildStats
	active   int
}

var _ Octree = &octreeImpl{}

// Len implements the Octree interface.
func (t *octreeImpl) Len() int {
	return len(t.nodes)
}

// Root implements the Octree interface.
func (t *octreeImpl) Root() NodeIndex {
	return 0
}

// Node implements the Octree interface.
func (t *octreeImpl) Node(i NodeIndex) (Node, bool) {
	if int64(i) >= int64(len(t.nodes)) {
		return Node{}, false
	}
	return t.node(i), true
}

// node copies node i with its current active flag.
func (t *octreeImpl) node(i NodeIndex) Node {
	n := t.nodes[i]
	n.Active = t.flags[i]
	return n
}

// Nodes implements the Octree interface.
func (t *octreeImpl) Nodes() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for i := range t.nodes {
			if !yield(t.node(NodeIndex(i))) {
				return
			}
		}
	}
}

// MaxDepth implements the Octree interface.
func (t *octreeImpl) MaxDepth() uint32 {
	return t.maxDepth
}

// HalfSize implements the Octree interface.
func (t *octreeImpl) HalfSize() float32 {
	return t.halfSize
}

// Field implements the Octree interface.
func (t *octreeImpl) Field() density.Field {
	return t.field
}

// Stats implements the Octree interface.
func (t *octreeImpl) Stats() BuildStats {
	return t.stats
}

// ActiveCount implements the Octree interface.
func (t *octreeImpl) ActiveCount() int {
	return t.active
}

// ActiveNodes implements the Octree interface.
func (t *octreeImpl) ActiveNodes(dst []NodeIndex) []NodeIndex {
	if !t.flags[0] {
		return dst
	}
	return t.appendActive(dst, 0)
}

func (t *octreeImpl) appendActive(dst []NodeIndex, i NodeIndex) []NodeIndex {
	dst = append(dst, i)
	n := &t.nodes[i]
	if n.IsLeaf() {
		return dst
	}
	for _, c := range n.Children {
		// An inactive child has an entirely inactive subtree.
		if t.flags[c] {
			dst = t.appendActive(dst, c)
		}
	}
	return dst
}
