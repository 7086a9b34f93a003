package octree

import (
	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// DefaultVoxelSize is the LOD granularity used when Update receives an unusable voxel size.
	DefaultVoxelSize float32 = 0.05

	// maxFov keeps tan(fov/2) finite and positive.
	maxFov = math32.Pi - 1e-3
)

// Update implements the Octree interface.
//
// A node's projected size is 2*HalfSize / (2*d*tan(fov/2)), where d is the distance from the camera to the nearest
// point of the node cube; a camera inside the cube sees it at infinite size. The node is active when its parent is
// active and its projected size is at least voxelSize. The root is always active, so the active set is a non-empty
// subtree hanging from the root. Degenerate camera input activates the root alone.
func (t *octreeImpl) Update(voxelSize, fov float32, camera mgl32.Vec3) int {
	if !common.Finite(voxelSize) || voxelSize <= 0 {
		voxelSize = DefaultVoxelSize
	}
	s := lodSelector{tree: t, coarsest: !common.Finite(fov) || fov <= 0 || !common.FiniteVec3(camera)}
	if !s.coarsest {
		s.camera = camera
		// visible iff 2h >= voxelSize * d * 2tan(fov/2); kept as a product so d == 0 needs no special case.
		s.scale = voxelSize * 2 * math32.Tan(min(fov, maxFov)/2)
	}
	s.visit(0, true)
	return s.changed
}

// lodSelector carries the state of one Update traversal.
type lodSelector struct {
	tree     *octreeImpl
	camera   mgl32.Vec3
	scale    float32
	coarsest bool
	changed  int
}

func (s *lodSelector) visible(n *Node) bool {
	if n.Parent == NoNode {
		return true
	}
	if s.coarsest {
		return false
	}
	d := n.Bounds().DistanceTo(s.camera)
	return 2*n.HalfSize >= s.scale*d
}

// visit sets the flag of node i and descends in octant order. A node that is and stays inactive is not descended:
// its whole subtree is already inactive.
func (s *lodSelector) visit(i NodeIndex, parentActive bool) {
	n := &s.tree.nodes[i]
	want := parentActive && s.visible(n)
	if s.tree.flags[i] != want {
		s.tree.flags[i] = want
		s.changed++
		if want {
			s.tree.active++
		} else {
			s.tree.active--
		}
	} else if !want {
		return
	}
	if n.IsLeaf() {
		return
	}
	for _, c := range n.Children {
		s.visit(c, want)
	}
}
