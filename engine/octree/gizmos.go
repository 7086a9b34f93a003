package octree

import (
	"iter"

	"github.com/Carmen-Shannon/oxy-sky/engine/gizmo"
)

// Gizmos implements the Octree interface. The traversal reads only build-time data, so it does not depend on
// the current LOD state.
func (t *octreeImpl) Gizmos(threshold float32) iter.Seq[gizmo.Box] {
	return func(yield func(gizmo.Box) bool) {
		t.gizmos(0, threshold, yield)
	}
}

// gizmos walks the subtree of i and reports false once yield asks to stop.
func (t *octreeImpl) gizmos(i NodeIndex, threshold float32, yield func(gizmo.Box) bool) bool {
	n := &t.nodes[i]
	if n.Density >= threshold {
		box := gizmo.Box{Center: n.Center, HalfSize: n.HalfSize, Color: gizmo.DensityColor(n.Density)}
		if !yield(box) {
			return false
		}
	}
	if n.IsLeaf() {
		return true
	}
	for _, c := range n.Children {
		if !t.gizmos(c, threshold, yield) {
			return false
		}
	}
	return true
}
