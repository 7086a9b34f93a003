package octree

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-sky/engine/gizmo"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(seq func(func(gizmo.Box) bool)) []gizmo.Box {
	var out []gizmo.Box
	for b := range seq {
		out = append(out, b)
	}
	return out
}

func TestGizmosSingleLeaf(t *testing.T) {
	tree := singleDenseLeaf(t)
	boxes := collect(tree.Gizmos(0.5))
	require.Len(t, boxes, 1)
	assert.Equal(t, float32(10), boxes[0].HalfSize)
	assert.Equal(t, gizmo.DensityColor(1), boxes[0].Color)

	assert.Empty(t, collect(tree.Gizmos(1.1)))
}

func TestGizmosThreshold(t *testing.T) {
	tree := buildSphere(t, 4)
	for _, threshold := range []float32{0, 0.2, 0.6} {
		want := 0
		for n := range tree.Nodes() {
			if n.Density >= threshold {
				want++
			}
		}
		boxes := collect(tree.Gizmos(threshold))
		assert.Len(t, boxes, want, "threshold %v", threshold)
		for _, b := range boxes {
			assert.GreaterOrEqual(t, b.Color[3], threshold)
		}
	}
}

func TestGizmosRestartableAndStoppable(t *testing.T) {
	tree := buildSphere(t, 4)
	seq := tree.Gizmos(0.1)
	first := collect(seq)
	require.NotEmpty(t, first)
	assert.Equal(t, first, collect(seq))

	taken := 0
	for range seq {
		taken++
		if taken == 3 {
			break
		}
	}
	assert.Equal(t, 3, taken)

	// Independent of LOD state.
	tree.Update(0.05, 1.0, mgl32.Vec3{})
	assert.Equal(t, first, collect(seq))
}
