package gizmo

import (
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxCorners(t *testing.T) {
	b := Box{Center: mgl32.Vec3{1, 1, 1}, HalfSize: 1}
	c := b.Corners()
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, c[0])
	assert.Equal(t, mgl32.Vec3{2, 0, 0}, c[1])
	assert.Equal(t, mgl32.Vec3{0, 2, 0}, c[2])
	assert.Equal(t, mgl32.Vec3{0, 0, 2}, c[4])
	assert.Equal(t, mgl32.Vec3{2, 2, 2}, c[7])
}

func TestBoxLines(t *testing.T) {
	b := Box{HalfSize: 0.5, Color: DensityColor(0.25)}
	lines := b.Lines()
	require.Len(t, lines, 12)
	for _, l := range lines {
		// Every edge is axis aligned with length equal to the side.
		assert.InDelta(t, 1.0, l.To.Sub(l.From).Len(), 1e-6)
		assert.Equal(t, b.Color, l.Color)
	}
}

func TestDensityColor(t *testing.T) {
	assert.Equal(t, [4]float32{1, 1, 1, 0}, DensityColor(-2))
	assert.Equal(t, [4]float32{1, 1, 1, 0.5}, DensityColor(0.5))
	assert.Equal(t, [4]float32{1, 1, 1, 1}, DensityColor(3))
}

func TestRecorder(t *testing.T) {
	var r Recorder
	boxes := []Box{{HalfSize: 1}, {HalfSize: 2}}
	r.Draw(slices.Values(boxes))
	r.Draw(slices.Values(boxes[:1]))
	require.Len(t, r.Boxes, 3)
	r.Reset()
	assert.Empty(t, r.Boxes)
}
