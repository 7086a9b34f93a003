// Package gizmo defines the wireframe debug primitives produced by the cloud subsystem for an external debug-draw consumer.
package gizmo

import (
	"iter"

	"github.com/go-gl/mathgl/mgl32"
)

// Line is a single wireframe segment.
type Line struct {
	From  mgl32.Vec3
	To    mgl32.Vec3
	Color [4]float32
}

// Box is an axis-aligned wireframe cube.
type Box struct {
	Center   mgl32.Vec3
	HalfSize float32
	Color    [4]float32
}

// boxEdges lists the 12 cube edges as pairs of corner indices.
// Corner k has its x/y/z sign taken from bits 0/1/2 of k.
var boxEdges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7}, // x
	{0, 2}, {1, 3}, {4, 6}, {5, 7}, // y
	{0, 4}, {1, 5}, {2, 6}, {3, 7}, // z
}

// Corners returns the 8 corners of the box. Corner k is offset by -HalfSize or +HalfSize
// along x, y and z according to bits 0, 1 and 2 of k.
//
// Returns:
//   - [8]mgl32.Vec3: the corner positions
func (b Box) Corners() [8]mgl32.Vec3 {
	var out [8]mgl32.Vec3
	for k := range out {
		var off mgl32.Vec3
		for axis := range 3 {
			if k&(1<<axis) != 0 {
				off[axis] = b.HalfSize
			} else {
				off[axis] = -b.HalfSize
			}
		}
		out[k] = b.Center.Add(off)
	}
	return out
}

// Lines expands the box into its 12 edges, each carrying the box color.
//
// Returns:
//   - [12]Line: the wireframe edges
func (b Box) Lines() [12]Line {
	corners := b.Corners()
	var out [12]Line
	for i, e := range boxEdges {
		out[i] = Line{From: corners[e[0]], To: corners[e[1]], Color: b.Color}
	}
	return out
}

// DensityColor maps a density to a white color whose alpha is the density clamped to [0, 1].
//
// Parameters:
//   - density: the density to visualize
//
// Returns:
//   - [4]float32: RGBA color
func DensityColor(density float32) [4]float32 {
	return [4]float32{1, 1, 1, mgl32.Clamp(density, 0, 1)}
}

// HitColor is the color used for raycast hit markers.
var HitColor = [4]float32{1, 0.2, 0.2, 1}

// Drawer consumes wireframe boxes. Implemented by the external debug-draw system.
type Drawer interface {
	// Draw submits a finite sequence of boxes for this frame.
	//
	// Parameters:
	//   - boxes: the boxes to draw
	Draw(boxes iter.Seq[Box])
}

// Recorder is a Drawer that stores every box it receives. Draw calls append; Reset clears.
type Recorder struct {
	Boxes []Box
}

var _ Drawer = &Recorder{}

// Draw appends all boxes from the sequence.
func (r *Recorder) Draw(boxes iter.Seq[Box]) {
	for b := range boxes {
		r.Boxes = append(r.Boxes, b)
	}
}

// Reset discards the recorded boxes while keeping capacity.
func (r *Recorder) Reset() {
	r.Boxes = r.Boxes[:0]
}
