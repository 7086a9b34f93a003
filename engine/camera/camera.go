// Package camera provides viewers that drive the cloud LOD: an orbiting camera with a fixed field of view.
package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// OrbitViewer is a camera orbiting a target on a sphere. It satisfies cloud.Viewer.
type OrbitViewer interface {
	// Position returns the world-space camera position.
	//
	// Returns:
	//   - mgl32.Vec3: the camera position
	Position() mgl32.Vec3

	// Fov returns the vertical field of view in radians.
	//
	// Returns:
	//   - float32: the field of view
	Fov() float32

	// Target returns the orbit pivot.
	//
	// Returns:
	//   - mgl32.Vec3: the point the camera looks at
	Target() mgl32.Vec3

	// Radius returns the distance from the target.
	//
	// Returns:
	//   - float32: the orbit radius
	Radius() float32

	// Advance rotates the camera around the Y axis.
	//
	// Parameters:
	//   - dAzimuth: the azimuth change in radians
	Advance(dAzimuth float32)

	// Zoom moves the camera toward the target, clamped to the radius limits.
	//
	// Parameters:
	//   - delta: the radius decrease; negative values move away
	Zoom(delta float32)

	// PickRay returns the ray from the camera through the center of the view.
	//
	// Returns:
	//   - common.Ray: a ray with a unit direction, or a zero direction if the camera sits on the target
	PickRay() common.Ray
}

// orbitViewerImpl is the implementation of OrbitViewer.
type orbitViewerImpl struct {
	mu *sync.Mutex

	// Position is derived from target and the spherical coordinates.
	position mgl32.Vec3
	target   mgl32.Vec3

	radius    float32
	azimuth   float32 // around Y, 0 = +Z
	elevation float32 // from the horizontal plane

	minRadius float32
	maxRadius float32
	fov       float32
}

var _ OrbitViewer = &orbitViewerImpl{}

// NewOrbitViewer creates an orbit viewer. Defaults: target at the origin, radius 250, elevation pi/6 and a
// field of view of pi/4.
//
// Parameters:
//   - options: functional options to configure the viewer
//
// Returns:
//   - OrbitViewer: the new viewer
func NewOrbitViewer(options ...OrbitViewerOption) OrbitViewer {
	v := &orbitViewerImpl{
		mu:        &sync.Mutex{},
		radius:    250,
		elevation: math32.Pi / 6,
		minRadius: 0,
		maxRadius: 2000,
		fov:       math32.Pi / 4,
	}
	for _, option := range options {
		option(v)
	}
	v.radius = mgl32.Clamp(v.radius, v.minRadius, v.maxRadius)
	v.updatePosition()
	return v
}

// updatePosition recomputes the position from the spherical coordinates. Caller must hold the mutex.
func (v *orbitViewerImpl) updatePosition() {
	cosElev, sinElev := math32.Cos(v.elevation), math32.Sin(v.elevation)
	cosAzim, sinAzim := math32.Cos(v.azimuth), math32.Sin(v.azimuth)
	v.position = v.target.Add(mgl32.Vec3{
		v.radius * cosElev * sinAzim,
		v.radius * sinElev,
		v.radius * cosElev * cosAzim,
	})
}

func (v *orbitViewerImpl) Position() mgl32.Vec3 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

func (v *orbitViewerImpl) Fov() float32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fov
}

func (v *orbitViewerImpl) Target() mgl32.Vec3 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.target
}

func (v *orbitViewerImpl) Radius() float32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.radius
}

func (v *orbitViewerImpl) Advance(dAzimuth float32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.azimuth = math32.Mod(v.azimuth+dAzimuth, 2*math32.Pi)
	v.updatePosition()
}

func (v *orbitViewerImpl) Zoom(delta float32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.radius = mgl32.Clamp(v.radius-delta, v.minRadius, v.maxRadius)
	v.updatePosition()
}

func (v *orbitViewerImpl) PickRay() common.Ray {
	v.mu.Lock()
	defer v.mu.Unlock()
	dir := v.target.Sub(v.position)
	if l := dir.Len(); l > 1e-8 {
		dir = dir.Mul(1 / l)
	}
	return common.Ray{Origin: v.position, Dir: dir}
}
