package camera

import "github.com/go-gl/mathgl/mgl32"

// OrbitViewerOption is a functional option for configuring an OrbitViewer.
type OrbitViewerOption func(*orbitViewerImpl)

// WithRadius sets the initial orbit radius.
//
// Parameters:
//   - radius: distance from the orbit target
//
// Returns:
//   - OrbitViewerOption: functional option to set the radius
func WithRadius(radius float32) OrbitViewerOption {
	return func(v *orbitViewerImpl) {
		v.radius = radius
	}
}

// WithRadiusLimits sets the range Zoom clamps the radius to.
//
// Parameters:
//   - minRadius: the smallest radius
//   - maxRadius: the largest radius
//
// Returns:
//   - OrbitViewerOption: functional option to set the limits
func WithRadiusLimits(minRadius, maxRadius float32) OrbitViewerOption {
	return func(v *orbitViewerImpl) {
		v.minRadius = minRadius
		v.maxRadius = maxRadius
	}
}

// WithAzimuth sets the initial horizontal angle around the Y axis.
//
// Parameters:
//   - azimuth: horizontal angle in radians (0 = +Z axis)
//
// Returns:
//   - OrbitViewerOption: functional option to set the azimuth
func WithAzimuth(azimuth float32) OrbitViewerOption {
	return func(v *orbitViewerImpl) {
		v.azimuth = azimuth
	}
}

// WithElevation sets the vertical angle from the horizontal plane.
//
// Parameters:
//   - elevation: vertical angle in radians (0 = horizontal)
//
// Returns:
//   - OrbitViewerOption: functional option to set the elevation
func WithElevation(elevation float32) OrbitViewerOption {
	return func(v *orbitViewerImpl) {
		v.elevation = elevation
	}
}

// WithTarget sets the orbit pivot.
//
// Parameters:
//   - x: X coordinate of the target
//   - y: Y coordinate of the target
//   - z: Z coordinate of the target
//
// Returns:
//   - OrbitViewerOption: functional option to set the target position
func WithTarget(x, y, z float32) OrbitViewerOption {
	return func(v *orbitViewerImpl) {
		v.target = mgl32.Vec3{x, y, z}
	}
}

// WithFov sets the vertical field of view.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - OrbitViewerOption: functional option to set the field of view
func WithFov(fov float32) OrbitViewerOption {
	return func(v *orbitViewerImpl) {
		v.fov = fov
	}
}
