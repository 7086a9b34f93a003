package renderer

import "go.uber.org/zap"

// deviceConfig collects the settings shared by every Device implementation.
type deviceConfig struct {
	logger               *zap.SugaredLogger
	label                string
	forceFallbackAdapter bool
	memoryLimit          uint64
}

func defaultDeviceConfig() deviceConfig {
	return deviceConfig{
		logger: zap.NewNop().Sugar(),
		label:  "Cloud Device",
	}
}

// DeviceOption is a functional option applied to a Device during construction.
type DeviceOption func(*deviceConfig)

// WithLogger sets the logger used by the device.
//
// Parameters:
//   - logger: the logger; nil keeps the no-op default
//
// Returns:
//   - DeviceOption: a function that applies the logger option
func WithLogger(logger *zap.SugaredLogger) DeviceOption {
	return func(c *deviceConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLabel sets the debug label of the device.
//
// Parameters:
//   - label: the device label
//
// Returns:
//   - DeviceOption: a function that applies the label option
func WithLabel(label string) DeviceOption {
	return func(c *deviceConfig) {
		c.label = label
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe). Ignored by the memory backend.
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - DeviceOption: a function that applies the force software renderer option
func WithForceSoftwareRenderer(force bool) DeviceOption {
	return func(c *deviceConfig) {
		c.forceFallbackAdapter = force
	}
}

// WithMemoryLimit caps the total bytes of live buffers on the memory backend. Zero means unlimited.
// Ignored by the WGPU backend, whose limit is the adapter's.
//
// Parameters:
//   - limit: the byte budget
//
// Returns:
//   - DeviceOption: a function that applies the memory limit option
func WithMemoryLimit(limit uint64) DeviceOption {
	return func(c *deviceConfig) {
		c.memoryLimit = limit
	}
}
