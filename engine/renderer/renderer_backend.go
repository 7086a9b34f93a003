package renderer

import (
	"strings"

	"github.com/pkg/errors"
)

// BackendType identifies the Device implementation.
type BackendType int

const (
	// BackendTypeWGPU selects the WebGPU device on a headless adapter.
	BackendTypeWGPU BackendType = iota
	// BackendTypeMemory selects the host-memory device, used for dry runs and tests.
	BackendTypeMemory
)

// String returns the configuration name of the backend.
func (b BackendType) String() string {
	switch b {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// ParseBackendType resolves a configuration name into a BackendType. Matching is case-insensitive.
//
// Parameters:
//   - name: "wgpu" or "memory"
//
// Returns:
//   - BackendType: the matching backend
//   - error: an error if the name is unknown
func ParseBackendType(name string) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "wgpu":
		return BackendTypeWGPU, nil
	case "memory":
		return BackendTypeMemory, nil
	default:
		return 0, errors.Errorf("unknown renderer backend %q", name)
	}
}

// NewDevice creates a Device of the given backend.
//
// Parameters:
//   - backend: which implementation to create
//   - options: device options
//
// Returns:
//   - Device: the new device
//   - error: an error if the backend is unknown or the GPU cannot be initialized
func NewDevice(backend BackendType, options ...DeviceOption) (Device, error) {
	switch backend {
	case BackendTypeWGPU:
		return NewWGPUDevice(options...)
	case BackendTypeMemory:
		return NewMemoryDevice(options...), nil
	default:
		return nil, errors.Errorf("unknown renderer backend %d", int(backend))
	}
}
