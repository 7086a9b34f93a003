// Package renderer is the GPU resource layer used by the cloud subsystem. It allocates storage and uniform buffers,
// writes them from the host and binds them for the cloud material. Pipelines and shaders are owned elsewhere.
package renderer

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

var (
	// ErrOutOfMemory is returned when a buffer cannot be allocated.
	ErrOutOfMemory = errors.New("gpu buffer allocation failed")
	// ErrOutOfRange is returned when a write does not fit inside the target buffer.
	ErrOutOfRange = errors.New("gpu buffer write out of range")
	// ErrReleased is returned when a released device or buffer is used.
	ErrReleased = errors.New("gpu resource released")
)

// BufferUsage is a bit set describing how a buffer may be used.
type BufferUsage uint32

const (
	// BufferUsageStorage allows binding as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << iota
	// BufferUsageUniform allows binding as a uniform buffer.
	BufferUsageUniform
	// BufferUsageCopyDst allows host writes and copies into the buffer.
	BufferUsageCopyDst
	// BufferUsageCopySrc allows copies out of the buffer.
	BufferUsageCopySrc
)

// CloudNodeUsage is the usage of the cloud node storage buffer: shader readable, host writable and copyable for growth.
const CloudNodeUsage = BufferUsageStorage | BufferUsageCopyDst | BufferUsageCopySrc

// CloudParamsUsage is the usage of the cloud params uniform buffer.
const CloudParamsUsage = BufferUsageUniform | BufferUsageCopyDst

// toWGPU converts the usage bits into their WebGPU equivalent.
func (u BufferUsage) toWGPU() wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&BufferUsageStorage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	if u&BufferUsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	if u&BufferUsageCopyDst != 0 {
		out |= wgpu.BufferUsageCopyDst
	}
	if u&BufferUsageCopySrc != 0 {
		out |= wgpu.BufferUsageCopySrc
	}
	return out
}

// BufferDescriptor describes a buffer to allocate.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// Buffer is a GPU buffer allocated by a Device.
type Buffer interface {
	// Label returns the debug label given at creation.
	//
	// Returns:
	//   - string: the buffer label
	Label() string

	// Size returns the allocated size in bytes.
	//
	// Returns:
	//   - uint64: the buffer size
	Size() uint64

	// Usage returns the usage bits given at creation.
	//
	// Returns:
	//   - BufferUsage: the buffer usage
	Usage() BufferUsage

	// Release frees the buffer. Releasing twice is a no-op.
	Release()
}

// BindGroup binds the cloud node storage buffer (binding 0) and the params uniform (binding 1) for the fragment stage.
type BindGroup interface {
	// Label returns the debug label given at creation.
	//
	// Returns:
	//   - string: the bind group label
	Label() string

	// Handle returns the underlying WebGPU bind group, or nil for devices without a GPU.
	//
	// Returns:
	//   - *wgpu.BindGroup: the native bind group
	Handle() *wgpu.BindGroup

	// Release frees the bind group. The bound buffers are not released.
	Release()
}

// Device allocates and writes GPU buffers. A Device is safe for concurrent use.
type Device interface {
	// CreateBuffer allocates a zero-filled buffer.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - Buffer: the new buffer
	//   - error: an error wrapping ErrOutOfMemory if the allocation cannot be satisfied
	CreateBuffer(desc BufferDescriptor) (Buffer, error)

	// WriteBuffer copies data into buf starting at offset. Bytes outside the written range are untouched.
	//
	// Parameters:
	//   - buf: a buffer created by this device
	//   - offset: byte offset of the write
	//   - data: the bytes to copy
	//
	// Returns:
	//   - error: an error wrapping ErrOutOfRange if the write does not fit
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// CreateCloudBindGroup binds the node storage buffer and params uniform using the cloud bind group layout.
	//
	// Parameters:
	//   - label: debug label
	//   - nodes: the node storage buffer (binding 0, read-only storage)
	//   - params: the params uniform buffer (binding 1)
	//
	// Returns:
	//   - BindGroup: the new bind group
	//   - error: an error if the buffers do not belong to this device or creation fails
	CreateCloudBindGroup(label string, nodes, params Buffer) (BindGroup, error)

	// BindGroupLayout returns the WebGPU layout of the cloud bind group for pipeline creation,
	// or nil for devices without a GPU.
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the native bind group layout
	BindGroupLayout() *wgpu.BindGroupLayout

	// Release frees the device. Buffers must be released first.
	Release()
}

// checkWrite validates a write of n bytes at offset into a buffer of the given size.
func checkWrite(label string, size, offset uint64, n int) error {
	if offset+uint64(n) > size || offset+uint64(n) < offset {
		return errors.Wrapf(ErrOutOfRange, "%s: %d bytes at offset %d exceed size %d", label, n, offset, size)
	}
	return nil
}
