package renderer

import (
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MemoryDevice is a Device backed by host memory. It honors buffer sizes, write ranges and an optional byte budget
// exactly like a GPU would, which makes it suitable for dry runs and for exercising out-of-memory paths.
type MemoryDevice struct {
	mu        *sync.Mutex
	logger    *zap.SugaredLogger
	label     string
	limit     uint64
	allocated uint64
	writes    int
	created   int
	released  bool
}

var _ Device = &MemoryDevice{}

// memoryBuffer is a host-memory Buffer.
type memoryBuffer struct {
	desc   BufferDescriptor
	data   []byte
	owner  *MemoryDevice
	closed bool
}

var _ Buffer = &memoryBuffer{}

func (b *memoryBuffer) Label() string      { return b.desc.Label }
func (b *memoryBuffer) Size() uint64       { return b.desc.Size }
func (b *memoryBuffer) Usage() BufferUsage { return b.desc.Usage }

func (b *memoryBuffer) Release() {
	b.owner.mu.Lock()
	defer b.owner.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.owner.allocated -= b.desc.Size
	b.data = nil
}

// memoryBindGroup has nothing to bind on the host; it only validates its buffers at creation.
type memoryBindGroup struct {
	label string
}

var _ BindGroup = &memoryBindGroup{}

func (g *memoryBindGroup) Label() string           { return g.label }
func (g *memoryBindGroup) Handle() *wgpu.BindGroup { return nil }
func (g *memoryBindGroup) Release()                {}

// NewMemoryDevice creates a host-memory device. WithMemoryLimit sets its byte budget.
//
// Parameters:
//   - options: device options
//
// Returns:
//   - *MemoryDevice: the new device
func NewMemoryDevice(options ...DeviceOption) *MemoryDevice {
	cfg := defaultDeviceConfig()
	for _, opt := range options {
		opt(&cfg)
	}
	return &MemoryDevice{
		mu:     &sync.Mutex{},
		logger: cfg.logger,
		label:  cfg.label,
		limit:  cfg.memoryLimit,
	}
}

// SetMemoryLimit changes the byte budget. Live buffers are kept even if they exceed the new limit.
//
// Parameters:
//   - limit: the byte budget, zero for unlimited
func (m *MemoryDevice) SetMemoryLimit(limit uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = limit
}

// Allocated returns the total size of live buffers.
//
// Returns:
//   - uint64: bytes currently allocated
func (m *MemoryDevice) Allocated() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocated
}

// Writes returns how many non-empty writes have been performed.
//
// Returns:
//   - int: the write count
func (m *MemoryDevice) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Created returns how many buffers have been allocated over the device lifetime.
//
// Returns:
//   - int: the allocation count
func (m *MemoryDevice) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

// Contents returns a copy of the bytes held by buf.
//
// Parameters:
//   - buf: a live buffer created by this device
//
// Returns:
//   - []byte: the buffer contents
//   - bool: false if buf is not a live buffer of this device
func (m *MemoryDevice) Contents(buf Buffer) ([]byte, bool) {
	b, ok := buf.(*memoryBuffer)
	if !ok || b.owner != m {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.closed {
		return nil, false
	}
	return append([]byte(nil), b.data...), true
}

// CreateBuffer implements the Device interface.
func (m *MemoryDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return nil, ErrReleased
	}
	if m.limit > 0 && m.allocated+desc.Size > m.limit {
		return nil, errors.Wrapf(ErrOutOfMemory, "%s: %d bytes requested, %d of %d in use",
			desc.Label, desc.Size, m.allocated, m.limit)
	}
	m.allocated += desc.Size
	m.created++
	m.logger.Debugw("memory buffer created", "device", m.label, "label", desc.Label, "size", desc.Size)
	return &memoryBuffer{desc: desc, data: make([]byte, desc.Size), owner: m}, nil
}

// WriteBuffer implements the Device interface.
func (m *MemoryDevice) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	b, ok := buf.(*memoryBuffer)
	if !ok || b.owner != m {
		return errors.Wrap(ErrReleased, "buffer not owned by this device")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.closed || m.released {
		return ErrReleased
	}
	if err := checkWrite(b.desc.Label, b.desc.Size, offset, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	copy(b.data[offset:], data)
	m.writes++
	return nil
}

// CreateCloudBindGroup implements the Device interface.
func (m *MemoryDevice) CreateCloudBindGroup(label string, nodes, params Buffer) (BindGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, buf := range []Buffer{nodes, params} {
		b, ok := buf.(*memoryBuffer)
		if !ok || b.owner != m || b.closed {
			return nil, errors.Wrapf(ErrReleased, "%s: buffer not owned by this device", label)
		}
	}
	if err := checkCloudBinding(label, nodes, params); err != nil {
		return nil, err
	}
	return &memoryBindGroup{label: label}, nil
}

// BindGroupLayout implements the Device interface.
func (m *MemoryDevice) BindGroupLayout() *wgpu.BindGroupLayout {
	return nil
}

// Release implements the Device interface.
func (m *MemoryDevice) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = true
}
