package renderer

import (
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// wgpuDeviceImpl is the WebGPU implementation of the Device interface. It runs headless: no surface is created.
type wgpuDeviceImpl struct {
	mu     *sync.Mutex
	logger *zap.SugaredLogger
	label  string

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	layout   *wgpu.BindGroupLayout
	released bool
}

var _ Device = &wgpuDeviceImpl{}

// wgpuBuffer wraps a native buffer together with its descriptor.
type wgpuBuffer struct {
	desc BufferDescriptor
	buf  *wgpu.Buffer
}

var _ Buffer = &wgpuBuffer{}

func (b *wgpuBuffer) Label() string      { return b.desc.Label }
func (b *wgpuBuffer) Size() uint64       { return b.desc.Size }
func (b *wgpuBuffer) Usage() BufferUsage { return b.desc.Usage }

func (b *wgpuBuffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

// wgpuBindGroup wraps a native bind group.
type wgpuBindGroup struct {
	label string
	group *wgpu.BindGroup
}

var _ BindGroup = &wgpuBindGroup{}

func (g *wgpuBindGroup) Label() string           { return g.label }
func (g *wgpuBindGroup) Handle() *wgpu.BindGroup { return g.group }

func (g *wgpuBindGroup) Release() {
	if g.group != nil {
		g.group.Release()
		g.group = nil
	}
}

// NewWGPUDevice requests a WebGPU adapter and device without a presentation surface and creates the cloud
// bind group layout reflected from the cloud WGSL.
//
// Parameters:
//   - options: device options
//
// Returns:
//   - Device: the new device
//   - error: an error if no adapter or device is available
func NewWGPUDevice(options ...DeviceOption) (Device, error) {
	cfg := defaultDeviceConfig()
	for _, opt := range options {
		opt(&cfg)
	}

	w := &wgpuDeviceImpl{
		mu:       &sync.Mutex{},
		logger:   cfg.logger,
		label:    cfg.label,
		instance: wgpu.CreateInstance(nil),
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
	})
	if err != nil {
		w.instance.Release()
		return nil, errors.Wrap(err, "request adapter")
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: cfg.label,
	})
	if err != nil {
		w.adapter.Release()
		w.instance.Release()
		return nil, errors.Wrap(err, "request device")
	}
	w.device = d
	w.queue = d.GetQueue()

	desc, err := CloudBindGroupLayout(cfg.label + " Cloud Bind Group Layout")
	if err != nil {
		w.Release()
		return nil, err
	}
	layout, err := d.CreateBindGroupLayout(&desc)
	if err != nil {
		w.Release()
		return nil, errors.Wrap(err, "create cloud bind group layout")
	}
	w.layout = layout

	w.logger.Debugw("wgpu device ready", "label", cfg.label, "fallback", cfg.forceFallbackAdapter)
	return w, nil
}

// CreateBuffer implements the Device interface.
func (w *wgpuDeviceImpl) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return nil, ErrReleased
	}
	buf, err := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            desc.Usage.toWGPU(),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "%s (%d bytes): %v", desc.Label, desc.Size, err)
	}
	return &wgpuBuffer{desc: desc, buf: buf}, nil
}

// WriteBuffer implements the Device interface.
func (w *wgpuDeviceImpl) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	b, ok := buf.(*wgpuBuffer)
	if !ok || b.buf == nil {
		return errors.Wrap(ErrReleased, "buffer not owned by this device")
	}
	if err := checkWrite(b.desc.Label, b.desc.Size, offset, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return ErrReleased
	}
	return w.queue.WriteBuffer(b.buf, offset, data)
}

// CreateCloudBindGroup implements the Device interface.
func (w *wgpuDeviceImpl) CreateCloudBindGroup(label string, nodes, params Buffer) (BindGroup, error) {
	n, ok := nodes.(*wgpuBuffer)
	if !ok || n.buf == nil {
		return nil, errors.Wrap(ErrReleased, "node buffer not owned by this device")
	}
	p, ok := params.(*wgpuBuffer)
	if !ok || p.buf == nil {
		return nil, errors.Wrap(ErrReleased, "params buffer not owned by this device")
	}
	if err := checkCloudBinding(label, nodes, params); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return nil, ErrReleased
	}
	group, err := w.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  label,
		Layout: w.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: n.buf, Offset: 0, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: p.buf, Offset: 0, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, label)
	}
	return &wgpuBindGroup{label: label, group: group}, nil
}

// BindGroupLayout implements the Device interface.
func (w *wgpuDeviceImpl) BindGroupLayout() *wgpu.BindGroupLayout {
	return w.layout
}

// Release implements the Device interface.
func (w *wgpuDeviceImpl) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return
	}
	w.released = true
	if w.layout != nil {
		w.layout.Release()
	}
	if w.queue != nil {
		w.queue.Release()
	}
	if w.device != nil {
		w.device.Release()
	}
	if w.adapter != nil {
		w.adapter.Release()
	}
	if w.instance != nil {
		w.instance.Release()
	}
}
