package cloud

import (
	"math"

	"github.com/Carmen-Shannon/oxy-sky/engine/octree"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrCapacity is returned when the node buffer cannot grow to hold the active set. The previous buffer stays
// bound and the upload is retried on the next Sync.
var ErrCapacity = errors.New("cloud node buffer capacity exhausted")

// SyncResult describes what a Sync call did.
type SyncResult struct {
	Synced   bool   // the active set was uploaded
	Grew     bool   // the node buffer was replaced by a larger one
	Records  int    // records written
	Capacity uint32 // node buffer capacity in records after the call
}

// GpuSync keeps the node storage buffer and its params uniform in step with a tree's active set.
// It is the only writer of those buffers. GpuSync is not safe for concurrent use.
type GpuSync struct {
	device renderer.Device
	logger *zap.SugaredLogger
	label  string

	nodes    renderer.Buffer
	params   renderer.Buffer
	group    renderer.BindGroup
	capacity uint32
	uploaded uint32 // record count currently held by the params uniform

	// dirty forces an upload even when the LOD reports no change: a previous upload failed or the tree was replaced.
	dirty bool

	records []octree.GPUNode
	scratch []byte
}

// NewGpuSync allocates the node buffer with room for max(initialCapacity, MinBufferCapacity) records, the params
// uniform, and their bind group.
//
// Parameters:
//   - device: the device that owns the buffers
//   - initialCapacity: requested initial capacity in records
//   - logger: logger for growth and failure messages
//
// Returns:
//   - *GpuSync: the synchronizer
//   - error: an error wrapping ErrCapacity if the initial allocation fails
func NewGpuSync(device renderer.Device, initialCapacity uint32, logger *zap.SugaredLogger) (*GpuSync, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	g := &GpuSync{
		device: device,
		logger: logger,
		label:  "Cloud",
		dirty:  true,
	}

	params, err := device.CreateBuffer(renderer.BufferDescriptor{
		Label: g.label + " Params Buffer",
		Size:  uint64((&octree.GPUCloudParams{}).Size()),
		Usage: renderer.CloudParamsUsage,
	})
	if err != nil {
		return nil, errors.Wrapf(ErrCapacity, "params buffer: %v", err)
	}
	g.params = params

	if err := g.replace(max(initialCapacity, MinBufferCapacity)); err != nil {
		params.Release()
		return nil, err
	}
	return g, nil
}

// Capacity returns the node buffer capacity in records. It never decreases.
func (g *GpuSync) Capacity() uint32 {
	return g.capacity
}

// Pending reports whether the next Sync uploads regardless of the change count.
func (g *GpuSync) Pending() bool {
	return g.dirty
}

// Invalidate forces the next Sync to upload, used when the tree is replaced.
func (g *GpuSync) Invalidate() {
	g.dirty = true
}

// NodeBuffer returns the current node storage buffer. It changes when the buffer grows.
func (g *GpuSync) NodeBuffer() renderer.Buffer {
	return g.nodes
}

// ParamsBuffer returns the params uniform buffer.
func (g *GpuSync) ParamsBuffer() renderer.Buffer {
	return g.params
}

// BindGroup returns the bind group of the current buffers. Renderers must fetch it every frame since growth
// replaces it.
func (g *GpuSync) BindGroup() renderer.BindGroup {
	return g.group
}

// Sync uploads the active set of tree when changed is positive or an earlier upload is still pending.
// Records are written from offset 0 in depth-first order; slots past the record count keep stale data and
// the params uniform carries the count.
//
// Parameters:
//   - tree: the tree whose active set to upload
//   - changed: the change count returned by the LOD update this frame
//
// Returns:
//   - SyncResult: what was done
//   - error: an error wrapping ErrCapacity if growth failed, or the device error if a write failed
func (g *GpuSync) Sync(tree octree.Octree, changed int) (SyncResult, error) {
	if changed <= 0 && !g.dirty {
		return SyncResult{Capacity: g.capacity}, nil
	}
	// Set before any fallible step; cleared only after a complete upload.
	g.dirty = true

	g.records = octree.EncodeActive(tree, g.records[:0])
	required := uint64(len(g.records))

	res := SyncResult{Capacity: g.capacity}
	if required > uint64(g.capacity) {
		if err := g.grow(required); err != nil {
			return res, err
		}
		res.Grew = true
		res.Capacity = g.capacity
	}

	// The count must never cover records from another upload. A shrinking set lowers the count before the
	// records are rewritten; a growing one writes the records first.
	count := uint32(required)
	if count < g.uploaded {
		if err := g.writeCount(count); err != nil {
			return res, err
		}
	}
	g.scratch = octree.MarshalNodes(g.records, g.scratch)
	if err := g.device.WriteBuffer(g.nodes, 0, g.scratch); err != nil {
		return res, errors.Wrap(err, "write node buffer")
	}
	if count != g.uploaded {
		if err := g.writeCount(count); err != nil {
			return res, err
		}
	}

	g.dirty = false
	res.Synced = true
	res.Records = len(g.records)
	return res, nil
}

func (g *GpuSync) writeCount(count uint32) error {
	params := octree.GPUCloudParams{Count: count}
	if err := g.device.WriteBuffer(g.params, 0, params.Marshal()); err != nil {
		return errors.Wrap(err, "write params buffer")
	}
	g.uploaded = count
	return nil
}

// grow replaces the node buffer with one holding at least required records. It first tries
// max(required, 2*capacity) and falls back to exactly required. The old buffer stays in place on failure.
func (g *GpuSync) grow(required uint64) error {
	if required > math.MaxUint32 {
		return errors.Wrapf(ErrCapacity, "%d records exceed the addressable range", required)
	}
	target := min(max(required, 2*uint64(g.capacity), uint64(MinBufferCapacity)), math.MaxUint32)

	err := g.replace(uint32(target))
	if err != nil && target > required {
		g.logger.Debugw("node buffer growth failed, retrying with exact size", "target", target, "required", required, "error", err)
		err = g.replace(uint32(required))
	}
	if err != nil {
		g.logger.Warnw("node buffer growth failed, keeping stale LOD", "capacity", g.capacity, "required", required, "error", err)
		return err
	}
	return nil
}

// replace allocates a node buffer of capacity records and rebinds. On success the old buffer and bind group are
// released; on failure nothing changes.
func (g *GpuSync) replace(capacity uint32) error {
	nodes, err := g.device.CreateBuffer(renderer.BufferDescriptor{
		Label: g.label + " Node Buffer",
		Size:  uint64(capacity) * octree.GPUNodeSize,
		Usage: renderer.CloudNodeUsage,
	})
	if err != nil {
		return errors.Wrapf(ErrCapacity, "allocate %d records: %v", capacity, err)
	}
	group, err := g.device.CreateCloudBindGroup(g.label+" Bind Group", nodes, g.params)
	if err != nil {
		nodes.Release()
		return errors.Wrapf(ErrCapacity, "bind %d records: %v", capacity, err)
	}

	if g.group != nil {
		g.group.Release()
	}
	if g.nodes != nil {
		g.nodes.Release()
	}
	g.logger.Debugw("node buffer replaced", "from", g.capacity, "to", capacity)
	g.nodes = nodes
	g.group = group
	g.capacity = capacity
	return nil
}

// Release frees the buffers and bind group. The GpuSync must not be used afterwards.
func (g *GpuSync) Release() {
	if g.group != nil {
		g.group.Release()
		g.group = nil
	}
	if g.nodes != nil {
		g.nodes.Release()
		g.nodes = nil
	}
	if g.params != nil {
		g.params.Release()
		g.params = nil
	}
}
