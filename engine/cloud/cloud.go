// Package cloud owns a procedural cloud: its octree, its GPU node buffer and the per-frame update that keeps the
// two in step with a moving viewer.
package cloud

import (
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/Carmen-Shannon/oxy-sky/engine/gizmo"
	"github.com/Carmen-Shannon/oxy-sky/engine/octree"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Viewer supplies the camera state consumed each frame. The cloud never owns a camera.
type Viewer interface {
	// Position returns the world-space camera position.
	Position() mgl32.Vec3
	// Fov returns the vertical field of view in radians.
	Fov() float32
}

// FrameStats reports what one Tick did.
type FrameStats struct {
	Changed  int    // active flags flipped by the LOD update
	Active   int    // size of the active set after the update
	Synced   bool   // the node buffer was uploaded
	Grew     bool   // the node buffer was replaced by a larger one
	Records  int    // records uploaded
	Capacity uint32 // node buffer capacity in records
	Swapped  bool   // a rebuilt tree was installed before the update
}

// Cloud is a procedural cloud volume. Tick is the only mutator and must be called from a single goroutine.
// Raycast, Gizmos and DebugGizmos may be called from any goroutine, including concurrently with Tick.
// They read only the node arena, which the LOD update never writes.
type Cloud interface {
	// Config returns the configuration of the installed tree.
	//
	// Returns:
	//   - Config: the configuration with defaults applied
	Config() Config

	// Stats returns the build statistics of the installed tree.
	//
	// Returns:
	//   - octree.BuildStats: the build statistics
	Stats() octree.BuildStats

	// Tick installs a finished rebuild if one is ready, updates the LOD from the viewer and then synchronizes
	// the node buffer, strictly in that order.
	//
	// Parameters:
	//   - viewer: the camera for this frame
	//
	// Returns:
	//   - FrameStats: what the frame did
	//   - error: an error wrapping ErrCapacity when the buffer could not grow; the previous buffer stays bound
	//     and the upload is retried next frame
	Tick(viewer Viewer) (FrameStats, error)

	// Rebuild validates cfg and builds a new tree on the build worker pool. The current tree keeps rendering
	// until a later Tick installs the result. When rebuilds overlap, the most recent one wins.
	//
	// Parameters:
	//   - cfg: the new configuration
	//
	// Returns:
	//   - error: a validation error; nothing is scheduled in that case
	Rebuild(cfg Config) error

	// RebuildPending reports whether a scheduled rebuild has not been installed yet.
	//
	// Returns:
	//   - bool: true while a rebuild is in flight or waiting for a Tick
	RebuildPending() bool

	// Wait blocks until every scheduled rebuild has finished building.
	Wait()

	// Raycast returns the nearest leaf along ray whose density is at least the configured threshold.
	//
	// Parameters:
	//   - ray: the query ray
	//
	// Returns:
	//   - octree.HitRecord: the hit
	//   - bool: false on a miss
	Raycast(ray common.Ray) (octree.HitRecord, bool)

	// Gizmos returns one wireframe box per node whose density is at least the configured threshold.
	//
	// Returns:
	//   - iter.Seq[gizmo.Box]: a restartable sequence over the tree installed at call time
	Gizmos() iter.Seq[gizmo.Box]

	// DebugGizmos draws the tree gizmos and, if ray hits, the hit leaf highlighted in gizmo.HitColor.
	//
	// Parameters:
	//   - ray: the pick ray, usually from the camera
	//   - drawer: the debug-draw consumer
	//
	// Returns:
	//   - octree.HitRecord: the hit
	//   - bool: false on a miss
	DebugGizmos(ray common.Ray, drawer gizmo.Drawer) (octree.HitRecord, bool)

	// BindGroup returns the bind group of the current node buffer. It changes when the buffer grows.
	//
	// Returns:
	//   - renderer.BindGroup: the bind group for the cloud material
	BindGroup() renderer.BindGroup

	// Capacity returns the node buffer capacity in records.
	//
	// Returns:
	//   - uint32: the capacity
	Capacity() uint32

	// Release waits for in-flight rebuilds, stops the build workers and frees GPU resources.
	// Further calls fail with renderer.ErrReleased.
	Release()
}

// rebuilt is a finished background build waiting to be installed.
type rebuilt struct {
	generation uint64
	cfg        Config
	tree       octree.Octree
}

// cloudImpl is the implementation of the Cloud interface.
type cloudImpl struct {
	mu         *sync.RWMutex
	logger     *zap.SugaredLogger
	metrics    *metrics
	device     renderer.Device
	ownsDevice bool

	cfg       Config
	tree      octree.Octree
	gpu       *GpuSync
	installed uint64
	released  bool

	pool       worker.DynamicWorkerPool
	rebuilds   sync.WaitGroup
	generation atomic.Uint64
	ready      atomic.Pointer[rebuilt]
}

var _ Cloud = &cloudImpl{}

// Config implements the Cloud interface.
func (c *cloudImpl) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Stats implements the Cloud interface.
func (c *cloudImpl) Stats() octree.BuildStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Stats()
}

// Tick implements the Cloud interface.
func (c *cloudImpl) Tick(viewer Viewer) (FrameStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return FrameStats{}, renderer.ErrReleased
	}

	var stats FrameStats
	if r := c.ready.Swap(nil); r != nil && r.generation > c.installed {
		c.install(r)
		stats.Swapped = true
	}

	stats.Changed = c.tree.Update(c.cfg.VoxelSize, viewer.Fov(), viewer.Position())
	stats.Active = c.tree.ActiveCount()
	c.metrics.instrumentFrame(stats.Changed, stats.Active)

	res, err := c.gpu.Sync(c.tree, stats.Changed)
	stats.Synced = res.Synced
	stats.Grew = res.Grew
	stats.Records = res.Records
	stats.Capacity = res.Capacity
	c.metrics.instrumentSync(res)
	if err != nil {
		if errors.Is(err, ErrCapacity) {
			c.metrics.instrumentCapacityError()
		}
		return stats, err
	}
	if res.Grew {
		c.logger.Infow("node buffer grew", "capacity", res.Capacity, "records", res.Records)
	}
	return stats, nil
}

// install replaces the tree. The new tree starts fully inactive, so the following update re-selects the whole
// active set; the buffer is also invalidated in case that update yields no change.
func (c *cloudImpl) install(r *rebuilt) {
	c.tree = r.tree
	c.cfg = r.cfg
	c.installed = r.generation
	c.gpu.Invalidate()
	c.metrics.instrumentTree(r.tree.Len())
	c.logger.Infow("rebuilt cloud installed", "generation", r.generation, "nodes", r.tree.Len())
}

// Rebuild implements the Cloud interface.
func (c *cloudImpl) Rebuild(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	info, err := cfg.OctreeInfo()
	if err != nil {
		return err
	}
	if err := info.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.released {
		return renderer.ErrReleased
	}

	gen := c.generation.Add(1)
	c.rebuilds.Add(1)
	c.pool.SubmitTask(worker.Task{
		ID: int(gen),
		Do: func() (any, error) {
			defer c.rebuilds.Done()
			tree, err := info.Build()
			if err != nil {
				c.logger.Errorw("cloud rebuild failed", "generation", gen, "error", err)
				return nil, err
			}
			c.observeBuild(tree.Stats())
			c.offer(&rebuilt{generation: gen, cfg: cfg, tree: tree})
			return nil, nil
		},
	})
	c.logger.Debugw("cloud rebuild scheduled", "generation", gen)
	return nil
}

// offer publishes r unless a newer result is already waiting.
func (c *cloudImpl) offer(r *rebuilt) {
	for {
		cur := c.ready.Load()
		if cur != nil && cur.generation > r.generation {
			return
		}
		if c.ready.CompareAndSwap(cur, r) {
			return
		}
	}
}

// RebuildPending implements the Cloud interface.
func (c *cloudImpl) RebuildPending() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation.Load() > c.installed
}

// Wait implements the Cloud interface.
func (c *cloudImpl) Wait() {
	c.rebuilds.Wait()
}

// snapshot returns the installed tree and threshold. Raycast and Gizmos do not touch the active flags, so the tree
// can be read after the lock is dropped.
func (c *cloudImpl) snapshot() (octree.Octree, float32) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree, c.cfg.DensityThreshold
}

// Raycast implements the Cloud interface.
func (c *cloudImpl) Raycast(ray common.Ray) (octree.HitRecord, bool) {
	tree, threshold := c.snapshot()
	return tree.Raycast(ray, threshold)
}

// Gizmos implements the Cloud interface.
func (c *cloudImpl) Gizmos() iter.Seq[gizmo.Box] {
	tree, threshold := c.snapshot()
	return tree.Gizmos(threshold)
}

// DebugGizmos implements the Cloud interface.
func (c *cloudImpl) DebugGizmos(ray common.Ray, drawer gizmo.Drawer) (octree.HitRecord, bool) {
	tree, threshold := c.snapshot()
	hit, ok := tree.Raycast(ray, threshold)
	if ok {
		box := gizmo.Box{Center: hit.Center, HalfSize: hit.HalfSize, Color: gizmo.HitColor}
		drawer.Draw(func(yield func(gizmo.Box) bool) { yield(box) })
	}
	drawer.Draw(tree.Gizmos(threshold))
	return hit, ok
}

// BindGroup implements the Cloud interface.
func (c *cloudImpl) BindGroup() renderer.BindGroup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.released {
		return nil
	}
	return c.gpu.BindGroup()
}

// Capacity implements the Cloud interface.
func (c *cloudImpl) Capacity() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gpu.Capacity()
}

// Release implements the Cloud interface.
func (c *cloudImpl) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	c.mu.Unlock()

	c.rebuilds.Wait()
	c.pool.Stop()
	c.ready.Store(nil)
	c.gpu.Release()
	if c.ownsDevice {
		c.device.Release()
	}
	c.logger.Debugw("cloud released")
}

// observeBuild logs and records the statistics of a finished build.
func (c *cloudImpl) observeBuild(stats octree.BuildStats) {
	c.metrics.instrumentBuild(stats)
	c.logger.Infow("cloud built",
		"nodes", stats.Nodes,
		"leaves", stats.Leaves,
		"depth", stats.ReachedDepth,
		"elapsed", stats.Elapsed.Round(time.Microsecond),
	)
	if stats.NonFiniteSamples > 0 {
		c.logger.Warnw("non-finite density samples replaced with full density", "count", stats.NonFiniteSamples)
	}
	if stats.BudgetLeaves > 0 {
		c.logger.Warnw("node budget reached, subdivision truncated", "truncated", stats.BudgetLeaves, "nodes", stats.Nodes)
	}
}
