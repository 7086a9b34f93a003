package cloud

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/Carmen-Shannon/oxy-sky/engine/density"
	"github.com/Carmen-Shannon/oxy-sky/engine/gizmo"
	"github.com/Carmen-Shannon/oxy-sky/engine/octree"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixedViewer struct {
	pos mgl32.Vec3
	fov float32
}

func (v fixedViewer) Position() mgl32.Vec3 { return v.pos }
func (v fixedViewer) Fov() float32         { return v.fov }

var (
	atOrigin = fixedViewer{pos: mgl32.Vec3{0, 0, 0}, fov: 1}
	farAway  = fixedViewer{pos: mgl32.Vec3{0, 0, 5000}, fov: 1}
)

func sphereConfig() Config {
	cfg := DefaultConfig()
	cfg.Generator = "sphere"
	cfg.Radius = 50
	cfg.MaxDepth = 5
	return cfg
}

func newCloud(t *testing.T, cfg Config, opts ...CloudBuilderOption) Cloud {
	t.Helper()
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Release)
	return c
}

func TestNewInvalid(t *testing.T) {
	cfg := sphereConfig()
	cfg.HalfSize = 0
	_, err := New(cfg)
	assert.True(t, errors.Is(err, octree.ErrConstruction))

	cfg = sphereConfig()
	cfg.Generator = "perlin"
	_, err = New(cfg)
	assert.True(t, errors.Is(err, density.ErrUnknownGenerator))

	cfg = sphereConfig()
	cfg.VoxelSize = -1
	_, err = New(cfg)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestNewCapacityError(t *testing.T) {
	dev := renderer.NewMemoryDevice(renderer.WithMemoryLimit(100))
	_, err := New(sphereConfig(), WithDevice(dev))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacity))
	assert.Zero(t, dev.Allocated(), "partial allocations are released")
}

func TestNewAllocatesMinimumCapacity(t *testing.T) {
	cfg := sphereConfig()
	cfg.InitialBufferCapacity = 8
	c := newCloud(t, cfg)
	assert.Equal(t, MinBufferCapacity, c.Capacity())

	cfg.InitialBufferCapacity = 200
	c = newCloud(t, cfg)
	assert.Equal(t, uint32(200), c.Capacity())
}

func TestTickColdStartThenConverged(t *testing.T) {
	c := newCloud(t, sphereConfig())

	stats, err := c.Tick(atOrigin)
	require.NoError(t, err)
	assert.Positive(t, stats.Changed)
	assert.True(t, stats.Synced)
	assert.Equal(t, stats.Active, stats.Records)

	stats, err = c.Tick(atOrigin)
	require.NoError(t, err)
	assert.Zero(t, stats.Changed)
	assert.False(t, stats.Synced, "no upload without LOD changes")
}

func TestTickUploadsActiveSet(t *testing.T) {
	dev := renderer.NewMemoryDevice()
	c := newCloud(t, sphereConfig(), WithDevice(dev))
	impl := c.(*cloudImpl)

	stats, err := c.Tick(fixedViewer{pos: mgl32.Vec3{40, 0, 0}, fov: 1})
	require.NoError(t, err)

	want := octree.MarshalNodes(octree.EncodeActive(impl.tree, nil), nil)
	got, ok := dev.Contents(impl.gpu.NodeBuffer())
	require.True(t, ok)
	assert.Equal(t, want, got[:len(want)])

	params, ok := dev.Contents(impl.gpu.ParamsBuffer())
	require.True(t, ok)
	assert.Equal(t, (&octree.GPUCloudParams{Count: uint32(stats.Records)}).Marshal(), params)
}

func TestTickLeavesTailUntouched(t *testing.T) {
	dev := renderer.NewMemoryDevice()
	c := newCloud(t, sphereConfig(), WithDevice(dev))
	impl := c.(*cloudImpl)

	near, err := c.Tick(atOrigin)
	require.NoError(t, err)
	before, _ := dev.Contents(impl.gpu.NodeBuffer())

	far, err := c.Tick(farAway)
	require.NoError(t, err)
	require.Less(t, far.Records, near.Records)
	require.False(t, far.Grew)

	after, _ := dev.Contents(impl.gpu.NodeBuffer())
	tail := far.Records * octree.GPUNodeSize
	assert.Equal(t, before[tail:], after[tail:])
}

func TestCapacityMonotonic(t *testing.T) {
	c := newCloud(t, sphereConfig())
	path := []fixedViewer{
		farAway,
		atOrigin,
		farAway,
		{pos: mgl32.Vec3{30, 0, 0}, fov: 1},
		{pos: mgl32.Vec3{0, 0, 0}, fov: 0.1},
		farAway,
	}

	last := c.Capacity()
	grew := false
	for i, v := range path {
		stats, err := c.Tick(v)
		require.NoError(t, err, "frame %d", i)
		assert.GreaterOrEqual(t, stats.Capacity, last, "frame %d", i)
		assert.GreaterOrEqual(t, int(stats.Capacity), stats.Active, "frame %d", i)
		grew = grew || stats.Grew
		last = stats.Capacity
	}
	assert.True(t, grew)
}

func TestCapacityErrorThenRetry(t *testing.T) {
	// Room for the initial buffers only.
	limit := uint64(MinBufferCapacity)*octree.GPUNodeSize + uint64((&octree.GPUCloudParams{}).Size())
	dev := renderer.NewMemoryDevice(renderer.WithMemoryLimit(limit))
	c := newCloud(t, sphereConfig(), WithDevice(dev))
	impl := c.(*cloudImpl)

	stats, err := c.Tick(atOrigin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacity))
	assert.Positive(t, stats.Changed)
	assert.False(t, stats.Synced)
	assert.Equal(t, MinBufferCapacity, c.Capacity())
	assert.True(t, impl.gpu.Pending())
	assert.Zero(t, dev.Writes(), "stale buffer is left as it was")
	assert.Equal(t, float64(1), testutil.ToFloat64(impl.metrics.gpuCapacityError))

	// The LOD has converged, but the pending upload is retried once memory is available.
	dev.SetMemoryLimit(0)
	stats, err = c.Tick(atOrigin)
	require.NoError(t, err)
	assert.Zero(t, stats.Changed)
	assert.True(t, stats.Synced)
	assert.True(t, stats.Grew)
	assert.Greater(t, c.Capacity(), MinBufferCapacity)
	assert.False(t, impl.gpu.Pending())
}

func TestRebuildInstallsOnTick(t *testing.T) {
	c := newCloud(t, sphereConfig())
	_, err := c.Tick(atOrigin)
	require.NoError(t, err)
	before := c.Stats().Nodes

	next := sphereConfig()
	next.MaxDepth = 3
	require.NoError(t, c.Rebuild(next))
	c.Wait()
	assert.True(t, c.RebuildPending())
	assert.Equal(t, uint32(5), c.Config().MaxDepth, "not installed before the next tick")

	stats, err := c.Tick(atOrigin)
	require.NoError(t, err)
	assert.True(t, stats.Swapped)
	assert.Positive(t, stats.Changed)
	assert.True(t, stats.Synced)
	assert.False(t, c.RebuildPending())
	assert.Equal(t, uint32(3), c.Config().MaxDepth)
	assert.Less(t, c.Stats().Nodes, before)
}

func TestRebuildLatestWins(t *testing.T) {
	c := newCloud(t, sphereConfig())
	for _, depth := range []uint32{2, 3, 4} {
		next := sphereConfig()
		next.MaxDepth = depth
		require.NoError(t, c.Rebuild(next))
	}
	c.Wait()

	stats, err := c.Tick(atOrigin)
	require.NoError(t, err)
	assert.True(t, stats.Swapped)
	assert.Equal(t, uint32(4), c.Config().MaxDepth)
	assert.False(t, c.RebuildPending())
}

func TestRebuildInvalid(t *testing.T) {
	c := newCloud(t, sphereConfig())
	bad := sphereConfig()
	bad.HalfSize = -5
	err := c.Rebuild(bad)
	assert.True(t, errors.Is(err, octree.ErrConstruction))
	assert.False(t, c.RebuildPending())
}

func TestRaycastAndGizmos(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generator = "constant"
	cfg.Value = 1
	cfg.HalfSize = 10
	c := newCloud(t, cfg)

	ray := common.Ray{Origin: mgl32.Vec3{-20, 0, 0}, Dir: mgl32.Vec3{1, 0, 0}}
	hit, ok := c.Raycast(ray)
	require.True(t, ok)
	assert.InDelta(t, 10, hit.Distance, 1e-5)

	var boxes []gizmo.Box
	for b := range c.Gizmos() {
		boxes = append(boxes, b)
	}
	require.Len(t, boxes, 1)

	var rec gizmo.Recorder
	_, ok = c.DebugGizmos(ray, &rec)
	require.True(t, ok)
	require.Len(t, rec.Boxes, 2)
	assert.Equal(t, gizmo.HitColor, rec.Boxes[0].Color)
	assert.Equal(t, boxes[0].Center, rec.Boxes[0].Center)
	assert.Equal(t, boxes[0].HalfSize, rec.Boxes[0].HalfSize)
	assert.Equal(t, boxes[0], rec.Boxes[1])

	rec.Reset()
	_, ok = c.DebugGizmos(common.Ray{Origin: mgl32.Vec3{-20, 50, 0}, Dir: mgl32.Vec3{1, 0, 0}}, &rec)
	assert.False(t, ok)
	assert.Len(t, rec.Boxes, 1, "gizmos are drawn on a miss")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newCloud(t, sphereConfig(), WithRegisterer(reg))
	impl := c.(*cloudImpl)

	stats, err := c.Tick(atOrigin)
	require.NoError(t, err)
	assert.Equal(t, float64(stats.Active), testutil.ToFloat64(impl.metrics.activeNodes))
	assert.Equal(t, float64(stats.Changed), testutil.ToFloat64(impl.metrics.lodChanged))
	assert.Equal(t, float64(1), testutil.ToFloat64(impl.metrics.gpuSyncs))
	assert.Equal(t, float64(stats.Capacity), testutil.ToFloat64(impl.metrics.gpuCapacity))
	assert.Equal(t, float64(c.Stats().Nodes), testutil.ToFloat64(impl.metrics.treeNodes))
	assert.Equal(t, float64(1), testutil.ToFloat64(impl.metrics.builds))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["oxy_cloud_active_nodes"])
	assert.True(t, names["oxy_cloud_gpu_capacity_records"])
	assert.True(t, names["oxy_cloud_build_duration_seconds"])
}

func TestMetricsSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(sphereConfig(), WithRegisterer(reg))
	require.NoError(t, err)
	first.Release()

	var second Cloud
	require.NotPanics(t, func() {
		second, err = New(sphereConfig(), WithRegisterer(reg))
	})
	require.NoError(t, err)
	t.Cleanup(second.Release)

	impl := second.(*cloudImpl)
	assert.Equal(t, float64(2), testutil.ToFloat64(impl.metrics.builds))
	count, err := testutil.GatherAndCount(reg, "oxy_cloud_builds_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := newCloud(t, sphereConfig(), WithLogger(zap.New(core).Sugar()))

	built := logs.FilterMessage("cloud built").All()
	require.Len(t, built, 1)
	assert.Equal(t, int64(c.Stats().Nodes), built[0].ContextMap()["nodes"])

	_, err := c.Tick(atOrigin)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("node buffer grew").Len())
}

func TestRelease(t *testing.T) {
	c, err := New(sphereConfig())
	require.NoError(t, err)
	require.NotNil(t, c.BindGroup())

	c.Release()
	c.Release()

	_, err = c.Tick(atOrigin)
	assert.True(t, errors.Is(err, renderer.ErrReleased))
	assert.Nil(t, c.BindGroup())
	assert.True(t, errors.Is(c.Rebuild(sphereConfig()), renderer.ErrReleased))
}

func TestReleaseStopsWorkers(t *testing.T) {
	before := runtime.NumGoroutine()
	for range 10 {
		c, err := New(sphereConfig())
		require.NoError(t, err)
		require.NoError(t, c.Rebuild(sphereConfig()))
		c.Release()
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 5*time.Second, 50*time.Millisecond, "build workers outlive their cloud")
}

func TestReadsDuringTick(t *testing.T) {
	c := newCloud(t, sphereConfig())
	ray := common.Ray{Origin: mgl32.Vec3{-200, 0, 0}, Dir: mgl32.Vec3{1, 0, 0}}
	want, ok := c.Raycast(ray)
	require.True(t, ok)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var rec gizmo.Recorder
		for range 200 {
			if hit, ok := c.Raycast(ray); !ok || hit != want {
				t.Errorf("raycast changed under tick: %+v", hit)
				return
			}
			rec.Reset()
			if hit, ok := c.DebugGizmos(ray, &rec); !ok || hit != want {
				t.Errorf("debug raycast changed under tick: %+v", hit)
				return
			}
		}
	}()
	for i := range 200 {
		viewer := atOrigin
		if i%2 == 1 {
			viewer = farAway
		}
		_, err := c.Tick(viewer)
		require.NoError(t, err)
	}
	wg.Wait()
}
