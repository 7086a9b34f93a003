package cloud

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-sky/engine/density"
	"github.com/Carmen-Shannon/oxy-sky/engine/octree"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func viewedSphere(t *testing.T) octree.Octree {
	t.Helper()
	field, err := density.New(density.GeneratorSphere, density.WithRadius(50))
	require.NoError(t, err)
	tree, err := octree.NewOctreeInfo(
		octree.WithHalfSize(100),
		octree.WithMaxDepth(5),
		octree.WithGenerator(field),
	).Build()
	require.NoError(t, err)
	tree.Update(octree.DefaultVoxelSize, 1, mgl32.Vec3{})
	require.Greater(t, tree.ActiveCount(), int(MinBufferCapacity))
	return tree
}

// recordingDevice logs which buffers are written and can fail writes to one of them.
type recordingDevice struct {
	*renderer.MemoryDevice
	written []renderer.Buffer
	fail    renderer.Buffer
}

func (d *recordingDevice) WriteBuffer(buf renderer.Buffer, offset uint64, data []byte) error {
	if buf == d.fail {
		return errors.New("write rejected")
	}
	d.written = append(d.written, buf)
	return d.MemoryDevice.WriteBuffer(buf, offset, data)
}

func paramsBytes(t *testing.T, dev *renderer.MemoryDevice, g *GpuSync) []byte {
	t.Helper()
	data, ok := dev.Contents(g.ParamsBuffer())
	require.True(t, ok)
	return data
}

func TestGpuSyncInitial(t *testing.T) {
	dev := renderer.NewMemoryDevice()
	g, err := NewGpuSync(dev, 8, nil)
	require.NoError(t, err)
	defer g.Release()

	assert.Equal(t, MinBufferCapacity, g.Capacity())
	assert.Equal(t, uint64(MinBufferCapacity)*octree.GPUNodeSize, g.NodeBuffer().Size())
	assert.Equal(t, renderer.CloudNodeUsage, g.NodeBuffer().Usage())
	assert.Equal(t, renderer.CloudParamsUsage, g.ParamsBuffer().Usage())
	assert.NotNil(t, g.BindGroup())
	assert.True(t, g.Pending(), "first sync always uploads")
}

func TestGpuSyncSkipsUnchanged(t *testing.T) {
	dev := renderer.NewMemoryDevice()
	g, err := NewGpuSync(dev, 0, nil)
	require.NoError(t, err)
	defer g.Release()
	tree := viewedSphere(t)

	res, err := g.Sync(tree, tree.ActiveCount())
	require.NoError(t, err)
	assert.True(t, res.Synced)
	assert.Equal(t, tree.ActiveCount(), res.Records)
	writes := dev.Writes()

	res, err = g.Sync(tree, 0)
	require.NoError(t, err)
	assert.False(t, res.Synced)
	assert.Equal(t, writes, dev.Writes())

	g.Invalidate()
	res, err = g.Sync(tree, 0)
	require.NoError(t, err)
	assert.True(t, res.Synced)
	assert.False(t, res.Grew)
}

func TestGpuSyncGrowsByDoubling(t *testing.T) {
	dev := renderer.NewMemoryDevice()
	g, err := NewGpuSync(dev, 0, nil)
	require.NoError(t, err)
	defer g.Release()
	tree := viewedSphere(t)
	oldGroup := g.BindGroup()

	res, err := g.Sync(tree, 1)
	require.NoError(t, err)
	assert.True(t, res.Grew)
	want := max(uint32(tree.ActiveCount()), 2*MinBufferCapacity)
	assert.Equal(t, want, res.Capacity)
	assert.Equal(t, want, g.Capacity())
	assert.NotSame(t, oldGroup, g.BindGroup())

	// Old buffer released, new one and params live.
	assert.Equal(t, uint64(want)*octree.GPUNodeSize+uint64((&octree.GPUCloudParams{}).Size()), dev.Allocated())
	assert.Equal(t, (&octree.GPUCloudParams{Count: uint32(tree.ActiveCount())}).Marshal(), paramsBytes(t, dev, g))
}

func TestGpuSyncExactSizeFallback(t *testing.T) {
	tree := viewedSphere(t)
	n := uint64(tree.ActiveCount())

	// Room for the params, the live buffer and an exact-size replacement, but not a doubled one.
	initial := n - 1
	limit := uint64((&octree.GPUCloudParams{}).Size()) + initial*octree.GPUNodeSize + n*octree.GPUNodeSize
	dev := renderer.NewMemoryDevice(renderer.WithMemoryLimit(limit))
	g, err := NewGpuSync(dev, uint32(initial), nil)
	require.NoError(t, err)
	defer g.Release()

	res, err := g.Sync(tree, 1)
	require.NoError(t, err)
	assert.True(t, res.Grew)
	assert.Equal(t, uint32(n), g.Capacity())
}

func TestGpuSyncCapacityError(t *testing.T) {
	tree := viewedSphere(t)
	limit := uint64((&octree.GPUCloudParams{}).Size()) + uint64(MinBufferCapacity)*octree.GPUNodeSize
	dev := renderer.NewMemoryDevice(renderer.WithMemoryLimit(limit))
	g, err := NewGpuSync(dev, 0, nil)
	require.NoError(t, err)
	defer g.Release()
	buf, group := g.NodeBuffer(), g.BindGroup()

	res, err := g.Sync(tree, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacity))
	assert.False(t, res.Synced)
	assert.Equal(t, MinBufferCapacity, res.Capacity)
	assert.Same(t, buf, g.NodeBuffer())
	assert.Same(t, group, g.BindGroup())
	assert.True(t, g.Pending())

	dev.SetMemoryLimit(0)
	res, err = g.Sync(tree, 0)
	require.NoError(t, err)
	assert.True(t, res.Synced)
	assert.True(t, res.Grew)
	assert.False(t, g.Pending())
}

func TestGpuSyncWritesFromOffsetZero(t *testing.T) {
	dev := renderer.NewMemoryDevice()
	g, err := NewGpuSync(dev, 1024, nil)
	require.NoError(t, err)
	defer g.Release()
	tree := viewedSphere(t)

	_, err = g.Sync(tree, 1)
	require.NoError(t, err)
	data, ok := dev.Contents(g.NodeBuffer())
	require.True(t, ok)

	want := octree.MarshalNodes(octree.EncodeActive(tree, nil), nil)
	assert.Equal(t, want, data[:len(want)])
	assert.Equal(t, make([]byte, len(data)-len(want)), data[len(want):])
}

func TestGpuSyncRelease(t *testing.T) {
	dev := renderer.NewMemoryDevice()
	g, err := NewGpuSync(dev, 0, nil)
	require.NoError(t, err)
	g.Release()
	assert.Zero(t, dev.Allocated())
	assert.Nil(t, g.NodeBuffer())
	g.Release()
}

func TestGpuSyncWriteOrder(t *testing.T) {
	dev := &recordingDevice{MemoryDevice: renderer.NewMemoryDevice()}
	g, err := NewGpuSync(dev, 1024, nil)
	require.NoError(t, err)
	defer g.Release()
	tree := viewedSphere(t)

	// Growing set: records before the count.
	_, err = g.Sync(tree, 1)
	require.NoError(t, err)
	assert.Equal(t, []renderer.Buffer{g.NodeBuffer(), g.ParamsBuffer()}, dev.written)

	// Shrinking set: count before the records.
	dev.written = nil
	changed := tree.Update(octree.DefaultVoxelSize, 1, mgl32.Vec3{0, 0, 5000})
	_, err = g.Sync(tree, changed)
	require.NoError(t, err)
	assert.Equal(t, []renderer.Buffer{g.ParamsBuffer(), g.NodeBuffer()}, dev.written)

	// Same count: the params uniform is left alone.
	dev.written = nil
	g.Invalidate()
	_, err = g.Sync(tree, 0)
	require.NoError(t, err)
	assert.Equal(t, []renderer.Buffer{g.NodeBuffer()}, dev.written)
}

func TestGpuSyncShrinkWithFailedParamsWrite(t *testing.T) {
	dev := &recordingDevice{MemoryDevice: renderer.NewMemoryDevice()}
	g, err := NewGpuSync(dev, 1024, nil)
	require.NoError(t, err)
	defer g.Release()
	tree := viewedSphere(t)
	big := tree.ActiveCount()

	_, err = g.Sync(tree, 1)
	require.NoError(t, err)
	nodesBefore, ok := dev.Contents(g.NodeBuffer())
	require.True(t, ok)

	dev.fail = g.ParamsBuffer()
	changed := tree.Update(octree.DefaultVoxelSize, 1, mgl32.Vec3{0, 0, 5000})
	res, err := g.Sync(tree, changed)
	require.Error(t, err)
	assert.False(t, res.Synced)
	assert.True(t, g.Pending())

	// Neither buffer moved: the old count still covers only old records.
	nodesAfter, _ := dev.Contents(g.NodeBuffer())
	assert.Equal(t, nodesBefore, nodesAfter)
	assert.Equal(t, (&octree.GPUCloudParams{Count: uint32(big)}).Marshal(), paramsBytes(t, dev.MemoryDevice, g))

	dev.fail = nil
	res, err = g.Sync(tree, 0)
	require.NoError(t, err)
	assert.True(t, res.Synced)
	assert.Equal(t, (&octree.GPUCloudParams{Count: uint32(tree.ActiveCount())}).Marshal(), paramsBytes(t, dev.MemoryDevice, g))
}
