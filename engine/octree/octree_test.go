package octree

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-sky/engine/density"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sphereField(t *testing.T) density.Field {
	t.Helper()
	f, err := density.New(density.GeneratorSphere, density.WithRadius(50), density.WithValue(1))
	require.NoError(t, err)
	return f
}

func buildSphere(t *testing.T, depth uint32) Octree {
	t.Helper()
	tree, err := NewOctreeInfo(
		WithHalfSize(100),
		WithMaxDepth(depth),
		WithGenerator(sphereField(t)),
	).Build()
	require.NoError(t, err)
	return tree
}

func TestBuildInvalid(t *testing.T) {
	field := sphereField(t)
	cases := map[string]OctreeInfo{
		"zero half size":     NewOctreeInfo(WithHalfSize(0), WithGenerator(field)),
		"negative half size": NewOctreeInfo(WithHalfSize(-1), WithGenerator(field)),
		"NaN half size":      NewOctreeInfo(WithHalfSize(math32.NaN()), WithGenerator(field)),
		"infinite half size": NewOctreeInfo(WithHalfSize(math32.Inf(1)), WithGenerator(field)),
		"no generator":       NewOctreeInfo(),
		"NaN threshold":      NewOctreeInfo(WithGenerator(field), WithDensityThreshold(math32.NaN())),
		"negative budget":    NewOctreeInfo(WithGenerator(field), WithMaxNodes(-1)),
	}
	for name, info := range cases {
		tree, err := info.Build()
		require.Error(t, err, name)
		assert.Nil(t, tree, name)
		assert.True(t, errors.Is(err, ErrConstruction), name)
	}
}

func TestBuildBudgetLimits(t *testing.T) {
	field := sphereField(t)
	info := NewOctreeInfo(WithGenerator(field), WithMaxNodes(math.MaxInt32))
	assert.NoError(t, info.Validate(), "any 32-bit int budget fits the arena")

	if math.MaxInt == math.MaxInt32 {
		t.Skip("int cannot exceed the arena")
	}
	huge := int64(math.MaxUint32)
	info = NewOctreeInfo(WithGenerator(field), WithMaxNodes(int(huge)))
	assert.True(t, errors.Is(info.Validate(), ErrConstruction))
}

func TestNewOctreeInfoDefaults(t *testing.T) {
	info := NewOctreeInfo()
	assert.Equal(t, DefaultMaxDepth, info.MaxDepth)
	assert.Equal(t, DefaultHalfSize, info.HalfSize)
	assert.Equal(t, DefaultDensityThreshold, info.DensityThreshold)
	assert.Equal(t, DefaultMaxNodes, info.MaxNodes)
	assert.Nil(t, info.Generator)
}

func TestBuildMaxDepthZero(t *testing.T) {
	tree := buildSphere(t, 0)
	require.Equal(t, 1, tree.Len())

	root, ok := tree.Node(tree.Root())
	require.True(t, ok)
	assert.True(t, root.IsLeaf())
	assert.Equal(t, NoNode, root.Parent)
	assert.Equal(t, uint32(0), root.Depth)
	assert.Equal(t, float32(100), root.HalfSize)
	assert.False(t, root.Active)
	assert.Equal(t, 1, tree.Stats().Leaves)
}

func TestBuildTopology(t *testing.T) {
	const depth = 4
	tree := buildSphere(t, depth)
	require.Greater(t, tree.Len(), 1)

	var leafVolume float64
	leaves := 0
	for n := range tree.Nodes() {
		assert.LessOrEqual(t, n.Depth, uint32(depth))
		assert.False(t, n.Active, "nodes start inactive")
		if n.IsLeaf() {
			leaves++
			leafVolume += float64(n.Volume())
			for _, c := range n.Children {
				assert.Equal(t, NoNode, c)
			}
			continue
		}
		for k, ci := range n.Children {
			c, ok := tree.Node(ci)
			require.True(t, ok, "node %d child %d", n.Index, k)
			assert.Equal(t, n.Index, c.Parent)
			assert.Equal(t, n.Depth+1, c.Depth)
			assert.Equal(t, n.HalfSize/2, c.HalfSize)
			assert.Equal(t, n.Center.Add(OctantOffset(k).Mul(c.HalfSize)), c.Center)
		}
	}

	root, _ := tree.Node(tree.Root())
	assert.InEpsilon(t, float64(root.Volume()), leafVolume, 1e-5)
	assert.Equal(t, tree.Stats().Leaves, leaves)
	assert.Equal(t, tree.Len(), tree.Stats().Nodes)
	assert.LessOrEqual(t, float64(leaves), math.Pow(8, depth))
	assert.LessOrEqual(t, float64(tree.Len()), (math.Pow(8, depth+1)-1)/7)
	assert.Equal(t, uint32(depth), tree.Stats().ReachedDepth)
}

func TestBuildIndicesStable(t *testing.T) {
	tree := buildSphere(t, 3)
	i := 0
	for n := range tree.Nodes() {
		assert.Equal(t, NodeIndex(i), n.Index)
		i++
	}
	_, ok := tree.Node(NodeIndex(tree.Len()))
	assert.False(t, ok)
	_, ok = tree.Node(NoNode)
	assert.False(t, ok)
}

func TestBuildDeterministic(t *testing.T) {
	build := func() Octree {
		f, err := density.New(density.GeneratorSimplex, density.WithSeed(42), density.WithFrequency(0.02))
		require.NoError(t, err)
		tree, err := NewOctreeInfo(WithHalfSize(50), WithMaxDepth(5), WithGenerator(f)).Build()
		require.NoError(t, err)
		return tree
	}
	a, b := build(), build()
	require.Equal(t, a.Len(), b.Len())
	for i := range a.Len() {
		na, _ := a.Node(NodeIndex(i))
		nb, _ := b.Node(NodeIndex(i))
		assert.Equal(t, na, nb)
	}
}

func TestBuildHomogeneousFieldIsSingleLeaf(t *testing.T) {
	f, err := density.New(density.GeneratorConstant, density.WithValue(0.6))
	require.NoError(t, err)
	tree, err := NewOctreeInfo(WithGenerator(f)).Build()
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Len())
	root, _ := tree.Node(0)
	assert.InDelta(t, 0.6, root.Density, 1e-6)
}

func TestBuildNonFiniteSamples(t *testing.T) {
	f := density.FieldFunc(func(p mgl32.Vec3) float32 {
		if p[0] > 0 {
			return math32.NaN()
		}
		return 0
	})
	tree, err := NewOctreeInfo(WithHalfSize(10), WithMaxDepth(3), WithGenerator(f)).Build()
	require.NoError(t, err)
	assert.Positive(t, tree.Stats().NonFiniteSamples)
	for n := range tree.Nodes() {
		assert.False(t, math32.IsNaN(n.Density))
		assert.GreaterOrEqual(t, n.Density, float32(0))
		assert.LessOrEqual(t, n.Density, density.FullyDense)
	}
}

func TestBuildNodeBudget(t *testing.T) {
	f, err := density.New(density.GeneratorConstant)
	require.NoError(t, err)
	// A negative threshold subdivides everything until the budget runs out.
	tree, err := NewOctreeInfo(
		WithGenerator(f),
		WithDensityThreshold(-1),
		WithMaxDepth(10),
		WithMaxNodes(100),
	).Build()
	require.NoError(t, err)
	assert.LessOrEqual(t, tree.Len(), 100)
	assert.Positive(t, tree.Stats().BudgetLeaves)
	for n := range tree.Nodes() {
		if !n.IsLeaf() {
			for _, c := range n.Children {
				assert.NotEqual(t, NoNode, c)
			}
		}
	}
}

func TestOctantOffset(t *testing.T) {
	seen := map[mgl32.Vec3]bool{}
	for k := range 8 {
		off := OctantOffset(k)
		for _, v := range off {
			assert.Equal(t, float32(1), math32.Abs(v))
		}
		seen[off] = true
	}
	assert.Len(t, seen, 8)
	assert.Equal(t, mgl32.Vec3{-1, -1, -1}, OctantOffset(0))
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, OctantOffset(7))
}
