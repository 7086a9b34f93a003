package octree

import (
	"math"
	"time"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/Carmen-Shannon/oxy-sky/engine/density"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

const (
	// DefaultMaxDepth is the depth limit applied by NewOctreeInfo.
	DefaultMaxDepth uint32 = 20
	// DefaultDensityThreshold is the subdivision, raycast and debug threshold applied by NewOctreeInfo.
	DefaultDensityThreshold float32 = 0.2
	// DefaultHalfSize is the root half extent applied by NewOctreeInfo.
	DefaultHalfSize float32 = 100
	// DefaultMaxNodes bounds the arena when OctreeInfo.MaxNodes is zero.
	DefaultMaxNodes = 1 << 21

	maxArenaNodes uint64 = math.MaxUint32 - 1
)

// ErrConstruction is returned by Build when the configuration cannot produce a tree. No node is allocated.
var ErrConstruction = errors.New("octree construction failed")

// OctreeInfo holds the construction parameters of an octree. It is plain configuration and is never mutated by Build.
type OctreeInfo struct {
	MaxDepth         uint32
	HalfSize         float32
	DensityThreshold float32 // stop subdividing when max-min of the node samples is below this
	Generator        density.Field
	MaxNodes         int // arena budget; zero means DefaultMaxNodes
}

// OctreeInfoOption is a function that configures an OctreeInfo during construction.
type OctreeInfoOption func(*OctreeInfo)

// NewOctreeInfo creates construction parameters with defaults for every field except the generator.
//
// Parameters:
//   - options: variadic list of OctreeInfoOption functions to apply
//
// Returns:
//   - OctreeInfo: the configured parameters
func NewOctreeInfo(options ...OctreeInfoOption) OctreeInfo {
	info := OctreeInfo{
		MaxDepth:         DefaultMaxDepth,
		HalfSize:         DefaultHalfSize,
		DensityThreshold: DefaultDensityThreshold,
		MaxNodes:         DefaultMaxNodes,
	}
	for _, opt := range options {
		opt(&info)
	}
	return info
}

// WithMaxDepth is an option builder that sets the depth limit. Zero yields a single leaf root.
//
// Parameters:
//   - depth: the maximum node depth
//
// Returns:
//   - OctreeInfoOption: a function that applies the depth option
func WithMaxDepth(depth uint32) OctreeInfoOption {
	return func(i *OctreeInfo) {
		i.MaxDepth = depth
	}
}

// WithHalfSize is an option builder that sets the half extent of the root cube centered at the origin.
//
// Parameters:
//   - halfSize: the root half size, must be positive
//
// Returns:
//   - OctreeInfoOption: a function that applies the half size option
func WithHalfSize(halfSize float32) OctreeInfoOption {
	return func(i *OctreeInfo) {
		i.HalfSize = halfSize
	}
}

// WithDensityThreshold is an option builder that sets the subdivision stop criterion.
//
// Parameters:
//   - threshold: minimum sample spread that still subdivides
//
// Returns:
//   - OctreeInfoOption: a function that applies the threshold option
func WithDensityThreshold(threshold float32) OctreeInfoOption {
	return func(i *OctreeInfo) {
		i.DensityThreshold = threshold
	}
}

// WithGenerator is an option builder that sets the density field sampled by the build.
//
// Parameters:
//   - field: the density field
//
// Returns:
//   - OctreeInfoOption: a function that applies the generator option
func WithGenerator(field density.Field) OctreeInfoOption {
	return func(i *OctreeInfo) {
		i.Generator = field
	}
}

// WithMaxNodes is an option builder that bounds the arena size. Nodes that would exceed the budget stay leaves.
//
// Parameters:
//   - maxNodes: the node budget
//
// Returns:
//   - OctreeInfoOption: a function that applies the budget option
func WithMaxNodes(maxNodes int) OctreeInfoOption {
	return func(i *OctreeInfo) {
		i.MaxNodes = maxNodes
	}
}

// Validate checks the parameters without building anything.
//
// Returns:
//   - error: an error wrapping ErrConstruction, or nil
func (info OctreeInfo) Validate() error {
	if !common.Finite(info.HalfSize) || info.HalfSize <= 0 {
		return errors.Wrapf(ErrConstruction, "half size %v must be positive and finite", info.HalfSize)
	}
	if info.Generator == nil {
		return errors.Wrap(ErrConstruction, "no density generator")
	}
	if math.IsNaN(float64(info.DensityThreshold)) {
		return errors.Wrap(ErrConstruction, "density threshold is NaN")
	}
	if info.MaxNodes < 0 || uint64(info.MaxNodes) > maxArenaNodes {
		return errors.Wrapf(ErrConstruction, "node budget %d out of range", info.MaxNodes)
	}
	return nil
}

// Build constructs the whole tree synchronously. The root spans the cube of HalfSize centered at the origin.
// Each node samples its center and 8 corners; its density is their mean and it subdivides unless it is at
// MaxDepth or the sample spread is below DensityThreshold. All nodes start inactive.
//
// Returns:
//   - Octree: the built tree
//   - error: an error wrapping ErrConstruction if the parameters are invalid
func (info OctreeInfo) Build() (Octree, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	b := &builder{
		info:   info,
		budget: common.Coalesce(info.MaxNodes, DefaultMaxNodes),
	}
	b.nodes = make([]Node, 0, min(b.budget, 4096))

	root, spread := b.newNode(NoNode, mgl32.Vec3{}, info.HalfSize, 0)
	b.subdivide(root, spread)

	b.stats.Nodes = len(b.nodes)
	b.stats.Elapsed = time.Since(start)
	return &octreeImpl{
		nodes:    b.nodes,
		flags:    make([]bool, len(b.nodes)),
		maxDepth: info.MaxDepth,
		halfSize: info.HalfSize,
		field:    info.Generator,
		stats:    b.stats,
	}, nil
}

// builder carries the state of one Build call.
type builder struct {
	info   OctreeInfo
	budget int
	nodes  []Node
	stats  BuildStats
}

// sample reads the field through the non-finite guard and counts replacements.
func (b *builder) sample(p mgl32.Vec3) float32 {
	v, replaced := density.Sample(b.info.Generator, p)
	if replaced {
		b.stats.NonFiniteSamples++
	}
	return v
}

// newNode appends a leaf node and returns its index along with the spread (max - min) of its samples.
func (b *builder) newNode(parent NodeIndex, center mgl32.Vec3, halfSize float32, depth uint32) (NodeIndex, float32) {
	v := b.sample(center)
	lo, hi, sum := v, v, v
	for k := range 8 {
		v = b.sample(center.Add(OctantOffset(k).Mul(halfSize)))
		lo = min(lo, v)
		hi = max(hi, v)
		sum += v
	}

	idx := NodeIndex(len(b.nodes))
	b.nodes = append(b.nodes, Node{
		Index:    idx,
		Parent:   parent,
		Children: noChildren,
		Center:   center,
		HalfSize: halfSize,
		Depth:    depth,
		Density:  sum / 9,
	})
	b.stats.ReachedDepth = max(b.stats.ReachedDepth, depth)
	return idx, hi - lo
}

// subdivide either leaves idx as a leaf or allocates its 8 children contiguously and recurses into them in octant order.
// Recursion depth is bounded by MaxDepth.
func (b *builder) subdivide(idx NodeIndex, spread float32) {
	// Copy out: appends below may move the arena.
	n := b.nodes[idx]
	childHalf := n.HalfSize / 2
	if n.Depth >= b.info.MaxDepth || spread < b.info.DensityThreshold || childHalf <= 0 {
		b.stats.Leaves++
		return
	}
	if len(b.nodes)+8 > b.budget {
		b.stats.Leaves++
		b.stats.BudgetLeaves++
		return
	}

	var children [8]NodeIndex
	var spreads [8]float32
	for k := range 8 {
		children[k], spreads[k] = b.newNode(idx, childCenter(n.Center, childHalf, k), childHalf, n.Depth+1)
	}
	b.nodes[idx].Children = children

	for k, c := range children {
		b.subdivide(c, spreads[k])
	}
}
