package octree

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUCloudNodeSource is the canonical WGSL definition of the CloudNode and CloudParams structs plus the
// stackless lookup used by the cloud fragment shader. Matches GPUNode and GPUCloudParams exactly.
//
//go:embed assets/cloud_node.wgsl
var GPUCloudNodeSource string

// GPUNode flag bits.
const (
	GPUNodeLeaf    uint32 = 1 << 0 // the node is a leaf of the tree
	GPUNodeRefined uint32 = 1 << 1 // the following records hold active children of this node
)

// GPUNodeSize is the size of one GPUNode record in bytes.
const GPUNodeSize = 32

// GPUNode is the GPU-aligned representation of one active node.
// Matches the WGSL CloudNode struct layout exactly (see GPUCloudNodeSource).
// Size: 32 bytes (std430 / WGSL aligned).
type GPUNode struct {
	Center   [3]float32 // offset  0: cube center (vec3<f32>)
	HalfSize float32    // offset 12: cube half extent
	Density  float32    // offset 16: node density
	Flags    uint32     // offset 20: GPUNodeLeaf | GPUNodeRefined
	Skip     uint32     // offset 24: index of the first record after this node's subtree
	Depth    uint32     // offset 28: tree depth
}

// Size returns the size of the GPUNode struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPUNode) Size() int {
	return int(unsafe.Sizeof(*g))
}

// MarshalTo serializes the record into buf, which must hold at least GPUNodeSize bytes.
//
// Parameters:
//   - buf: the destination buffer
func (g *GPUNode) MarshalTo(buf []byte) {
	_ = buf[GPUNodeSize-1]
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Center[i]))
	}
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(g.HalfSize))
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(g.Density))
	binary.LittleEndian.PutUint32(buf[20:], g.Flags)
	binary.LittleEndian.PutUint32(buf[24:], g.Skip)
	binary.LittleEndian.PutUint32(buf[28:], g.Depth)
}

// Marshal serializes the GPUNode struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUNode) Marshal() []byte {
	buf := make([]byte, GPUNodeSize)
	g.MarshalTo(buf)
	return buf
}

// MarshalNodes serializes records back to back, reusing dst when it is large enough.
//
// Parameters:
//   - nodes: the records to serialize
//   - dst: an optional scratch buffer
//
// Returns:
//   - []byte: exactly len(nodes)*GPUNodeSize bytes
func MarshalNodes(nodes []GPUNode, dst []byte) []byte {
	n := len(nodes) * GPUNodeSize
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for i := range nodes {
		nodes[i].MarshalTo(dst[i*GPUNodeSize:])
	}
	return dst
}

// GPUCloudParams is the GPU-aligned uniform telling the shader how many node records are valid.
// Records past Count are stale and must be ignored.
// Size: 16 bytes (uniform aligned).
type GPUCloudParams struct {
	Count uint32    // offset 0: number of valid CloudNode records
	_pad  [3]uint32 // offset 4: padding to 16 bytes
}

// Size returns the size of the GPUCloudParams struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (g *GPUCloudParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCloudParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCloudParams) Marshal() []byte {
	buf := make([]byte, g.Size())
	binary.LittleEndian.PutUint32(buf[0:], g.Count)
	return buf
}

// EncodeActive appends one record per active node to dst, in the same depth-first octant order as ActiveNodes.
// Each record's Skip points just past its active subtree so the shader can walk the list without a stack.
//
// Parameters:
//   - tree: the tree to encode
//   - dst: the slice to append to, may be nil
//
// Returns:
//   - []GPUNode: dst extended with the active records
func EncodeActive(tree Octree, dst []GPUNode) []GPUNode {
	root, ok := tree.Node(tree.Root())
	if !ok || !root.Active {
		return dst
	}
	return encodeNode(tree, root, dst)
}

func encodeNode(tree Octree, n Node, dst []GPUNode) []GPUNode {
	pos := len(dst)
	dst = append(dst, GPUNode{
		Center:   n.Center,
		HalfSize: n.HalfSize,
		Density:  n.Density,
		Depth:    n.Depth,
	})
	var flags uint32
	if n.IsLeaf() {
		flags |= GPUNodeLeaf
	} else {
		for _, ci := range n.Children {
			c, _ := tree.Node(ci)
			if c.Active {
				flags |= GPUNodeRefined
				dst = encodeNode(tree, c, dst)
			}
		}
	}
	dst[pos].Flags = flags
	dst[pos].Skip = uint32(len(dst))
	return dst
}
