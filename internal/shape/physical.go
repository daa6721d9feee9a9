package shape

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// IndexTableEntrySize is the on-device size of one entry in a tuple index
// table: a 64-bit leaf address.
const IndexTableEntrySize = 8

// Index addresses a node inside a physical shape tree. The empty index is
// the root; each element selects a tuple member at the next level.
type Index []int

// Clone returns a copy of the index.
func (x Index) Clone() Index {
	clone := make(Index, len(x))
	copy(clone, x)
	return clone
}

// Child returns the index extended by one tuple-member selection.
func (x Index) Child(i int) Index {
	child := make(Index, len(x), len(x)+1)
	copy(child, x)
	return append(child, i)
}

// Equal checks if two indices address the same node.
func (x Index) Equal(other Index) bool {
	if len(x) != len(other) {
		return false
	}
	for i := range x {
		if x[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the index as "{0,1}". The root index renders as "{}".
func (x Index) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, v := range x {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(v))
	}
	sb.WriteByte('}')
	return sb.String()
}

// Physical describes the on-device representation of a buffer: either a
// leaf array of some element type, or a tuple of sub-shapes. Tuple nodes
// occupy device memory themselves (the index table of member addresses).
type Physical struct {
	dtype DataType
	dims  Shape
	elems []*Physical // non-nil marks a tuple node
}

// NewLeaf creates a leaf physical shape for an array of dtype elements.
func NewLeaf(dtype DataType, dims Shape) *Physical {
	return &Physical{dtype: dtype, dims: dims.Clone()}
}

// NewTuple creates a tuple physical shape from member shapes.
func NewTuple(elems ...*Physical) *Physical {
	return &Physical{elems: elems}
}

// IsTuple reports whether the node is a tuple.
func (p *Physical) IsTuple() bool {
	return p.elems != nil
}

// DType returns the element type of a leaf node.
// Panics when called on a tuple node.
func (p *Physical) DType() DataType {
	if p.IsTuple() {
		panic("shape: DType called on tuple node")
	}
	return p.dtype
}

// Dims returns the dimensions of a leaf node.
func (p *Physical) Dims() Shape {
	return p.dims
}

// NumElements returns the number of tuple members, or zero for a leaf.
func (p *Physical) NumElements() int {
	return len(p.elems)
}

// Element returns the i-th tuple member.
func (p *Physical) Element(i int) *Physical {
	return p.elems[i]
}

// ByteSize returns the device memory footprint of this node only: leaf
// nodes hold their array data, tuple nodes hold an index table with one
// address per member.
func (p *Physical) ByteSize() int {
	if p.IsTuple() {
		return len(p.elems) * IndexTableEntrySize
	}
	return p.dims.NumElements() * p.dtype.Size()
}

// Walk visits every node of the shape tree in preorder, parents before
// members, members in declaration order. Iteration order is deterministic
// for a given shape.
func (p *Physical) Walk(fn func(Index, *Physical)) {
	p.walk(Index{}, fn)
}

func (p *Physical) walk(at Index, fn func(Index, *Physical)) {
	fn(at, p)
	for i, e := range p.elems {
		e.walk(at.Child(i), fn)
	}
}

// Leaves returns the indices of all leaf nodes in deterministic preorder.
func (p *Physical) Leaves() []Index {
	var leaves []Index
	p.Walk(func(at Index, node *Physical) {
		if !node.IsTuple() {
			leaves = append(leaves, at.Clone())
		}
	})
	return leaves
}

// Node resolves an index to its node in the tree.
func (p *Physical) Node(at Index) (*Physical, error) {
	node := p
	for depth, i := range at {
		if !node.IsTuple() || i < 0 || i >= len(node.elems) {
			return nil, errors.Errorf("shape: index %v invalid at depth %d", at, depth)
		}
		node = node.elems[i]
	}
	return node, nil
}

// Equal checks structural equality of two physical shapes.
func (p *Physical) Equal(other *Physical) bool {
	if p.IsTuple() != other.IsTuple() {
		return false
	}
	if p.IsTuple() {
		if len(p.elems) != len(other.elems) {
			return false
		}
		for i := range p.elems {
			if !p.elems[i].Equal(other.elems[i]) {
				return false
			}
		}
		return true
	}
	return p.dtype == other.dtype && p.dims.Equal(other.dims)
}

// String renders the shape, e.g. "float32[2,3]" or "(float32[4],int32[2])".
func (p *Physical) String() string {
	if p.IsTuple() {
		parts := make([]string, len(p.elems))
		for i, e := range p.elems {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ",") + ")"
	}
	dims := make([]string, len(p.dims))
	for i, d := range p.dims {
		dims[i] = strconv.Itoa(d)
	}
	return p.dtype.String() + "[" + strings.Join(dims, ",") + "]"
}

// RepresentationFn computes the physical on-device shape for a logical
// shape and element type. The fastMemory hint selects a placement-optimized
// layout where a device supports one; device-to-device transfers always
// pass false.
type RepresentationFn func(dims Shape, dtype DataType, fastMemory bool) (*Physical, error)

// DefaultRepresentation lays a logical shape out as a single dense leaf.
func DefaultRepresentation(dims Shape, dtype DataType, fastMemory bool) (*Physical, error) {
	if err := dims.Validate(); err != nil {
		return nil, errors.Wrap(err, "shape: cannot represent")
	}
	return NewLeaf(dtype, dims), nil
}
