// Package buffer implements shaped device buffers: tree-structured
// on-device allocations addressed by shape-index paths, with tuple nodes
// holding index tables of member addresses.
package buffer

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/shape"
)

// Leaf pairs a shape index with the device memory backing it.
type Leaf struct {
	Index  shape.Index
	Memory device.Memory
}

// ShapedBuffer owns one device memory region per node of its physical
// shape tree. Leaves hold array data; tuple nodes hold index tables that
// must be written before nested members can be dereferenced.
//
// Node order is the deterministic preorder of the shape tree, so leaf
// iteration order is reproducible for a given shape.
type ShapedBuffer struct {
	onDeviceShape *shape.Physical
	ordinal       int

	order   []shape.Index
	buffers map[string]device.Memory
}

// Allocate materializes a shaped buffer for phys on dev: every node of the
// shape tree gets a backing allocation of its byte size. Leaves hold no
// valid data yet and tuple index tables are unwritten.
func Allocate(dev device.Device, phys *shape.Physical) (*ShapedBuffer, error) {
	b := &ShapedBuffer{
		onDeviceShape: phys,
		ordinal:       dev.Ordinal(),
		buffers:       make(map[string]device.Memory),
	}
	var allocErr error
	phys.Walk(func(at shape.Index, node *shape.Physical) {
		if allocErr != nil {
			return
		}
		mem, err := dev.Allocate(node.ByteSize())
		if err != nil {
			allocErr = errors.Wrapf(err, "allocating %d bytes for %s at %v on %s",
				node.ByteSize(), node, at, dev.Name())
			return
		}
		b.order = append(b.order, at.Clone())
		b.buffers[at.String()] = mem
	})
	if allocErr != nil {
		return nil, allocErr
	}
	return b, nil
}

// OnDeviceShape returns the physical shape the buffer is laid out by.
func (b *ShapedBuffer) OnDeviceShape() *shape.Physical {
	return b.onDeviceShape
}

// Ordinal returns the device ordinal the buffer lives on.
func (b *ShapedBuffer) Ordinal() int {
	return b.ordinal
}

// Buffer returns the memory backing the node at the given index.
func (b *ShapedBuffer) Buffer(at shape.Index) (device.Memory, bool) {
	mem, ok := b.buffers[at.String()]
	return mem, ok
}

// Leaves returns the leaf allocations in deterministic shape-index order.
func (b *ShapedBuffer) Leaves() []Leaf {
	var leaves []Leaf
	for _, at := range b.order {
		node, err := b.onDeviceShape.Node(at)
		if err != nil || node.IsTuple() {
			continue
		}
		leaves = append(leaves, Leaf{Index: at, Memory: b.buffers[at.String()]})
	}
	return leaves
}

// String renders the buffer for debug logging.
func (b *ShapedBuffer) String() string {
	var sb strings.Builder
	sb.WriteString("ShapedBuffer(")
	sb.WriteString(b.onDeviceShape.String())
	sb.WriteString(", ordinal=")
	sb.WriteString(strconv.Itoa(b.ordinal))
	sb.WriteString(")")
	return sb.String()
}
