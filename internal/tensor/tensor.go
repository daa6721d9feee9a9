// Package tensor provides the device tensor type for the Weft transfer
// engine: logical dtype/shape metadata bound to at most one shaped device
// buffer, with reference counting that keeps the backing memory alive
// while asynchronous transfers read from it.
package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/weft-ml/weft/internal/buffer"
	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/shape"
)

// Tensor is a logical array backed by at most one shaped device buffer.
// A tensor with zero elements has no backing buffer.
//
// The definition event marks which stream last produced valid data in the
// buffer; consumers must wait on it before reading. There is exactly one
// current definition event; resetting it invalidates the prior one.
type Tensor struct {
	dtype shape.DataType
	dims  shape.Shape

	// refs counts live references. It starts at 1 for the creator;
	// in-flight transfers hold an extra reference from enqueue until
	// their completion callback fires.
	refs atomic.Int32

	mu        sync.Mutex
	buf       *buffer.ShapedBuffer
	defEvent  device.Event
	defStream device.Stream

	// copyOnRead marks tensors whose backing memory is not eligible for
	// direct-memory-access style copies.
	copyOnRead bool
}

// New creates an unallocated tensor with the given element type and
// logical dimensions.
func New(dtype shape.DataType, dims shape.Shape) *Tensor {
	t := &Tensor{dtype: dtype, dims: dims.Clone()}
	t.refs.Store(1)
	return t
}

// DType returns the tensor's element type.
func (t *Tensor) DType() shape.DataType {
	return t.dtype
}

// Shape returns the tensor's logical dimensions.
func (t *Tensor) Shape() shape.Shape {
	return t.dims
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.dims.NumElements()
}

// HasShapedBuffer reports whether the tensor has a backing device buffer.
func (t *Tensor) HasShapedBuffer() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf != nil
}

// ShapedBuffer returns the backing device buffer, or nil.
func (t *Tensor) ShapedBuffer() *buffer.ShapedBuffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf
}

// SetShapedBuffer binds an already-allocated buffer to the tensor.
func (t *Tensor) SetShapedBuffer(b *buffer.ShapedBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = b
}

// AllocateShapedBuffer materializes a buffer of the given physical shape
// on dev and binds it to the tensor. All leaves are allocated; none hold
// valid data and no definition event is set.
func (t *Tensor) AllocateShapedBuffer(dev device.Device, phys *shape.Physical) error {
	b, err := buffer.Allocate(dev, phys)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = b
	return nil
}

// CanUseDMA reports whether the tensor's buffer may be read by a
// direct-memory-access style copy. Copy-on-read and deferred tensors are
// not eligible.
func (t *Tensor) CanUseDMA() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.copyOnRead
}

// MarkCopyOnRead marks the tensor as ineligible for DMA-style copies.
func (t *Tensor) MarkCopyOnRead() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.copyOnRead = true
}

// DefinitionEvent returns the current definition event, or nil if the
// buffer has never been defined.
func (t *Tensor) DefinitionEvent() device.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.defEvent
}

// ResetDefinitionEvent installs ev, recorded on s, as the single current
// definition event, replacing and invalidating any prior one.
func (t *Tensor) ResetDefinitionEvent(ev device.Event, s device.Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defEvent = ev
	t.defStream = s
}

// WaitForDefinitionEventOnStream makes s wait until the tensor's buffer
// contents are fully written. A tensor that was never defined needs no
// wait.
func (t *Tensor) WaitForDefinitionEventOnStream(s device.Stream) {
	t.mu.Lock()
	ev := t.defEvent
	t.mu.Unlock()
	if ev != nil {
		s.WaitForEvent(ev)
	}
}

// ShareFrom makes t share src's backing buffer and definition event. Used
// when source and destination alias the same memory location and no copy
// is needed.
func (t *Tensor) ShareFrom(src *Tensor) {
	src.mu.Lock()
	buf, ev, stream := src.buf, src.defEvent, src.defStream
	src.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = buf
	t.defEvent = ev
	t.defStream = stream
}

// Ref acquires an additional reference, keeping the backing buffer alive.
func (t *Tensor) Ref() {
	t.refs.Add(1)
}

// Unref releases one reference. When the count reaches zero the backing
// buffer binding is dropped.
func (t *Tensor) Unref() {
	if n := t.refs.Add(-1); n == 0 {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.buf = nil
		t.defEvent = nil
		t.defStream = nil
	} else if n < 0 {
		panic("tensor: Unref without matching Ref")
	}
}

// Refs returns the current reference count.
func (t *Tensor) Refs() int32 {
	return t.refs.Load()
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[%s]%v", t.dtype, t.dims)
}
