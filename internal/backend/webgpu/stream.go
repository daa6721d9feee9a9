//go:build windows

package webgpu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/weft-ml/weft/internal/device"
)

const streamQueueDepth = 256

// Stream is a host-sequenced command stream over the shared WebGPU queue.
// Operations execute in enqueue order on a worker goroutine; each copy
// submits its own command buffer, and the queue executes submissions in
// order.
type Stream struct {
	dev  *Device
	name string

	ops  chan func()
	done chan struct{}

	pending atomic.Int64

	pool *device.SubstreamPool
}

var _ device.Stream = (*Stream)(nil)

func newStream(dev *Device, name string) *Stream {
	s := &Stream{
		dev:  dev,
		name: name,
		ops:  make(chan func(), streamQueueDepth),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Stream) loop() {
	for op := range s.ops {
		op()
		s.pending.Add(-1)
	}
	close(s.done)
}

func (s *Stream) enqueue(op func()) {
	s.pending.Add(1)
	s.ops <- op
}

// Close stops the stream's worker after draining enqueued work.
func (s *Stream) Close() {
	close(s.ops)
	<-s.done
}

// Parent returns the owning device.
func (s *Stream) Parent() device.Device { return s.dev }

// Idle reports whether the stream has no pending operations.
func (s *Stream) Idle() bool { return s.pending.Load() == 0 }

// EnqueueCopy enqueues a buffer-to-buffer copy on the GPU queue.
func (s *Stream) EnqueueCopy(src, dst device.Memory) error {
	from, ok := src.(*Memory)
	if !ok {
		return fmt.Errorf("webgpu: source memory belongs to another runtime")
	}
	to, ok := dst.(*Memory)
	if !ok {
		return fmt.Errorf("webgpu: destination memory belongs to another runtime")
	}
	if from.size != to.size {
		return fmt.Errorf("webgpu: copy size mismatch: src %d dst %d", from.size, to.size)
	}
	if from.size == 0 {
		return nil
	}
	rt := s.dev.rt
	s.enqueue(func() {
		encoder := rt.device.CreateCommandEncoder(nil)
		encoder.CopyBufferToBuffer(from.buf, 0, to.buf, 0, uint64(from.size))
		cmdBuffer := encoder.Finish(nil)
		rt.queue.Submit(cmdBuffer)
	})
	return nil
}

// WriteBytes enqueues a host-to-device write through a mapped-at-creation
// staging buffer.
func (s *Stream) WriteBytes(data []byte, dst device.Memory) error {
	to, ok := dst.(*Memory)
	if !ok {
		return fmt.Errorf("webgpu: destination memory belongs to another runtime")
	}
	if len(data) != to.size {
		return fmt.Errorf("webgpu: write size mismatch: data %d dst %d", len(data), to.size)
	}
	if len(data) == 0 {
		return nil
	}
	snapshot := make([]byte, len(data))
	copy(snapshot, data)
	rt := s.dev.rt
	s.enqueue(func() {
		size := uint64(len(snapshot))
		staging := rt.device.CreateBuffer(&wgpu.BufferDescriptor{
			Usage:            wgpu.BufferUsageCopySrc,
			Size:             size,
			MappedAtCreation: wgpu.True,
		})
		mappedPtr := staging.GetMappedRange(0, size)
		//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
		mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
		copy(mappedSlice, snapshot)
		staging.Unmap()

		encoder := rt.device.CreateCommandEncoder(nil)
		encoder.CopyBufferToBuffer(staging, 0, to.buf, 0, size)
		cmdBuffer := encoder.Finish(nil)
		rt.queue.Submit(cmdBuffer)
		staging.Release()
	})
	return nil
}

// WaitFor makes this stream wait for all work enqueued on other so far.
func (s *Stream) WaitFor(other device.Stream) {
	o, ok := other.(*Stream)
	if !ok || o == s {
		return
	}
	marker := newEvent()
	o.enqueue(marker.signal)
	s.enqueue(marker.wait)
}

// WaitForEvent makes this stream wait until ev is signaled.
func (s *Stream) WaitForEvent(ev device.Event) {
	e := ev.(*Event)
	s.enqueue(e.wait)
}

// RecordEvent signals ev when the stream reaches this point.
func (s *Stream) RecordEvent(ev device.Event) {
	e := ev.(*Event)
	s.enqueue(e.signal)
}

// DoHostCallback runs fn once all previously enqueued operations on this
// stream have been submitted in order.
func (s *Stream) DoHostCallback(fn func()) {
	s.enqueue(fn)
}

// Substream checks an auxiliary stream out of this stream's pool.
func (s *Stream) Substream() (device.Stream, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("webgpu: stream %q has no substream pool", s.name)
	}
	return s.pool.Checkout()
}

// ReturnSubstream returns a checked-out substream to the pool.
func (s *Stream) ReturnSubstream(sub device.Stream) {
	if s.pool != nil {
		s.pool.Return(sub)
	}
}

// SameMemoryLocation reports whether both streams address memory of the
// same underlying WebGPU device.
func (s *Stream) SameMemoryLocation(other device.Stream) bool {
	o, ok := other.(*Stream)
	if !ok {
		return false
	}
	return s.dev.rt == o.dev.rt && s.dev.aliasGroup == o.dev.aliasGroup
}

// Event is a one-shot synchronization token for host-sequenced streams.
type Event struct {
	ch   chan struct{}
	once sync.Once
}

var _ device.Event = (*Event)(nil)

func newEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

func (e *Event) signal() {
	e.once.Do(func() { close(e.ch) })
}

func (e *Event) wait() {
	<-e.ch
}

// Signaled reports whether the record point has been reached.
func (e *Event) Signaled() bool {
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}
