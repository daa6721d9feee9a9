package sim

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/weft-ml/weft/internal/device"
)

const streamQueueDepth = 1024

// Stream is a simulated command stream: a FIFO of operations drained by
// one worker goroutine, so enqueued operations execute in enqueue order.
// Cross-stream ordering exists only through WaitFor / WaitForEvent.
type Stream struct {
	dev  *Device
	name string

	ops  chan func()
	done chan struct{}

	pending  atomic.Int64 // enqueued but not yet executed
	enqueued atomic.Int64 // total operations ever enqueued

	// pool is non-nil only on master device-to-device streams.
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
	s.enqueued.Add(1)
	s.ops <- op
}

// Close stops the stream's worker after draining enqueued work.
func (s *Stream) Close() {
	close(s.ops)
	<-s.done
}

// Name returns the stream's debug name.
func (s *Stream) Name() string {
	return s.name
}

// Parent returns the owning device.
func (s *Stream) Parent() device.Device {
	return s.dev
}

// Idle reports whether the stream has no pending operations.
func (s *Stream) Idle() bool {
	return s.pending.Load() == 0
}

// OpsEnqueued returns the total number of operations ever enqueued.
func (s *Stream) OpsEnqueued() int64 {
	return s.enqueued.Load()
}

// EnqueueCopy enqueues a device-local copy over the simulated interconnect.
func (s *Stream) EnqueueCopy(src, dst device.Memory) error {
	from, ok := src.(*Memory)
	if !ok {
		return errors.New("sim: source memory belongs to another runtime")
	}
	to, ok := dst.(*Memory)
	if !ok {
		return errors.New("sim: destination memory belongs to another runtime")
	}
	if from.Size() != to.Size() {
		return errors.Errorf("sim: copy size mismatch: src %d dst %d", from.Size(), to.Size())
	}
	s.enqueue(func() {
		copy(to.Bytes(), from.Bytes())
	})
	return nil
}

// WriteBytes enqueues a host-to-device write. The data is snapshotted at
// enqueue time.
func (s *Stream) WriteBytes(data []byte, dst device.Memory) error {
	to, ok := dst.(*Memory)
	if !ok {
		return errors.New("sim: destination memory belongs to another runtime")
	}
	if len(data) != to.Size() {
		return errors.Errorf("sim: write size mismatch: data %d dst %d", len(data), to.Size())
	}
	snapshot := make([]byte, len(data))
	copy(snapshot, data)
	s.enqueue(func() {
		copy(to.Bytes(), snapshot)
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

// DoHostCallback runs fn on the stream worker once all previously
// enqueued operations have completed.
func (s *Stream) DoHostCallback(fn func()) {
	s.enqueue(fn)
}

// Substream checks an auxiliary stream out of this stream's pool.
func (s *Stream) Substream() (device.Stream, error) {
	if s.pool == nil {
		return nil, errors.Errorf("sim: stream %q has no substream pool", s.name)
	}
	return s.pool.Checkout()
}

// ReturnSubstream returns a checked-out substream to the pool.
func (s *Stream) ReturnSubstream(sub device.Stream) {
	if s.pool != nil {
		s.pool.Return(sub)
	}
}

// SameMemoryLocation reports whether both streams' devices share one
// memory arena.
func (s *Stream) SameMemoryLocation(other device.Stream) bool {
	o, ok := other.(*Stream)
	if !ok {
		return false
	}
	return s.dev.arena == o.dev.arena
}

// Pool exposes the substream pool of a master stream, or nil.
func (s *Stream) Pool() *device.SubstreamPool {
	return s.pool
}
