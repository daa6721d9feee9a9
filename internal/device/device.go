// Package device defines the runtime collaborator interfaces the Weft
// transfer engine issues work through: device memory regions, command
// streams, synchronization events, and the bounded substream pool.
//
// Implementations:
//   - backend/sim: in-process simulated devices (always available)
//   - backend/webgpu: GPU devices via WebGPU
package device

// Memory is a region of device memory. Regions are compared by address;
// the address is stable for the lifetime of the allocation and is what
// tuple index tables store.
type Memory interface {
	// Size returns the region size in bytes.
	Size() int
	// Address returns the device address of the region.
	Address() uint64
}

// Event is a synchronization token. It is recorded on exactly one stream
// and becomes signaled when that stream reaches the record point.
type Event interface {
	// Signaled reports whether the record point has been reached.
	Signaled() bool
}

// Stream is an ordered, asynchronous queue of device operations. All
// enqueue methods return immediately; operations execute in enqueue order.
// Cross-stream ordering exists only where WaitFor or WaitForEvent inserts
// it.
type Stream interface {
	// Parent returns the device that owns the stream.
	Parent() Device

	// EnqueueCopy enqueues a device-local copy from src to dst over the
	// device interconnect. The regions must be the same size.
	EnqueueCopy(src, dst Memory) error

	// WriteBytes enqueues a host-to-device write of data into dst. The
	// data is snapshotted at enqueue time.
	WriteBytes(data []byte, dst Memory) error

	// WaitFor makes this stream wait for all work enqueued on other so
	// far before executing anything enqueued after the call.
	WaitFor(other Stream)

	// WaitForEvent makes this stream wait until ev is signaled.
	WaitForEvent(ev Event)

	// RecordEvent signals ev when the stream reaches this point.
	RecordEvent(ev Event)

	// DoHostCallback runs fn on the host once all previously enqueued
	// operations on this stream have completed. fn runs on the runtime's
	// callback dispatch, not on the enqueueing goroutine.
	DoHostCallback(fn func())

	// Substream checks an auxiliary stream out of this stream's pool.
	// Only master device-to-device streams carry a pool; other streams
	// return an error.
	Substream() (Stream, error)

	// ReturnSubstream returns a stream obtained from Substream to the
	// pool. Must be called exactly once per checkout.
	ReturnSubstream(sub Stream)

	// SameMemoryLocation reports whether this stream and other address
	// the same underlying memory, in which case copies between them are
	// unnecessary.
	SameMemoryLocation(other Stream) bool
}

// Device is an addressable accelerator. Identity is compared by name.
type Device interface {
	// Name returns the fully qualified device name, e.g. "/device:SIM:0".
	Name() string
	// Kind returns the device kind, e.g. "SIM". Copy functions are
	// registered per (source kind, destination kind) pair.
	Kind() string
	// Ordinal returns the device ordinal within its platform.
	Ordinal() int

	// ComputeStream returns the primary compute stream.
	ComputeStream() Stream
	// DeviceToDeviceStream returns the index-th dedicated interconnect
	// stream. Indices out of range are clamped.
	DeviceToDeviceStream(index int) Stream
	// HostToDeviceStream returns the host-to-device staging stream.
	HostToDeviceStream() Stream

	// NewEvent creates an unrecorded event on the device.
	NewEvent() (Event, error)
	// Allocate allocates size bytes of device memory.
	Allocate(size int) (Memory, error)
}

// Platform reports whether the device subsystem has been initialized.
// Cross-device transfers require an initialized platform; a single-device
// setup does not.
type Platform interface {
	Initialized() bool
}
