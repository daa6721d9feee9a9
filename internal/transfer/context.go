package transfer

import (
	"github.com/weft-ml/weft/internal/buffer"
	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/shape"
)

// Manager is the transfer-manager collaborator of a device runtime.
type Manager interface {
	// CanBeAccessedNow reports whether b's memory on dev is immediately
	// safe to write, without waiting for in-flight compute work.
	CanBeAccessedNow(dev device.Device, b *buffer.ShapedBuffer) bool

	// WriteIndexTablesAsync enqueues, on the given host-to-device stream,
	// writes of the index table (member addresses) for every tuple node
	// of b.
	WriteIndexTablesAsync(s device.Stream, b *buffer.ShapedBuffer) error
}

// Context carries the per-device collaborators a transfer endpoint needs:
// the shape-representation function and the transfer manager of the
// device's runtime.
type Context struct {
	// Representation computes physical on-device shapes for this device.
	Representation shape.RepresentationFn
	// Manager is the runtime's transfer manager.
	Manager Manager
}

// AllocAttrs carries allocator attributes for one transfer endpoint.
// Device-to-device transfers never request fast memory.
type AllocAttrs struct {
	FastMemory bool
}
