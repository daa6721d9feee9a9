//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/weft-ml/weft/internal/buffer"
	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/shape"
	"github.com/weft-ml/weft/internal/transfer"
)

// Kind is the device kind string WebGPU devices register under.
const Kind = "WEBGPU"

const defaultSubstreams = 4

// DeviceOptions configures one logical WebGPU device.
type DeviceOptions struct {
	Ordinal int
	// Substreams bounds the substream pool of the master interconnect
	// stream. Defaults to 4.
	Substreams int
	// AliasGroup assigns the device to a shared-memory group; devices in
	// the same group on the same runtime report the same memory
	// location. Defaults to the ordinal (no aliasing).
	AliasGroup int
}

// Device is a logical accelerator on a WebGPU runtime.
type Device struct {
	rt         *Runtime
	name       string
	ordinal    int
	aliasGroup int

	compute *Stream
	h2d     *Stream
	d2d     *Stream
}

var _ device.Device = (*Device)(nil)

// NewDevice creates a logical device on rt.
func NewDevice(rt *Runtime, opts DeviceOptions) (*Device, error) {
	if rt == nil || !rt.Initialized() {
		return nil, errors.New("webgpu: runtime is not initialized")
	}
	if opts.Substreams <= 0 {
		opts.Substreams = defaultSubstreams
	}
	d := &Device{
		rt:         rt,
		name:       fmt.Sprintf("/device:%s:%d", Kind, opts.Ordinal),
		ordinal:    opts.Ordinal,
		aliasGroup: opts.AliasGroup,
	}
	if opts.AliasGroup == 0 {
		d.aliasGroup = opts.Ordinal
	}
	d.compute = newStream(d, d.name+"/compute")
	d.h2d = newStream(d, d.name+"/h2d")
	d.d2d = newStream(d, d.name+"/d2d:0")
	pool, err := device.NewSubstreamPool(opts.Substreams, func() (device.Stream, error) {
		return newStream(d, d.name+"/sub"), nil
	})
	if err != nil {
		return nil, err
	}
	d.d2d.pool = pool
	return d, nil
}

// Name returns the fully qualified device name.
func (d *Device) Name() string { return d.name }

// Kind returns the WebGPU device kind.
func (d *Device) Kind() string { return Kind }

// Ordinal returns the device ordinal.
func (d *Device) Ordinal() int { return d.ordinal }

// ComputeStream returns the primary compute stream.
func (d *Device) ComputeStream() device.Stream { return d.compute }

// HostToDeviceStream returns the host-to-device staging stream.
func (d *Device) HostToDeviceStream() device.Stream { return d.h2d }

// DeviceToDeviceStream returns the master interconnect stream.
func (d *Device) DeviceToDeviceStream(index int) device.Stream { return d.d2d }

// NewEvent creates an unrecorded event.
func (d *Device) NewEvent() (device.Event, error) {
	return newEvent(), nil
}

// Allocate allocates a GPU buffer of size bytes.
func (d *Device) Allocate(size int) (device.Memory, error) {
	return d.rt.allocate(size)
}

// Close drains and stops the device's streams.
func (d *Device) Close() {
	d.compute.Close()
	d.h2d.Close()
	if d.d2d.pool != nil {
		d.d2d.pool.Close()
	}
	d.d2d.Close()
}

// TransferManager implements the transfer-manager collaborator for the
// WebGPU runtime.
type TransferManager struct{}

var _ transfer.Manager = (*TransferManager)(nil)

// NewTransferManager creates a transfer manager for WebGPU devices.
func NewTransferManager() *TransferManager {
	return &TransferManager{}
}

// CanBeAccessedNow reports whether the buffer's memory is immediately
// safe to write.
func (m *TransferManager) CanBeAccessedNow(dev device.Device, b *buffer.ShapedBuffer) bool {
	d, ok := dev.(*Device)
	if !ok {
		return false
	}
	return d.compute.Idle()
}

// WriteIndexTablesAsync enqueues writes of every tuple node's index table:
// one little-endian 64-bit member handle per entry.
func (m *TransferManager) WriteIndexTablesAsync(s device.Stream, b *buffer.ShapedBuffer) error {
	var werr error
	b.OnDeviceShape().Walk(func(at shape.Index, node *shape.Physical) {
		if werr != nil || !node.IsTuple() {
			return
		}
		mem, ok := b.Buffer(at)
		if !ok {
			werr = errors.Errorf("webgpu: tuple node %v has no index table allocation", at)
			return
		}
		table := make([]byte, node.NumElements()*shape.IndexTableEntrySize)
		for i := 0; i < node.NumElements(); i++ {
			child, ok := b.Buffer(at.Child(i))
			if !ok {
				werr = errors.Errorf("webgpu: tuple member %v has no allocation", at.Child(i))
				return
			}
			binary.LittleEndian.PutUint64(table[i*shape.IndexTableEntrySize:], child.Address())
		}
		werr = s.WriteBytes(table, mem)
	})
	return werr
}

// DefaultContext returns a transfer context wired to the WebGPU runtime's
// shape representation and transfer manager.
func DefaultContext() *transfer.Context {
	return &transfer.Context{
		Representation: shape.DefaultRepresentation,
		Manager:        NewTransferManager(),
	}
}
