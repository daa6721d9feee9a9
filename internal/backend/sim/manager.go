package sim

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/weft-ml/weft/internal/buffer"
	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/shape"
	"github.com/weft-ml/weft/internal/transfer"
)

// TransferManager implements the transfer-manager collaborator for the
// sim runtime.
type TransferManager struct{}

var _ transfer.Manager = (*TransferManager)(nil)

// NewTransferManager creates a transfer manager for sim devices.
func NewTransferManager() *TransferManager {
	return &TransferManager{}
}

// CanBeAccessedNow reports whether the buffer's memory is immediately safe
// to write: in the simulation, whenever the device's compute stream has no
// pending work that could still be using it.
func (m *TransferManager) CanBeAccessedNow(dev device.Device, b *buffer.ShapedBuffer) bool {
	d, ok := dev.(*Device)
	if !ok {
		return false
	}
	return d.compute.Idle()
}

// WriteIndexTablesAsync enqueues, on stream s, a host-to-device write of
// the index table of every tuple node in b: one little-endian 64-bit
// member address per entry.
func (m *TransferManager) WriteIndexTablesAsync(s device.Stream, b *buffer.ShapedBuffer) error {
	var werr error
	b.OnDeviceShape().Walk(func(at shape.Index, node *shape.Physical) {
		if werr != nil || !node.IsTuple() {
			return
		}
		mem, ok := b.Buffer(at)
		if !ok {
			werr = errors.Errorf("sim: tuple node %v has no index table allocation", at)
			return
		}
		table := make([]byte, node.NumElements()*shape.IndexTableEntrySize)
		for i := 0; i < node.NumElements(); i++ {
			child, ok := b.Buffer(at.Child(i))
			if !ok {
				werr = errors.Errorf("sim: tuple member %v has no allocation", at.Child(i))
				return
			}
			binary.LittleEndian.PutUint64(table[i*shape.IndexTableEntrySize:], child.Address())
		}
		werr = s.WriteBytes(table, mem)
	})
	return werr
}
