package sim

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-ml/weft/internal/buffer"
	"github.com/weft-ml/weft/internal/shape"
)

// flush blocks until everything enqueued on s so far has executed.
func flush(s *Stream) {
	done := make(chan struct{})
	s.DoHostCallback(func() { close(done) })
	<-done
}

func TestStreamFIFOOrder(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 100; i++ {
		i := i
		dev.compute.DoHostCallback(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	flush(dev.compute)

	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestWriteBytesAndCopy(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	src, err := dev.Allocate(8)
	require.NoError(t, err)
	dst, err := dev.Allocate(8)
	require.NoError(t, err)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, dev.h2d.WriteBytes(data, src))
	flush(dev.h2d)
	assert.Equal(t, data, src.(*Memory).Bytes())

	d2d := dev.d2d[0]
	require.NoError(t, d2d.EnqueueCopy(src, dst))
	flush(d2d)
	assert.Equal(t, data, dst.(*Memory).Bytes())
}

func TestWriteBytesSnapshots(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	dst, err := dev.Allocate(4)
	require.NoError(t, err)

	data := []byte{1, 2, 3, 4}
	require.NoError(t, dev.h2d.WriteBytes(data, dst))
	// Mutating the caller's slice after enqueue must not change what
	// lands on the device.
	data[0] = 99
	flush(dev.h2d)
	assert.Equal(t, []byte{1, 2, 3, 4}, dst.(*Memory).Bytes())
}

func TestCopySizeMismatch(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	small, err := dev.Allocate(4)
	require.NoError(t, err)
	big, err := dev.Allocate(8)
	require.NoError(t, err)

	err = dev.d2d[0].EnqueueCopy(small, big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size mismatch")

	err = dev.h2d.WriteBytes([]byte{1, 2}, big)
	require.Error(t, err)
}

func TestWaitForOrdersAcrossStreams(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	gate := make(chan struct{})
	var mu sync.Mutex
	var order []string

	dev.h2d.DoHostCallback(func() {
		<-gate
		mu.Lock()
		order = append(order, "producer")
		mu.Unlock()
	})
	dev.compute.WaitFor(dev.h2d)
	dev.compute.DoHostCallback(func() {
		mu.Lock()
		order = append(order, "consumer")
		mu.Unlock()
	})

	close(gate)
	flush(dev.compute)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"producer", "consumer"}, order)
}

func TestEvents(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	ev, err := dev.NewEvent()
	require.NoError(t, err)
	assert.False(t, ev.Signaled())

	gate := make(chan struct{})
	dev.h2d.DoHostCallback(func() { <-gate })
	dev.h2d.RecordEvent(ev)

	ran := make(chan struct{})
	dev.compute.WaitForEvent(ev)
	dev.compute.DoHostCallback(func() { close(ran) })

	select {
	case <-ran:
		t.Fatal("waiter ran before the event was recorded")
	default:
	}

	close(gate)
	<-ran
	assert.True(t, ev.Signaled())
}

func TestEventInitFailure(t *testing.T) {
	dev := NewDevice(Options{FailEventInit: true})
	defer dev.Close()

	var reported error
	dev.SetErrorCallback(func(err error) { reported = err })

	_, err := dev.NewEvent()
	require.Error(t, err)
	assert.Equal(t, err, reported, "init failure must reach the error callback")
}

func TestSameMemoryLocation(t *testing.T) {
	a := NewDevice(Options{Ordinal: 0})
	defer a.Close()
	alias := NewDevice(Options{Ordinal: 1, ShareArenaWith: a})
	defer alias.Close()
	b := NewDevice(Options{Ordinal: 2})
	defer b.Close()

	assert.True(t, a.compute.SameMemoryLocation(alias.compute))
	assert.False(t, a.compute.SameMemoryLocation(b.compute))
	assert.True(t, a.compute.SameMemoryLocation(a.h2d))
}

func TestDeviceToDeviceStreamClamping(t *testing.T) {
	dev := NewDevice(Options{DeviceToDeviceStreams: 2})
	defer dev.Close()

	assert.Equal(t, dev.d2d[0], dev.DeviceToDeviceStream(-1))
	assert.Equal(t, dev.d2d[1], dev.DeviceToDeviceStream(1))
	assert.Equal(t, dev.d2d[1], dev.DeviceToDeviceStream(99))
}

func TestSubstreams(t *testing.T) {
	dev := NewDevice(Options{Substreams: 2})
	defer dev.Close()

	master := dev.d2d[0]
	sub, err := master.Substream()
	require.NoError(t, err)
	assert.Equal(t, dev, sub.Parent())
	master.ReturnSubstream(sub)

	stats := master.Pool().Stats()
	assert.Equal(t, uint64(1), stats.Checkouts)
	assert.Equal(t, uint64(1), stats.Returns)

	// Non-master streams have no pool.
	_, err = dev.compute.Substream()
	assert.Error(t, err)
}

func TestArenaExhaustion(t *testing.T) {
	dev := NewDevice(Options{MemoryBytes: 16})
	defer dev.Close()

	_, err := dev.Allocate(8)
	require.NoError(t, err)
	_, err = dev.Allocate(16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of device memory")
}

func TestMemoryAddressUnique(t *testing.T) {
	a := NewDevice(Options{Ordinal: 0})
	defer a.Close()
	b := NewDevice(Options{Ordinal: 1})
	defer b.Close()

	m1, err := a.Allocate(4)
	require.NoError(t, err)
	m2, err := b.Allocate(4)
	require.NoError(t, err)
	assert.NotEqual(t, m1.Address(), m2.Address(),
		"same offset on different arenas must map to different addresses")
}

func TestTransferManagerAccess(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	tm := NewTransferManager()
	b, err := buffer.Allocate(dev, shape.NewLeaf(shape.Float32, shape.Shape{4}))
	require.NoError(t, err)
	assert.True(t, tm.CanBeAccessedNow(dev, b))

	gate := make(chan struct{})
	dev.compute.DoHostCallback(func() { <-gate })
	assert.False(t, tm.CanBeAccessedNow(dev, b), "busy compute stream blocks immediate access")
	close(gate)
	flush(dev.compute)
	assert.True(t, tm.CanBeAccessedNow(dev, b))
}

func TestWriteIndexTablesAsync(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	phys := shape.NewTuple(
		shape.NewLeaf(shape.Float32, shape.Shape{2}),
		shape.NewLeaf(shape.Int64, shape.Shape{3}),
	)
	b, err := buffer.Allocate(dev, phys)
	require.NoError(t, err)

	tm := NewTransferManager()
	require.NoError(t, tm.WriteIndexTablesAsync(dev.h2d, b))
	flush(dev.h2d)

	root, ok := b.Buffer(shape.Index{})
	require.True(t, ok)
	table := root.(*Memory).Bytes()
	require.Len(t, table, 16)

	first, ok := b.Buffer(shape.Index{0})
	require.True(t, ok)
	second, ok := b.Buffer(shape.Index{1})
	require.True(t, ok)
	assert.Equal(t, first.Address(), binary.LittleEndian.Uint64(table[0:8]))
	assert.Equal(t, second.Address(), binary.LittleEndian.Uint64(table[8:16]))
}

func TestNewCluster(t *testing.T) {
	p, err := NewCluster(ClusterOptions{Devices: 3})
	require.NoError(t, err)
	defer p.Close()

	require.True(t, p.Initialized())
	devs := p.Devices()
	require.Len(t, devs, 3)
	assert.Equal(t, "/device:SIM:0", devs[0].Name())
	assert.Equal(t, "/device:SIM:2", devs[2].Name())
	assert.Equal(t, Kind, devs[1].Kind())

	_, err = NewCluster(ClusterOptions{})
	assert.Error(t, err)
}
