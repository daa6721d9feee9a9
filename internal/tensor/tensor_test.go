package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-ml/weft/internal/backend/sim"
	"github.com/weft-ml/weft/internal/shape"
	"github.com/weft-ml/weft/internal/tensor"
)

func TestNew(t *testing.T) {
	tsr := tensor.New(shape.Float32, shape.Shape{2, 3})
	assert.Equal(t, shape.Float32, tsr.DType())
	assert.True(t, tsr.Shape().Equal(shape.Shape{2, 3}))
	assert.Equal(t, 6, tsr.NumElements())
	assert.False(t, tsr.HasShapedBuffer())
	assert.Equal(t, int32(1), tsr.Refs())
	assert.Equal(t, "Tensor[float32][2 3]", tsr.String())
}

func TestAllocateShapedBuffer(t *testing.T) {
	dev := sim.NewDevice(sim.Options{})
	defer dev.Close()

	tsr := tensor.New(shape.Float32, shape.Shape{16})
	phys, err := shape.DefaultRepresentation(tsr.Shape(), tsr.DType(), false)
	require.NoError(t, err)
	require.NoError(t, tsr.AllocateShapedBuffer(dev, phys))

	require.True(t, tsr.HasShapedBuffer())
	buf := tsr.ShapedBuffer()
	require.NotNil(t, buf)
	assert.Equal(t, dev.Ordinal(), buf.Ordinal())
}

func TestRefCounting(t *testing.T) {
	dev := sim.NewDevice(sim.Options{})
	defer dev.Close()

	tsr := tensor.New(shape.Int32, shape.Shape{4})
	phys, err := shape.DefaultRepresentation(tsr.Shape(), tsr.DType(), false)
	require.NoError(t, err)
	require.NoError(t, tsr.AllocateShapedBuffer(dev, phys))

	tsr.Ref()
	assert.Equal(t, int32(2), tsr.Refs())

	tsr.Unref()
	assert.Equal(t, int32(1), tsr.Refs())
	assert.True(t, tsr.HasShapedBuffer(), "buffer must survive while references remain")

	tsr.Unref()
	assert.Equal(t, int32(0), tsr.Refs())
	assert.False(t, tsr.HasShapedBuffer(), "last Unref drops the buffer binding")

	assert.Panics(t, func() { tsr.Unref() })
}

func TestCopyOnRead(t *testing.T) {
	tsr := tensor.New(shape.Float64, shape.Shape{8})
	assert.True(t, tsr.CanUseDMA())
	tsr.MarkCopyOnRead()
	assert.False(t, tsr.CanUseDMA())
}

func TestDefinitionEvent(t *testing.T) {
	dev := sim.NewDevice(sim.Options{})
	defer dev.Close()

	tsr := tensor.New(shape.Float32, shape.Shape{4})
	assert.Nil(t, tsr.DefinitionEvent())

	ev, err := dev.NewEvent()
	require.NoError(t, err)
	h2d := dev.HostToDeviceStream()
	h2d.RecordEvent(ev)
	tsr.ResetDefinitionEvent(ev, h2d)
	assert.Equal(t, ev, tsr.DefinitionEvent())

	ev2, err := dev.NewEvent()
	require.NoError(t, err)
	tsr.ResetDefinitionEvent(ev2, h2d)
	assert.Equal(t, ev2, tsr.DefinitionEvent(), "reset replaces the prior event")
}

func TestWaitForDefinitionEventUndefined(t *testing.T) {
	dev := sim.NewDevice(sim.Options{})
	defer dev.Close()

	stream := dev.ComputeStream().(*sim.Stream)
	before := stream.OpsEnqueued()

	// A tensor that was never defined needs no wait: nothing is enqueued.
	tsr := tensor.New(shape.Float32, shape.Shape{4})
	tsr.WaitForDefinitionEventOnStream(stream)
	assert.Equal(t, before, stream.OpsEnqueued())
}

func TestShareFrom(t *testing.T) {
	dev := sim.NewDevice(sim.Options{})
	defer dev.Close()

	src := tensor.New(shape.Float32, shape.Shape{4})
	phys, err := shape.DefaultRepresentation(src.Shape(), src.DType(), false)
	require.NoError(t, err)
	require.NoError(t, src.AllocateShapedBuffer(dev, phys))

	ev, err := dev.NewEvent()
	require.NoError(t, err)
	src.ResetDefinitionEvent(ev, dev.HostToDeviceStream())

	dst := tensor.New(shape.Float32, shape.Shape{4})
	dst.ShareFrom(src)

	assert.Same(t, src.ShapedBuffer(), dst.ShapedBuffer())
	assert.Equal(t, ev, dst.DefinitionEvent())
}
