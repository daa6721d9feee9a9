// Package transfer implements the asynchronous cross-device buffer
// transfer engine: it moves a shaped device buffer from one accelerator to
// another over the device interconnect, without routing through host
// memory.
//
// The engine assumes a strictly hierarchical topology: both devices are
// attached to the same host. Transfers between devices on different hosts
// are out of scope and must take the host network path.
package transfer

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/tensor"
)

// Config carries the engine settings fixed at construction time.
type Config struct {
	// AutoClustering enables always-on compilation clustering at device
	// registration. Stored for registration glue; the transfer path does
	// not read it.
	AutoClustering bool

	// FailureClosesDevice requests that an unrecoverable device failure
	// close the device. Stored for registration glue.
	FailureClosesDevice bool

	// UseSubstreams selects pooled substreams for cross-device transfers
	// instead of the dedicated device-to-device stream.
	UseSubstreams bool
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		FailureClosesDevice: true,
		UseSubstreams:       true,
	}
}

// DoneFn receives the outcome of a transfer. It fires exactly once, and it
// is the only channel through which outcomes are reported; AsyncCopy never
// returns a status synchronously.
type DoneFn func(error)

// Engine orchestrates device-to-device copies.
type Engine struct {
	platform device.Platform
	cfg      Config
}

// New creates a transfer engine for the given platform.
func New(platform device.Platform, cfg Config) *Engine {
	return &Engine{platform: platform, cfg: cfg}
}

// Config returns the engine's settings.
func (e *Engine) Config() Config {
	return e.cfg
}

// AsyncCopy copies input's device buffer from src to dst over the device
// interconnect. output must be pre-declared with matching element type and
// shape but unallocated. The copy is asynchronous: AsyncCopy returns once
// all commands are enqueued, and done fires exactly once when the transfer
// completes or fails. done may run on the runtime's callback dispatch.
func (e *Engine) AsyncCopy(src, dst device.Device, srcCtx, dstCtx *Context,
	srcAttrs, dstAttrs AllocAttrs, input, output *tensor.Tensor,
	streamIndex int, done DoneFn) {
	if err := e.enqueueCopy(src, dst, srcCtx, dstCtx, input, output, streamIndex, done); err != nil {
		done(err)
	}
}

// enqueueCopy validates and enqueues one transfer. A nil return means the
// outcome has been arranged: either done already fired (trivial successes)
// or it will fire from the deferred host callback. A non-nil return means
// nothing observable happened yet and the caller must report the error.
func (e *Engine) enqueueCopy(src, dst device.Device, srcCtx, dstCtx *Context,
	input, output *tensor.Tensor, streamIndex int, done DoneFn) error {
	if src.Name() != dst.Name() {
		if !e.platform.Initialized() {
			done(errors.Wrap(ErrPrecondition, "the device subsystem has not been initialized"))
			return nil
		}
	}
	if input.NumElements() == 0 {
		// Zero-element tensors have no backing buffers.
		done(nil)
		return nil
	}

	srcComputeStream := src.ComputeStream()
	if srcComputeStream == nil {
		return errors.Wrap(ErrInternal, "source device has no compute stream")
	}
	if input.DType() != output.DType() {
		return errors.Wrapf(ErrTypeMismatch, "input type: %s output type: %s",
			input.DType(), output.DType())
	}
	if !input.Shape().Equal(output.Shape()) {
		return errors.Wrapf(ErrShapeMismatch, "input shape: %v output shape: %v",
			input.Shape(), output.Shape())
	}
	if !input.CanUseDMA() {
		return errors.Wrap(ErrInternal, "source tensor is not eligible for DMA copies")
	}

	dstComputeStream := dst.ComputeStream()
	if srcComputeStream.SameMemoryLocation(dstComputeStream) {
		// Both logical devices alias one physical memory; sharing the
		// backing buffer is the whole copy.
		output.ShareFrom(input)
		done(nil)
		return nil
	}

	// To avoid stream exhaustion, pick a substream from a pool if enabled.
	var master device.Stream
	var d2dStream device.Stream
	if e.cfg.UseSubstreams {
		master = dst.DeviceToDeviceStream(0)
		sub, err := master.Substream()
		if err != nil {
			return errors.Wrap(ErrInternal, err.Error())
		}
		d2dStream = sub
	} else {
		d2dStream = dst.DeviceToDeviceStream(streamIndex)
	}
	if d2dStream == nil {
		return errors.Wrap(ErrInternal, "no device-to-device stream available")
	}

	// The substream must go back to its pool on every exit path. Ownership
	// of the release moves into the completion callback once it is
	// attached; until then the armed cleanup covers error returns.
	returnSubstream := func() {
		if master != nil {
			master.ReturnSubstream(d2dStream)
		}
	}
	armed := true
	defer func() {
		if armed {
			returnSubstream()
		}
	}()

	if !input.HasShapedBuffer() {
		return errors.Wrap(ErrInternal, "source tensor has no shaped buffer")
	}
	if output.HasShapedBuffer() {
		return errors.Wrap(ErrInternal, "destination tensor already has a shaped buffer")
	}

	phys, err := dstCtx.Representation(input.Shape(), input.DType(), false)
	if err != nil {
		return errors.Wrap(ErrAllocation, err.Error())
	}
	if err := output.AllocateShapedBuffer(dst, phys); err != nil {
		return errors.Wrap(ErrAllocation, err.Error())
	}

	inputBuf := input.ShapedBuffer()
	outputBuf := output.ShapedBuffer()
	klog.V(2).Infof("device to device copy: src %d dst %d input %s output %s",
		src.Ordinal(), dst.Ordinal(), inputBuf, outputBuf)

	// Wait for the definition event of the source tensor so the input
	// buffers are fully written before any leaf copy reads them.
	input.WaitForDefinitionEventOnStream(d2dStream)

	// Wait for the destination buffers to be ready if they are not
	// available for an immediate write.
	if !dstCtx.Manager.CanBeAccessedNow(dst, outputBuf) {
		d2dStream.WaitFor(dstComputeStream)
		// A tuple representation also needs the index table buffers to be
		// available on the destination host-to-device stream.
		if outputBuf.OnDeviceShape().IsTuple() {
			dst.HostToDeviceStream().WaitFor(dstComputeStream)
		}
	}

	for _, leaf := range inputBuf.Leaves() {
		outMem, ok := outputBuf.Buffer(leaf.Index)
		if !ok {
			return errors.Wrapf(ErrInternal, "destination has no buffer at %v", leaf.Index)
		}
		if leaf.Memory.Size() != outMem.Size() {
			return errors.Wrapf(ErrInternal, "leaf %v size mismatch: input %d output %d",
				leaf.Index, leaf.Memory.Size(), outMem.Size())
		}
		if err := d2dStream.EnqueueCopy(leaf.Memory, outMem); err != nil {
			return errors.Wrapf(ErrInternal, "enqueueing leaf copy at %v: %s", leaf.Index, err)
		}
	}

	// If the on-device shape is a tuple, write new index tables and make
	// the chosen stream wait for the stream that wrote them, so the single
	// definition event covers both the leaves and the tables.
	if outputBuf.OnDeviceShape().IsTuple() {
		h2dStream := dst.HostToDeviceStream()
		if err := dstCtx.Manager.WriteIndexTablesAsync(h2dStream, outputBuf); err != nil {
			return errors.Wrap(ErrInternal, err.Error())
		}
		d2dStream.WaitFor(h2dStream)
	}

	definitionEvent, err := dst.NewEvent()
	if err != nil {
		return errors.Wrap(ErrEventInit, err.Error())
	}
	d2dStream.RecordEvent(definitionEvent)
	output.ResetDefinitionEvent(definitionEvent, d2dStream)

	// The input must stay alive until the transfer completes, so hold a
	// reference until the deferred callback observes completion. The
	// callback rides the destination stream: when this function returns
	// the copies may not have reached the source stream yet.
	input.Ref()
	armed = false
	d2dStream.DoHostCallback(func() {
		returnSubstream()
		input.Unref()
		done(nil)
	})

	return nil
}
