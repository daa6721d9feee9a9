//go:build windows

// Package webgpu implements the Weft device-runtime interfaces on WebGPU.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU
// bindings. Logical devices share one WebGPU adapter queue; command
// streams are host-sequenced FIFOs whose operations submit to that queue,
// which executes submissions in order.
package webgpu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/weft-ml/weft/internal/device"
)

// Runtime owns the WebGPU instance, adapter, device and queue that back a
// set of logical Weft devices.
type Runtime struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	mu          sync.Mutex
	initialized bool
	nextAddr    atomic.Uint64
}

var _ device.Platform = (*Runtime)(nil)

// NewRuntime initializes WebGPU and returns a runtime ready to create
// logical devices. Call Release when done to free GPU resources.
func NewRuntime() (rt *Runtime, err error) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			rt = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	dev, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	rt = &Runtime{
		instance:    instance,
		adapter:     adapter,
		device:      dev,
		queue:       queue,
		initialized: true,
	}
	return rt, nil
}

// Initialized reports whether the runtime is usable.
func (rt *Runtime) Initialized() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.initialized
}

// Release frees all GPU resources held by the runtime.
func (rt *Runtime) Release() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.initialized {
		return
	}
	rt.initialized = false
	rt.device.Release()
	rt.adapter.Release()
	rt.instance.Release()
}

// allocate creates a GPU buffer usable as copy source and destination.
func (rt *Runtime) allocate(size int) (*Memory, error) {
	if size < 0 {
		return nil, fmt.Errorf("webgpu: negative allocation size %d", size)
	}
	// WebGPU rejects zero-sized buffers; index tables of empty tuples and
	// empty leaves still need a distinct address.
	allocSize := uint64(size)
	if allocSize == 0 {
		allocSize = 4
	}
	buf := rt.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  allocSize,
	})
	if buf == nil {
		return nil, fmt.Errorf("webgpu: buffer allocation of %d bytes failed", size)
	}
	return &Memory{rt: rt, buf: buf, size: size, addr: rt.nextAddr.Add(1)}, nil
}

// Memory is a region of GPU memory backed by a wgpu buffer. WebGPU does
// not expose raw device addresses, so regions carry synthetic handles that
// stand in for addresses in tuple index tables.
type Memory struct {
	rt   *Runtime
	buf  *wgpu.Buffer
	size int
	addr uint64
}

var _ device.Memory = (*Memory)(nil)

// Size returns the region size in bytes.
func (m *Memory) Size() int { return m.size }

// Address returns the region's synthetic device handle.
func (m *Memory) Address() uint64 { return m.addr }

// Release frees the underlying GPU buffer.
func (m *Memory) Release() {
	m.buf.Release()
}

// ReadBytes copies the region's contents back to the host through a
// mapped staging buffer. Intended for verification and debugging; it
// blocks until the copy completes.
func (m *Memory) ReadBytes() ([]byte, error) {
	if m.size == 0 {
		return nil, nil
	}
	size := uint64(m.size)
	staging := m.rt.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := m.rt.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(m.buf, 0, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	m.rt.queue.Submit(cmdBuffer)

	if err := staging.MapAsync(m.rt.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.Unmap()
	return result, nil
}
