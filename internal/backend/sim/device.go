package sim

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/shape"
	"github.com/weft-ml/weft/internal/tensor"
	"github.com/weft-ml/weft/internal/transfer"
)

// Kind is the device kind string simulated devices register under.
const Kind = "SIM"

const (
	defaultMemoryBytes = 16 << 20
	defaultSubstreams  = 4
	defaultD2DStreams  = 1
)

// Options configures one simulated device.
type Options struct {
	// Ordinal is the device ordinal within its platform.
	Ordinal int
	// MemoryBytes is the arena capacity. Defaults to 16 MiB. Small
	// values make allocation failures reachable.
	MemoryBytes int
	// Substreams bounds the substream pool per master stream. Defaults
	// to 4.
	Substreams int
	// DeviceToDeviceStreams is the number of master interconnect
	// streams. Defaults to 1.
	DeviceToDeviceStreams int
	// ShareArenaWith makes this logical device alias another device's
	// memory, so the two report the same memory location.
	ShareArenaWith *Device
	// FailEventInit injects event-initialization failures. Fault
	// injection hook for exercising error paths.
	FailEventInit bool
}

// Device is a simulated accelerator.
type Device struct {
	name    string
	ordinal int
	arena   *arena

	compute *Stream
	h2d     *Stream
	d2d     []*Stream

	platform      *Platform
	failEventInit bool
	onError       func(error)

	mu      sync.Mutex
	nextSub int
	subs    []*Stream // substreams ever created, for Close
}

var _ device.Device = (*Device)(nil)

// NewDevice creates a simulated device. The device is not usable for
// cross-device transfers until its platform is initialized.
func NewDevice(opts Options) *Device {
	if opts.MemoryBytes <= 0 {
		opts.MemoryBytes = defaultMemoryBytes
	}
	if opts.Substreams <= 0 {
		opts.Substreams = defaultSubstreams
	}
	if opts.DeviceToDeviceStreams <= 0 {
		opts.DeviceToDeviceStreams = defaultD2DStreams
	}

	d := &Device{
		name:          fmt.Sprintf("/device:%s:%d", Kind, opts.Ordinal),
		ordinal:       opts.Ordinal,
		failEventInit: opts.FailEventInit,
	}
	if opts.ShareArenaWith != nil {
		d.arena = opts.ShareArenaWith.arena
	} else {
		d.arena = newArena(opts.MemoryBytes)
	}
	d.compute = newStream(d, d.name+"/compute")
	d.h2d = newStream(d, d.name+"/h2d")
	for i := 0; i < opts.DeviceToDeviceStreams; i++ {
		master := newStream(d, fmt.Sprintf("%s/d2d:%d", d.name, i))
		max := opts.Substreams
		pool, err := device.NewSubstreamPool(max, func() (device.Stream, error) {
			return d.newSubstream(), nil
		})
		if err != nil {
			panic(err) // options are validated above
		}
		master.pool = pool
		d.d2d = append(d.d2d, master)
	}
	return d
}

func (d *Device) newSubstream() *Stream {
	d.mu.Lock()
	n := d.nextSub
	d.nextSub++
	d.mu.Unlock()
	s := newStream(d, fmt.Sprintf("%s/sub:%d", d.name, n))
	d.mu.Lock()
	d.subs = append(d.subs, s)
	d.mu.Unlock()
	return s
}

// Name returns the fully qualified device name.
func (d *Device) Name() string { return d.name }

// Kind returns the simulated device kind.
func (d *Device) Kind() string { return Kind }

// Ordinal returns the device ordinal.
func (d *Device) Ordinal() int { return d.ordinal }

// ComputeStream returns the primary compute stream.
func (d *Device) ComputeStream() device.Stream { return d.compute }

// HostToDeviceStream returns the host-to-device staging stream.
func (d *Device) HostToDeviceStream() device.Stream { return d.h2d }

// DeviceToDeviceStream returns the index-th master interconnect stream,
// clamping out-of-range indices.
func (d *Device) DeviceToDeviceStream(index int) device.Stream {
	if index < 0 {
		index = 0
	}
	if index >= len(d.d2d) {
		index = len(d.d2d) - 1
	}
	return d.d2d[index]
}

// NewEvent creates an unrecorded event on the device.
func (d *Device) NewEvent() (device.Event, error) {
	if d.failEventInit {
		err := errors.Errorf("event failed to initialize on %s", d.name)
		d.reportError(err)
		return nil, err
	}
	return newEvent(), nil
}

// Allocate allocates size bytes from the device arena.
func (d *Device) Allocate(size int) (device.Memory, error) {
	return d.arena.allocate(size)
}

// SetErrorCallback installs the handler invoked on unrecoverable device
// failures. The cluster factory wires this when FailureClosesDevice is
// set.
func (d *Device) SetErrorCallback(fn func(error)) {
	d.onError = fn
}

func (d *Device) reportError(err error) {
	if d.onError != nil {
		d.onError(err)
	}
}

// Close drains and stops all streams owned by the device.
func (d *Device) Close() {
	d.compute.Close()
	d.h2d.Close()
	for _, m := range d.d2d {
		if m.pool != nil {
			m.pool.Close()
		}
		m.Close()
	}
	d.mu.Lock()
	subs := d.subs
	d.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

// Platform tracks simulated devices and subsystem initialization.
type Platform struct {
	mu          sync.Mutex
	initialized bool
	devices     []*Device
	cfg         transfer.Config
}

var _ device.Platform = (*Platform)(nil)

// NewPlatform creates an uninitialized platform.
func NewPlatform() *Platform {
	return &Platform{cfg: transfer.DefaultConfig()}
}

// Initialize marks the device subsystem initialized. Single-device setups
// work without it; cross-device transfers require it.
func (p *Platform) Initialize() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = true
}

// Initialized reports whether the subsystem has been initialized.
func (p *Platform) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// Config returns the transfer configuration the platform was created with.
func (p *Platform) Config() transfer.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Devices returns the platform's devices.
func (p *Platform) Devices() []*Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Device(nil), p.devices...)
}

// Close shuts down every device on the platform.
func (p *Platform) Close() {
	for _, d := range p.Devices() {
		d.Close()
	}
}

// ClusterOptions configures NewCluster.
type ClusterOptions struct {
	// Devices is the number of simulated devices to create.
	Devices int
	// MemoryBytesPerDevice is each device's arena capacity.
	MemoryBytesPerDevice int
	// Substreams bounds each master stream's substream pool.
	Substreams int
	// Config is the transfer configuration for the cluster.
	Config transfer.Config
}

var registerOnce sync.Once

// NewCluster creates and initializes a platform with n simulated devices
// and registers the device-to-device copy function for the SIM kind.
func NewCluster(opts ClusterOptions) (*Platform, error) {
	if opts.Devices <= 0 {
		return nil, errors.Errorf("cluster needs at least one device, got %d", opts.Devices)
	}
	p := NewPlatform()
	p.cfg = opts.Config

	klog.V(1).Infof("creating %d sim devices", opts.Devices)
	for i := 0; i < opts.Devices; i++ {
		d := NewDevice(Options{
			Ordinal:     i,
			MemoryBytes: opts.MemoryBytesPerDevice,
			Substreams:  opts.Substreams,
		})
		d.platform = p
		if opts.Config.FailureClosesDevice {
			d.SetErrorCallback(func(err error) {
				klog.Errorf("closing %s after device failure: %v", d.Name(), err)
				d.Close()
			})
		}
		p.devices = append(p.devices, d)
	}
	p.Initialize()

	registerOnce.Do(func() {
		transfer.RegisterCopy(Kind, Kind, simDeviceToDeviceCopy)
	})
	return p, nil
}

// simDeviceToDeviceCopy adapts the registered copy entry point to a
// transfer engine bound to the source device's platform.
func simDeviceToDeviceCopy(src, dst device.Device, srcCtx, dstCtx *transfer.Context,
	srcAttrs, dstAttrs transfer.AllocAttrs, input, output *tensor.Tensor,
	streamIndex int, done transfer.DoneFn) {
	d, ok := src.(*Device)
	if !ok || d.platform == nil {
		done(errors.Wrap(transfer.ErrPrecondition, "source device is not a sim cluster device"))
		return
	}
	eng := transfer.New(d.platform, d.platform.Config())
	eng.AsyncCopy(src, dst, srcCtx, dstCtx, srcAttrs, dstAttrs, input, output, streamIndex, done)
}

// DefaultContext returns a transfer context wired to the sim runtime's
// shape representation and transfer manager.
func DefaultContext() *transfer.Context {
	return &transfer.Context{
		Representation: shape.DefaultRepresentation,
		Manager:        NewTransferManager(),
	}
}
