package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Context owns the GPU device and queue used by the convolution
// pipeline. A process creates exactly one Context at startup and closes
// it at shutdown; there is no runtime re-negotiation or CPU fallback.
type Context struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	adapterName string

	// external is true when the device and queue were adopted from a
	// display provider. Close must not destroy adopted handles.
	external bool
	closed   bool
}

// halProvider is the side-interface a gpucontext.DeviceProvider
// implements when it can hand out its raw HAL handles. The any returns
// keep the display package free of a hard HAL dependency.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewContext creates a standalone Vulkan device for compute use.
// It prefers a discrete GPU, then an integrated one. When no adapter is
// usable it returns ErrDeviceNotFound; callers treat that as fatal.
func NewContext() (*Context, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrDeviceNotFound)
	}

	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrDeviceNotFound
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: open device: %w", err)
	}

	c := &Context{
		instance:    instance,
		device:      openDev.Device,
		queue:       openDev.Queue,
		adapterName: selected.Info.Name,
	}

	slogger().Info("gpu: context initialized",
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType)
	return c, nil
}

// NewSharedContext adopts the device and queue of a display provider so
// compute and display work share one GPU device. This is the required
// setup for SharedImage output: buffers created on this context are
// visible to the display side without any copy.
//
// The provider must also expose HAL handles (HalDevice/HalQueue) beyond
// the base DeviceProvider contract; otherwise NewSharedContext returns
// ErrInteropUnsupported and the caller should fall back to the readback
// path.
func NewSharedContext(provider gpucontext.DeviceProvider) (*Context, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrInteropUnsupported)
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrInteropUnsupported
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrInteropUnsupported)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrInteropUnsupported)
	}

	c := &Context{
		device:      device,
		queue:       queue,
		adapterName: "shared",
		external:    true,
	}

	slogger().Info("gpu: context adopted shared device")
	return c, nil
}

// Device returns the HAL device. Nil after Close.
func (c *Context) Device() hal.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// Queue returns the HAL queue. Nil after Close.
func (c *Context) Queue() hal.Queue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue
}

// AdapterName returns the name of the selected adapter.
func (c *Context) AdapterName() string { return c.adapterName }

// Close releases the device and instance in reverse order of creation.
// Adopted handles from a shared provider are not destroyed; they belong
// to the display subsystem. Close is idempotent.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if !c.external {
		if c.device != nil {
			c.device.Destroy()
		}
		if c.instance != nil {
			c.instance.Destroy()
		}
	}
	c.device = nil
	c.queue = nil
	c.instance = nil
	c.closed = true

	slogger().Debug("gpu: context closed", "shared", c.external)
}
