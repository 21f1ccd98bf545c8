package compute

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPlatform means no compute platform was found at all.
	ErrNoPlatform = errors.New("no compute platforms available; install an OpenCL driver (check with `clinfo`) or enable the host platform")
	// ErrNoDevice means no platform exposes a usable device.
	ErrNoDevice = errors.New("no suitable compute devices found")
)

// Context is the selected platform and device together with one device
// context and one in-order queue. It is fixed for the session.
type Context struct {
	platform Platform
	device   Device
	dev      DeviceContext
	queue    Queue
}

// NewContext selects a device and creates its context and queue. The first
// platform exposing a GPU wins; failing that, the first device of any class on
// the first platform is used. Both failure modes are fatal to the caller.
func NewContext(platforms []Platform) (*Context, error) {
	platform, device, err := SelectDevice(platforms)
	if err != nil {
		return nil, err
	}
	dev, err := device.CreateContext()
	if err != nil {
		return nil, fmt.Errorf("creating device context on %s: %w", device.Name(), err)
	}
	queue, err := dev.CreateQueue()
	if err != nil {
		dev.Release()
		return nil, fmt.Errorf("creating command queue on %s: %w", device.Name(), err)
	}
	return &Context{platform: platform, device: device, dev: dev, queue: queue}, nil
}

// SelectDevice implements the selection policy of NewContext without
// creating anything.
func SelectDevice(platforms []Platform) (Platform, Device, error) {
	if len(platforms) == 0 {
		return nil, nil, ErrNoPlatform
	}
	for _, p := range platforms {
		devices, err := p.Devices(DeviceTypeGPU)
		if err != nil {
			continue
		}
		if len(devices) > 0 {
			return p, devices[0], nil
		}
	}
	p := platforms[0]
	devices, err := p.Devices(DeviceTypeAll)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: listing devices on %s: %v", ErrNoDevice, p.Name(), err)
	}
	if len(devices) == 0 {
		return nil, nil, fmt.Errorf("%w on platform %s", ErrNoDevice, p.Name())
	}
	return p, devices[0], nil
}

func (c *Context) Platform() Platform           { return c.platform }
func (c *Context) Device() Device               { return c.device }
func (c *Context) DeviceContext() DeviceContext { return c.dev }
func (c *Context) Queue() Queue                 { return c.queue }

// Info describes the selection for logs and the status overlay.
func (c *Context) Info() string {
	return fmt.Sprintf("%s on %s (%s)", c.device.Name(), c.platform.Name(), c.device.Type())
}

// Close releases the queue and device context.
func (c *Context) Close() {
	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.dev != nil {
		c.dev.Release()
		c.dev = nil
	}
}
