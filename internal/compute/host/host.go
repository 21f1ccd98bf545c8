// Package host is a compute platform that runs kernels on the host CPU.
// Kernels are Go functions registered by name; a program's source only
// selects which of them it exports, and its -D build options are handed to
// the kernel as compile-time constants.
package host

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"sirius/internal/compute"
)

// PlatformName is the name the host platform reports.
const PlatformName = "Go Host"

func init() {
	compute.RegisterBackend(Backend{})
}

// Backend supplies the single host platform.
type Backend struct{}

func (Backend) Name() string { return "host" }

// Fallback puts the host platform behind any hardware platform.
func (Backend) Fallback() bool { return true }

func (Backend) Platforms() ([]compute.Platform, error) {
	return []compute.Platform{Platform{}}, nil
}

type Platform struct{}

func (Platform) Name() string { return PlatformName }

func (Platform) Devices(t compute.DeviceType) ([]compute.Device, error) {
	if t&compute.DeviceTypeCPU == 0 {
		return nil, nil
	}
	return []compute.Device{Device{Workers: runtime.NumCPU()}}, nil
}

// Device executes work items on Workers goroutines.
type Device struct {
	Workers int
}

func (d Device) Name() string {
	return fmt.Sprintf("Go %s/%s (%d threads)", runtime.GOOS, runtime.GOARCH, d.workers())
}

func (Device) Type() compute.DeviceType { return compute.DeviceTypeCPU }

func (d Device) CreateContext() (compute.DeviceContext, error) {
	return &Context{device: d}, nil
}

func (d Device) workers() int {
	if d.Workers < 1 {
		return 1
	}
	return d.Workers
}

var errReleased = errors.New("use of released host object")

// Context is the host device context.
type Context struct {
	device   Device
	released bool
}

func (c *Context) CreateQueue() (compute.Queue, error) {
	if c.released {
		return nil, errReleased
	}
	return &Queue{workers: c.device.workers(), deviceName: c.device.Name()}, nil
}

func (c *Context) CreateProgram(source string) (compute.Program, error) {
	if c.released {
		return nil, errReleased
	}
	return &Program{source: source, deviceName: c.device.Name()}, nil
}

func (c *Context) CreateBuffer(size int) (compute.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", size)
	}
	return &Buffer{data: make([]byte, size)}, nil
}

func (c *Context) CreateImage(width, height int) (compute.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	return &Image{width: width, height: height, pix: make([]float32, width*height*4)}, nil
}

func (c *Context) Release() { c.released = true }

// Buffer is host memory standing in for a device buffer.
type Buffer struct {
	data     []byte
	released bool
}

func (b *Buffer) Size() int { return len(b.data) }

// Bytes exposes the buffer contents to kernels.
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) Release() {
	b.released = true
	b.data = nil
}

// Image is an RGBA float32 image, row-major.
type Image struct {
	width, height int
	pix           []float32
	released      bool
}

func (im *Image) Width() int  { return im.width }
func (im *Image) Height() int { return im.height }

// Set writes one pixel.
func (im *Image) Set(x, y int, rgba [4]float32) {
	i := (y*im.width + x) * 4
	copy(im.pix[i:i+4], rgba[:])
}

func (im *Image) Release() {
	im.released = true
	im.pix = nil
}

// Queue executes commands synchronously in submission order, so a
// non-blocking write has completed by the time the next command runs.
type Queue struct {
	workers    int
	deviceName string
	released   bool
}

func (q *Queue) WriteBuffer(buf compute.Buffer, _ bool, data []byte) error {
	if q.released {
		return errReleased
	}
	b, ok := buf.(*Buffer)
	if !ok {
		return fmt.Errorf("writing buffer: %T does not belong to the host platform", buf)
	}
	if b.released {
		return errReleased
	}
	if len(data) > len(b.data) {
		return fmt.Errorf("writing buffer: %d bytes exceed buffer size %d", len(data), len(b.data))
	}
	copy(b.data, data)
	return nil
}

func (q *Queue) Dispatch(k compute.Kernel, global, local int) error {
	if q.released {
		return errReleased
	}
	kern, ok := k.(*Kernel)
	if !ok {
		return fmt.Errorf("dispatch: %T does not belong to the host platform", k)
	}
	if global <= 0 {
		return fmt.Errorf("dispatch: invalid global work size %d", global)
	}
	if local < 0 || (local > 0 && global%local != 0) {
		return fmt.Errorf("dispatch: global size %d is not a multiple of work-group size %d", global, local)
	}
	inv, err := kern.invocation(global)
	if err != nil {
		return err
	}
	item, err := kern.fn(inv)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", kern.name, err)
	}
	q.run(global, item)
	return nil
}

// run splits the global range into contiguous chunks, one per worker.
func (q *Queue) run(global int, item func(gid int)) {
	workers := q.workers
	if workers > global {
		workers = global
	}
	per := (global + workers - 1) / workers
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * per
		if start >= global {
			break
		}
		end := start + per
		if end > global {
			end = global
		}
		wg.Add(1)
		go func(g0, g1 int) {
			defer wg.Done()
			for gid := g0; gid < g1; gid++ {
				item(gid)
			}
		}(start, end)
	}
	wg.Wait()
}

func (q *Queue) ReadImage(img compute.Image, _ bool, dst []float32) error {
	if q.released {
		return errReleased
	}
	im, ok := img.(*Image)
	if !ok {
		return fmt.Errorf("reading image: %T does not belong to the host platform", img)
	}
	if im.released {
		return errReleased
	}
	if len(dst) < len(im.pix) {
		return fmt.Errorf("reading image: destination holds %d floats, image has %d", len(dst), len(im.pix))
	}
	copy(dst, im.pix)
	return nil
}

func (q *Queue) Finish() error {
	if q.released {
		return errReleased
	}
	return nil
}

func (q *Queue) Release() { q.released = true }
