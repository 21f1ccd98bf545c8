//go:build opencl

// Package opencl registers the OpenCL compute backend. It is only built with
// -tags opencl since it needs an OpenCL ICD loader at link time.
package opencl

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"sirius/internal/compute"
)

// Enabled reports whether the OpenCL backend was compiled in.
const Enabled = true

func init() {
	compute.RegisterBackend(backend{})
}

type backend struct{}

func (backend) Name() string { return "opencl" }

func (backend) Platforms() ([]compute.Platform, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	out := make([]compute.Platform, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, &platform{p: p})
	}
	return out, nil
}

type platform struct {
	p *cl.Platform
}

func (p *platform) Name() string { return p.p.Name() }

func (p *platform) Devices(t compute.DeviceType) ([]compute.Device, error) {
	devices, err := p.p.GetDevices(toCLType(t))
	if errors.Is(err, cl.ErrDeviceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]compute.Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, &device{d: d})
	}
	return out, nil
}

func toCLType(t compute.DeviceType) cl.DeviceType {
	if t == compute.DeviceTypeAll {
		return cl.DeviceTypeAll
	}
	var out cl.DeviceType
	if t&compute.DeviceTypeCPU != 0 {
		out |= cl.DeviceTypeCPU
	}
	if t&compute.DeviceTypeGPU != 0 {
		out |= cl.DeviceTypeGPU
	}
	if t&compute.DeviceTypeAccelerator != 0 {
		out |= cl.DeviceTypeAccelerator
	}
	return out
}

type device struct {
	d *cl.Device
}

func (d *device) Name() string { return d.d.Name() }

func (d *device) Type() compute.DeviceType {
	t := d.d.Type()
	switch {
	case t&cl.DeviceTypeGPU != 0:
		return compute.DeviceTypeGPU
	case t&cl.DeviceTypeAccelerator != 0:
		return compute.DeviceTypeAccelerator
	}
	return compute.DeviceTypeCPU
}

func (d *device) CreateContext() (compute.DeviceContext, error) {
	ctx, err := cl.CreateContext([]*cl.Device{d.d})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	return &context{ctx: ctx, device: d.d}, nil
}

type context struct {
	ctx    *cl.Context
	device *cl.Device
}

func (c *context) CreateQueue() (compute.Queue, error) {
	q, err := c.ctx.CreateCommandQueue(c.device, 0)
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	return &queue{q: q}, nil
}

func (c *context) CreateProgram(source string) (compute.Program, error) {
	p, err := c.ctx.CreateProgramWithSource([]string{source})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL program: %w", err)
	}
	return &program{p: p, device: c.device}, nil
}

func (c *context) CreateBuffer(size int) (compute.Buffer, error) {
	m, err := c.ctx.CreateEmptyBuffer(cl.MemReadOnly, size)
	if err != nil {
		return nil, fmt.Errorf("allocating buffer: %w", err)
	}
	return &buffer{m: m, size: size}, nil
}

func (c *context) CreateImage(width, height int) (compute.Image, error) {
	m, err := c.ctx.CreateImageSimple(cl.MemWriteOnly, width, height, cl.ChannelOrderRGBA, cl.ChannelDataTypeFloat, nil)
	if err != nil {
		return nil, fmt.Errorf("allocating %dx%d image: %w", width, height, err)
	}
	return &image{m: m, width: width, height: height}, nil
}

func (c *context) Release() {
	if c.ctx != nil {
		c.ctx.Release()
		c.ctx = nil
	}
}

type program struct {
	p      *cl.Program
	device *cl.Device
}

func (p *program) Build(options string) error {
	err := p.p.BuildProgram([]*cl.Device{p.device}, options)
	if err == nil {
		return nil
	}
	var buildErr cl.BuildError
	if errors.As(err, &buildErr) {
		return &compute.BuildError{Device: p.device.Name(), Log: string(buildErr)}
	}
	return fmt.Errorf("building OpenCL program: %w", err)
}

func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	k, err := p.p.CreateKernel(name)
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL kernel %s: %w", name, err)
	}
	return &kernel{k: k}, nil
}

func (p *program) Release() {
	if p.p != nil {
		p.p.Release()
		p.p = nil
	}
}

type kernel struct {
	k *cl.Kernel
}

func (k *kernel) SetArg(index int, arg any) error {
	switch a := arg.(type) {
	case *buffer:
		return k.k.SetArgBuffer(index, a.m)
	case *image:
		return k.k.SetArgBuffer(index, a.m)
	case int32:
		return k.k.SetArgInt32(index, a)
	case uint32:
		return k.k.SetArgUint32(index, a)
	case float32:
		return k.k.SetArgFloat32(index, a)
	}
	return fmt.Errorf("unsupported kernel argument %d of type %T", index, arg)
}

func (k *kernel) Release() {
	if k.k != nil {
		k.k.Release()
		k.k = nil
	}
}

type buffer struct {
	m    *cl.MemObject
	size int
}

func (b *buffer) Size() int { return b.size }

func (b *buffer) Release() {
	if b.m != nil {
		b.m.Release()
		b.m = nil
	}
}

type image struct {
	m             *cl.MemObject
	width, height int
}

func (im *image) Width() int  { return im.width }
func (im *image) Height() int { return im.height }

func (im *image) Release() {
	if im.m != nil {
		im.m.Release()
		im.m = nil
	}
}

type queue struct {
	q *cl.CommandQueue
}

func (q *queue) WriteBuffer(buf compute.Buffer, blocking bool, data []byte) error {
	b, ok := buf.(*buffer)
	if !ok {
		return fmt.Errorf("writing buffer: %T is not an OpenCL buffer", buf)
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := q.q.EnqueueWriteBuffer(b.m, blocking, 0, len(data), unsafe.Pointer(&data[0]), nil); err != nil {
		return fmt.Errorf("writing buffer: %w", err)
	}
	return nil
}

func (q *queue) Dispatch(k compute.Kernel, global, local int) error {
	kern, ok := k.(*kernel)
	if !ok {
		return fmt.Errorf("dispatch: %T is not an OpenCL kernel", k)
	}
	var localSize []int
	if local > 0 {
		localSize = []int{local}
	}
	if _, err := q.q.EnqueueNDRangeKernel(kern.k, nil, []int{global}, localSize, nil); err != nil {
		return fmt.Errorf("enqueueing kernel: %w", err)
	}
	return nil
}

func (q *queue) ReadImage(img compute.Image, blocking bool, dst []float32) error {
	im, ok := img.(*image)
	if !ok {
		return fmt.Errorf("reading image: %T is not an OpenCL image", img)
	}
	n := im.width * im.height * 4
	if len(dst) < n {
		return fmt.Errorf("reading image: destination holds %d floats, image has %d", len(dst), n)
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&dst[0])), n*4)
	origin := [3]int{0, 0, 0}
	region := [3]int{im.width, im.height, 1}
	if _, err := q.q.EnqueueReadImage(im.m, blocking, origin, region, im.width*16, 0, raw, nil); err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	return nil
}

func (q *queue) Finish() error {
	return q.q.Finish()
}

func (q *queue) Release() {
	if q.q != nil {
		q.q.Release()
		q.q = nil
	}
}
