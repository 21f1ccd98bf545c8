// Package compute abstracts the compute platforms a kernel can be dispatched
// on. Backends register themselves from init, so a binary opts into a
// platform with a blank import:
//
//	import _ "sirius/internal/compute/opencl"
package compute

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// DeviceType classifies devices. Values form a bit set so a query for
// DeviceTypeAll matches every class.
type DeviceType uint32

const (
	DeviceTypeCPU DeviceType = 1 << iota
	DeviceTypeGPU
	DeviceTypeAccelerator

	DeviceTypeAll DeviceType = 0xFFFFFFFF
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeCPU:
		return "CPU"
	case DeviceTypeGPU:
		return "GPU"
	case DeviceTypeAccelerator:
		return "Accelerator"
	case DeviceTypeAll:
		return "All"
	}
	return fmt.Sprintf("DeviceType(%#x)", uint32(t))
}

// Platform is one compute implementation, e.g. an OpenCL vendor driver.
type Platform interface {
	Name() string
	// Devices lists devices of the given class. No matching device is not an
	// error: an empty slice is returned.
	Devices(t DeviceType) ([]Device, error)
}

type Device interface {
	Name() string
	Type() DeviceType
	CreateContext() (DeviceContext, error)
}

// DeviceContext owns device memory objects, programs and queues.
type DeviceContext interface {
	CreateQueue() (Queue, error)
	CreateProgram(source string) (Program, error)
	CreateBuffer(size int) (Buffer, error)
	// CreateImage allocates a write-only RGBA float32 2D image.
	CreateImage(width, height int) (Image, error)
	Release()
}

type Program interface {
	// Build compiles the program. A compiler failure is returned as
	// *BuildError carrying the device's build log.
	Build(options string) error
	CreateKernel(name string) (Kernel, error)
	Release()
}

type Kernel interface {
	// SetArg binds a Buffer, Image or scalar to argument index.
	SetArg(index int, arg any) error
	Release()
}

type Buffer interface {
	Size() int
	Release()
}

type Image interface {
	Width() int
	Height() int
	Release()
}

// Queue is an in-order command queue: commands complete in submission order.
type Queue interface {
	WriteBuffer(buf Buffer, blocking bool, data []byte) error
	// Dispatch enqueues global work items. A local size of zero lets the
	// implementation choose the work-group size.
	Dispatch(k Kernel, global, local int) error
	// ReadImage copies the whole image into dst as RGBA float32.
	ReadImage(img Image, blocking bool, dst []float32) error
	Finish() error
	Release()
}

// BuildError reports a kernel compilation failure.
type BuildError struct {
	Device string
	Log    string
}

func (e *BuildError) Error() string {
	log := strings.TrimSpace(e.Log)
	if log == "" {
		log = "(empty build log)"
	}
	return fmt.Sprintf("building kernel program for %s: %s", e.Device, log)
}

// Backend supplies platforms.
type Backend interface {
	Name() string
	Platforms() ([]Platform, error)
}

var (
	backendsMu sync.Mutex
	backends   []Backend
)

// RegisterBackend adds b. Backends are queried in registration order.
func RegisterBackend(b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	for i, existing := range backends {
		if existing.Name() == b.Name() {
			backends[i] = b
			return
		}
	}
	backends = append(backends, b)
}

// Backends returns the registered backends.
func Backends() []Backend {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	return append([]Backend(nil), backends...)
}

// A backend implementing Fallback and returning true is enumerated after
// all others, whatever its registration order.
type fallbacker interface {
	Fallback() bool
}

func isFallback(b Backend) bool {
	f, ok := b.(fallbacker)
	return ok && f.Fallback()
}

// Platforms enumerates the platforms of every registered backend. A backend
// that fails to enumerate is logged and skipped.
func Platforms(logger *slog.Logger) []Platform {
	var ordered []Backend
	var last []Backend
	for _, b := range Backends() {
		if isFallback(b) {
			last = append(last, b)
		} else {
			ordered = append(ordered, b)
		}
	}
	var out []Platform
	for _, b := range append(ordered, last...) {
		ps, err := b.Platforms()
		if err != nil {
			logger.Warn("compute backend unavailable", "backend", b.Name(), "err", err)
			continue
		}
		out = append(out, ps...)
	}
	return out
}

// FilterPlatforms keeps the platforms whose name contains substr,
// case-insensitively. An empty substr keeps everything.
func FilterPlatforms(platforms []Platform, substr string) []Platform {
	if substr == "" {
		return platforms
	}
	needle := strings.ToLower(substr)
	var out []Platform
	for _, p := range platforms {
		if strings.Contains(strings.ToLower(p.Name()), needle) {
			out = append(out, p)
		}
	}
	return out
}
