// Package render drives the per-frame ray dispatch: it compiles the ray
// tracing kernel specialized to the active metric, generates camera rays,
// dispatches one work item per pixel and reads the image back. Device
// failures never escape Render; they produce a fallback frame instead.
package render

import (
	"errors"
	"fmt"
	"log/slog"

	"sirius/internal/compute"
	"sirius/internal/metric"
)

// Config holds the engine settings.
type Config struct {
	Width, Height int
	KernelPath    string
	// LocalSize is the work-group size. Zero, or a size that does not divide
	// Width*Height, lets the device choose.
	LocalSize  int
	FOVDegrees float64
	CameraZ    float64
	// FrameStep is the animation time added per rendered frame.
	FrameStep float64
}

func DefaultConfig() Config {
	return Config{
		Width:      800,
		Height:     600,
		KernelPath: "kernels/raytracer.cl",
		FOVDegrees: 60,
		CameraZ:    -5,
		FrameStep:  0.016,
	}
}

// Outcome says what a Render call did to the surface.
type Outcome int

const (
	// Skipped: no metric, surface untouched.
	Skipped Outcome = iota
	// Dispatched: the surface holds the kernel's output.
	Dispatched
	// Fallback: the surface holds the placeholder pattern.
	Fallback
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Dispatched:
		return "dispatched"
	case Fallback:
		return "fallback"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result reports one Render call. Err is set on a fallback frame, and on a
// dispatched frame whose recompilation failed while the previous kernel
// stayed in use.
type Result struct {
	Outcome    Outcome
	Recompiled bool
	Err        error
	Frame      uint64
}

var errNoKernel = errors.New("no kernel bound")

// Engine owns the device resources of one render target. It is not safe for
// concurrent use.
type Engine struct {
	ctx    *compute.Context
	cfg    Config
	logger *slog.Logger

	surface Surface
	rays    []Ray
	rayBuf  compute.Buffer
	image   compute.Image

	program      compute.Program
	kernel       compute.Kernel
	boundName    string
	boundOptions string
	stale        bool

	// The last recompilation that failed, so it is not retried every frame.
	failedName    string
	failedOptions string
	failedErr     error

	recompilations int
	frame          uint64
	inFallback     bool
}

// NewEngine allocates the surface, rays and device resources for
// cfg.Width×cfg.Height. No kernel is compiled until the first Render.
func NewEngine(ctx *compute.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid render size %dx%d", cfg.Width, cfg.Height)
	}
	e := &Engine{ctx: ctx, cfg: cfg, logger: logger}
	if err := e.allocate(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	logger.Info("render resources created", "width", cfg.Width, "height", cfg.Height, "rays", len(e.rays), "device", ctx.Info())
	return e, nil
}

func (e *Engine) allocate(w, h int) error {
	dev := e.ctx.DeviceContext()
	buf, err := dev.CreateBuffer(w * h * RaySize)
	if err != nil {
		return fmt.Errorf("allocating ray buffer: %w", err)
	}
	img, err := dev.CreateImage(w, h)
	if err != nil {
		buf.Release()
		return fmt.Errorf("allocating output image: %w", err)
	}
	e.releaseTargets()
	e.rayBuf = buf
	e.image = img
	e.rays = make([]Ray, w*h)
	e.surface = newSurface(w, h)
	e.cfg.Width, e.cfg.Height = w, h
	return nil
}

// Resize reallocates the surface, rays, ray buffer and image. The bound
// kernel is kept. On error the previous size stays in effect.
func (e *Engine) Resize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid render size %dx%d", w, h)
	}
	if w == e.cfg.Width && h == e.cfg.Height {
		return nil
	}
	if err := e.allocate(w, h); err != nil {
		return err
	}
	e.logger.Debug("render resources resized", "width", w, "height", h)
	return nil
}

// Surface returns the output raster. It is overwritten by the next Render.
func (e *Engine) Surface() *Surface { return &e.surface }

// Recompilations counts successful kernel builds.
func (e *Engine) Recompilations() int { return e.recompilations }

// Frame returns the number of frames rendered so far.
func (e *Engine) Frame() uint64 { return e.frame }

// BoundMetric returns the name the current kernel was compiled for, or "".
func (e *Engine) BoundMetric() string {
	if e.kernel == nil {
		return ""
	}
	return e.boundName
}

// Invalidate forces a rebuild on the next Render and forgets any remembered
// build failure, e.g. after the kernel source changed on disk.
func (e *Engine) Invalidate() {
	e.stale = true
	e.failedName, e.failedOptions, e.failedErr = "", "", nil
}

// Render produces one frame for m. A nil metric leaves the surface as is.
func (e *Engine) Render(m metric.Metric) (res Result) {
	if m == nil {
		return Result{Outcome: Skipped, Frame: e.frame}
	}
	e.frame++
	res.Frame = e.frame
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = Fallback
			res.Err = fmt.Errorf("render panic: %v", r)
			e.fallback(res.Err)
		}
	}()

	recompiled, buildErr := e.ensureKernel(m)
	res.Recompiled = recompiled
	if e.kernel == nil {
		res.Outcome = Fallback
		res.Err = buildErr
		if res.Err == nil {
			res.Err = errNoKernel
		}
		e.fallback(res.Err)
		return res
	}

	if err := e.dispatch(); err != nil {
		res.Outcome = Fallback
		res.Err = err
		e.fallback(err)
		return res
	}
	if e.inFallback {
		e.logger.Info("device rendering recovered", "metric", m.Name())
		e.inFallback = false
	}
	res.Outcome = Dispatched
	res.Err = buildErr
	return res
}

// ensureKernel recompiles when no kernel is bound, the metric changed, or its
// baked constants changed. A failed attempt is remembered until the inputs
// change or Invalidate is called; its error is returned on every frame it
// applies to.
func (e *Engine) ensureKernel(m metric.Metric) (bool, error) {
	name := m.Name()
	options, optErr := CompileOptions(m.Tensor(metric.Origin))
	if e.kernel != nil && !e.stale && name == e.boundName && optErr == nil && options == e.boundOptions {
		return false, nil
	}
	if e.failedErr != nil && name == e.failedName && options == e.failedOptions {
		return false, e.failedErr
	}
	err := optErr
	if err == nil {
		err = e.recompile(name, options)
	}
	if err != nil {
		e.failedName, e.failedOptions, e.failedErr = name, options, err
		var be *compute.BuildError
		if errors.As(err, &be) {
			e.logger.Error("kernel build failed", "metric", name, "device", be.Device, "log", be.Log)
		} else {
			e.logger.Error("kernel recompilation failed", "metric", name, "err", err)
		}
		return false, err
	}
	e.failedName, e.failedOptions, e.failedErr = "", "", nil
	return true, nil
}

func (e *Engine) recompile(name, options string) error {
	e.logger.Info("compiling kernel", "metric", name, "options", options)
	src, err := LoadKernelSource(e.cfg.KernelPath)
	if err != nil {
		return err
	}
	program, err := e.ctx.DeviceContext().CreateProgram(src)
	if err != nil {
		return err
	}
	if err := program.Build(options); err != nil {
		program.Release()
		return err
	}
	kernel, err := program.CreateKernel(KernelName)
	if err != nil {
		program.Release()
		return err
	}
	e.releaseKernel()
	e.program = program
	e.kernel = kernel
	e.boundName = name
	e.boundOptions = options
	e.stale = false
	e.recompilations++
	e.logger.Info("kernel compiled", "metric", name, "device", e.ctx.Device().Name())
	return nil
}

func (e *Engine) camera() Camera {
	return Camera{Z: float32(e.cfg.CameraZ), FOVDegrees: float32(e.cfg.FOVDegrees)}
}

func (e *Engine) dispatch() error {
	w, h := e.surface.Width, e.surface.Height
	setupRays(e.rays, w, h, e.camera())

	q := e.ctx.Queue()
	if err := q.WriteBuffer(e.rayBuf, false, rayBytes(e.rays)); err != nil {
		return fmt.Errorf("uploading rays: %w", err)
	}
	if err := e.kernel.SetArg(0, e.rayBuf); err != nil {
		return fmt.Errorf("binding ray buffer: %w", err)
	}
	if err := e.kernel.SetArg(1, e.image); err != nil {
		return fmt.Errorf("binding output image: %w", err)
	}
	global := w * h
	local := e.cfg.LocalSize
	if local > 0 && global%local != 0 {
		local = 0
	}
	if err := q.Dispatch(e.kernel, global, local); err != nil {
		return fmt.Errorf("dispatching %s: %w", KernelName, err)
	}
	if err := q.ReadImage(e.image, true, e.surface.Pix); err != nil {
		return fmt.Errorf("reading output image: %w", err)
	}
	if err := q.Finish(); err != nil {
		return fmt.Errorf("finishing queue: %w", err)
	}
	return nil
}

// fallback draws the placeholder pattern for the current frame. Only the
// transition into fallback is logged.
func (e *Engine) fallback(err error) {
	if !e.inFallback {
		e.logger.Warn("device rendering failed, drawing fallback pattern", "err", err)
		e.inFallback = true
	}
	drawFallback(&e.surface, float32(float64(e.frame)*e.cfg.FrameStep))
}

// Close releases the kernel and device resources. The compute context is
// owned by the caller.
func (e *Engine) Close() {
	e.releaseKernel()
	e.releaseTargets()
}

func (e *Engine) releaseKernel() {
	if e.kernel != nil {
		e.kernel.Release()
		e.kernel = nil
	}
	if e.program != nil {
		e.program.Release()
		e.program = nil
	}
}

func (e *Engine) releaseTargets() {
	if e.rayBuf != nil {
		e.rayBuf.Release()
		e.rayBuf = nil
	}
	if e.image != nil {
		e.image.Release()
		e.image = nil
	}
}
