package render

import (
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sirius/internal/compute"
	"sirius/internal/compute/host"
	"sirius/internal/metric"
)

const kernelFile = "../../kernels/raytracer.cl"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hostContext(t *testing.T) *compute.Context {
	t.Helper()
	ctx, err := compute.NewContext([]compute.Platform{host.Platform{}})
	require.NoError(t, err)
	t.Cleanup(ctx.Close)
	return ctx
}

func newEngine(t *testing.T, w, h int, kernelPath string) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = w, h
	cfg.KernelPath = kernelPath
	e, err := NewEngine(hostContext(t), cfg, discard())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func newMetric(t *testing.T, kind string, opts ...metric.Option) metric.Metric {
	t.Helper()
	m, err := metric.New(kind, opts...)
	require.NoError(t, err)
	return m
}

func writeKernel(t *testing.T, path, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
}

func requireFallback(t *testing.T, s *Surface) {
	t.Helper()
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			require.Equal(t, float32(1), s.At(x, y)[0], "red at (%d,%d)", x, y)
		}
	}
}

func TestRenderNilMetricIsNoop(t *testing.T) {
	e := newEngine(t, 4, 3, kernelFile)
	res := e.Render(nil)
	assert.Equal(t, Skipped, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Zero(t, e.Frame())
	for _, v := range e.Surface().Pix {
		require.Zero(t, v)
	}
}

func TestRenderMinkowskiDispatches(t *testing.T) {
	e := newEngine(t, 4, 3, kernelFile)
	res := e.Render(newMetric(t, "minkowski"))
	require.NoError(t, res.Err)
	assert.Equal(t, Dispatched, res.Outcome)
	assert.True(t, res.Recompiled)
	assert.EqualValues(t, 1, res.Frame)
	assert.Equal(t, "Minkowski", e.BoundMetric())

	s := e.Surface()
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			px := s.At(x, y)
			assert.Contains(t, []float32{0.1, 0.9}, px[0], "pixel (%d,%d)", x, y)
			assert.Equal(t, px[0], px[1])
			assert.Equal(t, px[0], px[2])
			assert.Equal(t, float32(1), px[3])
		}
	}
}

func TestRecompilesOnlyWhenMetricChanges(t *testing.T) {
	e := newEngine(t, 2, 2, kernelFile)
	a := newMetric(t, "minkowski")
	b := newMetric(t, "rindler")

	var recompiled []bool
	for _, m := range []metric.Metric{a, a, b, b, a} {
		res := e.Render(m)
		require.Equal(t, Dispatched, res.Outcome)
		recompiled = append(recompiled, res.Recompiled)
	}
	assert.Equal(t, []bool{true, false, true, false, true}, recompiled)
	assert.Equal(t, 3, e.Recompilations())
}

func TestRecompilesWhenBakedConstantsChange(t *testing.T) {
	e := newEngine(t, 2, 2, kernelFile)
	m := newMetric(t, "weakfield")
	require.True(t, e.Render(m).Recompiled)

	// Potential at the origin depends on mass, so the baked g00 changes.
	m.SetParam("mass", 0.2)
	assert.True(t, e.Render(m).Recompiled)
	assert.False(t, e.Render(m).Recompiled)

	// de Sitter at t=0 does not depend on the Hubble rate.
	ds := newMetric(t, "desitter")
	require.True(t, e.Render(ds).Recompiled)
	ds.SetParam("hubble", 0.5)
	assert.False(t, e.Render(ds).Recompiled)
	assert.Equal(t, 3, e.Recompilations())
}

func TestInvalidKernelArgumentFallsBack(t *testing.T) {
	e := newEngine(t, 3, 2, kernelFile)
	m := newMetric(t, "minkowski")
	require.Equal(t, Dispatched, e.Render(m).Outcome)

	good := e.image
	e.image = foreignImage{}
	res := e.Render(m)
	assert.Equal(t, Fallback, res.Outcome)
	assert.ErrorContains(t, res.Err, "binding output image")
	assert.ErrorContains(t, res.Err, "invalid argument 1")
	assert.False(t, res.Recompiled)
	requireFallback(t, e.Surface())

	e.image = good
	res = e.Render(m)
	assert.Equal(t, Dispatched, res.Outcome)
	assert.False(t, res.Recompiled)
	assert.Less(t, e.Surface().At(0, 0)[0], float32(1))
}

// foreignImage satisfies compute.Image but was not created by the host
// context, so the kernel refuses it as an argument.
type foreignImage struct{}

func (foreignImage) Width() int  { return 3 }
func (foreignImage) Height() int { return 2 }
func (foreignImage) Release()    {}

func TestMissingKernelSourceFallsBack(t *testing.T) {
	e := newEngine(t, 2, 2, filepath.Join(t.TempDir(), "missing.cl"))
	res := e.Render(newMetric(t, "minkowski"))
	assert.Equal(t, Fallback, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrKernelSourceNotFound)
	assert.ErrorIs(t, res.Err, fs.ErrNotExist)
	assert.Zero(t, e.Recompilations())
	requireFallback(t, e.Surface())
}

func TestBuildFailureKeepsPriorKernel(t *testing.T) {
	src, err := os.ReadFile(kernelFile)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "raytracer.cl")
	writeKernel(t, path, string(src))

	e := newEngine(t, 2, 2, path)
	require.Equal(t, Dispatched, e.Render(newMetric(t, "minkowski")).Outcome)

	writeKernel(t, path, string(src)+"\n__kernel void unknown_entry(int x) {}\n")
	wf := newMetric(t, "weakfield")
	res := e.Render(wf)
	assert.Equal(t, Dispatched, res.Outcome)
	assert.False(t, res.Recompiled)
	var be *compute.BuildError
	require.ErrorAs(t, res.Err, &be)
	assert.Contains(t, be.Log, "unknown_entry")
	assert.Equal(t, "Minkowski", e.BoundMetric())

	// The failed build is not retried every frame.
	res = e.Render(wf)
	assert.Equal(t, Dispatched, res.Outcome)
	assert.ErrorAs(t, res.Err, &be)
	assert.Equal(t, 1, e.Recompilations())

	writeKernel(t, path, string(src))
	e.Invalidate()
	res = e.Render(wf)
	require.NoError(t, res.Err)
	assert.True(t, res.Recompiled)
	assert.Equal(t, "Weak field", e.BoundMetric())
	assert.Equal(t, 2, e.Recompilations())
}

func TestBuildFailureWithoutKernelFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.cl")
	writeKernel(t, path, "__kernel void something_else(int x) {}")
	e := newEngine(t, 2, 2, path)

	res := e.Render(newMetric(t, "minkowski"))
	assert.Equal(t, Fallback, res.Outcome)
	var be *compute.BuildError
	assert.ErrorAs(t, res.Err, &be)
	assert.Empty(t, e.BoundMetric())
	requireFallback(t, e.Surface())
}

type brokenMetric struct {
	name   string
	tensor func() metric.Tensor
}

func (m brokenMetric) Name() string                             { return m.name }
func (m brokenMetric) Description() string                      { return "" }
func (m brokenMetric) Params() metric.Params                    { return metric.Params{} }
func (m brokenMetric) SetParam(string, float64)                 {}
func (m brokenMetric) Tensor(metric.Vec4) metric.Tensor         { return m.tensor() }
func (m brokenMetric) Derivatives(metric.Vec4) [4]metric.Tensor { return [4]metric.Tensor{} }

func TestNonFiniteTensorFallsBack(t *testing.T) {
	e := newEngine(t, 2, 2, kernelFile)
	nan := brokenMetric{name: "nan", tensor: func() metric.Tensor {
		tt := metric.NewMinkowski().Tensor(metric.Origin)
		tt[0][0].Real = math.NaN()
		return tt
	}}
	res := e.Render(nan)
	assert.Equal(t, Fallback, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrNonFiniteTensor)
}

func TestPanicDuringRenderFallsBack(t *testing.T) {
	e := newEngine(t, 2, 2, kernelFile)
	bad := brokenMetric{name: "panics", tensor: func() metric.Tensor { panic("boom") }}
	var res Result
	require.NotPanics(t, func() { res = e.Render(bad) })
	assert.Equal(t, Fallback, res.Outcome)
	assert.ErrorContains(t, res.Err, "boom")
	requireFallback(t, e.Surface())
}

func TestResize(t *testing.T) {
	e := newEngine(t, 2, 2, kernelFile)
	require.NoError(t, e.Resize(5, 7))
	assert.Len(t, e.Surface().Pix, 5*7*4)
	assert.Len(t, e.rays, 5*7)
	assert.Equal(t, 5*7*RaySize, e.rayBuf.Size())

	res := e.Render(newMetric(t, "minkowski"))
	assert.Equal(t, Dispatched, res.Outcome)
	assert.Equal(t, 5, e.Surface().Width)
	assert.Equal(t, 7, e.Surface().Height)

	assert.Error(t, e.Resize(0, 3))
	assert.Len(t, e.Surface().Pix, 5*7*4)
}

func TestLocalSizeThatDoesNotDivideIsIgnored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 3, 3
	cfg.KernelPath = kernelFile
	cfg.LocalSize = 4
	e, err := NewEngine(hostContext(t), cfg, discard())
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, Dispatched, e.Render(newMetric(t, "minkowski")).Outcome)
}

func TestNewEngineRejectsEmptySize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Width = 0
	_, err := NewEngine(hostContext(t), cfg, discard())
	assert.Error(t, err)
}
