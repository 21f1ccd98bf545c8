package host

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sirius/internal/compute"
)

const fillSource = `
__kernel void test_fill(__write_only image2d_t out, float base) {
	int gid = get_global_id(0);
}
`

func init() {
	// Writes base+SHADE into the red channel of pixel gid.
	RegisterKernel("test_fill", 2, func(inv *Invocation) (func(int), error) {
		img, err := inv.Image(0)
		if err != nil {
			return nil, err
		}
		base, ok := inv.Args[1].(float32)
		if !ok {
			return nil, fmt.Errorf("argument 1: want float32, have %T", inv.Args[1])
		}
		if inv.Global > img.Width()*img.Height() {
			return nil, errors.New("global size exceeds image")
		}
		shade := float32(inv.Defines.Float("SHADE", 0))
		return func(gid int) {
			img.Set(gid%img.Width(), gid/img.Width(), [4]float32{base + shade, 0, 0, 1})
		}, nil
	})
}

func newContext(t *testing.T, workers int) (compute.DeviceContext, compute.Queue) {
	t.Helper()
	dev, err := Device{Workers: workers}.CreateContext()
	require.NoError(t, err)
	q, err := dev.CreateQueue()
	require.NoError(t, err)
	t.Cleanup(func() {
		q.Release()
		dev.Release()
	})
	return dev, q
}

func TestPlatformExposesOnlyCPU(t *testing.T) {
	p := Platform{}
	assert.Equal(t, "Go Host", p.Name())

	gpus, err := p.Devices(compute.DeviceTypeGPU)
	require.NoError(t, err)
	assert.Empty(t, gpus)

	all, err := p.Devices(compute.DeviceTypeAll)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, compute.DeviceTypeCPU, all[0].Type())
}

func TestBuildParsesDefines(t *testing.T) {
	dev, _ := newContext(t, 1)
	prog, err := dev.CreateProgram(fillSource)
	require.NoError(t, err)
	require.NoError(t, prog.Build(" -cl-mad-enable -cl-fast-relaxed-math -DSHADE=0.250000 -D FLAG"))

	defs := prog.(*Program).Defines()
	assert.Equal(t, "0.250000", defs["SHADE"])
	assert.Equal(t, "1", defs["FLAG"])
	assert.InDelta(t, 0.25, defs.Float("SHADE", 0), 1e-12)
	assert.Equal(t, 7.0, defs.Float("MISSING", 7))
}

func TestBuildFailures(t *testing.T) {
	cases := map[string]struct {
		source, options, want string
	}{
		"malformed define":  {fillSource, "-D1BAD=2", "invalid macro name"},
		"empty value":       {fillSource, "-DSHADE=", "empty value"},
		"dangling -D":       {fillSource, "-D", "missing macro name"},
		"unknown option":    {fillSource, "-O3", "unsupported build option"},
		"no kernels":        {"int x;", "", "declares no __kernel"},
		"unknown kernel":    {"__kernel void nope(int a) {}", "", `"nope" has no host implementation`},
		"syntax not parsed": {"__kernel void test_fill(", "", ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			dev, _ := newContext(t, 1)
			prog, err := dev.CreateProgram(tc.source)
			require.NoError(t, err)
			err = prog.Build(tc.options)
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			var be *compute.BuildError
			require.ErrorAs(t, err, &be)
			assert.Contains(t, be.Log, tc.want)
		})
	}
}

func TestCreateKernelRequiresBuild(t *testing.T) {
	dev, _ := newContext(t, 1)
	prog, err := dev.CreateProgram(fillSource)
	require.NoError(t, err)
	_, err = prog.CreateKernel("test_fill")
	assert.ErrorContains(t, err, "not built")

	require.NoError(t, prog.Build(""))
	_, err = prog.CreateKernel("other")
	assert.ErrorContains(t, err, "no such kernel")
}

func TestSetArgValidation(t *testing.T) {
	dev, _ := newContext(t, 1)
	prog, _ := dev.CreateProgram(fillSource)
	require.NoError(t, prog.Build(""))
	k, err := prog.CreateKernel("test_fill")
	require.NoError(t, err)

	assert.ErrorContains(t, k.SetArg(2, float32(1)), "invalid argument index")
	assert.ErrorContains(t, k.SetArg(1, 1.0), "of type float64")
	assert.NoError(t, k.SetArg(1, float32(1)))
}

func TestDispatchFillsImage(t *testing.T) {
	for _, workers := range []int{1, 3, 16} {
		t.Run(fmt.Sprint(workers), func(t *testing.T) {
			dev, q := newContext(t, workers)
			prog, _ := dev.CreateProgram(fillSource)
			require.NoError(t, prog.Build("-DSHADE=0.5"))
			k, err := prog.CreateKernel("test_fill")
			require.NoError(t, err)
			img, err := dev.CreateImage(5, 3)
			require.NoError(t, err)
			require.NoError(t, k.SetArg(0, img))
			require.NoError(t, k.SetArg(1, float32(0.25)))

			require.NoError(t, q.Dispatch(k, 15, 0))
			require.NoError(t, q.Finish())

			out := make([]float32, 5*3*4)
			require.NoError(t, q.ReadImage(img, true, out))
			for i := 0; i < 15; i++ {
				assert.Equal(t, float32(0.75), out[i*4], "pixel %d", i)
				assert.Equal(t, float32(1), out[i*4+3], "pixel %d", i)
			}
		})
	}
}

func TestDispatchErrors(t *testing.T) {
	dev, q := newContext(t, 2)
	prog, _ := dev.CreateProgram(fillSource)
	require.NoError(t, prog.Build(""))
	k, _ := prog.CreateKernel("test_fill")
	img, _ := dev.CreateImage(2, 2)

	assert.ErrorContains(t, q.Dispatch(k, 4, 0), "argument 0 is not set")

	require.NoError(t, k.SetArg(0, img))
	require.NoError(t, k.SetArg(1, float32(0)))
	assert.ErrorContains(t, q.Dispatch(k, 0, 0), "invalid global work size")
	assert.ErrorContains(t, q.Dispatch(k, 4, 3), "not a multiple")
	assert.ErrorContains(t, q.Dispatch(k, 8, 0), "global size exceeds image")
	assert.NoError(t, q.Dispatch(k, 4, 2))

	require.NoError(t, k.SetArg(0, float32(1)))
	assert.ErrorContains(t, q.Dispatch(k, 4, 0), "want image")
}

func TestRunCoversEveryWorkItemOnce(t *testing.T) {
	q := &Queue{workers: 7}
	const n = 1000
	var hits [n]int32
	var total atomic.Int64
	q.run(n, func(gid int) {
		atomic.AddInt32(&hits[gid], 1)
		total.Add(1)
	})
	assert.EqualValues(t, n, total.Load())
	for i := range hits {
		require.EqualValues(t, 1, hits[i], "work item %d", i)
	}
}

func TestBufferWriteAndRelease(t *testing.T) {
	dev, q := newContext(t, 1)
	buf, err := dev.CreateBuffer(4)
	require.NoError(t, err)
	require.NoError(t, q.WriteBuffer(buf, false, []byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3, 0}, buf.(*Buffer).Bytes())
	assert.ErrorContains(t, q.WriteBuffer(buf, true, make([]byte, 5)), "exceed buffer size")

	buf.Release()
	assert.Error(t, q.WriteBuffer(buf, true, []byte{1}))

	_, err = dev.CreateBuffer(0)
	assert.Error(t, err)
}

func TestReadImageChecksDestination(t *testing.T) {
	dev, q := newContext(t, 1)
	img, _ := dev.CreateImage(2, 2)
	assert.ErrorContains(t, q.ReadImage(img, true, make([]float32, 3)), "destination holds 3")
}
