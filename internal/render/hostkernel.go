package render

import (
	"fmt"

	"github.com/chewxy/math32"

	"sirius/internal/compute/host"
)

func init() {
	host.RegisterKernel(KernelName, 2, traceRaysHost)
}

// traceRaysHost is the host port of trace_rays in kernels/raytracer.cl.
// Rays travel straight; the baked metric scales the spatial direction and
// tints the celestial sphere by the lapse at the origin.
func traceRaysHost(inv *host.Invocation) (func(gid int), error) {
	buf, err := inv.Buffer(0)
	if err != nil {
		return nil, err
	}
	img, err := inv.Image(1)
	if err != nil {
		return nil, err
	}
	rays := raysFromBytes(buf.Bytes())
	if inv.Global > len(rays) {
		return nil, fmt.Errorf("global size %d exceeds %d rays", inv.Global, len(rays))
	}
	g := [4]float32{
		float32(inv.Defines.Float("METRIC_G00", -1)),
		float32(inv.Defines.Float("METRIC_G11", 1)),
		float32(inv.Defines.Float("METRIC_G22", 1)),
		float32(inv.Defines.Float("METRIC_G33", 1)),
	}
	w, h := int32(img.Width()), int32(img.Height())
	return func(gid int) {
		r := rays[gid]
		if r.SX < 0 || r.SY < 0 || r.SX >= w || r.SY >= h {
			return
		}
		if r.Terminated != 0 {
			img.Set(int(r.SX), int(r.SY), [4]float32{0, 0, 0, 1})
			return
		}
		img.Set(int(r.SX), int(r.SY), shadeSky(r.Vel, g))
	}, nil
}

// shadeSky colors the celestial point hit by a ray with velocity vel under a
// constant diagonal metric g.
func shadeSky(vel [4]float32, g [4]float32) [4]float32 {
	dx := vel[1] * math32.Sqrt(math32.Abs(g[1]))
	dy := vel[2] * math32.Sqrt(math32.Abs(g[2]))
	dz := vel[3] * math32.Sqrt(math32.Abs(g[3]))
	n := math32.Sqrt(dx*dx + dy*dy + dz*dz)
	if n == 0 {
		return [4]float32{0, 0, 0, 1}
	}
	lon := math32.Atan2(dx, dz)
	lat := math32.Asin(dy / n)
	cell := int(math32.Floor(lon*8/math32.Pi)) + int(math32.Floor(lat*8/math32.Pi))
	c := float32(0.1)
	if cell&1 == 0 {
		c = 0.9
	}

	// Light from the sphere is shifted by the lapse sqrt(-g00).
	shift := float32(1)
	if lapse := math32.Sqrt(math32.Abs(g[0])); lapse > 0 {
		shift = 1 / lapse
	}
	return [4]float32{clamp01(c * shift), clamp01(c), clamp01(c / shift), 1}
}
