package render

import "github.com/chewxy/math32"

// Camera is a pinhole camera pulled back along z, looking down +z.
type Camera struct {
	Z          float32
	FOVDegrees float32
}

// ndc maps pixel (x, y) of a w×h raster to normalized device coordinates.
func ndc(x, y, w, h int) (float32, float32) {
	nx := 2*float32(x)/float32(w) - 1
	ny := 1 - 2*float32(y)/float32(h)
	return nx, ny
}

// setupRays fills rays (row-major, len w*h) with one ray per pixel. The
// direction has unit time component before normalization.
func setupRays(rays []Ray, w, h int, cam Camera) {
	halfTan := math32.Tan(cam.FOVDegrees * math32.Pi / 180 * 0.5)
	aspect := float32(w) / float32(h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			nx, ny := ndc(x, y, w, h)
			px := nx * halfTan * aspect
			py := ny * halfTan
			inv := 1 / math32.Sqrt(1+px*px+py*py+1)
			rays[y*w+x] = Ray{
				Pos: [4]float32{0, 0, 0, cam.Z},
				Vel: [4]float32{inv, px * inv, py * inv, inv},
				SX:  int32(x),
				SY:  int32(y),
			}
		}
	}
}
