package render

import (
	"image"

	"github.com/chewxy/math32"
)

// Surface is the RGBA float32 output raster, row-major.
type Surface struct {
	Width, Height int
	Pix           []float32
}

func newSurface(w, h int) Surface {
	return Surface{Width: w, Height: h, Pix: make([]float32, w*h*4)}
}

// At returns the pixel at (x, y).
func (s *Surface) At(x, y int) [4]float32 {
	i := (y*s.Width + x) * 4
	return [4]float32{s.Pix[i], s.Pix[i+1], s.Pix[i+2], s.Pix[i+3]}
}

// FillRGBA8 converts the surface into dst, which must hold Width*Height*4
// bytes. Channels are clamped to [0, 1].
func (s *Surface) FillRGBA8(dst []byte) {
	for i, v := range s.Pix {
		dst[i] = uint8(math32.Round(clamp01(v) * 255))
	}
}

// RGBA returns a copy of the surface as an 8-bit image.
func (s *Surface) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	s.FillRGBA8(img.Pix)
	return img
}

func clamp01(v float32) float32 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
