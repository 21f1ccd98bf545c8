package render

import "github.com/chewxy/math32"

// drawFallback fills s with the placeholder pattern at time t. Red is
// saturated on every pixel so the frame is recognizable at a glance.
func drawFallback(s *Surface, t float32) {
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			nx, ny := ndc(x, y, s.Width, s.Height)
			i := (y*s.Width + x) * 4
			s.Pix[i] = 1
			s.Pix[i+1] = 0.5 + 0.3*math32.Sin(5*nx+t)
			s.Pix[i+2] = 0.5 + 0.3*math32.Sin(5*ny+t)
			s.Pix[i+3] = 1
		}
	}
}
