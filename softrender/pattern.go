package softrender

import (
	"math"

	"github.com/gogpu/gg"
	"github.com/joeycumines/go-frameloop/video"
)

// PatternFrame is a [video.FrameFunc] drawing an animated test pattern, a
// circle orbiting the center of a dark background. It requires a *Renderer.
func PatternFrame(r video.Renderer) error {
	sr, ok := r.(*Renderer)
	if !ok {
		return errUnknownRenderer
	}
	if sr.closed {
		return ErrClosed
	}

	dc := sr.ctx
	w, h := float64(sr.size.Width), float64(sr.size.Height)
	dc.ClearWithColor(gg.Hex("#101820"))

	angle := float64(sr.frames%120) / 120 * 2 * math.Pi
	radius := math.Min(w, h) / 4
	dc.SetRGB(0.95, 0.7, 0.2)
	dc.DrawCircle(w/2+math.Cos(angle)*radius, h/2+math.Sin(angle)*radius, radius/4)
	return dc.Fill()
}
