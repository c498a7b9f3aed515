// Package compositor draws the media and the decorative frame onto a surface.
//
// The same Render call serves the live preview (small surface) and export
// (the frame's native resolution). Canvas coordinates are scaled onto the
// surface by its width and height ratios.
package compositor

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/bamiaux/rez"
	"github.com/charmbracelet/log"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/frudas24/frameit/internal/geometry"
	"github.com/frudas24/frameit/internal/placement"
)

// Background selects how the surface is cleared before drawing.
type Background int

const (
	// BackgroundTransparent clears to fully transparent pixels.
	BackgroundTransparent Background = iota
	// BackgroundWhite clears to opaque white, for formats without alpha.
	BackgroundWhite
)

// Scene is one immutable render input.
type Scene struct {
	CanvasW    int
	CanvasH    int
	Media      image.Image
	MediaW     int
	MediaH     int
	Transform  placement.Transform
	Frame      image.Image
	Filters    Filters
	Background Background
}

// Result reports what a render actually drew.
type Result struct {
	MediaDrawn   bool
	FrameMissing bool
}

// Compositor renders scenes. It caches frames rescaled to surface sizes and is
// safe for concurrent use.
type Compositor struct {
	logger *log.Logger

	mu          sync.Mutex
	frames      map[frameKey]*image.RGBA
	warnedFrame bool
}

type frameKey struct {
	src  image.Image
	w, h int
}

const maxCachedFrames = 4

// New returns a compositor.
func New(logger *log.Logger) *Compositor {
	if logger == nil {
		logger = log.Default()
	}
	return &Compositor{
		logger: logger.WithPrefix("compositor"),
		frames: make(map[frameKey]*image.RGBA),
	}
}

// NewSurface allocates a surface of width w with the canvas aspect ratio.
func NewSurface(canvasW, canvasH, w int) *image.RGBA {
	if canvasW <= 0 || canvasH <= 0 || w <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	h := int(math.Round(float64(w) * float64(canvasH) / float64(canvasW)))
	return image.NewRGBA(image.Rect(0, 0, w, max(h, 1)))
}

// Render clears dst, draws the media under its transform and draws the frame
// on top stretched to the whole surface.
func (c *Compositor) Render(dst *image.RGBA, s Scene) Result {
	var res Result
	b := dst.Bounds()
	fillBackground(dst, s.Background)
	if s.CanvasW <= 0 || s.CanvasH <= 0 || b.Empty() {
		return res
	}
	kx := float64(b.Dx()) / float64(s.CanvasW)
	ky := float64(b.Dy()) / float64(s.CanvasH)

	if s.Media != nil && s.MediaW > 0 && s.MediaH > 0 && s.Transform.Scale > 0 {
		src := s.Filters.Apply(s.Media)
		drawMedia(dst, src, s, kx, ky)
		res.MediaDrawn = true
	}

	if s.Frame == nil {
		res.FrameMissing = true
		c.warnFrame()
		return res
	}
	c.mu.Lock()
	c.warnedFrame = false
	c.mu.Unlock()
	fr := c.scaledFrame(s.Frame, b.Dx(), b.Dy())
	draw.Draw(dst, b, fr, fr.Bounds().Min, draw.Over)
	return res
}

// warnFrame logs the first render of a run without a frame.
func (c *Compositor) warnFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.warnedFrame {
		return
	}
	c.warnedFrame = true
	c.logger.Warn("frame asset missing, rendering media only")
}

// fillBackground fills dst according to bg.
func fillBackground(dst *image.RGBA, bg Background) {
	var u image.Image = image.Transparent
	if bg == BackgroundWhite {
		u = image.NewUniform(color.RGBA{255, 255, 255, 255})
	}
	draw.Draw(dst, dst.Bounds(), u, image.Point{}, draw.Src)
}

// drawMedia draws src so that its native rectangle lands at the transform's
// position, scaled and rotated about its own center, then mapped to the surface.
func drawMedia(dst *image.RGBA, src image.Image, s Scene, kx, ky float64) {
	sb := src.Bounds()
	if sb.Empty() {
		return
	}
	t := s.Transform
	// Per visual pixel; a downscaled playback frame still covers the native rect.
	ax := t.Scale * float64(s.MediaW) / float64(sb.Dx())
	ay := t.Scale * float64(s.MediaH) / float64(sb.Dy())
	dw := float64(s.MediaW) * t.Scale
	dh := float64(s.MediaH) * t.Scale
	cx := t.PosX + dw/2
	cy := t.PosY + dh/2
	sin, cos := sincosDeg(t.RotationDeg)

	a00, a01 := kx*cos*ax, -kx*sin*ay
	a10, a11 := ky*sin*ax, ky*cos*ay
	tx := kx * (cx - cos*dw/2 + sin*dh/2)
	ty := ky * (cy - sin*dw/2 - cos*dh/2)
	// Source coordinates are relative to sb.Min.
	tx -= a00*float64(sb.Min.X) + a01*float64(sb.Min.Y)
	ty -= a10*float64(sb.Min.X) + a11*float64(sb.Min.Y)

	if a00 == 1 && a11 == 1 && a01 == 0 && a10 == 0 && tx == math.Trunc(tx) && ty == math.Trunc(ty) {
		off := image.Pt(int(tx), int(ty))
		draw.Draw(dst, sb.Add(off), src, sb.Min, draw.Over)
		return
	}
	s2d := f64.Aff3{
		a00, a01, tx,
		a10, a11, ty,
	}
	draw.BiLinear.Transform(dst, s2d, src, sb, draw.Over, nil)
}

// sincosDeg returns exact values at multiples of 90 degrees.
func sincosDeg(deg float64) (float64, float64) {
	d := geometry.NormalizeDeg(deg)
	switch d {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	return math.Sincos(d * math.Pi / 180)
}

// scaledFrame returns frame resized to w x h, cached per size.
func (c *Compositor) scaledFrame(frame image.Image, w, h int) *image.RGBA {
	key := frameKey{src: frame, w: w, h: h}
	c.mu.Lock()
	if img, ok := c.frames[key]; ok {
		c.mu.Unlock()
		return img
	}
	c.mu.Unlock()

	img := resizeRGBA(frame, w, h, c.logger)

	c.mu.Lock()
	if len(c.frames) >= maxCachedFrames {
		clear(c.frames)
	}
	c.frames[key] = img
	c.mu.Unlock()
	return img
}

// resizeRGBA converts src to RGBA and resamples it to w x h. rez handles the
// common case; x/image CatmullRom covers sizes rez rejects.
func resizeRGBA(src image.Image, w, h int, logger *log.Logger) *image.RGBA {
	sb := src.Bounds()
	in := image.NewRGBA(image.Rect(0, 0, sb.Dx(), sb.Dy()))
	draw.Draw(in, in.Bounds(), src, sb.Min, draw.Src)
	if sb.Dx() == w && sb.Dy() == h {
		return in
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := rezConvert(out, in); err != nil {
		logger.Debug("rez resize failed, using catmull-rom", "err", err)
		draw.CatmullRom.Scale(out, out.Bounds(), in, in.Bounds(), draw.Src, nil)
	}
	return out
}

// rezConvert runs rez, turning its panics on degenerate sizes into errors.
func rezConvert(out, in *image.RGBA) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rez: %v", r)
		}
	}()
	return rez.Convert(out, in, rez.NewBicubicFilter())
}
