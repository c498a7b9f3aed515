package compositor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/frudas24/frameit/internal/placement"
)

var (
	red   = color.RGBA{255, 0, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
	green = color.RGBA{0, 255, 0, 255}
)

// solid returns a w x h image filled with c.
func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// TestRender_IdentityIsPixelExact verifies an unscaled, unrotated placement copies pixels.
func TestRender_IdentityIsPixelExact(t *testing.T) {
	c := New(nil)
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	res := c.Render(dst, Scene{
		CanvasW: 10, CanvasH: 10,
		Media: solid(4, 4, red), MediaW: 4, MediaH: 4,
		Transform: placement.Transform{PosX: 2, PosY: 3, Scale: 1},
	})
	if !res.MediaDrawn || !res.FrameMissing {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := dst.RGBAAt(2, 3); got != red {
		t.Fatalf("expected red at (2,3), got %v", got)
	}
	if got := dst.RGBAAt(5, 6); got != red {
		t.Fatalf("expected red at (5,6), got %v", got)
	}
	if got := dst.RGBAAt(1, 3); got.A != 0 {
		t.Fatalf("expected transparent at (1,3), got %v", got)
	}
	if got := dst.RGBAAt(6, 3); got.A != 0 {
		t.Fatalf("expected transparent at (6,3), got %v", got)
	}
}

// TestRender_QuarterTurnAboutCenter verifies rotation is clockwise about the media center.
func TestRender_QuarterTurnAboutCenter(t *testing.T) {
	media := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			if x < 2 {
				media.SetRGBA(x, y, red)
			} else {
				media.SetRGBA(x, y, blue)
			}
		}
	}
	c := New(nil)
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	c.Render(dst, Scene{
		CanvasW: 10, CanvasH: 10,
		Media: media, MediaW: 4, MediaH: 2,
		// Center (5,5); rotated footprint spans x 4..6, y 3..7.
		Transform: placement.Transform{PosX: 3, PosY: 4, Scale: 1, RotationDeg: 90},
	})
	if got := dst.RGBAAt(5, 3); got != red {
		t.Fatalf("expected red above center, got %v", got)
	}
	if got := dst.RGBAAt(4, 6); got != blue {
		t.Fatalf("expected blue below center, got %v", got)
	}
	if got := dst.RGBAAt(3, 5); got.A != 0 {
		t.Fatalf("expected transparent left of footprint, got %v", got)
	}
}

// TestRender_FrameOnTop verifies the frame covers the media and shows it through transparency.
func TestRender_FrameOnTop(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 10, 10))
	frame.SetRGBA(0, 0, green)
	c := New(nil)
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	res := c.Render(dst, Scene{
		CanvasW: 10, CanvasH: 10,
		Media: solid(10, 10, red), MediaW: 10, MediaH: 10,
		Transform: placement.Transform{Scale: 1},
		Frame:     frame,
	})
	if res.FrameMissing {
		t.Fatalf("expected frame drawn")
	}
	if got := dst.RGBAAt(0, 0); got != green {
		t.Fatalf("expected frame pixel, got %v", got)
	}
	if got := dst.RGBAAt(5, 5); got != red {
		t.Fatalf("expected media through cutout, got %v", got)
	}
}

// TestRender_FrameScaledToSurface verifies a larger frame is resampled to the surface.
func TestRender_FrameScaledToSurface(t *testing.T) {
	c := New(nil)
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	c.Render(dst, Scene{CanvasW: 20, CanvasH: 20, Frame: solid(20, 20, green)})
	got := dst.RGBAAt(5, 5)
	if got.G < 240 || got.R > 15 || got.A < 240 {
		t.Fatalf("expected green frame, got %v", got)
	}
	// Second render hits the cache.
	c.Render(dst, Scene{CanvasW: 20, CanvasH: 20, Frame: solid(20, 20, green)})
	if len(c.frames) == 0 {
		t.Fatalf("expected cached frame")
	}
}

// TestRender_SurfaceScale verifies canvas coordinates scale onto a smaller preview surface.
func TestRender_SurfaceScale(t *testing.T) {
	c := New(nil)
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	c.Render(dst, Scene{
		CanvasW: 100, CanvasH: 100,
		Media: solid(50, 100, red), MediaW: 50, MediaH: 100,
		Transform:  placement.Transform{PosX: 50, Scale: 1},
		Background: BackgroundWhite,
	})
	if got := dst.RGBAAt(7, 5); got.R < 250 || got.G > 5 {
		t.Fatalf("expected red in right half, got %v", got)
	}
	if got := dst.RGBAAt(2, 5); got != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("expected white background in left half, got %v", got)
	}
}

// TestRender_DownscaledVisualCoversNativeRect verifies a reduced playback frame fills the native footprint.
func TestRender_DownscaledVisualCoversNativeRect(t *testing.T) {
	c := New(nil)
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	c.Render(dst, Scene{
		CanvasW: 10, CanvasH: 10,
		Media: solid(4, 4, red), MediaW: 8, MediaH: 8,
		Transform: placement.Transform{Scale: 1},
	})
	if got := dst.RGBAAt(6, 6); got.R < 250 || got.A < 250 {
		t.Fatalf("expected red at (6,6), got %v", got)
	}
	if got := dst.RGBAAt(8, 8); got.A != 0 {
		t.Fatalf("expected transparent at (8,8), got %v", got)
	}
}

// TestRender_SkipsUnknownDims verifies media without native dims is not drawn.
func TestRender_SkipsUnknownDims(t *testing.T) {
	c := New(nil)
	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	res := c.Render(dst, Scene{CanvasW: 4, CanvasH: 4, Media: solid(4, 4, red), Transform: placement.Transform{Scale: 1}})
	if res.MediaDrawn {
		t.Fatalf("expected media skipped")
	}
	if got := dst.RGBAAt(1, 1); got.A != 0 {
		t.Fatalf("expected empty surface, got %v", got)
	}
}

// TestFilters_ApplyToMediaOnly verifies filters darken the media but not the frame.
func TestFilters_ApplyToMediaOnly(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))
	frame.SetRGBA(0, 0, green)
	c := New(nil)
	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	c.Render(dst, Scene{
		CanvasW: 4, CanvasH: 4,
		Media: solid(4, 4, color.RGBA{255, 255, 255, 255}), MediaW: 4, MediaH: 4,
		Transform: placement.Transform{Scale: 1},
		Frame:     frame,
		Filters:   Filters{Brightness: -100},
	})
	if got := dst.RGBAAt(2, 2); got.R > 10 || got.A != 255 {
		t.Fatalf("expected darkened media, got %v", got)
	}
	if got := dst.RGBAAt(0, 0); got != green {
		t.Fatalf("expected unfiltered frame, got %v", got)
	}
}

// TestFilters_Clamp verifies out-of-range values are bounded.
func TestFilters_Clamp(t *testing.T) {
	f := Filters{Brightness: 250, Contrast: -400, Saturation: 12}.Clamp()
	if f.Brightness != 100 || f.Contrast != -100 || f.Saturation != 12 {
		t.Fatalf("unexpected clamp %+v", f)
	}
	if !(Filters{}).IsZero() {
		t.Fatalf("expected zero filters")
	}
}

// TestNewSurface verifies the canvas aspect ratio is kept.
func TestNewSurface(t *testing.T) {
	s := NewSurface(1080, 1350, 540)
	if s.Bounds().Dx() != 540 || s.Bounds().Dy() != 675 {
		t.Fatalf("unexpected surface %v", s.Bounds())
	}
}

// TestEncode_JPEG verifies the flattened export decodes at the rendered size.
func TestEncode_JPEG(t *testing.T) {
	f, err := ParseFormat("JPG")
	if err != nil || f != FormatJPEG || f.Background() != BackgroundWhite || f.Ext() != "jpg" {
		t.Fatalf("unexpected format %q err=%v", f, err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, solid(12, 15, red), f, 0); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	img, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatalf("jpeg.Decode: %v", err)
	}
	if img.Bounds().Dx() != 12 || img.Bounds().Dy() != 15 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
	if _, err := ParseFormat("gif"); err == nil {
		t.Fatalf("expected unknown format error")
	}
	if FormatPNG.Background() != BackgroundTransparent || FormatWebP.ContentType() != "image/webp" {
		t.Fatalf("unexpected png/webp metadata")
	}
}
