package compositor

import (
	"image"

	"github.com/disintegration/imaging"
)

// Filters adjusts the media before it is drawn. Each value is a percentage
// in [-100, 100]; zero leaves the channel untouched. The frame is never filtered.
type Filters struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
}

// IsZero reports whether f changes nothing.
func (f Filters) IsZero() bool {
	return f.Brightness == 0 && f.Contrast == 0 && f.Saturation == 0
}

// Clamp limits every value to [-100, 100].
func (f Filters) Clamp() Filters {
	return Filters{
		Brightness: clampPct(f.Brightness),
		Contrast:   clampPct(f.Contrast),
		Saturation: clampPct(f.Saturation),
	}
}

// Apply returns img with the adjustments applied, or img itself when f is zero.
func (f Filters) Apply(img image.Image) image.Image {
	if f.IsZero() || img == nil {
		return img
	}
	f = f.Clamp()
	out := img
	if f.Brightness != 0 {
		out = imaging.AdjustBrightness(out, f.Brightness)
	}
	if f.Contrast != 0 {
		out = imaging.AdjustContrast(out, f.Contrast)
	}
	if f.Saturation != 0 {
		out = imaging.AdjustSaturation(out, f.Saturation)
	}
	return out
}

// clampPct bounds v to [-100, 100], mapping NaN to zero.
func clampPct(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < -100:
		return -100
	case v > 100:
		return 100
	}
	return v
}
