// Package geometry holds the pure fitting and rotation math used by placement.
package geometry

// Rect is an axis-aligned rectangle in canvas pixels.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// CenterX returns the horizontal center of r.
func (r Rect) CenterX() float64 { return r.X + r.W/2 }

// CenterY returns the vertical center of r.
func (r Rect) CenterY() float64 { return r.Y + r.H/2 }

// Fit is a uniform scale plus the top-left offset that centers the scaled media.
type Fit struct {
	Scale float64
	X     float64
	Y     float64
}

// FitCover returns the smallest uniform scale at which media fully covers a
// rectW x rectH rectangle, centered. Offsets are rect-local.
// Callers guarantee all dimensions are positive.
func FitCover(mediaW, mediaH, rectW, rectH float64) Fit {
	s := max(rectW/mediaW, rectH/mediaH)
	return centered(s, mediaW, mediaH, rectW, rectH)
}

// FitContain returns the largest uniform scale at which media fits entirely
// inside a rectW x rectH rectangle, centered. Offsets are rect-local.
func FitContain(mediaW, mediaH, rectW, rectH float64) Fit {
	s := min(rectW/mediaW, rectH/mediaH)
	return centered(s, mediaW, mediaH, rectW, rectH)
}

// FitCoverIn is FitCover with offsets translated into r's coordinate space.
func FitCoverIn(mediaW, mediaH float64, r Rect) Fit {
	f := FitCover(mediaW, mediaH, r.W, r.H)
	f.X += r.X
	f.Y += r.Y
	return f
}

// FitContainIn is FitContain with offsets translated into r's coordinate space.
func FitContainIn(mediaW, mediaH float64, r Rect) Fit {
	f := FitContain(mediaW, mediaH, r.W, r.H)
	f.X += r.X
	f.Y += r.Y
	return f
}

// centered builds a Fit for scale s centered in the rect.
func centered(s, mediaW, mediaH, rectW, rectH float64) Fit {
	return Fit{
		Scale: s,
		X:     (rectW - mediaW*s) / 2,
		Y:     (rectH - mediaH*s) / 2,
	}
}
