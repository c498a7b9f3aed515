package geometry

import "math"

// RotatedBoundingBox returns the axis-aligned bounds of a w x h rectangle
// rotated by angleDeg about its center.
func RotatedBoundingBox(w, h, angleDeg float64) (float64, float64) {
	rad := angleDeg * math.Pi / 180
	c := math.Abs(math.Cos(rad))
	s := math.Abs(math.Sin(rad))
	return w*c + h*s, w*s + h*c
}

// NormalizeDeg maps any angle into [0, 360).
func NormalizeDeg(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// IsQuarterTurn reports whether deg is an odd multiple of 90.
func IsQuarterTurn(deg float64) bool {
	d := NormalizeDeg(deg)
	return d == 90 || d == 270
}

// IsRightAngle reports whether deg is a multiple of 90.
func IsRightAngle(deg float64) bool {
	return math.Mod(NormalizeDeg(deg), 90) == 0
}

// Footprint returns the media dimensions used for fitting at rotationDeg.
// Quarter turns swap width and height; every other angle keeps them. The
// stored media dimensions are never changed by this.
func Footprint(w, h, rotationDeg float64) (float64, float64) {
	if IsQuarterTurn(rotationDeg) {
		return h, w
	}
	return w, h
}
