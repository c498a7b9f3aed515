package placement

import (
	"math"

	"github.com/frudas24/frameit/internal/geometry"
)

const zoomToggleTolerance = 0.001

// State is the single source of truth for one media placement. It is not
// safe for concurrent use; the session serializes access.
type State struct {
	policy   Policy
	canvasW  float64
	canvasH  float64
	cutout   geometry.Rect
	mediaW   float64
	mediaH   float64
	minScale float64
	maxScale float64
	t        Transform
	onScale  func(float64)
}

// NewState returns an empty placement for a canvas and cutout. A degenerate
// cutout falls back to the full canvas.
func NewState(policy Policy, canvasW, canvasH float64, cutout geometry.Rect) *State {
	if cutout.W <= 0 || cutout.H <= 0 {
		cutout = geometry.Rect{W: canvasW, H: canvasH}
	}
	if policy.MaxScale <= 0 {
		policy.MaxScale = DefaultPolicy().MaxScale
	}
	return &State{
		policy:   policy,
		canvasW:  canvasW,
		canvasH:  canvasH,
		cutout:   cutout,
		minScale: policy.HardMinScale,
		maxScale: policy.MaxScale,
		t:        identity,
	}
}

// SetOnScale registers a hook that receives every clamped scale value.
func (s *State) SetOnScale(fn func(float64)) {
	s.onScale = fn
}

// Policy returns the active limits.
func (s *State) Policy() Policy { return s.policy }

// Cutout returns the fitting rectangle.
func (s *State) Cutout() geometry.Rect { return s.cutout }

// Transform returns a copy of the current transform.
func (s *State) Transform() Transform { return s.t }

// Bounds returns the current scale bounds.
func (s *State) Bounds() (float64, float64) { return s.minScale, s.maxScale }

// HasMedia reports whether media dimensions are known.
func (s *State) HasMedia() bool {
	return s.mediaW > 0 && s.mediaH > 0
}

// MediaSize returns the natural media dimensions.
func (s *State) MediaSize() (float64, float64) { return s.mediaW, s.mediaH }

// DrawSize returns the scaled, unrotated media size.
func (s *State) DrawSize() (float64, float64) {
	return s.mediaW * s.t.Scale, s.mediaH * s.t.Scale
}

// Center returns the canvas point the media rotates about.
func (s *State) Center() (float64, float64) {
	w, h := s.DrawSize()
	return s.t.PosX + w/2, s.t.PosY + h/2
}

// Reset installs new media dimensions: rotation returns to 0, bounds are
// recomputed, and the media is cover-fit into the cutout. Non-positive
// dimensions clear the placement.
func (s *State) Reset(mediaW, mediaH int) {
	if mediaW <= 0 || mediaH <= 0 {
		s.Clear()
		return
	}
	s.mediaW = float64(mediaW)
	s.mediaH = float64(mediaH)
	s.t.RotationDeg = 0
	s.recomputeBounds()

	fit := geometry.FitCoverIn(s.mediaW, s.mediaH, s.cutout)
	s.t.PosX = fit.X
	s.t.PosY = fit.Y
	if s.SetScale(fit.Scale) != fit.Scale {
		s.CenterInCutout()
	}
}

// Clear forgets the media and restores the identity transform.
func (s *State) Clear() {
	s.mediaW = 0
	s.mediaH = 0
	s.t = identity
	s.minScale = s.policy.HardMinScale
	s.maxScale = s.policy.MaxScale
	if s.onScale != nil {
		s.onScale(s.t.Scale)
	}
}

// SetScale clamps v into the current bounds, stores it, and returns the
// stored value. Non-finite requests keep the current scale.
func (s *State) SetScale(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = s.t.Scale
	}
	s.t.Scale = clamp(v, s.minScale, s.maxScale)
	if s.onScale != nil {
		s.onScale(s.t.Scale)
	}
	return s.t.Scale
}

// ClampPosition keeps at least ClampMargin pixels of the rotated bounding box
// reachable inside the canvas.
func (s *State) ClampPosition() {
	w, h := s.DrawSize()
	bw, bh := geometry.RotatedBoundingBox(w, h, s.t.RotationDeg)
	m := s.policy.ClampMargin
	s.t.PosX = clamp(s.t.PosX, -bw+m, s.canvasW-m)
	s.t.PosY = clamp(s.t.PosY, -bh+m, s.canvasH-m)
}

// CenterInCutout centers the drawn media in the cutout without touching scale.
func (s *State) CenterInCutout() {
	w, h := s.DrawSize()
	s.t.PosX = s.cutout.X + (s.cutout.W-w)/2
	s.t.PosY = s.cutout.Y + (s.cutout.H-h)/2
}

// FitScale returns the cover scale for the current orientation.
func (s *State) FitScale() float64 {
	if !s.HasMedia() {
		return s.t.Scale
	}
	fw, fh := geometry.Footprint(s.mediaW, s.mediaH, s.t.RotationDeg)
	return geometry.FitCover(fw, fh, s.cutout.W, s.cutout.H).Scale
}

// FitToCutout cover-fits the media for its current orientation and centers it.
func (s *State) FitToCutout() {
	if !s.HasMedia() {
		return
	}
	s.recomputeBounds()
	s.SetScale(s.FitScale())
	s.CenterInCutout()
}

// ZoomFromCenter sets the scale while keeping the media center fixed.
func (s *State) ZoomFromCenter(v float64) {
	if !s.HasMedia() {
		return
	}
	cx, cy := s.Center()
	s.SetScale(v)
	w, h := s.DrawSize()
	s.t.PosX = cx - w/2
	s.t.PosY = cy - h/2
	s.constrain()
}

// RotateStep adds a quarter turn and restores validity.
func (s *State) RotateStep() {
	s.SetRotation(s.t.RotationDeg + 90)
}

// SetRotation sets an absolute rotation and restores validity. Cutout mode
// snaps to the nearest quarter turn and refits; free-form mode keeps the
// angle and re-clamps around the unchanged center.
func (s *State) SetRotation(deg float64) {
	if !s.HasMedia() || math.IsNaN(deg) || math.IsInf(deg, 0) {
		return
	}
	if s.policy.Mode == ModeCutout {
		s.t.RotationDeg = geometry.NormalizeDeg(math.Round(deg/90) * 90)
		s.FitToCutout()
		return
	}
	s.t.RotationDeg = geometry.NormalizeDeg(deg)
	s.recomputeBounds()
	s.ZoomFromCenter(s.t.Scale)
}

// Nudge moves the media by a delta in canvas pixels.
func (s *State) Nudge(dx, dy float64) {
	if !s.HasMedia() {
		return
	}
	s.t.PosX += dx
	s.t.PosY += dy
	s.constrain()
}

// SetPosition moves the media top-left to an absolute canvas point.
func (s *State) SetPosition(x, y float64) {
	if !s.HasMedia() {
		return
	}
	s.t.PosX = x
	s.t.PosY = y
	s.constrain()
}

// ToggleZoom flips between the fit scale and twice the fit scale (capped at
// the maximum), keeping the center fixed.
func (s *State) ToggleZoom() {
	if !s.HasMedia() {
		return
	}
	fit := s.FitScale()
	zoomed := math.Min(fit*2, s.maxScale)
	target := zoomed
	if math.Abs(s.t.Scale-zoomed) < zoomToggleTolerance {
		target = fit
	}
	s.ZoomFromCenter(target)
}

// constrain applies the mode's position rule after a mutation.
func (s *State) constrain() {
	if s.policy.Mode == ModeFreeForm {
		s.ClampPosition()
	}
}

// recomputeBounds derives the zoom floor from the contain fit of the
// current orientation. Media too small to reach the floor within MaxScale
// lifts the ceiling to the floor.
func (s *State) recomputeBounds() {
	s.maxScale = s.policy.MaxScale
	s.minScale = s.policy.HardMinScale
	if !s.HasMedia() {
		return
	}
	fw, fh := geometry.Footprint(s.mediaW, s.mediaH, s.t.RotationDeg)
	contain := geometry.FitContain(fw, fh, s.cutout.W, s.cutout.H)
	s.minScale = math.Max(s.policy.HardMinScale, contain.Scale)
	if s.minScale > s.maxScale {
		s.maxScale = s.minScale
	}
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
