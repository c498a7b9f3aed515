// Package preset describes frame assets, their canvas, and the cutout window.
package preset

import (
	"fmt"

	"github.com/frudas24/frameit/internal/geometry"
	"github.com/frudas24/frameit/internal/placement"
)

// DefaultName is the name of the built-in preset.
const DefaultName = "default"

// Rect describes a rectangle using top-left origin and size.
type Rect struct {
	X int `json:"x" yaml:"x" toml:"x"`
	Y int `json:"y" yaml:"y" toml:"y"`
	W int `json:"w" yaml:"w" toml:"w"`
	H int `json:"h" yaml:"h" toml:"h"`
}

// Preset binds a frame asset to its canvas size and transparent cutout.
type Preset struct {
	Name      string `json:"name" yaml:"name" toml:"name"`
	FramePath string `json:"framePath" yaml:"frame" toml:"frame"`
	CanvasW   int    `json:"canvasW" yaml:"canvas_w" toml:"canvas_w"`
	CanvasH   int    `json:"canvasH" yaml:"canvas_h" toml:"canvas_h"`
	Cutout    Rect   `json:"cutout" yaml:"cutout" toml:"cutout"`
	Mode      string `json:"mode" yaml:"mode" toml:"mode"`
}

// Default returns the built-in 1080x1350 portrait frame preset.
func Default() Preset {
	return Preset{
		Name:    DefaultName,
		CanvasW: 1080,
		CanvasH: 1350,
		Cutout:  Rect{X: 60, Y: 177, W: 960, H: 822},
		Mode:    placement.ModeCutout.String(),
	}
}

// Normalize returns a rectangle with non-negative width/height.
func Normalize(r Rect) Rect {
	if r.W < 0 {
		r.X += r.W
		r.W = -r.W
	}
	if r.H < 0 {
		r.Y += r.H
		r.H = -r.H
	}
	return r
}

// Contains reports whether a point is inside the rectangle (edges inclusive).
func Contains(r Rect, x, y int) bool {
	if r.W <= 0 || r.H <= 0 {
		return false
	}
	maxX := r.X + r.W
	maxY := r.Y + r.H
	return x >= r.X && x <= maxX && y >= r.Y && y <= maxY
}

// ToGeometry converts r into float canvas geometry.
func (r Rect) ToGeometry() geometry.Rect {
	r = Normalize(r)
	return geometry.Rect{X: float64(r.X), Y: float64(r.Y), W: float64(r.W), H: float64(r.H)}
}

// PlacementMode returns the parsed placement mode.
func (p Preset) PlacementMode() placement.Mode {
	return placement.ParseMode(p.Mode)
}

// CutoutRect returns the cutout, or the whole canvas when none is set.
func (p Preset) CutoutRect() geometry.Rect {
	c := Normalize(p.Cutout)
	if c.W <= 0 || c.H <= 0 {
		return geometry.Rect{W: float64(p.CanvasW), H: float64(p.CanvasH)}
	}
	return c.ToGeometry()
}

// Validate checks the canvas is positive and the cutout lies inside it.
func (p Preset) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("preset name is required")
	}
	if p.CanvasW <= 0 || p.CanvasH <= 0 {
		return fmt.Errorf("preset %q: canvas must be positive, got %dx%d", p.Name, p.CanvasW, p.CanvasH)
	}
	c := Normalize(p.Cutout)
	if c.W == 0 && c.H == 0 {
		return nil
	}
	if c.W <= 0 || c.H <= 0 {
		return fmt.Errorf("preset %q: cutout must be positive, got %dx%d", p.Name, c.W, c.H)
	}
	if !Contains(Rect{W: p.CanvasW, H: p.CanvasH}, c.X, c.Y) || !Contains(Rect{W: p.CanvasW, H: p.CanvasH}, c.X+c.W, c.Y+c.H) {
		return fmt.Errorf("preset %q: cutout %+v outside %dx%d canvas", p.Name, c, p.CanvasW, p.CanvasH)
	}
	return nil
}
