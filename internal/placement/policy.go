// Package placement owns the media transform and the rules that keep it valid.
package placement

import "strings"

// Mode selects how rotation and drags are constrained.
type Mode int

const (
	// ModeCutout refits to the cutout after every rotation and never clamps drags.
	ModeCutout Mode = iota
	// ModeFreeForm clamps the media position so it stays reachable on the canvas.
	ModeFreeForm
)

// String returns the config spelling of m.
func (m Mode) String() string {
	if m == ModeFreeForm {
		return "freeform"
	}
	return "cutout"
}

// ParseMode parses a config value, defaulting to ModeCutout.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "freeform", "free-form", "free":
		return ModeFreeForm
	default:
		return ModeCutout
	}
}

// Policy holds the fixed limits applied to every transform mutation.
type Policy struct {
	HardMinScale float64
	MaxScale     float64
	ClampMargin  float64
	Mode         Mode
}

// DefaultPolicy returns the stock limits: scale in [0.1, 3], 80px reach margin, cutout mode.
func DefaultPolicy() Policy {
	return Policy{
		HardMinScale: 0.1,
		MaxScale:     3,
		ClampMargin:  80,
		Mode:         ModeCutout,
	}
}

// Transform places media on the canvas. PosX/PosY is the top-left of the
// unrotated scaled media rectangle; rotation is about that rectangle's center.
type Transform struct {
	PosX        float64 `json:"posX"`
	PosY        float64 `json:"posY"`
	Scale       float64 `json:"scale"`
	RotationDeg float64 `json:"rotationDeg"`
}

// identity is the transform used while no media is loaded.
var identity = Transform{Scale: 1}
