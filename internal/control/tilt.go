package control

import (
	"math"

	"github.com/frudas24/frameit/internal/placement"
)

const (
	tiltSensX    = 0.35
	tiltSensY    = 0.25
	tiltMaxShift = 0.08
	tiltApproach = 0.15
)

// Tilt pans the media from device orientation readings.
type Tilt struct {
	enabled bool
	gamma   float64
	beta    float64
}

// Enabled reports whether tilt panning is on.
func (t *Tilt) Enabled() bool { return t.enabled }

// SetEnabled switches tilt panning and reports whether the state changed.
func (t *Tilt) SetEnabled(on bool) bool {
	if t.enabled == on {
		return false
	}
	t.enabled = on
	if !on {
		t.gamma, t.beta = 0, 0
	}
	return true
}

// Orient records the latest left/right (gamma) and front/back (beta) angles.
func (t *Tilt) Orient(gamma, beta float64) {
	if math.IsNaN(gamma) || math.IsInf(gamma, 0) {
		gamma = 0
	}
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		beta = 0
	}
	t.gamma, t.beta = gamma, beta
}

// Step moves the media a fraction of the way toward the centered position
// shifted by the tilt, bounded to 8% of the cutout.
func (t *Tilt) Step(p *placement.State) {
	if !t.enabled || !p.HasMedia() {
		return
	}
	c := p.Cutout()
	maxX := c.W * tiltMaxShift
	maxY := c.H * tiltMaxShift
	dx := math.Max(-maxX, math.Min(maxX, t.gamma*tiltSensX))
	dy := math.Max(-maxY, math.Min(maxY, t.beta*tiltSensY))

	w, h := p.DrawSize()
	targetX := c.X + (c.W-w)/2 + dx
	targetY := c.Y + (c.H-h)/2 + dy
	cur := p.Transform()
	p.SetPosition(cur.PosX+(targetX-cur.PosX)*tiltApproach, cur.PosY+(targetY-cur.PosY)*tiltApproach)
}
