// Package control handles the editor input protocol and gesture mapping.
package control

import (
	"time"

	"github.com/frudas24/frameit/internal/placement"
)

// doubleTapWindow is the maximum gap between two taps of a double tap.
const doubleTapWindow = 300 * time.Millisecond

// GestureState tracks drag and double-tap state for pointer interactions.
// Drags are delta-based: the offset between the press point and the media
// position is kept for the whole drag.
type GestureState struct {
	dragActive  bool
	dragPointer int
	offsetX     float64
	offsetY     float64
	lastX       float64
	lastY       float64
	lastTapAt   time.Time
	now         func() time.Time
}

// NewGestureState returns a ready-to-use gesture tracker.
func NewGestureState() *GestureState {
	return &GestureState{now: time.Now}
}

// SetNowFunc overrides the clock used for double-tap detection.
func (g *GestureState) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		g.now = fn
	}
}

// Dragging reports whether a drag is in progress.
func (g *GestureState) Dragging() bool {
	return g.dragActive
}

// HandleDown processes a pointer press at canvas point (x,y).
func (g *GestureState) HandleDown(ready bool, pointerID int, x, y float64, t placement.Transform) []Action {
	if !ready {
		return nil
	}
	g.dragActive = true
	g.dragPointer = pointerID
	g.offsetX = x - t.PosX
	g.offsetY = y - t.PosY
	g.lastX = x
	g.lastY = y
	return []Action{{Type: ActBeginDrag}}
}

// HandleMove processes a pointer move at canvas point (x,y).
func (g *GestureState) HandleMove(ready bool, pointerID int, x, y float64) []Action {
	if !ready || !g.dragActive || g.dragPointer != pointerID {
		return nil
	}
	if x == g.lastX && y == g.lastY {
		return nil
	}
	g.lastX = x
	g.lastY = y
	return []Action{{Type: ActMoveTo, X: x - g.offsetX, Y: y - g.offsetY}}
}

// HandleUp processes a pointer release. Two touch releases within the
// double-tap window toggle the zoom.
func (g *GestureState) HandleUp(pointerID int, touch bool) []Action {
	var actions []Action
	if g.dragActive && g.dragPointer == pointerID {
		g.dragActive = false
		actions = append(actions, Action{Type: ActEndDrag})
	}
	if touch {
		now := g.now()
		if !g.lastTapAt.IsZero() && now.Sub(g.lastTapAt) < doubleTapWindow {
			actions = append(actions, Action{Type: ActToggleZoom})
		}
		g.lastTapAt = now
	}
	return actions
}

// HandleCancel aborts any drag.
func (g *GestureState) HandleCancel() []Action {
	if !g.dragActive {
		return nil
	}
	g.dragActive = false
	return []Action{{Type: ActEndDrag}}
}

// Reset forgets drag and tap state.
func (g *GestureState) Reset() {
	g.dragActive = false
	g.lastTapAt = time.Time{}
}
