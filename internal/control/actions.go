// Package control handles the editor input protocol and gesture mapping.
package control

import "github.com/frudas24/frameit/internal/placement"

// ActionType identifies the kind of placement operation to apply.
type ActionType string

const (
	// ActBeginDrag enters the dragging state.
	ActBeginDrag ActionType = "begin_drag"
	// ActEndDrag leaves the dragging state.
	ActEndDrag ActionType = "end_drag"
	// ActMoveTo places the media top-left at (X,Y).
	ActMoveTo ActionType = "move_to"
	// ActNudge moves the media by (X,Y).
	ActNudge ActionType = "nudge"
	// ActZoomTo zooms about the media center to Value.
	ActZoomTo ActionType = "zoom_to"
	// ActZoomBy multiplies the scale by Value about the media center.
	ActZoomBy ActionType = "zoom_by"
	// ActRotate rotates by +90 degrees.
	ActRotate ActionType = "rotate"
	// ActRotateTo sets an absolute rotation of Value degrees.
	ActRotateTo ActionType = "rotate_to"
	// ActToggleZoom flips between fit and twice fit.
	ActToggleZoom ActionType = "toggle_zoom"
	// ActFit refits the media to the cutout.
	ActFit ActionType = "fit"
	// ActCenter centers the media in the cutout.
	ActCenter ActionType = "center"
)

// Action describes a normalized placement operation.
type Action struct {
	Type  ActionType
	X     float64
	Y     float64
	Value float64
}

// applyTo runs a on p. Drag state actions are handled by the caller.
func (a Action) applyTo(p *placement.State) {
	switch a.Type {
	case ActMoveTo:
		p.SetPosition(a.X, a.Y)
	case ActNudge:
		p.Nudge(a.X, a.Y)
	case ActZoomTo:
		p.ZoomFromCenter(a.Value)
	case ActZoomBy:
		p.ZoomFromCenter(p.Transform().Scale * a.Value)
	case ActRotate:
		p.RotateStep()
	case ActRotateTo:
		p.SetRotation(a.Value)
	case ActToggleZoom:
		p.ToggleZoom()
	case ActFit:
		p.FitToCutout()
	case ActCenter:
		p.CenterInCutout()
	}
}
