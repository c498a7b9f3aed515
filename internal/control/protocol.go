// Package control handles the editor input protocol and gesture mapping.
package control

import (
	"github.com/frudas24/frameit/internal/compositor"
	"github.com/frudas24/frameit/internal/placement"
	"github.com/frudas24/frameit/internal/viewport"
)

// Message is a control websocket payload sent by the client.
type Message struct {
	T       string              `json:"t"`
	ID      int                 `json:"id,omitempty"`
	X       float64             `json:"x,omitempty"`
	Y       float64             `json:"y,omitempty"`
	Touch   bool                `json:"touch,omitempty"`
	Value   float64             `json:"value,omitempty"`
	Key     string              `json:"key,omitempty"`
	Dir     string              `json:"dir,omitempty"`
	On      *bool               `json:"on,omitempty"`
	Enabled *bool               `json:"enabled,omitempty"`
	Gamma   float64             `json:"gamma,omitempty"`
	Beta    float64             `json:"beta,omitempty"`
	Video   string              `json:"video,omitempty"`
	Rect    *viewport.Viewport  `json:"rect,omitempty"`
	Filters *compositor.Filters `json:"filters,omitempty"`
}

// StateMessage is pushed to the client whenever the editor state changes.
type StateMessage struct {
	T         string              `json:"t"`
	State     string              `json:"state"`
	Kind      string              `json:"kind,omitempty"`
	AssetID   string              `json:"assetId,omitempty"`
	Transform placement.Transform `json:"transform"`
	Slider    float64             `json:"slider"`
	Min       float64             `json:"min"`
	Max       float64             `json:"max"`
	Speed     int                 `json:"speed"`
	Tilt      bool                `json:"tilt"`
	Video     string              `json:"video"`
	Preset    string              `json:"preset"`
	CanvasW   int                 `json:"canvasW"`
	CanvasH   int                 `json:"canvasH"`
	Filters   compositor.Filters  `json:"filters"`
	Msg       string              `json:"msg,omitempty"`
}
