// Package viewport describes where the canvas is displayed on the client screen.
package viewport

// Viewport is the on-screen rectangle of the canvas element in client pixels.
type Viewport struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the viewport has a usable size.
func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0
}

// ToCanvas maps a client point into canvas pixels using the ratio of the
// canvas intrinsic size to its displayed size. An unknown viewport maps 1:1.
func (v Viewport) ToCanvas(clientX, clientY float64, canvasW, canvasH int) (float64, float64) {
	if !v.Valid() {
		return clientX, clientY
	}
	x := (clientX - v.Left) * (float64(canvasW) / v.Width)
	y := (clientY - v.Top) * (float64(canvasH) / v.Height)
	return x, y
}
