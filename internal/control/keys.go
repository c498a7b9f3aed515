package control

const (
	keyStep     = 8
	keyZoomStep = 1.05
)

// ActionsForKey maps a keyboard key to placement actions. Keys are ignored
// without media.
func ActionsForKey(ready bool, key string) []Action {
	if !ready {
		return nil
	}
	switch key {
	case "ArrowUp":
		return []Action{{Type: ActNudge, Y: -keyStep}}
	case "ArrowDown":
		return []Action{{Type: ActNudge, Y: keyStep}}
	case "ArrowLeft":
		return []Action{{Type: ActNudge, X: -keyStep}}
	case "ArrowRight":
		return []Action{{Type: ActNudge, X: keyStep}}
	case "+", "=":
		return []Action{{Type: ActZoomBy, Value: keyZoomStep}}
	case "-", "_":
		return []Action{{Type: ActZoomBy, Value: 1 / keyZoomStep}}
	case "r", "R":
		return []Action{{Type: ActRotate}}
	default:
		return nil
	}
}
