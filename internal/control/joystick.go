package control

// joyBaseSpeed is the per-tick step in canvas pixels at speed 1.
const joyBaseSpeed = 2

// Joystick tracks held directional controls.
type Joystick struct {
	up, down, left, right bool
	speed                 int
}

// NewJoystick returns a released joystick at speed 1.
func NewJoystick() *Joystick {
	return &Joystick{speed: 1}
}

// Press sets the held state of dir (up, down, left, right).
func (j *Joystick) Press(dir string, on bool) {
	switch dir {
	case "up":
		j.up = on
	case "down":
		j.down = on
	case "left":
		j.left = on
	case "right":
		j.right = on
	}
}

// ReleaseAll releases every direction.
func (j *Joystick) ReleaseAll() {
	j.up, j.down, j.left, j.right = false, false, false, false
}

// Active reports whether any direction is held.
func (j *Joystick) Active() bool {
	return j.up || j.down || j.left || j.right
}

// CycleSpeed advances the multiplier 1 -> 2 -> 4 -> 1 and returns it.
func (j *Joystick) CycleSpeed() int {
	switch j.speed {
	case 1:
		j.speed = 2
	case 2:
		j.speed = 4
	default:
		j.speed = 1
	}
	return j.speed
}

// Speed returns the current multiplier.
func (j *Joystick) Speed() int { return j.speed }

// Step returns the per-tick displacement for the held directions.
func (j *Joystick) Step() (float64, float64) {
	v := float64(joyBaseSpeed * j.speed)
	var dx, dy float64
	if j.up {
		dy -= v
	}
	if j.down {
		dy += v
	}
	if j.left {
		dx -= v
	}
	if j.right {
		dx += v
	}
	return dx, dy
}
