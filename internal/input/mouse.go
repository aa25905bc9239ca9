package input

// MouseLook turns cursor positions into yaw and pitch deltas in degrees.
type MouseLook struct {
	Sensitivity float64

	lastX, lastY float64
	primed       bool
}

func NewMouseLook() *MouseLook {
	return &MouseLook{Sensitivity: 0.1}
}

// Reset forgets the last position, e.g. when the cursor is recaptured.
func (m *MouseLook) Reset() {
	m.primed = false
}

// Delta returns the rotation for a move to (xpos, ypos). The first call
// after Reset only records the position.
func (m *MouseLook) Delta(xpos, ypos float64) (dyaw, dpitch float64) {
	if !m.primed {
		m.lastX, m.lastY = xpos, ypos
		m.primed = true
		return 0, 0
	}
	xoffset := xpos - m.lastX
	yoffset := m.lastY - ypos
	m.lastX, m.lastY = xpos, ypos
	return xoffset * m.Sensitivity, yoffset * m.Sensitivity
}
