package world

import "math"

// Action is one button a humanoid can hold.
type Action uint8

const (
	ActionJump Action = iota
	ActionLeft
	ActionRight
)

const (
	RunAccel    = 1500 // px/s² while left or right is held
	JumpImpulse = 300  // px/s subtracted from DY on a buffered jump
	Friction    = 0.8  // DX multiplier applied every step
	StopSpeed   = 0.5  // |DX| below this snaps to zero
)

// InputQueue keeps a short per-action history. Bit 0 is the current state;
// every step shifts the history left and carries bit 0 forward.
type InputQueue struct {
	Jump  uint8
	Left  uint8
	Right uint8
}

func (q *InputQueue) slot(a Action) *uint8 {
	switch a {
	case ActionLeft:
		return &q.Left
	case ActionRight:
		return &q.Right
	default:
		return &q.Jump
	}
}

// Set records whether the action is currently held.
func (q *InputQueue) Set(a Action, down bool) {
	s := q.slot(a)
	if down {
		*s |= 1
	} else {
		*s &^= 1
	}
}

func (q *InputQueue) Held(a Action) bool { return *q.slot(a)&1 != 0 }

// JumpBuffered reports a press edge within the last three frames.
func (q *InputQueue) JumpBuffered() bool {
	for i := 0; i < 3; i++ {
		if q.Jump>>i&0b11 == 0b01 {
			return true
		}
	}
	return false
}

// Advance shifts every queue by one frame.
func (q *InputQueue) Advance() {
	q.Jump = q.Jump<<1 | q.Jump&1
	q.Left = q.Left<<1 | q.Left&1
	q.Right = q.Right<<1 | q.Right&1
}

// ApplyInput turns held buttons into accelerations, applies friction and
// advances the queue. It runs once per step before physics.
func ApplyInput(h *Humanoid) {
	in := &h.Input
	if in.Held(ActionRight) {
		h.Motion.DDX += RunAccel
	}
	if in.Held(ActionLeft) {
		h.Motion.DDX -= RunAccel
	}
	if in.JumpBuffered() && h.Body.OnGround() {
		h.Motion.DY -= JumpImpulse
	}

	h.Motion.DX *= Friction
	if math.Abs(float64(h.Motion.DX)) < StopSpeed {
		h.Motion.DX = 0
	}

	in.Advance()
}
