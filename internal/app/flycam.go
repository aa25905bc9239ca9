package app

import (
	"github.com/go-gl/mathgl/mgl64"

	"clipvox/internal/input"
	"clipvox/internal/traversal"
)

// MoveInput is the movement state of one frame.
type MoveInput struct {
	Forward, Backward bool
	Left, Right       bool
	Up, Down          bool
	Sprint            bool
}

// ReadMoveInput samples the movement actions.
func ReadMoveInput(im *input.InputManager) MoveInput {
	return MoveInput{
		Forward:  im.IsActive(input.ActionMoveForward),
		Backward: im.IsActive(input.ActionMoveBackward),
		Left:     im.IsActive(input.ActionMoveLeft),
		Right:    im.IsActive(input.ActionMoveRight),
		Up:       im.IsActive(input.ActionMoveUp),
		Down:     im.IsActive(input.ActionMoveDown),
		Sprint:   im.IsActive(input.ActionSprint),
	}
}

const sprintFactor = 8

// Fly moves cam for dt seconds at speed units per second. Forward follows
// the view direction; up and down follow the world axis.
func Fly(cam *traversal.Camera, in MoveInput, dt, speed float64) {
	front := cam.Front()
	right := front.Cross(mgl64.Vec3{0, 1, 0})
	if right.Len() < 1e-9 {
		right = mgl64.Vec3{1, 0, 0}
	}
	right = right.Normalize()

	var move mgl64.Vec3
	if in.Forward {
		move = move.Add(front)
	}
	if in.Backward {
		move = move.Sub(front)
	}
	if in.Right {
		move = move.Add(right)
	}
	if in.Left {
		move = move.Sub(right)
	}
	if in.Up {
		move[1]++
	}
	if in.Down {
		move[1]--
	}
	if move.Len() == 0 {
		return
	}
	if in.Sprint {
		speed *= sprintFactor
	}
	cam.Position = cam.Position.Add(move.Normalize().Mul(speed * dt))
}
