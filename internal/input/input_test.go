package input

import (
	"strings"
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func TestKeyEdges(t *testing.T) {
	im := NewInputManager()

	im.HandleKeyEvent(glfw.KeyW, glfw.Press)
	if !im.IsActive(ActionMoveForward) || !im.JustPressed(ActionMoveForward) {
		t.Fatalf("W press not seen as forward")
	}
	im.PostUpdate()
	if im.JustPressed(ActionMoveForward) {
		t.Errorf("JustPressed survived PostUpdate")
	}
	im.HandleKeyEvent(glfw.KeyW, glfw.Repeat)
	if im.JustPressed(ActionMoveForward) {
		t.Errorf("repeat counted as a new press")
	}
	im.HandleKeyEvent(glfw.KeyW, glfw.Release)
	if im.IsActive(ActionMoveForward) || !im.JustReleased(ActionMoveForward) {
		t.Errorf("release not seen")
	}
}

func TestSharedKeyDrivesBothActions(t *testing.T) {
	im := NewInputManager()
	im.HandleKeyEvent(glfw.KeyLeftShift, glfw.Press)
	if !im.IsActive(ActionMoveDown) || !im.IsActive(ActionModShift) {
		t.Errorf("left shift should drive move down and the shift modifier")
	}
}

func TestUnbindAndMouse(t *testing.T) {
	im := NewInputManager()
	im.UnbindKey(glfw.KeyB)
	im.HandleKeyEvent(glfw.KeyB, glfw.Press)
	if im.IsActive(ActionToggleBlend) {
		t.Errorf("unbound key still active")
	}

	im.HandleMouseButtonEvent(glfw.MouseButtonRight, glfw.Press)
	if !im.JustPressed(ActionMouseRight) {
		t.Errorf("right click not seen")
	}
	if im.IsActive(ActionCount) || im.JustPressed(-1) {
		t.Errorf("out of range actions must read false")
	}
}

func TestMouseLook(t *testing.T) {
	m := NewMouseLook()
	if dy, dp := m.Delta(100, 100); dy != 0 || dp != 0 {
		t.Fatalf("first delta = %v,%v, want 0,0", dy, dp)
	}
	dy, dp := m.Delta(110, 80)
	if dy != 1 || dp != 2 {
		t.Errorf("delta = %v,%v, want 1,2", dy, dp)
	}
	m.Reset()
	if dy, dp := m.Delta(0, 0); dy != 0 || dp != 0 {
		t.Errorf("delta after reset = %v,%v", dy, dp)
	}
}

func TestHelpListsBindings(t *testing.T) {
	im := NewInputManager()
	help := im.Help()
	for _, want := range []string{"w: forward", "f5: checkpoint", "lshift: down, shift"} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q:\n%s", want, help)
		}
	}
	if got := Action(99).String(); got != "Action(99)" {
		t.Errorf("out of range name = %q", got)
	}
}
