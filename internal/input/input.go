package input

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// Action is a logical viewer action, bound to one or more physical inputs.
type Action int

const (
	ActionMoveForward Action = iota
	ActionMoveBackward
	ActionMoveLeft
	ActionMoveRight
	ActionMoveUp
	ActionMoveDown
	ActionSprint
	ActionPause
	ActionMaterialNext
	ActionMaterialPrev
	ActionToggleBlend
	ActionToggleShowLOD
	ActionToggleProfiling
	ActionRenderScaleUp
	ActionRenderScaleDown
	ActionFewerLODs
	ActionMoreLODs
	ActionCheckpoint
	ActionMouseLeft
	ActionMouseRight
	ActionMouseMiddle
	ActionModControl
	ActionModShift
	ActionCount // array sizing
)

var actionNames = [ActionCount]string{
	"forward", "backward", "left", "right", "up", "down", "sprint", "pause",
	"next material", "previous material", "toggle blend", "toggle lod tint",
	"toggle profiling", "render scale up", "render scale down", "fewer lods",
	"more lods", "checkpoint", "break", "place", "pick material", "ctrl", "shift",
}

func (a Action) String() string {
	if a < 0 || a >= ActionCount {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

func (a Action) valid() bool { return a >= 0 && a < ActionCount }

// DefaultKeys is the keyboard layout installed by NewInputManager. A key may
// drive several actions; left shift is both "down" and the shift modifier.
var DefaultKeys = map[glfw.Key][]Action{
	glfw.KeyW:            {ActionMoveForward},
	glfw.KeyS:            {ActionMoveBackward},
	glfw.KeyA:            {ActionMoveLeft},
	glfw.KeyD:            {ActionMoveRight},
	glfw.KeySpace:        {ActionMoveUp},
	glfw.KeyLeftShift:    {ActionMoveDown, ActionModShift},
	glfw.KeyRightShift:   {ActionModShift},
	glfw.KeyLeftControl:  {ActionSprint, ActionModControl},
	glfw.KeyRightControl: {ActionModControl},
	glfw.KeyEscape:       {ActionPause},
	glfw.KeyE:            {ActionMaterialNext},
	glfw.KeyQ:            {ActionMaterialPrev},
	glfw.KeyB:            {ActionToggleBlend},
	glfw.KeyL:            {ActionToggleShowLOD},
	glfw.KeyV:            {ActionToggleProfiling},
	glfw.KeyRightBracket: {ActionRenderScaleUp},
	glfw.KeyLeftBracket:  {ActionRenderScaleDown},
	glfw.KeyMinus:        {ActionFewerLODs},
	glfw.KeyEqual:        {ActionMoreLODs},
	glfw.KeyF5:           {ActionCheckpoint},
}

var DefaultButtons = map[glfw.MouseButton][]Action{
	glfw.MouseButtonLeft:   {ActionMouseLeft},
	glfw.MouseButtonRight:  {ActionMouseRight},
	glfw.MouseButtonMiddle: {ActionMouseMiddle},
}

// InputManager tracks held actions and per-frame press/release edges. GLFW
// callbacks feed it; the frame loop reads it and calls PostUpdate.
type InputManager struct {
	mu sync.RWMutex

	keys    map[glfw.Key][]Action
	buttons map[glfw.MouseButton][]Action

	held     [ActionCount]bool
	pressed  [ActionCount]bool
	released [ActionCount]bool
}

// NewInputManager returns a manager with DefaultKeys and DefaultButtons bound.
func NewInputManager() *InputManager {
	im := &InputManager{
		keys:    make(map[glfw.Key][]Action),
		buttons: make(map[glfw.MouseButton][]Action),
	}
	for k, acts := range DefaultKeys {
		for _, a := range acts {
			im.BindKey(k, a)
		}
	}
	for b, acts := range DefaultButtons {
		for _, a := range acts {
			im.BindMouseButton(b, a)
		}
	}
	return im
}

func (im *InputManager) BindKey(key glfw.Key, action Action) {
	if !action.valid() {
		return
	}
	im.mu.Lock()
	im.keys[key] = append(im.keys[key], action)
	im.mu.Unlock()
}

func (im *InputManager) UnbindKey(key glfw.Key) {
	im.mu.Lock()
	delete(im.keys, key)
	im.mu.Unlock()
}

func (im *InputManager) BindMouseButton(button glfw.MouseButton, action Action) {
	if !action.valid() {
		return
	}
	im.mu.Lock()
	im.buttons[button] = append(im.buttons[button], action)
	im.mu.Unlock()
}

func (im *InputManager) UnbindMouseButton(button glfw.MouseButton) {
	im.mu.Lock()
	delete(im.buttons, button)
	im.mu.Unlock()
}

// HandleKeyEvent records a key event. Repeats count as held, not as presses.
func (im *InputManager) HandleKeyEvent(key glfw.Key, action glfw.Action) {
	im.mu.Lock()
	im.set(im.keys[key], action == glfw.Press || action == glfw.Repeat)
	im.mu.Unlock()
}

func (im *InputManager) HandleMouseButtonEvent(button glfw.MouseButton, action glfw.Action) {
	im.mu.Lock()
	im.set(im.buttons[button], action == glfw.Press)
	im.mu.Unlock()
}

// set updates held state and edges. Callers hold mu.
func (im *InputManager) set(actions []Action, down bool) {
	for _, a := range actions {
		switch {
		case down && !im.held[a]:
			im.pressed[a] = true
		case !down && im.held[a]:
			im.released[a] = true
		}
		im.held[a] = down
	}
}

// SetKeyCallback installs the manager as window's key callback.
func (im *InputManager) SetKeyCallback(window *glfw.Window) {
	window.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		im.HandleKeyEvent(key, action)
	})
}

// PostUpdate clears this frame's edges. Call it once at the end of a frame.
func (im *InputManager) PostUpdate() {
	im.mu.Lock()
	im.pressed = [ActionCount]bool{}
	im.released = [ActionCount]bool{}
	im.mu.Unlock()
}

func (im *InputManager) read(state *[ActionCount]bool, a Action) bool {
	if !a.valid() {
		return false
	}
	im.mu.RLock()
	defer im.mu.RUnlock()
	return state[a]
}

// IsActive reports whether action is held.
func (im *InputManager) IsActive(action Action) bool { return im.read(&im.held, action) }

// JustPressed reports whether action went down during this frame.
func (im *InputManager) JustPressed(action Action) bool { return im.read(&im.pressed, action) }

// JustReleased reports whether action went up during this frame.
func (im *InputManager) JustReleased(action Action) bool { return im.read(&im.released, action) }

// Help lists the current key bindings, one "key: action, action" per line,
// sorted by key name.
func (im *InputManager) Help() string {
	im.mu.RLock()
	lines := make([]string, 0, len(im.keys))
	for k, acts := range im.keys {
		names := make([]string, len(acts))
		for i, a := range acts {
			names[i] = a.String()
		}
		lines = append(lines, keyName(k)+": "+strings.Join(names, ", "))
	}
	im.mu.RUnlock()
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

var specialKeys = map[glfw.Key]string{
	glfw.KeySpace:        "space",
	glfw.KeyLeftShift:    "lshift",
	glfw.KeyRightShift:   "rshift",
	glfw.KeyLeftControl:  "lctrl",
	glfw.KeyRightControl: "rctrl",
	glfw.KeyEscape:       "esc",
	glfw.KeyF5:           "f5",
	glfw.KeyLeftBracket:  "[",
	glfw.KeyRightBracket: "]",
	glfw.KeyMinus:        "-",
	glfw.KeyEqual:        "=",
}

// keyName names k without asking GLFW, so it works before Init.
func keyName(k glfw.Key) string {
	if n, ok := specialKeys[k]; ok {
		return n
	}
	if k >= glfw.KeyA && k <= glfw.KeyZ {
		return string(rune('a' + int(k-glfw.KeyA)))
	}
	if k >= glfw.Key0 && k <= glfw.Key9 {
		return string(rune('0' + int(k-glfw.Key0)))
	}
	return fmt.Sprintf("key%d", int(k))
}
