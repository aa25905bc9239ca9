package app

import (
	"errors"
	"log"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl64"

	"clipvox/internal/clipmap"
	"clipvox/internal/config"
	"clipvox/internal/graphics"
	"clipvox/internal/input"
	"clipvox/internal/profiling"
	"clipvox/internal/traversal"
	"clipvox/internal/voxel"
)

// placeable is the material cycle for the place action.
var placeable = []voxel.Material{
	voxel.Stone, voxel.Dirt, voxel.Grass, voxel.Sand, voxel.Log,
	voxel.Leaves, voxel.Glass, voxel.Water, voxel.Snow, voxel.Lava,
}

// App is the interactive viewer: a fly camera over the engine.
type App struct {
	window       *glfw.Window
	inputManager *input.InputManager
	mouse        *input.MouseLook

	engine    *Engine
	presenter *graphics.Presenter
	camera    *traversal.Camera
	logger    *log.Logger

	Paused   bool
	Speed    float64
	material int

	pacer    *Pacer
	lastTime time.Time
}

// NewApp wires the viewer to window. The GL context must be current.
func NewApp(window *glfw.Window, im *input.InputManager, engine *Engine, start mgl64.Vec3, logger *log.Logger) (*App, error) {
	presenter, err := graphics.NewPresenter()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	a := &App{
		window:       window,
		inputManager: im,
		mouse:        input.NewMouseLook(),
		engine:       engine,
		presenter:    presenter,
		camera:       traversal.NewCamera(start),
		logger:       logger,
		Speed:        24,
		pacer:        NewPacer(),
		lastTime:     time.Now(),
	}
	a.installCallbacks()
	logger.Printf("controls:\n%s", im.Help())
	w, h := window.GetFramebufferSize()
	engine.SetViewport(w, h)
	return a, nil
}

func (a *App) installCallbacks() {
	a.window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if a.Paused {
			return
		}
		dyaw, dpitch := a.mouse.Delta(xpos, ypos)
		a.camera.Rotate(dyaw, dpitch)
	})
	a.window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		a.inputManager.HandleMouseButtonEvent(button, action)
	})
	a.window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		a.inputManager.HandleKeyEvent(key, action)
	})
	a.window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		a.Speed *= 1 + 0.1*yoff
		a.Speed = max(1, min(a.Speed, 4096))
	})
	a.window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		a.engine.SetViewport(width, height)
	})
}

func (a *App) Run() {
	for !a.window.ShouldClose() {
		a.tick()
	}
}

// Close tears down GL state. The engine is closed by its owner.
func (a *App) Close() {
	a.presenter.Dispose()
}

func (a *App) tick() {
	profiling.ResetFrame()
	startTick := time.Now() // Measure pure processing time
	now := time.Now()
	dt := now.Sub(a.lastTime).Seconds()
	a.lastTime = now

	glfw.PollEvents()
	a.handleActions()
	if !a.Paused {
		Fly(a.camera, ReadMoveInput(a.inputManager), dt, a.Speed)
	}

	if _, err := a.engine.Step(a.camera); err != nil {
		if errors.Is(err, clipmap.ErrWorkingSetExceedsCeiling) {
			a.logger.Printf("streaming stopped: %v", err)
			a.window.SetShouldClose(true)
		} else {
			a.logger.Printf("step: %v", err)
		}
	}

	w, h := a.window.GetFramebufferSize()
	a.presenter.Crosshair = !a.Paused
	a.presenter.Draw(a.engine.Frame().Image, w, h)
	a.window.SwapBuffers()

	// Check if frame took too long (> 33ms)
	processingDuration := time.Since(startTick)
	if processingDuration > 33*time.Millisecond {
		a.logger.Printf("Slow frame: %v. Top tasks: %s", processingDuration, profiling.TopN(5))
	}

	a.inputManager.PostUpdate() // Clear "JustPressed" flags
	a.pacer.Wait(a.Paused)
}

func (a *App) handleActions() {
	im := a.inputManager
	if im.JustPressed(input.ActionPause) {
		a.Paused = !a.Paused
		if a.Paused {
			a.window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
		} else {
			a.window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			a.mouse.Reset()
		}
	}
	if im.JustPressed(input.ActionToggleBlend) {
		config.SetBlendEnabled(!config.GetBlendEnabled())
	}
	if im.JustPressed(input.ActionToggleShowLOD) {
		config.SetShowLOD(!config.GetShowLOD())
	}
	if im.JustPressed(input.ActionToggleProfiling) {
		for i, st := range profiling.Totals() {
			if i == 10 {
				break
			}
			a.logger.Printf("profile: %-28s %10s %8d calls", st.Name, profiling.FormatMs(st.Total), st.Calls)
		}
	}
	if im.JustPressed(input.ActionRenderScaleUp) {
		config.SetRenderScale(config.GetRenderScale() * 2)
	}
	if im.JustPressed(input.ActionRenderScaleDown) {
		config.SetRenderScale(config.GetRenderScale() / 2)
	}
	c := a.engine.Controller()
	if im.JustPressed(input.ActionFewerLODs) {
		a.logger.Printf("active lods: %d", c.SetActiveLODCount(c.Stats().ActiveLODs-1))
	}
	if im.JustPressed(input.ActionMoreLODs) {
		a.logger.Printf("active lods: %d", c.SetActiveLODCount(c.Stats().ActiveLODs+1))
	}
	if im.JustPressed(input.ActionCheckpoint) {
		if err := a.engine.Checkpoint(); err != nil {
			a.logger.Printf("checkpoint: %v", err)
		}
	}
	if im.JustPressed(input.ActionMaterialNext) {
		a.material = (a.material + 1) % len(placeable)
		a.logger.Printf("material: %s", voxel.Lookup(placeable[a.material]).Name)
	}
	if im.JustPressed(input.ActionMaterialPrev) {
		a.material = (a.material + len(placeable) - 1) % len(placeable)
		a.logger.Printf("material: %s", voxel.Lookup(placeable[a.material]).Name)
	}

	if a.Paused {
		return
	}
	var err error
	switch {
	case im.JustPressed(input.ActionMouseLeft):
		_, err = a.engine.Break(a.camera)
	case im.JustPressed(input.ActionMouseRight):
		_, err = a.engine.Place(a.camera, placeable[a.material])
	case im.JustPressed(input.ActionMouseMiddle):
		if hit := a.engine.Pick(a.camera); hit.Hit {
			for i, m := range placeable {
				if m == hit.Material {
					a.material = i
				}
			}
		}
	}
	if err != nil {
		a.logger.Printf("edit: %v", err)
	}
}
