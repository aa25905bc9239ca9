package app

import (
	"fmt"
	"log"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// SetupWindow opens a 4.1 core window with its context current and the
// cursor captured for mouse look. Swap interval is 0; the Pacer caps the
// frame rate instead.
func SetupWindow(width, height int, title string, logger *log.Logger) (*glfw.Window, error) {
	for hint, v := range map[glfw.Hint]int{
		glfw.ContextVersionMajor:     4,
		glfw.ContextVersionMinor:     1,
		glfw.OpenGLForwardCompatible: glfw.True,
		glfw.OpenGLProfile:           glfw.OpenGLCoreProfile,
	} {
		glfw.WindowHint(hint, v)
	}

	window, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		window.Destroy()
		return nil, fmt.Errorf("gl init: %w", err)
	}
	if logger != nil {
		logger.Printf("OpenGL %s on %s", gl.GoStr(gl.GetString(gl.VERSION)), gl.GoStr(gl.GetString(gl.RENDERER)))
	}

	glfw.SwapInterval(0)
	window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
	if glfw.RawMouseMotionSupported() {
		window.SetInputMode(glfw.RawMouseMotion, glfw.True)
	}
	return window, nil
}
