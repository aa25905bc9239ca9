package main

import (
	"flag"
	"log"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl64"

	"clipvox/internal/app"
	"clipvox/internal/config"
	"clipvox/internal/graphics"
	"clipvox/internal/input"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	var (
		configPath = flag.String("config", "", "path to clipvox.yaml (defaults when empty)")
		startY     = flag.Float64("y", 96, "starting camera height")
		fpsLimit   = flag.Int("fps", 0, "frame cap, 0 for unlimited")
		scale      = flag.Float64("scale", 0.5, "traced resolution as a fraction of the window")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[clipvox] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatalf("load config: %v", err)
		}
	}
	config.SetFPSLimit(*fpsLimit)
	config.SetRenderScale(float32(*scale))

	if err := glfw.Init(); err != nil {
		logger.Fatalf("glfw: %v", err)
	}
	defer glfw.Terminate()

	window, err := app.SetupWindow(cfg.Render.Width, cfg.Render.Height, "clipvox", logger)
	if err != nil {
		logger.Fatalf("window: %v", err)
	}

	engine, err := app.NewEngine(cfg, graphics.NewDevice(), logger)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	stop := app.Serve(cfg, engine, logger)

	viewer, err := app.NewApp(window, input.NewInputManager(), engine, mgl64.Vec3{0, *startY, 0}, logger)
	if err != nil {
		logger.Fatalf("viewer: %v", err)
	}
	viewer.Run()

	viewer.Close()
	stop()
	if err := engine.Close(); err != nil {
		logger.Printf("close: %v", err)
	}
}
