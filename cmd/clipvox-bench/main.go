package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/xlab/closer"

	"clipvox/internal/app"
	"clipvox/internal/clipmap"
	"clipvox/internal/config"
	"clipvox/internal/gpu"
	"clipvox/internal/profiling"
	"clipvox/internal/traversal"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to clipvox.yaml (defaults when empty)")
		frames     = flag.Int("frames", 300, "frames to run")
		path       = flag.String("path", "orbit", "camera path: orbit or line")
		radius     = flag.Float64("radius", 256, "orbit radius")
		height     = flag.Float64("height", 96, "camera height")
		speed      = flag.Float64("speed", 64, "line path speed in voxels per frame")
		shots      = flag.String("shots", "", "frame indices to capture, e.g. 0,10,20-25")
		out        = flag.String("out", "frame_{}.png", "capture path pattern; {} or a printf verb takes the frame")
		shotW      = flag.Int("shot-width", 0, "capture width, 0 keeps the traced size")
		shotH      = flag.Int("shot-height", 0, "capture height, 0 keeps the traced size")
		report     = flag.Int("report", 30, "log stats every n frames")
		scale      = flag.Float64("scale", 1, "traced resolution as a fraction of render.width x render.height")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[clipvox-bench] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatalf("load config: %v", err)
		}
	}
	config.SetRenderScale(float32(*scale))

	engine, err := app.NewEngine(cfg, gpu.NewHostDevice(), logger)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	stop := app.Serve(cfg, engine, logger)
	closer.Bind(func() {
		stop()
		if err := engine.Close(); err != nil {
			logger.Printf("close: %v", err)
		}
		printTotals()
	})
	defer closer.Close()

	capture := parseFrameIndices(*shots)
	cam := traversal.NewCamera(mgl64.Vec3{*radius, *height, 0})
	for f := 0; f < *frames; f++ {
		profiling.ResetFrame()
		switch *path {
		case "line":
			flyLine(cam, f, *height, *speed)
		default:
			orbit(cam, f, *radius, *height)
		}

		st, err := engine.Step(cam)
		if err != nil {
			closer.Fatalln("step:", err)
		}
		if *report > 0 && f%*report == 0 {
			logFrame(logger, f, st, engine.Controller().Stats())
		}
		if capture[uint64(f)] {
			p := outputPath(*out, uint64(f))
			if err := saveShot(p, engine.Frame().Image, *shotW, *shotH); err != nil {
				closer.Fatalln("capture:", err)
			}
			logger.Printf("frame %d captured to %s", f, p)
		}
	}
	if len(capture) > 0 && lastFrame(capture) >= uint64(*frames) {
		logger.Printf("warning: frames past %d were never captured", *frames-1)
	}
}

// orbit circles the origin once every 720 frames, looking at the centre.
func orbit(cam *traversal.Camera, frame int, radius, height float64) {
	theta := 2 * math.Pi * float64(frame) / 720
	x, z := radius*math.Cos(theta), radius*math.Sin(theta)
	cam.Position = mgl64.Vec3{x, height, z}
	cam.Yaw = mgl64.RadToDeg(math.Atan2(-z, -x))
	cam.Pitch = -mgl64.RadToDeg(math.Atan2(height, radius)) / 2
}

// flyLine heads along +x, forcing a window shift every few frames.
func flyLine(cam *traversal.Camera, frame int, height, speed float64) {
	cam.Position = mgl64.Vec3{float64(frame) * speed, height, 0}
	cam.Yaw = 0
	cam.Pitch = -20
}

func logFrame(logger *log.Logger, frame int, st app.StepStats, s clipmap.Stats) {
	var states []string
	for i, name := range s.States {
		states = append(states, fmt.Sprintf("%d:%s/%d", i, name, s.Rebuilding[i]))
	}
	logger.Printf("frame %d %s applied=%d inflight=%d uploads=%d/%dB hits=%d/%d lods=[%s] top: %s",
		frame, profiling.FormatMs(st.Elapsed), st.Applied, s.Inflight,
		st.Sync.Writes, st.Sync.Bytes, st.Trace.Hits, st.Trace.Rays,
		strings.Join(states, " "), profiling.TopN(3))
}

func printTotals() {
	fmt.Println("profiling totals:")
	for _, st := range profiling.Totals() {
		fmt.Printf("  %-28s %10s %8d calls\n", st.Name, profiling.FormatMs(st.Total), st.Calls)
	}
}
