package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"clipvox/internal/clipmap"
	"clipvox/internal/config"
	"clipvox/internal/gpu"
	"clipvox/internal/metrics"
	"clipvox/internal/persistence"
	"clipvox/internal/physics"
	"clipvox/internal/profiling"
	"clipvox/internal/traversal"
	"clipvox/internal/transport/observer"
	"clipvox/internal/voxel"
)

// Engine runs one frame of streaming, mirroring and tracing. It owns no
// window, so the viewer and the headless bench share it.
type Engine struct {
	cfg        config.File
	logger     *log.Logger
	controller *clipmap.Controller
	mirror     *gpu.Mirror
	renderer   *traversal.Renderer
	accum      *traversal.Accumulator
	frame      *traversal.Frame
	store      *persistence.Store

	// Observer receives stats after every step when set.
	Observer *observer.Server

	viewW, viewH int
}

// StepStats reports what one Step did.
type StepStats struct {
	Applied int
	Sync    gpu.SyncStats
	Trace   traversal.FrameStats
	Elapsed time.Duration
}

// NewEngine builds the controller, restores persisted edits and allocates
// the mirror on dev.
func NewEngine(cfg config.File, dev gpu.Device, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.Default()
	}
	gen, err := cfg.Terrain.Generator()
	if err != nil {
		return nil, err
	}
	store, err := persistence.Open(cfg.Persistence.JournalPath, cfg.Persistence.SnapshotPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open persistence: %w", err)
	}

	opts := cfg.Options()
	opts.Journal = store.Sink()
	opts.Logger = logger
	c := clipmap.New(gen, opts)
	if _, err := store.Restore(context.Background(), c); err != nil {
		c.Close()
		_ = store.Close()
		return nil, fmt.Errorf("restore edits: %w", err)
	}

	mirror, err := gpu.NewMirror(dev)
	if err != nil {
		c.Close()
		_ = store.Close()
		return nil, err
	}

	r := traversal.NewRenderer()
	r.MaxDistance = cfg.Render.MaxDistance
	r.BlendBandPages = cfg.BlendBandPages

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		controller: c,
		mirror:     mirror,
		renderer:   r,
		accum:      traversal.NewAccumulator(cfg.Render.TemporalAlpha),
		store:      store,
	}
	e.SetViewport(cfg.Render.Width, cfg.Render.Height)
	return e, nil
}

// Controller returns the streaming controller the engine drives.
func (e *Engine) Controller() *clipmap.Controller { return e.controller }

// Mirror returns the device mirror synced on every Step.
func (e *Engine) Mirror() *gpu.Mirror { return e.mirror }

// Frame returns the last traced frame, resolved through the temporal blend.
func (e *Engine) Frame() *traversal.Frame { return e.frame }

// SetViewport sizes the traced frame to the window scaled by the current
// render scale. History is dropped when the size changes.
func (e *Engine) SetViewport(width, height int) {
	e.viewW, e.viewH = width, height
	scale := config.GetRenderScale()
	w := max(1, int(float32(width)*scale))
	h := max(1, int(float32(height)*scale))
	if e.frame != nil && e.frame.Width == w && e.frame.Height == h {
		return
	}
	e.frame = traversal.NewFrame(w, h)
	e.accum.Reset()
}

// Step advances streaming to cam, uploads what changed and traces a frame.
func (e *Engine) Step(cam *traversal.Camera) (StepStats, error) {
	defer profiling.Track("app.Step")()
	start := time.Now()
	var st StepStats

	if err := e.controller.Update(cam.Position); err != nil {
		return st, err
	}
	st.Applied = e.controller.ApplyBudget(e.cfg.ApplyBudget)

	// render scale may have changed since the last frame
	e.SetViewport(e.viewW, e.viewH)

	var flags uint32
	if config.GetBlendEnabled() {
		flags |= gpu.FlagBlend
	}
	if config.GetShowLOD() {
		flags |= gpu.FlagShowLOD
	}
	e.mirror.Flags = flags

	view := e.controller.View()
	sync, err := e.mirror.Sync(view, e.controller.TakeDirty())
	if err != nil {
		return st, err
	}
	st.Sync = sync

	cam.FOV = e.cfg.Render.FOV
	e.renderer.Blend = flags&gpu.FlagBlend != 0
	e.renderer.ShowLOD = flags&gpu.FlagShowLOD != 0
	e.renderer.Render(view, cam, e.frame)
	e.accum.Resolve(e.frame)
	st.Trace = e.frame.Stats

	if e.Observer != nil {
		e.Observer.Publish(observer.NewStatsMsg(e.controller.Stats(), cam.Position))
	}

	st.Elapsed = time.Since(start)
	metrics.ObserveFrame(st.Elapsed)
	return st, nil
}

// ResetHistory drops the temporal history, e.g. after a teleport.
func (e *Engine) ResetHistory() { e.accum.Reset() }

// Pick returns the voxel under the centre of cam.
func (e *Engine) Pick(cam *traversal.Camera) physics.RaycastResult {
	front := cam.Front()
	pos := cam.Position
	return physics.Raycast(
		mgl32.Vec3{float32(pos[0]), float32(pos[1]), float32(pos[2])},
		mgl32.Vec3{float32(front[0]), float32(front[1]), float32(front[2])},
		physics.MinReachDistance, physics.MaxReachDistance,
		e.controller.View(),
	)
}

// Break clears the voxel under the crosshair. Hits on coarse levels clear
// the whole coarse voxel.
func (e *Engine) Break(cam *traversal.Camera) (bool, error) {
	hit := e.Pick(cam)
	if !hit.Hit {
		return false, nil
	}
	return true, e.fill(hit.HitPosition, hit.VoxelSize, voxel.Air)
}

// Place puts m against the face under the crosshair.
func (e *Engine) Place(cam *traversal.Camera, m voxel.Material) (bool, error) {
	hit := e.Pick(cam)
	if !hit.Hit {
		return false, nil
	}
	return true, e.fill(hit.AdjacentPosition, hit.VoxelSize, m)
}

func (e *Engine) fill(p clipmap.WorldCoord, size int64, m voxel.Material) error {
	if size <= 1 {
		return e.controller.SetVoxel(p, m)
	}
	box := clipmap.AABB{Min: p, Max: p.Add(clipmap.WorldCoord{X: size, Y: size, Z: size})}
	return e.controller.SetRegion(box, func(clipmap.WorldCoord) voxel.Material { return m })
}

// Checkpoint snapshots the edit overlay and empties the journal.
func (e *Engine) Checkpoint() error {
	return e.store.Checkpoint(e.controller, persistence.Header{
		Terrain: e.cfg.Terrain.Kind,
		Seed:    e.cfg.Terrain.Seed,
	})
}

// Close checkpoints and releases everything.
func (e *Engine) Close() error {
	err := e.Checkpoint()
	e.mirror.Close()
	e.controller.Close()
	if cerr := e.store.Close(); err == nil {
		err = cerr
	}
	return err
}
