package app

import (
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"clipvox/internal/clipmap"
	"clipvox/internal/config"
	"clipvox/internal/gpu"
	"clipvox/internal/traversal"
	"clipvox/internal/voxel"
)

func testConfig(t *testing.T) config.File {
	t.Helper()
	cfg := config.Default()
	cfg.LODCount = 2
	cfg.VisiblePageGrid = 4
	cfg.Terrain = config.Terrain{Kind: "flat"}
	cfg.Render.Width, cfg.Render.Height = 32, 16
	dir := t.TempDir()
	cfg.Persistence.JournalPath = filepath.Join(dir, "edits.db")
	cfg.Persistence.SnapshotPath = filepath.Join(dir, "edits.zst")
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestEngine(t *testing.T, cfg config.File) (*Engine, *gpu.HostDevice) {
	t.Helper()
	dev := gpu.NewHostDevice()
	e, err := NewEngine(cfg, dev, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return e, dev
}

func settleEngine(t *testing.T, e *Engine, cam *traversal.Camera) StepStats {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		st, err := e.Step(cam)
		require.NoError(t, err)
		s := e.Controller().Stats()
		if s.Inflight == 0 && s.Ready[0] && s.Ready[1] && s.Rebuilding[0] == 0 && s.Rebuilding[1] == 0 {
			return st
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("engine did not settle")
	return StepStats{}
}

func lookingDown() *traversal.Camera {
	cam := traversal.NewCamera(mgl64.Vec3{0.5, 10, 0.5})
	cam.Pitch = -89
	return cam
}

func TestEngineStepTracesGround(t *testing.T) {
	e, dev := newTestEngine(t, testConfig(t))
	defer e.Close()

	cam := lookingDown()
	st := settleEngine(t, e, cam)
	require.Greater(t, st.Trace.Rays, 0)
	require.Equal(t, st.Trace.Rays, st.Trace.Hits)
	require.Equal(t, st.Trace.Hits, st.Trace.LODHits[0])

	f := e.Frame()
	scale := config.GetRenderScale()
	require.Equal(t, max(1, int(32*scale)), f.Width)

	d, err := gpu.UnmarshalDescriptor(dev.Buffer("descriptor").Data())
	require.NoError(t, err)
	require.Equal(t, uint32(2), d.LODCount)
	require.Equal(t, uint32(1), d.LODs[0].VoxelSize[2], "lod0 ready in the mirror")
	require.Equal(t, e.Mirror().Descriptor().LODs, d.LODs)
}

func TestEngineEditsPersist(t *testing.T) {
	cfg := testConfig(t)
	e, _ := newTestEngine(t, cfg)
	cam := lookingDown()
	settleEngine(t, e, cam)

	hit := e.Pick(cam)
	require.True(t, hit.Hit)
	require.Equal(t, 0, hit.LOD)
	ground := clipmap.WorldCoord{X: 0, Y: -1, Z: 0}
	require.Equal(t, ground, hit.HitPosition)

	ok, err := e.Break(cam)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, voxel.Air, e.Controller().MaterialAt(ground))

	// the ray now stops one voxel lower; placing fills the hole again
	ok, err = e.Place(cam, voxel.Glass)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, voxel.Glass, e.Controller().MaterialAt(ground))
	require.NoError(t, e.Close())

	e2, _ := newTestEngine(t, cfg)
	defer e2.Close()
	require.Equal(t, []clipmap.Edit{{Pos: ground, Material: voxel.Glass}}, e2.Controller().Edits())
}

func TestEnginePickMissesSky(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(t))
	defer e.Close()
	cam := lookingDown()
	settleEngine(t, e, cam)

	cam.Pitch = 89
	ok, err := e.Break(cam)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, e.Controller().Edits())
}

func TestFly(t *testing.T) {
	cam := traversal.NewCamera(mgl64.Vec3{})
	Fly(cam, MoveInput{Forward: true}, 1, 2)
	require.InDelta(t, 2, cam.Position.X(), 1e-9)

	cam.Position = mgl64.Vec3{}
	Fly(cam, MoveInput{Right: true}, 0.5, 2)
	require.InDelta(t, 1, cam.Position.Z(), 1e-9)

	cam.Position = mgl64.Vec3{}
	Fly(cam, MoveInput{Up: true, Sprint: true}, 1, 1)
	require.InDelta(t, sprintFactor, cam.Position.Y(), 1e-9)

	cam.Position = mgl64.Vec3{}
	Fly(cam, MoveInput{Forward: true, Backward: true}, 1, 1)
	require.Equal(t, mgl64.Vec3{}, cam.Position)
}
