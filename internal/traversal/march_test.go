package traversal_test

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"clipvox/internal/clipmap"
	"clipvox/internal/traversal"
	"clipvox/internal/voxel"
	"clipvox/internal/world"
)

// settledController streams gen around cam until every level is ready.
func settledController(t testing.TB, gen clipmap.TerrainGenerator, cam mgl64.Vec3) *clipmap.Controller {
	t.Helper()
	opts := clipmap.DefaultOptions()
	opts.LODCount = 3
	opts.VisiblePageGrid = 4
	opts.Workers = 4
	opts.Logger = log.New(io.Discard, "", 0)
	c := clipmap.New(gen, opts)
	t.Cleanup(c.Close)

	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, c.Update(cam))
		c.ApplyBudget(1 << 16)
		if idle(c) {
			return c
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("clipmap did not settle: %+v", c.Stats())
	return nil
}

func idle(c *clipmap.Controller) bool {
	s := c.Stats()
	if s.Inflight != 0 || s.PendingEdits != 0 {
		return false
	}
	for lod := 0; lod < s.ActiveLODs; lod++ {
		if !s.Ready[lod] || s.QueuedPages[lod] != 0 || s.Rebuilding[lod] != 0 || s.Completed[lod] != 0 {
			return false
		}
	}
	return true
}

func TestTraceFlatGroundLOD0(t *testing.T) {
	cam := mgl64.Vec3{0.5, 10.5, 0.5}
	c := settledController(t, world.NewFlatGenerator(0, voxel.Stone), cam)
	tr := traversal.NewTracer(c.View(), 0)
	require.Equal(t, []int{0, 1, 2}, tr.Levels())

	h := tr.Trace(traversal.NewRay(cam, mgl64.Vec3{0, -1, 0}), 0, 1000, 0)
	require.True(t, h.Hit)
	require.InDelta(t, 10.5, h.T, 1e-9)
	require.InDelta(t, 0, h.Position.Y(), 1e-9)
	require.Equal(t, mgl64.Vec3{0, 1, 0}, h.Normal)
	require.Equal(t, voxel.Stone, h.Material)
	require.Equal(t, 0, h.LOD)
	require.Equal(t, int64(1), h.VoxelSize)
	require.Equal(t, clipmap.WorldCoord{X: 0, Y: -1, Z: 0}, h.Voxel)
	require.Equal(t, clipmap.WorldCoord{X: 0, Y: 0, Z: 0}, h.Adjacent())

	// oblique rays land on the plane too
	for _, dir := range []mgl64.Vec3{{1, -1, 0.3}, {-0.4, -1, -2}, {0.05, -0.2, 0.7}} {
		h := tr.Trace(traversal.NewRay(cam, dir), 0, 1000, 0)
		require.True(t, h.Hit, "dir %v", dir)
		require.InDelta(t, 0, h.Position.Y(), 1e-6, "dir %v", dir)
		require.Equal(t, voxel.Stone, h.Material)
	}
}

func TestTraceFallsThroughToLOD2(t *testing.T) {
	cam := mgl64.Vec3{0.5, 10, 0.5}
	c := settledController(t, world.NewFlatGenerator(-200, voxel.Stone), cam)
	tr := traversal.NewTracer(c.View(), 0)

	h := tr.Trace(traversal.NewRay(cam, mgl64.Vec3{0, -1, 0}), 0, 10000, 0)
	require.True(t, h.Hit)
	require.Equal(t, 2, h.LOD)
	require.Equal(t, int64(4), h.VoxelSize)
	require.InDelta(t, -200, h.Position.Y(), 1e-9)
	require.Equal(t, mgl64.Vec3{0, 1, 0}, h.Normal)
}

func TestTraceSkySentinel(t *testing.T) {
	cam := mgl64.Vec3{0.5, 10.5, 0.5}
	c := settledController(t, world.NewFlatGenerator(0, voxel.Stone), cam)
	tr := traversal.NewTracer(c.View(), 0)

	dir := mgl64.Vec3{0.2, 1, 0.1}
	r := traversal.NewRay(cam, dir)
	h := tr.Trace(r, 0, 10000, 0)
	require.False(t, h.Hit)
	require.Equal(t, mgl32.Vec3{1, 1, 1}, h.Tint)

	zenith := traversal.SkyColor(mgl64.Vec3{0, 1, 0})
	require.Greater(t, zenith.Z(), zenith.X())

	// nothing to trace without ready levels
	h = traversal.NewTracer(clipmap.View{}, 0).Trace(r, 0, 10000, 0)
	require.False(t, h.Hit)
}

func TestTraceSkipsIneligibleLevels(t *testing.T) {
	cam := mgl64.Vec3{0.5, 10.5, 0.5}
	c := settledController(t, world.NewFlatGenerator(0, voxel.Stone), cam)
	view := c.View()
	view.LODs[0].Ready = false

	tr := traversal.NewTracer(view, 0)
	require.Equal(t, []int{1, 2}, tr.Levels())
	h := tr.Trace(traversal.NewRay(cam, mgl64.Vec3{0, -1, 0}), 0, 1000, 0)
	require.True(t, h.Hit)
	require.Equal(t, 1, h.LOD)
	require.InDelta(t, 0, h.Position.Y(), 1e-9)
}

func TestTraceBlendBandDithersBoundary(t *testing.T) {
	cam := mgl64.Vec3{0.5, 10.5, 0.5}
	c := settledController(t, world.NewFlatGenerator(0, voxel.Stone), cam)
	tr := traversal.NewTracer(c.View(), 1)

	// close to the LOD0 window edge at x=64
	r := traversal.NewRay(mgl64.Vec3{50.5, 10.5, 0.5}, mgl64.Vec3{0, -1, 0})
	require.Equal(t, 0, tr.Trace(r, 0, 1000, 0).LOD)
	require.Equal(t, 1, tr.Trace(r, 0, 1000, 0.99).LOD)

	// far inside the window the jitter never reaches
	r = traversal.NewRay(cam, mgl64.Vec3{0, -1, 0})
	require.Equal(t, 0, tr.Trace(r, 0, 1000, 0.99).LOD)
}

func TestTracePassesTransparentVoxels(t *testing.T) {
	cam := mgl64.Vec3{0.5, 10.5, 0.5}
	c := settledController(t, world.NewFlatGenerator(0, voxel.Stone), cam)
	require.NoError(t, c.SetVoxel(clipmap.WorldCoord{X: 0, Y: 0, Z: 0}, voxel.Glass))
	require.NoError(t, c.SetVoxel(clipmap.WorldCoord{X: 0, Y: 3, Z: 0}, voxel.Water))

	tr := traversal.NewTracer(c.View(), 0)
	h := tr.Trace(traversal.NewRay(cam, mgl64.Vec3{0, -1, 0}), 0, 1000, 0)
	require.True(t, h.Hit)
	require.Equal(t, voxel.Stone, h.Material)
	require.InDelta(t, 0, h.Position.Y(), 1e-9)
	require.Less(t, h.Tint.X()+h.Tint.Y()+h.Tint.Z(), float32(3))

	require.NoError(t, c.SetVoxel(clipmap.WorldCoord{X: 0, Y: 5, Z: 0}, voxel.Log))
	tr = traversal.NewTracer(c.View(), 0)
	h = tr.Trace(traversal.NewRay(cam, mgl64.Vec3{0, -1, 0}), 0, 1000, 0)
	require.Equal(t, voxel.Log, h.Material)
	require.InDelta(t, 6, h.Position.Y(), 1e-9)
}

func BenchmarkTraceGround(b *testing.B) {
	cam := mgl64.Vec3{0.5, 40, 0.5}
	c := settledController(b, world.NewHeightmapGenerator(7), cam)
	tr := traversal.NewTracer(c.View(), 0.5)
	r := traversal.NewRay(cam, mgl64.Vec3{1, -0.3, 0.2})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tr.Trace(r, 0, 4096, 0)
	}
}
