package clipmap

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"clipvox/internal/brick"
	"clipvox/internal/voxel"
)

// flatGen is solid below height. Coarse voxels follow the same child rule as
// the real generators so edits derive consistently.
type flatGen struct {
	height int64
	m      voxel.Material
}

func (g flatGen) sample(y int64) voxel.Material {
	if y < g.height {
		return g.m
	}
	return voxel.Air
}

func (g flatGen) VoxelAt(p WorldCoord, voxelSize int64) voxel.Material {
	if voxelSize <= 1 {
		return g.sample(p.Y)
	}
	half := voxelSize / 2
	var children [8]voxel.Material
	for i, off := range brick.ChildOffsets {
		children[i] = g.sample(p.Y + int64(off[1])*half)
	}
	return brick.Downsample(children)
}

func (g flatGen) Generate(_ context.Context, origin WorldCoord, voxelSize int64) (brick.Voxels, error) {
	var v brick.Voxels
	for i := range v {
		x, y, z := brick.Coords(i)
		v[i] = g.VoxelAt(WorldCoord{
			origin.X + int64(x)*voxelSize,
			origin.Y + int64(y)*voxelSize,
			origin.Z + int64(z)*voxelSize,
		}, voxelSize)
	}
	return v, nil
}

func (g flatGen) Uniform(origin WorldCoord, extent int64) (voxel.Material, bool) {
	switch {
	case origin.Y >= g.height:
		return voxel.Air, true
	case origin.Y+extent <= g.height:
		return g.m, true
	}
	return voxel.Air, false
}

// stripeGen is stone where x is odd. Its coarse voxels use the point-sample
// child rule, so LOD1 is all stone and LOD2 is all air.
type stripeGen struct{}

func (stripeGen) sample(p WorldCoord) voxel.Material {
	if p.X&1 == 1 {
		return voxel.Stone
	}
	return voxel.Air
}

func (g stripeGen) VoxelAt(p WorldCoord, voxelSize int64) voxel.Material {
	if voxelSize <= 1 {
		return g.sample(p)
	}
	half := voxelSize / 2
	var children [8]voxel.Material
	for i, off := range brick.ChildOffsets {
		children[i] = g.sample(p.Add(WorldCoord{int64(off[0]) * half, int64(off[1]) * half, int64(off[2]) * half}))
	}
	return brick.Downsample(children)
}

func (g stripeGen) Generate(_ context.Context, origin WorldCoord, voxelSize int64) (brick.Voxels, error) {
	var v brick.Voxels
	for i := range v {
		x, y, z := brick.Coords(i)
		v[i] = g.VoxelAt(WorldCoord{
			origin.X + int64(x)*voxelSize,
			origin.Y + int64(y)*voxelSize,
			origin.Z + int64(z)*voxelSize,
		}, voxelSize)
	}
	return v, nil
}

// solidGen fills everything with stone, failing bricks matched by fail.
type solidGen struct {
	fail func(origin WorldCoord, voxelSize int64) bool
}

func (g solidGen) VoxelAt(WorldCoord, int64) voxel.Material { return voxel.Stone }

func (g solidGen) Generate(_ context.Context, origin WorldCoord, voxelSize int64) (brick.Voxels, error) {
	var v brick.Voxels
	if g.fail != nil && g.fail(origin, voxelSize) {
		return v, errors.New("synthetic failure")
	}
	v.Fill(voxel.Stone)
	return v, nil
}

// gatedGen blocks every Generate until open is closed.
type gatedGen struct {
	open chan struct{}
}

func (g gatedGen) VoxelAt(WorldCoord, int64) voxel.Material { return voxel.Stone }

func (g gatedGen) Generate(ctx context.Context, _ WorldCoord, _ int64) (brick.Voxels, error) {
	var v brick.Voxels
	select {
	case <-g.open:
	case <-ctx.Done():
		return v, ctx.Err()
	}
	v.Fill(voxel.Stone)
	return v, nil
}

type recordingSink struct {
	mu    sync.Mutex
	edits []Edit
}

func (s *recordingSink) Record(edits []Edit) {
	s.mu.Lock()
	s.edits = append(s.edits, edits...)
	s.mu.Unlock()
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.LODCount = 3
	opts.VisiblePageGrid = 4
	opts.Workers = 4
	opts.MaxInflight = 4 * 4 * 4 * BricksPerPage
	opts.Logger = log.New(io.Discard, "", 0)
	return opts
}

func newTestController(t *testing.T, gen TerrainGenerator, opts Options) *Controller {
	t.Helper()
	c := New(gen, opts)
	t.Cleanup(c.Close)
	return c
}

// settle runs frames until every active level is ready, stable and idle.
func settle(t *testing.T, c *Controller, cam mgl64.Vec3) {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, c.Update(cam))
		c.ApplyBudget(1 << 16)
		if settled(c) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("clipmap did not settle: %+v", c.Stats())
}

func settled(c *Controller) bool {
	if c.sched.inflight.Load() != 0 || len(c.patches) > 0 || len(c.regions) > 0 {
		return false
	}
	for lod := 0; lod < c.ActiveLODCount(); lod++ {
		lv := c.levels[lod]
		if !lv.ready || lv.state != Stable || len(lv.queue) > 0 {
			return false
		}
		if lv.window != windowFor(lod, c.camera, c.visible) {
			return false
		}
	}
	return true
}

type slotSnapshot struct {
	tag    PageCoord
	state  PageState
	epoch  uint32
	bricks [BricksPerPage]brick.ID
}

func snapshotTable(t *PageTable) []slotSnapshot {
	out := make([]slotSnapshot, PageSlots)
	for slot := range out {
		out[slot] = slotSnapshot{tag: t.Tag(slot), state: t.State(slot), epoch: t.Epoch(slot)}
		copy(out[slot].bricks[:], t.Bricks(slot))
	}
	return out
}
