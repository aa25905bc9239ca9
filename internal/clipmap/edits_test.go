package clipmap

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"clipvox/internal/voxel"
)

// residentVoxel reads the voxel of lod containing p from the page tables.
func residentVoxel(t *testing.T, c *Controller, lod int, p WorldCoord) voxel.Material {
	t.Helper()
	b, idx := BrickAt(lod, p)
	page, i := b.Page()
	slot, ok := c.levels[lod].table.Lookup(page)
	require.True(t, ok, "page %v of lod %d not resident", page, lod)
	return c.store.VoxelAt(c.levels[lod].table.Brick(slot, i), idx)
}

func TestSetVoxelSyncLevels(t *testing.T) {
	sink := &recordingSink{}
	opts := testOptions()
	opts.Journal = sink
	c := newTestController(t, flatGen{height: 0, m: voxel.Stone}, opts)
	settle(t, c, mgl64.Vec3{0, 10, 0})

	a := WorldCoord{2, 4, 2}
	b := WorldCoord{3, 5, 3}
	require.NoError(t, c.SetVoxel(a, voxel.Glass))
	require.NoError(t, c.SetVoxel(b, voxel.Glass))

	require.Equal(t, voxel.Glass, c.MaterialAt(a))
	require.Equal(t, voxel.Glass, residentVoxel(t, c, 0, a))
	require.Equal(t, voxel.Glass, residentVoxel(t, c, 0, b))
	// two glass children of the same LOD1 voxel survive downsampling
	require.Equal(t, voxel.Glass, residentVoxel(t, c, 1, a))
	require.Len(t, sink.edits, 2)

	// reverting to terrain removes the override
	require.NoError(t, c.SetVoxel(b, voxel.Air))
	require.Equal(t, []Edit{{Pos: a, Material: voxel.Glass}}, c.Edits())
	require.Equal(t, voxel.Air, residentVoxel(t, c, 0, b))
	require.Equal(t, voxel.Air, residentVoxel(t, c, 1, a))
}

func TestSetVoxelCarvesGround(t *testing.T) {
	c := newTestController(t, flatGen{height: 0, m: voxel.Stone}, testOptions())
	settle(t, c, mgl64.Vec3{0, 10, 0})

	p := WorldCoord{5, -1, 5}
	before := residentVoxel(t, c, 0, p)
	require.Equal(t, voxel.Stone, before)

	require.NoError(t, c.SetVoxel(p, voxel.Air))
	require.Equal(t, voxel.Air, residentVoxel(t, c, 0, p))
	require.Equal(t, voxel.Stone, residentVoxel(t, c, 0, WorldCoord{4, -1, 5}))
}

func TestCoarseEditsArriveUnderBudget(t *testing.T) {
	c := newTestController(t, flatGen{height: 0, m: voxel.Stone}, testOptions())
	settle(t, c, mgl64.Vec3{0, 10, 0})

	// fill a 4x4x4 block so every level sees it
	for z := int64(0); z < 4; z++ {
		for y := int64(0); y < 4; y++ {
			for x := int64(0); x < 4; x++ {
				require.NoError(t, c.SetVoxel(WorldCoord{x, y, z}, voxel.Sand))
			}
		}
	}
	require.NotEmpty(t, c.patches)
	settle(t, c, mgl64.Vec3{0, 10, 0})
	require.Equal(t, voxel.Sand, residentVoxel(t, c, 2, WorldCoord{0, 0, 0}))
}

func TestNoOpEditLeavesEveryLevel(t *testing.T) {
	c := newTestController(t, stripeGen{}, testOptions())
	cam := mgl64.Vec3{0.5, 0.5, 0.5}
	settle(t, c, cam)

	probes := []WorldCoord{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 1, 2}}
	before := make(map[int][]voxel.Material)
	for lod := 0; lod < c.ActiveLODCount(); lod++ {
		for _, p := range probes {
			before[lod] = append(before[lod], residentVoxel(t, c, lod, p))
		}
	}
	require.Equal(t, voxel.Stone, before[1][0])
	require.Equal(t, voxel.Air, before[2][0])

	// writing what the terrain already holds stores nothing and changes nothing
	require.NoError(t, c.SetVoxel(WorldCoord{1, 0, 0}, voxel.Stone))
	require.NoError(t, c.SetVoxel(WorldCoord{2, 0, 0}, voxel.Air))
	settle(t, c, cam)
	require.Empty(t, c.Edits())
	require.Empty(t, c.edits.bricks)
	for lod := 0; lod < c.ActiveLODCount(); lod++ {
		for i, p := range probes {
			require.Equal(t, before[lod][i], residentVoxel(t, c, lod, p), "lod %d at %v", lod, p)
		}
	}
}

func TestCoarseEditsUsePointSamples(t *testing.T) {
	c := newTestController(t, stripeGen{}, testOptions())
	cam := mgl64.Vec3{0.5, 0.5, 0.5}
	settle(t, c, cam)

	// (0,0,0) and (2,0,0) are two of the eight samples of the LOD2 voxel
	require.NoError(t, c.SetVoxel(WorldCoord{0, 0, 0}, voxel.Stone))
	require.NoError(t, c.SetVoxel(WorldCoord{2, 0, 0}, voxel.Stone))
	settle(t, c, cam)
	require.Equal(t, voxel.Stone, residentVoxel(t, c, 2, WorldCoord{0, 0, 0}))

	// one solid sample is not enough
	require.NoError(t, c.SetVoxel(WorldCoord{2, 0, 0}, voxel.Air))
	settle(t, c, cam)
	require.Equal(t, voxel.Air, residentVoxel(t, c, 2, WorldCoord{0, 0, 0}))
	require.Equal(t, []Edit{{Pos: WorldCoord{0, 0, 0}, Material: voxel.Stone}}, c.Edits())
}

func TestSetVoxelOutOfRange(t *testing.T) {
	c := newTestController(t, flatGen{height: 0, m: voxel.Stone}, testOptions())

	// nothing is seeded yet
	require.ErrorIs(t, c.SetVoxel(WorldCoord{}, voxel.Stone), ErrOutOfRange)

	settle(t, c, mgl64.Vec3{})
	require.ErrorIs(t, c.SetVoxel(WorldCoord{100000, 0, 0}, voxel.Stone), ErrOutOfRange)
	require.ErrorIs(t, c.SetVoxel(WorldCoord{MaxWorldCoord + 1, 0, 0}, voxel.Stone), ErrOutOfRange)
	require.Empty(t, c.Edits())
}

func TestSetRegion(t *testing.T) {
	sink := &recordingSink{}
	opts := testOptions()
	opts.Journal = sink
	opts.RegionBricks = 1
	c := newTestController(t, flatGen{height: 0, m: voxel.Stone}, opts)
	settle(t, c, mgl64.Vec3{0, 10, 0})

	box := AABB{Min: WorldCoord{-4, 0, -4}, Max: WorldCoord{12, 2, 4}}
	require.NoError(t, c.SetRegion(box, func(WorldCoord) voxel.Material { return voxel.Sand }))
	require.Len(t, c.regions, 1)

	settle(t, c, mgl64.Vec3{0, 10, 0})
	for x := box.Min.X; x < box.Max.X; x++ {
		for y := box.Min.Y; y < box.Max.Y; y++ {
			for z := box.Min.Z; z < box.Max.Z; z++ {
				p := WorldCoord{x, y, z}
				require.Equal(t, voxel.Sand, c.MaterialAt(p))
				require.Equal(t, voxel.Sand, residentVoxel(t, c, 0, p))
			}
		}
	}
	require.Len(t, sink.edits, int(box.Volume()))
}

func TestSetRegionRejects(t *testing.T) {
	opts := testOptions()
	opts.MaxRegionVoxels = 100
	c := newTestController(t, flatGen{height: 0, m: voxel.Stone}, opts)
	settle(t, c, mgl64.Vec3{})

	fill := func(WorldCoord) voxel.Material { return voxel.Stone }
	err := c.SetRegion(AABB{Min: WorldCoord{0, 0, 0}, Max: WorldCoord{10, 10, 10}}, fill)
	require.ErrorIs(t, err, ErrRegionTooLarge)

	err = c.SetRegion(AABB{Min: WorldCoord{99999, 0, 0}, Max: WorldCoord{100001, 1, 1}}, fill)
	require.ErrorIs(t, err, ErrOutOfRange)
	require.Empty(t, c.regions)

	require.NoError(t, c.SetRegion(AABB{}, fill))
}

func TestRestoreEditsPatchesResidentBricks(t *testing.T) {
	c := newTestController(t, flatGen{height: 0, m: voxel.Stone}, testOptions())
	c.RestoreEdits([]Edit{{Pos: WorldCoord{1, 1, 1}, Material: voxel.Log}})
	settle(t, c, mgl64.Vec3{0, 10, 0})

	require.Equal(t, voxel.Log, c.MaterialAt(WorldCoord{1, 1, 1}))
	require.Equal(t, voxel.Log, residentVoxel(t, c, 0, WorldCoord{1, 1, 1}))
}
