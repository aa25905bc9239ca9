package clipmap

import (
	"math"

	"clipvox/internal/brick"
)

const (
	// MaxLODCount is the number of clipmap levels the structure can hold.
	MaxLODCount = 6
	// PageGrid is the number of toroidal page slots per axis of every LOD.
	PageGrid = 16
	// PageSlots is the number of page slots of one LOD.
	PageSlots = PageGrid * PageGrid * PageGrid
	// PageBricks is the number of bricks per page axis.
	PageBricks = 4
	// BricksPerPage is the number of brick references held by one page.
	BricksPerPage = PageBricks * PageBricks * PageBricks
	// PageVoxels is the number of voxels per page axis.
	PageVoxels = PageBricks * brick.Size

	// MinVisiblePageGrid keeps each LOD window strictly inside the next one.
	MinVisiblePageGrid = 4
	// MaxWorldCoord bounds editable coordinates so page tags stay within int32.
	MaxWorldCoord = int64(math.MaxInt32) * PageVoxels
)

// WorldCoord is a position in finest-voxel units.
type WorldCoord struct {
	X, Y, Z int64
}

// Add returns w+o.
func (w WorldCoord) Add(o WorldCoord) WorldCoord {
	return WorldCoord{w.X + o.X, w.Y + o.Y, w.Z + o.Z}
}

// PageCoord is a page position in the page units of one LOD.
type PageCoord struct {
	X, Y, Z int64
}

// BrickCoord is a brick position in the brick units of one LOD.
type BrickCoord struct {
	X, Y, Z int64
}

// Page returns the page holding b and b's index inside it.
func (b BrickCoord) Page() (PageCoord, int) {
	pc := PageCoord{
		floorDiv(b.X, PageBricks),
		floorDiv(b.Y, PageBricks),
		floorDiv(b.Z, PageBricks),
	}
	idx := BrickIndex(
		int(floorMod(b.X, PageBricks)),
		int(floorMod(b.Y, PageBricks)),
		int(floorMod(b.Z, PageBricks)),
	)
	return pc, idx
}

// BrickIndex flattens a brick position inside its page.
func BrickIndex(bx, by, bz int) int {
	return bx + by*PageBricks + bz*PageBricks*PageBricks
}

// BrickLocal is the inverse of BrickIndex.
func BrickLocal(i int) (bx, by, bz int) {
	return i % PageBricks, (i / PageBricks) % PageBricks, i / (PageBricks * PageBricks)
}

// Brick returns the brick coordinate of brick i of page p.
func (p PageCoord) Brick(i int) BrickCoord {
	bx, by, bz := BrickLocal(i)
	return BrickCoord{
		p.X*PageBricks + int64(bx),
		p.Y*PageBricks + int64(by),
		p.Z*PageBricks + int64(bz),
	}
}

// SlotIndex returns the toroidal slot of page p.
func SlotIndex(p PageCoord) int {
	return int(floorMod(p.X, PageGrid)) +
		int(floorMod(p.Y, PageGrid))*PageGrid +
		int(floorMod(p.Z, PageGrid))*PageGrid*PageGrid
}

// VoxelSize returns the edge length of one voxel of lod in world units.
func VoxelSize(lod int) int64 { return int64(1) << uint(lod) }

// BrickExtent returns the world size of one brick of lod.
func BrickExtent(lod int) int64 { return brick.Size * VoxelSize(lod) }

// PageExtent returns the world size of one page of lod.
func PageExtent(lod int) int64 { return PageVoxels * VoxelSize(lod) }

// BrickOrigin returns the world position of the minimum corner of b at lod.
func BrickOrigin(lod int, b BrickCoord) WorldCoord {
	e := BrickExtent(lod)
	return WorldCoord{b.X * e, b.Y * e, b.Z * e}
}

// BrickAt returns the brick of lod containing p and the local voxel index of p.
func BrickAt(lod int, p WorldCoord) (BrickCoord, int) {
	vs := VoxelSize(lod)
	vx, vy, vz := floorDiv(p.X, vs), floorDiv(p.Y, vs), floorDiv(p.Z, vs)
	bc := BrickCoord{floorDiv(vx, brick.Size), floorDiv(vy, brick.Size), floorDiv(vz, brick.Size)}
	idx := brick.Index(int(floorMod(vx, brick.Size)), int(floorMod(vy, brick.Size)), int(floorMod(vz, brick.Size)))
	return bc, idx
}

// VoxelOrigin snaps p down to the voxel grid of lod.
func VoxelOrigin(lod int, p WorldCoord) WorldCoord {
	vs := VoxelSize(lod)
	return WorldCoord{floorDiv(p.X, vs) * vs, floorDiv(p.Y, vs) * vs, floorDiv(p.Z, vs) * vs}
}

// Window is the page-aligned region of one LOD currently held resident.
type Window struct {
	Origin PageCoord
	Pages  int
}

// windowFor returns the window of lod centred on camera.
func windowFor(lod int, camera WorldCoord, pages int) Window {
	pe := PageExtent(lod)
	half := int64(pages) * pe / 2
	return Window{
		Origin: PageCoord{
			floorDiv(camera.X-half, pe),
			floorDiv(camera.Y-half, pe),
			floorDiv(camera.Z-half, pe),
		},
		Pages: pages,
	}
}

// Contains reports whether p lies inside w.
func (w Window) Contains(p PageCoord) bool {
	n := int64(w.Pages)
	return p.X >= w.Origin.X && p.X < w.Origin.X+n &&
		p.Y >= w.Origin.Y && p.Y < w.Origin.Y+n &&
		p.Z >= w.Origin.Z && p.Z < w.Origin.Z+n
}

// Bounds returns the world-space min (inclusive) and max (exclusive) corners.
func (w Window) Bounds(lod int) (lo, hi WorldCoord) {
	pe := PageExtent(lod)
	n := int64(w.Pages)
	lo = WorldCoord{w.Origin.X * pe, w.Origin.Y * pe, w.Origin.Z * pe}
	hi = WorldCoord{(w.Origin.X + n) * pe, (w.Origin.Y + n) * pe, (w.Origin.Z + n) * pe}
	return lo, hi
}

// ContainsWorld reports whether world point p lies inside w at lod.
func (w Window) ContainsWorld(lod int, p WorldCoord) bool {
	lo, hi := w.Bounds(lod)
	return p.X >= lo.X && p.X < hi.X &&
		p.Y >= lo.Y && p.Y < hi.Y &&
		p.Z >= lo.Z && p.Z < hi.Z
}

// ForEach calls fn for every page of w.
func (w Window) ForEach(fn func(PageCoord)) {
	n := int64(w.Pages)
	for z := int64(0); z < n; z++ {
		for y := int64(0); y < n; y++ {
			for x := int64(0); x < n; x++ {
				fn(PageCoord{w.Origin.X + x, w.Origin.Y + y, w.Origin.Z + z})
			}
		}
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
