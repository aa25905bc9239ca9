package clipmap

import (
	"fmt"
	"sort"
	"sync"

	"clipvox/internal/brick"
	"clipvox/internal/metrics"
	"clipvox/internal/profiling"
	"clipvox/internal/voxel"
)

// Edit is one finest-level voxel override.
type Edit struct {
	Pos      WorldCoord
	Material voxel.Material
}

// EditSink receives every accepted batch of finest-level edits, in order.
type EditSink interface {
	Record(edits []Edit)
}

// AABB is a world-space box; Max is exclusive.
type AABB struct {
	Min, Max WorldCoord
}

// Volume returns the number of finest voxels in b, or 0 when b is empty.
func (b AABB) Volume() int64 {
	dx, dy, dz := b.Max.X-b.Min.X, b.Max.Y-b.Min.Y, b.Max.Z-b.Min.Z
	if dx <= 0 || dy <= 0 || dz <= 0 {
		return 0
	}
	return dx * dy * dz
}

type brickKey struct {
	lod   int
	coord BrickCoord
}

// editLayer holds edits as differences from generated terrain, per level and
// brick. Coarse entries are derived from the finest level so a brick fill
// only needs its own key.
type editLayer struct {
	mu     sync.RWMutex
	bricks map[brickKey]map[uint16]voxel.Material
}

func newEditLayer() *editLayer {
	return &editLayer{bricks: make(map[brickKey]map[uint16]voxel.Material)}
}

func (e *editLayer) get(k brickKey, idx int) (voxel.Material, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.bricks[k][uint16(idx)]
	return m, ok
}

func (e *editLayer) set(k brickKey, idx int, m voxel.Material) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.bricks[k]
	if b == nil {
		b = make(map[uint16]voxel.Material)
		e.bricks[k] = b
	}
	b[uint16(idx)] = m
}

func (e *editLayer) unset(k brickKey, idx int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.bricks[k]
	if b == nil {
		return
	}
	delete(b, uint16(idx))
	if len(b) == 0 {
		delete(e.bricks, k)
	}
}

// apply overlays the edits of brick b at lod onto v.
func (e *editLayer) apply(lod int, b BrickCoord, v *brick.Voxels) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for idx, m := range e.bricks[brickKey{lod, b}] {
		v[idx] = m
	}
}

func (e *editLayer) finest() []Edit {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Edit
	for k, b := range e.bricks {
		if k.lod != 0 {
			continue
		}
		origin := BrickOrigin(0, k.coord)
		for idx, m := range b {
			x, y, z := brick.Coords(int(idx))
			out = append(out, Edit{
				Pos:      origin.Add(WorldCoord{int64(x), int64(y), int64(z)}),
				Material: m,
			})
		}
	}
	return out
}

// brickPatch lists voxels of one brick whose value changed.
type brickPatch struct {
	key  brickKey
	idxs []int
}

// regionEdit streams a SetRegion call one finest brick at a time.
type regionEdit struct {
	box    AABB
	fn     func(WorldCoord) voxel.Material
	lo, hi BrickCoord
	next   BrickCoord
	done   bool
}

// MaterialAt returns the current finest material at p, edits included.
func (c *Controller) MaterialAt(p WorldCoord) voxel.Material {
	return c.voxelAt(0, p)
}

// voxelAt returns the value of the lod voxel containing p.
func (c *Controller) voxelAt(lod int, p WorldCoord) voxel.Material {
	b, idx := BrickAt(lod, p)
	if m, ok := c.edits.get(brickKey{lod, b}, idx); ok {
		return m
	}
	return c.gen.VoxelAt(VoxelOrigin(lod, p), VoxelSize(lod))
}

func (c *Controller) checkRange(p WorldCoord) error {
	if abs64(p.X) > MaxWorldCoord || abs64(p.Y) > MaxWorldCoord || abs64(p.Z) > MaxWorldCoord {
		return fmt.Errorf("%w: %v", ErrOutOfRange, p)
	}
	outer := c.levels[c.active-1]
	if !outer.seeded || !outer.window.ContainsWorld(outer.index, p) {
		return fmt.Errorf("%w: %v not inside lod %d window", ErrOutOfRange, p, outer.index)
	}
	return nil
}

// SetVoxel overrides one finest voxel. The two finest levels are re-encoded
// before it returns; coarser levels follow under the apply budget.
func (c *Controller) SetVoxel(p WorldCoord, m voxel.Material) error {
	defer profiling.Track("clipmap.SetVoxel")()
	if err := c.checkRange(p); err != nil {
		return err
	}
	edits := []Edit{{Pos: p, Material: m}}
	patches := c.writeEdits(edits)
	c.record(edits)
	for _, pt := range patches {
		if pt.key.lod < SyncEditLODs {
			if err := c.patch(pt); err != nil {
				c.err = err
				return err
			}
			continue
		}
		c.patches = append(c.patches, pt)
	}
	return nil
}

// SetRegion queues fn to be evaluated over box. The region is written over
// the following frames, one finest brick at a time.
func (c *Controller) SetRegion(box AABB, fn func(WorldCoord) voxel.Material) error {
	vol := box.Volume()
	if vol == 0 {
		return nil
	}
	if vol > int64(c.opts.MaxRegionVoxels) {
		return fmt.Errorf("%w: %d voxels, limit %d", ErrRegionTooLarge, vol, c.opts.MaxRegionVoxels)
	}
	last := WorldCoord{box.Max.X - 1, box.Max.Y - 1, box.Max.Z - 1}
	if err := c.checkRange(box.Min); err != nil {
		return err
	}
	if err := c.checkRange(last); err != nil {
		return err
	}
	lo, _ := BrickAt(0, box.Min)
	hi, _ := BrickAt(0, last)
	c.regions = append(c.regions, &regionEdit{box: box, fn: fn, lo: lo, hi: hi, next: lo})
	return nil
}

// Edits returns every finest-level override, ordered by position.
func (c *Controller) Edits() []Edit {
	out := c.edits.finest()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Pos, out[j].Pos
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		return a.X < b.X
	})
	return out
}

// RestoreEdits reinstalls previously recorded edits without range checks or
// journaling. Resident bricks are patched under the apply budget.
func (c *Controller) RestoreEdits(edits []Edit) {
	c.patches = append(c.patches, c.writeEdits(edits)...)
}

func (c *Controller) record(edits []Edit) {
	metrics.InstrumentEdits(len(edits))
	if c.opts.Journal != nil && len(edits) > 0 {
		c.opts.Journal.Record(edits)
	}
}

// writeEdits stores edits in the overlay, derives the coarse levels from the
// finest one, and returns the changed voxels grouped by brick.
func (c *Controller) writeEdits(edits []Edit) []brickPatch {
	touched := make(map[brickKey]map[int]struct{})
	mark := func(k brickKey, idx int) {
		s := touched[k]
		if s == nil {
			s = make(map[int]struct{})
			touched[k] = s
		}
		s[idx] = struct{}{}
	}

	changed := make(map[WorldCoord]struct{}, len(edits))
	for _, e := range edits {
		b, idx := BrickAt(0, e.Pos)
		k := brickKey{0, b}
		if e.Material == c.gen.VoxelAt(e.Pos, 1) {
			c.edits.unset(k, idx)
		} else {
			c.edits.set(k, idx, e.Material)
		}
		changed[e.Pos] = struct{}{}
		mark(k, idx)
	}

	// A coarse voxel is derived the way the generator derives it: the
	// downsample of eight finest point samples at its half-size child
	// corners, with the finest overrides applied to those samples.
	for lod := 1; lod < c.opts.LODCount; lod++ {
		parents := make(map[WorldCoord]struct{}, len(changed))
		for p := range changed {
			parents[VoxelOrigin(lod, p)] = struct{}{}
		}
		half := VoxelSize(lod) / 2
		for p := range parents {
			var children [8]voxel.Material
			for i, off := range brick.ChildOffsets {
				children[i] = c.voxelAt(0, p.Add(WorldCoord{int64(off[0]) * half, int64(off[1]) * half, int64(off[2]) * half}))
			}
			m := brick.Downsample(children)
			b, idx := BrickAt(lod, p)
			k := brickKey{lod, b}
			if m == c.gen.VoxelAt(p, VoxelSize(lod)) {
				c.edits.unset(k, idx)
			} else {
				c.edits.set(k, idx, m)
			}
			mark(k, idx)
		}
	}

	out := make([]brickPatch, 0, len(touched))
	for k, set := range touched {
		pt := brickPatch{key: k, idxs: make([]int, 0, len(set))}
		for idx := range set {
			pt.idxs = append(pt.idxs, idx)
		}
		sort.Ints(pt.idxs)
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.lod < out[j].key.lod })
	return out
}

// patch rewrites the changed voxels of one resident brick. Bricks of pages
// that are not held are skipped; their next fill picks the overlay up. Pages
// still rebuilding get a fresh fill so an in-flight result cannot win.
func (c *Controller) patch(pt brickPatch) error {
	lod := pt.key.lod
	if lod >= c.active {
		return nil
	}
	lv := c.levels[lod]
	page, i := pt.key.coord.Page()
	slot, ok := lv.table.Lookup(page)
	if !ok || !lv.window.Contains(page) {
		return nil
	}
	if lv.table.state[slot] != PageResident {
		if !c.RequestBrickFill(lod, pt.key.coord) {
			c.patches = append(c.patches, pt)
		}
		return nil
	}

	id := lv.table.Brick(slot, i)
	v := c.store.Decode(id)
	origin := BrickOrigin(lod, pt.key.coord)
	vs := VoxelSize(lod)
	for _, idx := range pt.idxs {
		x, y, z := brick.Coords(idx)
		v[idx] = c.voxelAt(lod, origin.Add(WorldCoord{int64(x) * vs, int64(y) * vs, int64(z) * vs}))
	}

	next, err := c.rewrite(id, &v)
	if err != nil {
		return err
	}
	c.install(lv, slot, i, next)
	if next == id {
		c.dirty.markPage(lod, slot)
	}
	return nil
}

// applyPatches drains queued patches, up to n.
func (c *Controller) applyPatches(n int) int {
	done := 0
	for done < n && len(c.patches) > 0 {
		pt := c.patches[0]
		c.patches = c.patches[1:]
		if err := c.patch(pt); err != nil {
			c.err = err
			return done
		}
		done++
	}
	return done
}

// streamRegions evaluates up to RegionBricks finest bricks of queued regions.
func (c *Controller) streamRegions() {
	budget := c.opts.RegionBricks
	for budget > 0 && len(c.regions) > 0 {
		r := c.regions[0]
		c.regionStep(r)
		budget--
		if r.done {
			c.regions = c.regions[1:]
		}
	}
}

func (c *Controller) regionStep(r *regionEdit) {
	b := r.next
	origin := BrickOrigin(0, b)
	var edits []Edit
	for z := int64(0); z < brick.Size; z++ {
		for y := int64(0); y < brick.Size; y++ {
			for x := int64(0); x < brick.Size; x++ {
				p := origin.Add(WorldCoord{x, y, z})
				if p.X < r.box.Min.X || p.Y < r.box.Min.Y || p.Z < r.box.Min.Z ||
					p.X >= r.box.Max.X || p.Y >= r.box.Max.Y || p.Z >= r.box.Max.Z {
					continue
				}
				edits = append(edits, Edit{Pos: p, Material: r.fn(p)})
			}
		}
	}
	if len(edits) > 0 {
		c.patches = append(c.patches, c.writeEdits(edits)...)
		c.record(edits)
	}

	// advance x fastest, then y, then z
	switch {
	case b.X < r.hi.X:
		r.next.X++
	case b.Y < r.hi.Y:
		r.next.X = r.lo.X
		r.next.Y++
	case b.Z < r.hi.Z:
		r.next.X = r.lo.X
		r.next.Y = r.lo.Y
		r.next.Z++
	default:
		r.done = true
	}
}
