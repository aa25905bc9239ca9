package traversal

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"clipvox/internal/brick"
	"clipvox/internal/clipmap"
	"clipvox/internal/voxel"
)

// Hit is the closest opaque voxel along a ray. When Hit is false the ray
// reached the sky.
type Hit struct {
	Hit       bool
	T         float64
	Position  mgl64.Vec3
	Voxel     clipmap.WorldCoord
	Normal    mgl64.Vec3
	Material  voxel.Material
	LOD       int
	VoxelSize int64
	// Tint is the colour filter of the transparent voxels passed on the way.
	Tint  mgl32.Vec3
	Steps int
}

// Adjacent returns the voxel in front of the hit face, in world units.
func (h *Hit) Adjacent() clipmap.WorldCoord {
	return clipmap.WorldCoord{
		X: h.Voxel.X + int64(h.Normal[0])*h.VoxelSize,
		Y: h.Voxel.Y + int64(h.Normal[1])*h.VoxelSize,
		Z: h.Voxel.Z + int64(h.Normal[2])*h.VoxelSize,
	}
}

// Tracer marches rays through one frame's View. It is read only and safe
// for concurrent use while the view is not mutated.
type Tracer struct {
	store *brick.Store
	lods  []*clipmap.LODView
	boxes []Box
	band  []float64
}

// NewTracer prepares the ready levels of view. blendBandPages is the width
// of the stochastic transition band in pages of each level; 0 disables it.
func NewTracer(view clipmap.View, blendBandPages float64) *Tracer {
	t := &Tracer{store: view.Store}
	if t.store == nil {
		return t
	}
	for i := range view.LODs {
		lv := &view.LODs[i]
		if !lv.Ready || lv.Table() == nil {
			continue
		}
		t.lods = append(t.lods, lv)
		t.boxes = append(t.boxes, Box{
			Min: mgl64.Vec3{float64(lv.Min.X), float64(lv.Min.Y), float64(lv.Min.Z)},
			Max: mgl64.Vec3{float64(lv.Max.X), float64(lv.Max.Y), float64(lv.Max.Z)},
		})
		t.band = append(t.band, blendBandPages*float64(lv.PageExtent))
	}
	return t
}

// Levels returns the LOD indices eligible for traversal, finest first.
func (t *Tracer) Levels() []int {
	out := make([]int, len(t.lods))
	for i, lv := range t.lods {
		out[i] = lv.Index
	}
	return out
}

// Boxes returns the unjittered shell boxes, finest first.
func (t *Tracer) Boxes() []Box {
	return append([]Box(nil), t.boxes...)
}

type rayState struct {
	r    *Ray
	hit  Hit
	pass voxel.Material
}

// Trace returns the closest opaque voxel along r within [tMin, tMax].
// jitter in [0,1) shrinks every shell but the outermost by that fraction of
// its blend band, so the level boundary dithers between neighbouring rays.
func (t *Tracer) Trace(r Ray, tMin, tMax, jitter float64) Hit {
	s := rayState{r: &r, hit: Hit{Tint: mgl32.Vec3{1, 1, 1}}}
	n := len(t.lods)
	if n == 0 {
		return s.hit
	}

	var boxes [clipmap.MaxLODCount]Box
	copy(boxes[:n], t.boxes)
	if jitter > 0 {
		for i := 0; i < n-1; i++ {
			b := &boxes[i]
			d := jitter * t.band[i]
			if limit := (b.Max[0] - b.Min[0]) * 0.5; d > limit {
				d = limit
			}
			for a := 0; a < 3; a++ {
				b.Min[a] += d
				b.Max[a] -= d
				if i > 0 {
					b.Min[a] = math.Min(b.Min[a], boxes[i-1].Min[a])
					b.Max[a] = math.Max(b.Max[a], boxes[i-1].Max[a])
				}
			}
		}
	}

	var buf [2 * clipmap.MaxLODCount]Interval
	for _, iv := range appendShellIntervals(buf[:0], &r, boxes[:n], tMin, tMax) {
		if t.traceSpan(&s, iv.Shell, iv.T0, iv.T1) {
			break
		}
	}
	return s.hit
}

// traceSpan walks the pages of level between t0 and t1. Pages that are not
// resident fall through to the next coarser level.
func (t *Tracer) traceSpan(s *rayState, level int, t0, t1 float64) bool {
	lv := t.lods[level]
	table := lv.Table()
	w := lv.Window

	var pc cursor
	pc.reset(s.r, t0, t1, float64(lv.PageExtent), [3]int64{w.Origin.X, w.Origin.Y, w.Origin.Z}, int64(w.Pages))
	for {
		cell, enter, exit, ok := pc.next()
		if !ok {
			return false
		}
		s.hit.Steps++
		slot, held := lv.Page(clipmap.PageCoord{X: cell[0], Y: cell[1], Z: cell[2]})
		if !held || table.State(slot) != clipmap.PageResident {
			if level+1 < len(t.lods) && t.traceSpan(s, level+1, enter, exit) {
				return true
			}
			continue
		}
		occ := table.Occupancy(slot)
		if occ == 0 {
			continue
		}
		if t.tracePage(s, lv, slot, occ, cell, enter, exit) {
			return true
		}
	}
}

func (t *Tracer) tracePage(s *rayState, lv *clipmap.LODView, slot int, occ uint64, page [3]int64, t0, t1 float64) bool {
	table := lv.Table()
	lo := [3]int64{page[0] * clipmap.PageBricks, page[1] * clipmap.PageBricks, page[2] * clipmap.PageBricks}

	var bc cursor
	bc.reset(s.r, t0, t1, float64(clipmap.BrickExtent(lv.Index)), lo, clipmap.PageBricks)
	for {
		b, enter, exit, ok := bc.next()
		if !ok {
			return false
		}
		s.hit.Steps++
		i := clipmap.BrickIndex(int(b[0]-lo[0]), int(b[1]-lo[1]), int(b[2]-lo[2]))
		if occ&(1<<uint(i)) == 0 {
			continue
		}
		h := t.store.Headers().Get(table.Brick(slot, i))
		if h == nil || h.Occupancy.Empty() {
			continue
		}
		if t.traceBrick(s, lv, h, b, enter, exit) {
			return true
		}
	}
}

// traceBrick descends from 2x2x2 occupancy cells to single voxels.
func (t *Tracer) traceBrick(s *rayState, lv *clipmap.LODView, h *brick.Header, b [3]int64, t0, t1 float64) bool {
	data := t.store.Pool(h.Encoding).Entry(h.DataIndex)
	if data == nil {
		return false
	}
	vs := float64(lv.VoxelSize)
	const cells = brick.Size / 2
	clo := [3]int64{b[0] * cells, b[1] * cells, b[2] * cells}
	vlo := [3]int64{b[0] * brick.Size, b[1] * brick.Size, b[2] * brick.Size}
	transparent := h.Transparent()

	var cc, vc cursor
	cc.reset(s.r, t0, t1, 2*vs, clo, cells)
	for {
		c, cEnter, cExit, ok := cc.next()
		if !ok {
			return false
		}
		s.hit.Steps++
		lx, ly, lz := int(c[0]-clo[0])*2, int(c[1]-clo[1])*2, int(c[2]-clo[2])*2
		if !h.Occupancy.CellSolid(lx, ly, lz) {
			continue
		}
		vc.reset(s.r, cEnter, cExit, vs, [3]int64{c[0] * 2, c[1] * 2, c[2] * 2}, 2)
		for {
			v, vEnter, _, ok := vc.next()
			if !ok {
				break
			}
			s.hit.Steps++
			idx := brick.Index(int(v[0]-vlo[0]), int(v[1]-vlo[1]), int(v[2]-vlo[2]))
			m := brick.DecodeVoxel(h.Encoding, h.PaletteLen, data, idx)
			if !m.IsSolid() {
				continue
			}
			if transparent && m.IsTransparent() {
				s.passThrough(m)
				continue
			}
			s.record(lv, v, vEnter, m)
			return true
		}
	}
}

func (s *rayState) passThrough(m voxel.Material) {
	if m == s.pass {
		return
	}
	s.pass = m
	c := m.Color()
	for a := 0; a < 3; a++ {
		s.hit.Tint[a] *= 0.5 + 0.5*c[a]
	}
}

func (s *rayState) record(lv *clipmap.LODView, v [3]int64, t float64, m voxel.Material) {
	size := lv.VoxelSize
	corner := clipmap.WorldCoord{X: v[0] * size, Y: v[1] * size, Z: v[2] * size}
	box := Box{
		Min: mgl64.Vec3{float64(corner.X), float64(corner.Y), float64(corner.Z)},
		Max: mgl64.Vec3{float64(corner.X + size), float64(corner.Y + size), float64(corner.Z + size)},
	}
	axis := -1
	if _, _, a, ok := s.r.Intersect(box); ok {
		axis = a
	}
	if axis < 0 {
		// origin inside the voxel: face the dominant direction
		axis = 0
		for a := 1; a < 3; a++ {
			if math.Abs(s.r.Dir[a]) > math.Abs(s.r.Dir[axis]) {
				axis = a
			}
		}
	}
	var normal mgl64.Vec3
	if s.r.Dir[axis] > 0 {
		normal[axis] = -1
	} else {
		normal[axis] = 1
	}

	s.hit.Hit = true
	s.hit.T = t
	s.hit.Position = s.r.At(t)
	s.hit.Voxel = corner
	s.hit.Normal = normal
	s.hit.Material = m
	s.hit.LOD = lv.Index
	s.hit.VoxelSize = size
}
