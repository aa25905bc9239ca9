package clipmap

import (
	"github.com/go-gl/mathgl/mgl64"

	"clipvox/internal/brick"
)

// LODView is the read-only state of one level as seen by traversal.
type LODView struct {
	Index      int
	VoxelSize  int64
	PageExtent int64
	Window     Window
	Min, Max   WorldCoord
	Ready      bool

	table *PageTable
}

// Page returns the slot holding p when p is inside the window and the slot
// currently holds it.
func (v *LODView) Page(p PageCoord) (int, bool) {
	if v.table == nil || !v.Window.Contains(p) {
		return 0, false
	}
	return v.table.Lookup(p)
}

// Table returns the page table of the level.
func (v *LODView) Table() *PageTable { return v.table }

// View is the per-frame input of traversal: the active levels, finest first,
// and the brick store they reference.
type View struct {
	LODs   []LODView
	Store  *brick.Store
	Camera mgl64.Vec3
	Frame  uint64
}

// View snapshots the window placement and readiness of every active level.
// The page tables and store are shared, not copied.
func (c *Controller) View() View {
	v := View{
		LODs:   make([]LODView, 0, c.active),
		Store:  c.store,
		Camera: c.cameraPos,
		Frame:  c.frame,
	}
	for lod := 0; lod < c.active; lod++ {
		lv := c.levels[lod]
		lo, hi := lv.window.Bounds(lod)
		v.LODs = append(v.LODs, LODView{
			Index:      lod,
			VoxelSize:  VoxelSize(lod),
			PageExtent: PageExtent(lod),
			Window:     lv.window,
			Min:        lo,
			Max:        hi,
			Ready:      lv.ready,
			table:      lv.table,
		})
	}
	return v
}
