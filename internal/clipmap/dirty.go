package clipmap

import (
	"sort"

	"clipvox/internal/brick"
)

// DirtyState lists everything written since the previous TakeDirty, for
// incremental upload to a mirror.
type DirtyState struct {
	// Pages holds the touched slots of each level, ascending.
	Pages [MaxLODCount][]int
	// Origins is set when any window moved or the active level count changed.
	Origins bool
	// Bricks lists touched headers and pool entries.
	Bricks brick.Dirty
}

// Empty reports whether nothing needs uploading.
func (d *DirtyState) Empty() bool {
	for _, p := range d.Pages {
		if len(p) > 0 {
			return false
		}
	}
	return !d.Origins && d.Bricks.Empty()
}

type dirtyTracker struct {
	pages   [MaxLODCount]map[int]struct{}
	origins bool
}

func newDirtyTracker() dirtyTracker {
	var d dirtyTracker
	for i := range d.pages {
		d.pages[i] = make(map[int]struct{})
	}
	return d
}

func (d *dirtyTracker) markPage(lod, slot int) {
	d.pages[lod][slot] = struct{}{}
}

func (d *dirtyTracker) markOrigin() {
	d.origins = true
}

// TakeDirty returns and clears the dirty state.
func (c *Controller) TakeDirty() DirtyState {
	var out DirtyState
	for lod, set := range c.dirty.pages {
		if len(set) == 0 {
			continue
		}
		slots := make([]int, 0, len(set))
		for s := range set {
			slots = append(slots, s)
		}
		sort.Ints(slots)
		out.Pages[lod] = slots
		clear(set)
	}
	out.Origins = c.dirty.origins
	c.dirty.origins = false
	out.Bricks = c.store.TakeDirty()
	return out
}
