package clipmap

import (
	"sort"
)

// LODState is the streaming state of one level.
type LODState uint8

const (
	// Stable means every page of the window is resident.
	Stable LODState = iota
	// OriginShifting is held while revealed pages are being invalidated.
	OriginShifting
	// Rebuilding means some pages of the window still await fills.
	Rebuilding
)

func (s LODState) String() string {
	switch s {
	case Stable:
		return "stable"
	case OriginShifting:
		return "origin-shifting"
	case Rebuilding:
		return "rebuilding"
	default:
		return "invalid"
	}
}

type pendingPage struct {
	page  PageCoord
	slot  int
	epoch uint32
}

// level is the controller-side state of one LOD.
type level struct {
	index  int
	table  *PageTable
	window Window
	state  LODState

	seeded bool
	ready  bool

	// pages in PageRebuilding state
	rebuilding int
	// pages awaiting dispatch, nearest first
	queue []pendingPage
}

func newLevel(index int) *level {
	return &level{
		index: index,
		table: NewPageTable(),
	}
}

// stale reports whether p no longer describes what its slot holds.
func (l *level) stale(p pendingPage) bool {
	t := l.table
	return t.tags[p.slot] != p.page || t.epoch[p.slot] != p.epoch || t.state[p.slot] != PageRebuilding
}

// sortQueue orders pending pages by distance from camera, nearest first.
func (l *level) sortQueue(camera WorldCoord) {
	pe := PageExtent(l.index)
	dist := func(p PageCoord) int64 {
		dx := p.X*pe + pe/2 - camera.X
		dy := p.Y*pe + pe/2 - camera.Y
		dz := p.Z*pe + pe/2 - camera.Z
		return dx*dx + dy*dy + dz*dz
	}
	sort.SliceStable(l.queue, func(i, j int) bool {
		return dist(l.queue[i].page) < dist(l.queue[j].page)
	})
}

// settle moves the level to Stable once nothing is left to rebuild.
func (l *level) settle() {
	if l.seeded && l.rebuilding == 0 {
		l.state = Stable
	}
}
