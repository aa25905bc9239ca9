package clipmap

import (
	"clipvox/internal/brick"
)

// PageState tracks whether a slot's contents can be trusted.
type PageState uint8

const (
	PageEmpty PageState = iota
	PageRebuilding
	PageResident
)

func (s PageState) String() string {
	switch s {
	case PageEmpty:
		return "empty"
	case PageRebuilding:
		return "rebuilding"
	case PageResident:
		return "resident"
	default:
		return "invalid"
	}
}

// PageTable is the toroidal page grid of one LOD, stored as parallel arrays
// so the GPU mirror can copy each field with one write per page.
//
// Every slot carries the page coordinate it currently holds and an epoch that
// moves on each invalidation; a slot whose tag differs from the page being
// looked up holds unrelated content and must be treated as empty.
type PageTable struct {
	bricks  []brick.ID
	occ     []uint64
	tags    []PageCoord
	state   []PageState
	epoch   []uint32
	pending []uint8
}

// NewPageTable allocates an empty table.
func NewPageTable() *PageTable {
	return &PageTable{
		bricks:  make([]brick.ID, PageSlots*BricksPerPage),
		occ:     make([]uint64, PageSlots),
		tags:    make([]PageCoord, PageSlots),
		state:   make([]PageState, PageSlots),
		epoch:   make([]uint32, PageSlots),
		pending: make([]uint8, PageSlots),
	}
}

// Lookup returns the slot holding p, or false when the slot holds another page
// or nothing at all.
func (t *PageTable) Lookup(p PageCoord) (int, bool) {
	slot := SlotIndex(p)
	if t.state[slot] == PageEmpty || t.tags[slot] != p {
		return slot, false
	}
	return slot, true
}

// Brick returns brick i of slot.
func (t *PageTable) Brick(slot, i int) brick.ID {
	return t.bricks[slot*BricksPerPage+i]
}

// Bricks returns the 64 brick references of slot. The slice aliases the table.
func (t *PageTable) Bricks(slot int) []brick.ID {
	return t.bricks[slot*BricksPerPage : (slot+1)*BricksPerPage]
}

// Occupancy returns the page summary of slot, one bit per non-empty brick.
func (t *PageTable) Occupancy(slot int) uint64 { return t.occ[slot] }

// Tag returns the page coordinate held by slot.
func (t *PageTable) Tag(slot int) PageCoord { return t.tags[slot] }

// State returns the state of slot.
func (t *PageTable) State(slot int) PageState { return t.state[slot] }

// Epoch returns the invalidation counter of slot.
func (t *PageTable) Epoch(slot int) uint32 { return t.epoch[slot] }

// invalidate retags slot for p and clears it, returning the references it
// dropped so the caller can release them.
func (t *PageTable) invalidate(slot int, p PageCoord, dropped []brick.ID) []brick.ID {
	dropped = t.clearBricks(slot, dropped)
	t.tags[slot] = p
	t.state[slot] = PageRebuilding
	t.epoch[slot]++
	t.pending[slot] = BricksPerPage
	return dropped
}

// release empties slot.
func (t *PageTable) release(slot int, dropped []brick.ID) []brick.ID {
	dropped = t.clearBricks(slot, dropped)
	t.state[slot] = PageEmpty
	t.epoch[slot]++
	t.pending[slot] = 0
	return dropped
}

func (t *PageTable) clearBricks(slot int, dropped []brick.ID) []brick.ID {
	refs := t.Bricks(slot)
	for i, id := range refs {
		if id != brick.Empty {
			dropped = append(dropped, id)
			refs[i] = brick.Empty
		}
	}
	t.occ[slot] = 0
	return dropped
}

// set stores id as brick i of slot and returns the previous reference.
func (t *PageTable) set(slot, i int, id brick.ID) brick.ID {
	k := slot*BricksPerPage + i
	old := t.bricks[k]
	t.bricks[k] = id
	if id == brick.Empty {
		t.occ[slot] &^= 1 << uint(i)
	} else {
		t.occ[slot] |= 1 << uint(i)
	}
	return old
}

// fillDone counts one initial fill of slot and reports whether the page just
// became resident.
func (t *PageTable) fillDone(slot int) bool {
	if t.pending[slot] == 0 {
		return false
	}
	t.pending[slot]--
	if t.pending[slot] == 0 {
		t.state[slot] = PageResident
		return true
	}
	return false
}
