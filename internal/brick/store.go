package brick

import (
	"fmt"
	"sort"

	"clipvox/internal/voxel"
)

// Ceilings bounds each pool in slots. Zero leaves a pool unbounded.
type Ceilings struct {
	Palette16 int
	Palette32 int
	Raw16     int
}

type retiredSlot struct {
	encoding Encoding
	index    uint32
	frame    uint64
}

// Stats is a point-in-time summary of a Store.
type Stats struct {
	Bricks       int
	Unreferenced int
	Retired      int
	PoolInUse    [3]int
	PoolSlots    [3]int
	PoolBytes    [3]int
}

// Store owns the payload pools, the header table and brick reference
// counts. All mutating methods must be called from one goroutine; VoxelAt,
// Header and Decode are safe to call concurrently with it.
type Store struct {
	pools   [3]*Pool
	headers *HeaderTable

	nextID  ID
	freeIDs []ID

	refs    map[ID]int32
	lastRef map[ID]uint64
	zero    map[ID]struct{}
	retired []retiredSlot

	dirtyHeaders map[ID]struct{}
	dirtyEntries [3]map[uint32]struct{}
}

// NewStore creates an empty store with the given pool ceilings.
func NewStore(c Ceilings) *Store {
	s := &Store{
		pools: [3]*Pool{
			NewPool(Palette16, c.Palette16),
			NewPool(Palette32, c.Palette32),
			NewPool(Raw16, c.Raw16),
		},
		headers:      NewHeaderTable(),
		nextID:       1,
		refs:         make(map[ID]int32),
		lastRef:      make(map[ID]uint64),
		zero:         make(map[ID]struct{}),
		dirtyHeaders: make(map[ID]struct{}),
	}
	for i := range s.dirtyEntries {
		s.dirtyEntries[i] = make(map[uint32]struct{})
	}
	return s
}

// Pool returns the pool for enc.
func (s *Store) Pool(enc Encoding) *Pool { return s.pools[enc] }

// Headers returns the header table.
func (s *Store) Headers() *HeaderTable { return s.headers }

// Allocate encodes v into a new brick. All-air volumes return Empty without
// touching any pool. The new brick starts unreferenced as of frame.
func (s *Store) Allocate(v *Voxels, frame uint64) (ID, error) {
	if v.IsAllAir() {
		return Empty, nil
	}
	h, err := s.writePayload(v)
	if err != nil {
		return Empty, err
	}
	id := s.allocID()
	s.headers.Publish(id, h)
	s.dirtyHeaders[id] = struct{}{}
	s.refs[id] = 0
	s.lastRef[id] = frame
	s.zero[id] = struct{}{}
	return id, nil
}

// Rewrite replaces the contents of id in place, keeping its id and
// references. The previous payload slot is retired and reclaimed by Evict once
// it leaves the retention window. Rewriting to all air returns Empty and leaves
// id untouched; the caller drops its references.
func (s *Store) Rewrite(id ID, v *Voxels, frame uint64) (ID, error) {
	if id == Empty {
		return s.Allocate(v, frame)
	}
	if v.IsAllAir() {
		return Empty, nil
	}
	old := s.headers.Get(id)
	if old == nil {
		return Empty, fmt.Errorf("rewrite of unknown brick %d", id)
	}
	h, err := s.writePayload(v)
	if err != nil {
		return Empty, err
	}
	s.headers.Publish(id, h)
	s.dirtyHeaders[id] = struct{}{}
	s.retired = append(s.retired, retiredSlot{encoding: old.Encoding, index: old.DataIndex, frame: frame})
	return id, nil
}

func (s *Store) writePayload(v *Voxels) (Header, error) {
	enc := Encode(v)
	pool := s.pools[enc.Encoding]
	slot, err := pool.Allocate()
	if err != nil {
		return Header{}, err
	}
	pool.Write(slot, enc.Data)
	s.dirtyEntries[enc.Encoding][slot] = struct{}{}

	flags, avg := Summarize(v)
	return Header{
		PaletteLen: enc.PaletteLen,
		Encoding:   enc.Encoding,
		Flags:      flags,
		DataIndex:  slot,
		Occupancy:  ComputeOccupancy(v),
		AvgColor:   avg,
	}, nil
}

func (s *Store) allocID() ID {
	if n := len(s.freeIDs); n > 0 {
		id := s.freeIDs[n-1]
		s.freeIDs = s.freeIDs[:n-1]
		return id
	}
	id := s.nextID
	s.nextID++
	return id
}

// Retain records a page reference to id.
func (s *Store) Retain(id ID, frame uint64) {
	if id == Empty {
		return
	}
	s.refs[id]++
	s.lastRef[id] = frame
	delete(s.zero, id)
}

// Drop removes a page reference to id.
func (s *Store) Drop(id ID, frame uint64) {
	if id == Empty {
		return
	}
	n, ok := s.refs[id]
	if !ok {
		return
	}
	if n > 0 {
		n--
	}
	s.refs[id] = n
	s.lastRef[id] = frame
	if n == 0 {
		s.zero[id] = struct{}{}
	}
}

// Refs returns the number of live page references to id.
func (s *Store) Refs(id ID) int {
	return int(s.refs[id])
}

// Evict reclaims bricks with no page references whose last reference is
// older than retention frames, plus retired payload slots of the same age.
// force ignores the age. It returns the number of bricks reclaimed.
func (s *Store) Evict(frame, retention uint64, force bool) int {
	expired := func(at uint64) bool {
		return force || frame >= at+retention
	}

	kept := s.retired[:0]
	for _, r := range s.retired {
		if expired(r.frame) {
			s.pools[r.encoding].Release(r.index)
			continue
		}
		kept = append(kept, r)
	}
	s.retired = kept

	freed := 0
	for id := range s.zero {
		if !expired(s.lastRef[id]) {
			continue
		}
		if h := s.headers.Get(id); h != nil {
			s.pools[h.Encoding].Release(h.DataIndex)
		}
		s.headers.Clear(id)
		s.dirtyHeaders[id] = struct{}{}
		delete(s.zero, id)
		delete(s.refs, id)
		delete(s.lastRef, id)
		s.freeIDs = append(s.freeIDs, id)
		freed++
	}
	return freed
}

// Header returns the current header of id.
func (s *Store) Header(id ID) (Header, bool) {
	h := s.headers.Get(id)
	if h == nil {
		return Header{}, false
	}
	return *h, true
}

// VoxelAt decodes voxel i of brick id. Unknown ids read as air.
func (s *Store) VoxelAt(id ID, i int) voxel.Material {
	h := s.headers.Get(id)
	if h == nil {
		return voxel.Air
	}
	data := s.pools[h.Encoding].Entry(h.DataIndex)
	if data == nil {
		return voxel.Air
	}
	return DecodeVoxel(h.Encoding, h.PaletteLen, data, i)
}

// Decode expands brick id. Unknown ids decode as all air.
func (s *Store) Decode(id ID) Voxels {
	h := s.headers.Get(id)
	if h == nil {
		return Voxels{}
	}
	data := s.pools[h.Encoding].Entry(h.DataIndex)
	if data == nil {
		return Voxels{}
	}
	return Decode(h.Encoding, h.PaletteLen, data)
}

// HeaderBytes returns the serialized header of id; cleared ids are all zero.
func (s *Store) HeaderBytes(id ID) [HeaderSize]byte {
	var out [HeaderSize]byte
	if h := s.headers.Get(id); h != nil {
		h.MarshalTo(out[:])
	}
	return out
}

// HeaderSlots returns one past the largest id ever handed out.
func (s *Store) HeaderSlots() int { return int(s.nextID) }

// Dirty lists headers and pool entries written since the last call, sorted.
type Dirty struct {
	Headers []ID
	Entries [3][]uint32
}

// Empty reports whether nothing changed.
func (d Dirty) Empty() bool {
	return len(d.Headers) == 0 && len(d.Entries[0]) == 0 && len(d.Entries[1]) == 0 && len(d.Entries[2]) == 0
}

// TakeDirty returns and clears the dirty sets.
func (s *Store) TakeDirty() Dirty {
	var d Dirty
	for id := range s.dirtyHeaders {
		d.Headers = append(d.Headers, id)
	}
	sort.Slice(d.Headers, func(i, j int) bool { return d.Headers[i] < d.Headers[j] })
	clear(s.dirtyHeaders)
	for enc, set := range s.dirtyEntries {
		for idx := range set {
			d.Entries[enc] = append(d.Entries[enc], idx)
		}
		sort.Slice(d.Entries[enc], func(i, j int) bool { return d.Entries[enc][i] < d.Entries[enc][j] })
		clear(set)
	}
	return d
}

// Stats summarizes the store.
func (s *Store) Stats() Stats {
	st := Stats{
		Bricks:       len(s.refs),
		Unreferenced: len(s.zero),
		Retired:      len(s.retired),
	}
	for i, p := range s.pools {
		st.PoolInUse[i] = p.InUse()
		st.PoolSlots[i] = p.Slots()
		st.PoolBytes[i] = p.Capacity()
	}
	return st
}
