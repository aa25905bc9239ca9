package gpu

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"clipvox/internal/brick"
	"clipvox/internal/clipmap"
	"clipvox/internal/metrics"
	"clipvox/internal/profiling"
)

const initialHeaderSlots = 4096

type lodBuffers struct {
	bricks Buffer
	occ    Buffer
	tags   Buffer
}

// SyncStats reports the writes issued by one Sync.
type SyncStats struct {
	Writes  int
	Bytes   int
	Resized int
}

// Mirror keeps device buffers in step with the clipmap. Only regions named
// by the dirty state are written; buffers grow in place as the store grows.
type Mirror struct {
	dev     Device
	lods    [clipmap.MaxLODCount]lodBuffers
	headers Buffer
	pools   [3]Buffer
	desc    Buffer

	// Flags is copied into the descriptor on every Sync.
	Flags uint32

	last    []byte
	current Descriptor
	scratch []byte
}

// NewMirror validates the layout and allocates the device buffers.
func NewMirror(dev Device) (*Mirror, error) {
	if err := ValidateLayout(); err != nil {
		return nil, err
	}
	m := &Mirror{dev: dev}
	var err error
	for lod := range m.lods {
		b := &m.lods[lod]
		if b.bricks, err = dev.CreateBuffer(fmt.Sprintf("lod%d.bricks", lod), clipmap.PageSlots*PageBrickStride); err != nil {
			return nil, err
		}
		if b.occ, err = dev.CreateBuffer(fmt.Sprintf("lod%d.occupancy", lod), clipmap.PageSlots*PageOccupancyStride); err != nil {
			return nil, err
		}
		if b.tags, err = dev.CreateBuffer(fmt.Sprintf("lod%d.tags", lod), clipmap.PageSlots*PageTagStride); err != nil {
			return nil, err
		}
	}
	if m.headers, err = dev.CreateBuffer("headers", initialHeaderSlots*HeaderStride); err != nil {
		return nil, err
	}
	for enc := range m.pools {
		e := brick.Encoding(enc)
		if m.pools[enc], err = dev.CreateBuffer("pool."+e.String(), brick.DefaultSegmentSlots*e.Stride()); err != nil {
			return nil, err
		}
	}
	if m.desc, err = dev.CreateBuffer("descriptor", DescriptorSize); err != nil {
		return nil, err
	}
	return m, nil
}

// Descriptor returns the descriptor written by the last Sync.
func (m *Mirror) Descriptor() Descriptor { return m.current }

// Close releases every buffer.
func (m *Mirror) Close() {
	for _, b := range m.lods {
		b.bricks.Release()
		b.occ.Release()
		b.tags.Release()
	}
	m.headers.Release()
	for _, p := range m.pools {
		p.Release()
	}
	m.desc.Release()
}

// Sync uploads everything dirty names and refreshes the descriptor.
func (m *Mirror) Sync(view clipmap.View, dirty clipmap.DirtyState) (SyncStats, error) {
	defer profiling.Track("gpu.Sync")()
	var st SyncStats
	if view.Store == nil {
		return st, nil
	}

	if err := m.grow(view.Store, &st); err != nil {
		return st, err
	}

	for lod, slots := range dirty.Pages {
		if lod >= len(view.LODs) || len(slots) == 0 {
			continue
		}
		table := view.LODs[lod].Table()
		b := m.lods[lod]
		m.writeRuns(b.bricks, "page_bricks", slots, PageBrickStride, &st, func(slot int, dst []byte) {
			for i, id := range table.Bricks(slot) {
				binary.LittleEndian.PutUint32(dst[i*4:], uint32(id))
			}
		})
		m.writeRuns(b.occ, "page_occupancy", slots, PageOccupancyStride, &st, func(slot int, dst []byte) {
			binary.LittleEndian.PutUint64(dst, table.Occupancy(slot))
		})
		m.writeRuns(b.tags, "page_tags", slots, PageTagStride, &st, func(slot int, dst []byte) {
			tag := table.Tag(slot)
			binary.LittleEndian.PutUint32(dst[0:], uint32(int32(tag.X)))
			binary.LittleEndian.PutUint32(dst[4:], uint32(int32(tag.Y)))
			binary.LittleEndian.PutUint32(dst[8:], uint32(int32(tag.Z)))
			binary.LittleEndian.PutUint32(dst[12:], uint32(table.State(slot)))
		})
	}

	if n := len(dirty.Bricks.Headers); n > 0 {
		ids := make([]int, n)
		for i, id := range dirty.Bricks.Headers {
			ids[i] = int(id)
		}
		store := view.Store
		m.writeRuns(m.headers, "headers", ids, HeaderStride, &st, func(id int, dst []byte) {
			h := store.HeaderBytes(brick.ID(id))
			copy(dst, h[:])
		})
	}

	for enc, idxs := range dirty.Bricks.Entries {
		if len(idxs) == 0 {
			continue
		}
		pool := view.Store.Pool(brick.Encoding(enc))
		slots := make([]int, len(idxs))
		for i, idx := range idxs {
			slots[i] = int(idx)
		}
		m.writeRuns(m.pools[enc], "pool_"+brick.Encoding(enc).String(), slots, pool.Stride(), &st, func(idx int, dst []byte) {
			copy(dst, pool.Entry(uint32(idx)))
		})
	}

	m.writeDescriptor(view, &st)
	return st, nil
}

// grow resizes the header and pool buffers to the store's high water marks.
func (m *Mirror) grow(store *brick.Store, st *SyncStats) error {
	resize := func(b Buffer, need int) error {
		if need <= b.Size() {
			return nil
		}
		size := b.Size()
		for size < need {
			size *= 2
		}
		st.Resized++
		return b.Resize(size)
	}
	if err := resize(m.headers, store.HeaderSlots()*HeaderStride); err != nil {
		return fmt.Errorf("grow headers: %w", err)
	}
	for enc := range m.pools {
		p := store.Pool(brick.Encoding(enc))
		if err := resize(m.pools[enc], p.Slots()*p.Stride()); err != nil {
			return fmt.Errorf("grow %s pool: %w", p.Encoding(), err)
		}
	}
	return nil
}

// writeRuns writes the records at idxs, merging consecutive indices into a
// single write. idxs must be ascending.
func (m *Mirror) writeRuns(b Buffer, name string, idxs []int, stride int, st *SyncStats, fill func(i int, dst []byte)) {
	written := 0
	for start := 0; start < len(idxs); {
		end := start + 1
		for end < len(idxs) && idxs[end] == idxs[end-1]+1 {
			end++
		}
		n := (end - start) * stride
		if cap(m.scratch) < n {
			m.scratch = make([]byte, n)
		}
		buf := m.scratch[:n]
		for i := start; i < end; i++ {
			fill(idxs[i], buf[(i-start)*stride:(i-start+1)*stride])
		}
		b.Write(idxs[start]*stride, buf)
		st.Writes++
		written += n
		start = end
	}
	st.Bytes += written
	metrics.InstrumentUpload(name, written)
}

func (m *Mirror) writeDescriptor(view clipmap.View, st *SyncStats) {
	var d Descriptor
	for i := range view.LODs {
		lv := &view.LODs[i]
		l := &d.LODs[lv.Index]
		b := m.lods[lv.Index]
		l.PageBricks = b.bricks.Address()
		l.PageOccupancy = b.occ.Address()
		l.PageTags = b.tags.Address()
		describeLOD(l, lv)
	}
	d.Headers = m.headers.Address()
	for i, p := range m.pools {
		d.Pools[i] = p.Address()
	}
	d.LODCount = uint32(len(view.LODs))
	if len(view.LODs) > 0 {
		d.VisibleGrid = uint32(view.LODs[0].Window.Pages)
	}
	d.Frame = uint32(view.Frame)
	d.Flags = m.Flags
	m.current = d

	// the frame counter changes every call; compare everything else
	raw := d.Marshal()
	if m.last != nil && bytes.Equal(raw[:offFrame], m.last[:offFrame]) && bytes.Equal(raw[offFlags:], m.last[offFlags:]) {
		return
	}
	m.desc.Write(0, raw)
	m.last = raw
	st.Writes++
	st.Bytes += len(raw)
	metrics.InstrumentUpload("descriptor", len(raw))
}
