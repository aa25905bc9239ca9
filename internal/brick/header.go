package brick

import (
	"encoding/binary"
	"sync/atomic"
)

// HeaderSize is the serialized size of a Header in bytes.
const HeaderSize = 32

// Header describes where a brick payload lives and what it contains.
type Header struct {
	PaletteLen uint8
	Encoding   Encoding
	Flags      uint16
	DataIndex  uint32
	Occupancy  Occupancy
	AvgColor   uint32
}

// Transparent reports whether any voxel of the brick lets rays through.
func (h *Header) Transparent() bool { return h.Flags&FlagAnyTransparent != 0 }

// Emissive reports whether any voxel of the brick emits light.
func (h *Header) Emissive() bool { return h.Flags&FlagEmissive != 0 }

// MarshalTo writes the 32 byte little endian form of h into dst.
func (h *Header) MarshalTo(dst []byte) {
	_ = dst[HeaderSize-1]
	dst[0] = h.PaletteLen
	dst[1] = byte(h.Encoding)
	binary.LittleEndian.PutUint16(dst[2:], h.Flags)
	binary.LittleEndian.PutUint32(dst[4:], h.DataIndex)
	binary.LittleEndian.PutUint32(dst[8:], uint32(h.Occupancy.L0))
	binary.LittleEndian.PutUint32(dst[12:], uint32(h.Occupancy.L0>>32))
	dst[16] = h.Occupancy.L1
	dst[17] = h.Occupancy.L2
	binary.LittleEndian.PutUint16(dst[18:], 0)
	binary.LittleEndian.PutUint32(dst[20:], h.AvgColor)
	binary.LittleEndian.PutUint32(dst[24:], 0)
	binary.LittleEndian.PutUint32(dst[28:], 0)
}

// UnmarshalHeader parses the form written by MarshalTo.
func UnmarshalHeader(src []byte) Header {
	_ = src[HeaderSize-1]
	lo := uint64(binary.LittleEndian.Uint32(src[8:]))
	hi := uint64(binary.LittleEndian.Uint32(src[12:]))
	return Header{
		PaletteLen: src[0],
		Encoding:   Encoding(src[1]),
		Flags:      binary.LittleEndian.Uint16(src[2:]),
		DataIndex:  binary.LittleEndian.Uint32(src[4:]),
		Occupancy: Occupancy{
			L0: lo | hi<<32,
			L1: src[16],
			L2: src[17],
		},
		AvgColor: binary.LittleEndian.Uint32(src[20:]),
	}
}

const headerSegmentSize = 4096

type headerSegment [headerSegmentSize]atomic.Pointer[Header]

// HeaderTable maps brick ids to headers. Each entry is published with a
// single pointer store so readers see either the old or the new header.
type HeaderTable struct {
	segments atomic.Pointer[[]*headerSegment]
}

// NewHeaderTable returns an empty table.
func NewHeaderTable() *HeaderTable {
	t := &HeaderTable{}
	empty := make([]*headerSegment, 0)
	t.segments.Store(&empty)
	return t
}

// Publish installs h for id. Only the streaming writer calls this.
func (t *HeaderTable) Publish(id ID, h Header) {
	t.ensure(id)
	segs := *t.segments.Load()
	segs[int(id)/headerSegmentSize][int(id)%headerSegmentSize].Store(&h)
}

// Clear removes the header of id.
func (t *HeaderTable) Clear(id ID) {
	segs := *t.segments.Load()
	seg := int(id) / headerSegmentSize
	if seg >= len(segs) {
		return
	}
	segs[seg][int(id)%headerSegmentSize].Store(nil)
}

// Get returns the header of id or nil when id is unused.
func (t *HeaderTable) Get(id ID) *Header {
	if id == Empty {
		return nil
	}
	segs := *t.segments.Load()
	seg := int(id) / headerSegmentSize
	if seg >= len(segs) {
		return nil
	}
	return segs[seg][int(id)%headerSegmentSize].Load()
}

func (t *HeaderTable) ensure(id ID) {
	segs := *t.segments.Load()
	need := int(id)/headerSegmentSize + 1
	if need <= len(segs) {
		return
	}
	grown := make([]*headerSegment, len(segs), need)
	copy(grown, segs)
	for len(grown) < need {
		grown = append(grown, new(headerSegment))
	}
	t.segments.Store(&grown)
}
