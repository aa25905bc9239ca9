package brick

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrPoolExhausted is returned when a pool reaches its slot ceiling and the
// free list is empty.
var ErrPoolExhausted = errors.New("brick pool exhausted")

// DefaultSegmentSlots is the number of payload slots added per growth step.
const DefaultSegmentSlots = 1024

// Pool is a fixed-stride slab of brick payloads. Slot 0 is reserved and never
// handed out. The pool grows one segment at a time so existing entries never
// move; readers may call Entry concurrently with a single writer.
type Pool struct {
	encoding Encoding
	stride   int
	segSlots int
	ceiling  int

	segments atomic.Pointer[[][]byte]

	next uint32
	free []uint32
}

// NewPool creates an empty pool for enc. A ceiling of 0 means unbounded.
func NewPool(enc Encoding, ceiling int) *Pool {
	p := &Pool{
		encoding: enc,
		stride:   enc.Stride(),
		segSlots: DefaultSegmentSlots,
		ceiling:  ceiling,
		next:     1,
	}
	empty := make([][]byte, 0)
	p.segments.Store(&empty)
	return p
}

// Encoding returns the payload format stored in p.
func (p *Pool) Encoding() Encoding { return p.encoding }

// Stride returns the entry size in bytes.
func (p *Pool) Stride() int { return p.stride }

// Allocate returns a free slot, reusing released slots first.
func (p *Pool) Allocate() (uint32, error) {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		return idx, nil
	}
	if p.ceiling > 0 && int(p.next) >= p.ceiling {
		return 0, fmt.Errorf("%s pool at %d slots: %w", p.encoding, p.ceiling, ErrPoolExhausted)
	}
	idx := p.next
	p.ensure(idx)
	p.next++
	return idx, nil
}

// Release returns idx to the free list. The payload bytes are left in place.
func (p *Pool) Release(idx uint32) {
	if idx == 0 || idx >= p.next {
		return
	}
	p.free = append(p.free, idx)
}

// Write copies data into slot idx.
func (p *Pool) Write(idx uint32, data []byte) {
	copy(p.Entry(idx), data)
}

// Entry returns the payload bytes of slot idx. The slice aliases pool memory.
func (p *Pool) Entry(idx uint32) []byte {
	segs := *p.segments.Load()
	seg := int(idx) / p.segSlots
	if seg >= len(segs) {
		return nil
	}
	off := (int(idx) % p.segSlots) * p.stride
	return segs[seg][off : off+p.stride : off+p.stride]
}

// Slots returns the high-water slot count including the reserved slot.
func (p *Pool) Slots() int { return int(p.next) }

// InUse returns the number of slots currently handed out.
func (p *Pool) InUse() int { return int(p.next) - 1 - len(p.free) }

// Capacity returns the number of bytes currently backing the pool.
func (p *Pool) Capacity() int {
	return len(*p.segments.Load()) * p.segSlots * p.stride
}

func (p *Pool) ensure(idx uint32) {
	segs := *p.segments.Load()
	need := int(idx)/p.segSlots + 1
	if need <= len(segs) {
		return
	}
	grown := make([][]byte, len(segs), need)
	copy(grown, segs)
	for len(grown) < need {
		grown = append(grown, make([]byte, p.segSlots*p.stride))
	}
	p.segments.Store(&grown)
}
