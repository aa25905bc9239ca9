package brick

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"clipvox/internal/voxel"
)

func TestPoolReservesSlotZero(t *testing.T) {
	p := NewPool(Palette16, 0)
	idx, err := p.Allocate()
	require.NoError(t, err)
	require.Equal(t, uint32(1), idx)
	require.Len(t, p.Entry(idx), Palette16Stride)
}

func TestPoolReusesReleasedSlots(t *testing.T) {
	p := NewPool(Palette32, 0)
	a, _ := p.Allocate()
	b, _ := p.Allocate()
	require.NotEqual(t, a, b)

	p.Release(a)
	c, err := p.Allocate()
	require.NoError(t, err)
	require.Equal(t, a, c)
	require.Equal(t, 2, p.InUse())
}

func TestPoolCeiling(t *testing.T) {
	p := NewPool(Raw16, 3)
	_, err := p.Allocate()
	require.NoError(t, err)
	_, err = p.Allocate()
	require.NoError(t, err)
	_, err = p.Allocate()
	require.True(t, errors.Is(err, ErrPoolExhausted))
}

func TestPoolGrowsAcrossSegments(t *testing.T) {
	p := NewPool(Palette16, 0)
	var last uint32
	for i := 0; i < DefaultSegmentSlots+10; i++ {
		idx, err := p.Allocate()
		require.NoError(t, err)
		last = idx
	}
	data := make([]byte, Palette16Stride)
	data[0] = 0xAB
	p.Write(last, data)
	require.Equal(t, byte(0xAB), p.Entry(last)[0])
	require.Equal(t, 2*DefaultSegmentSlots*Palette16Stride, p.Capacity())
}

func TestHeaderLayout(t *testing.T) {
	h := Header{
		PaletteLen: 5,
		Encoding:   Palette32,
		Flags:      FlagEmissive,
		DataIndex:  0x01020304,
		Occupancy:  Occupancy{L0: 0x1122334455667788, L1: 0x81, L2: 1},
		AvgColor:   0xFF102030,
	}
	var buf [HeaderSize]byte
	h.MarshalTo(buf[:])

	require.Equal(t, byte(5), buf[0])
	require.Equal(t, byte(Palette32), buf[1])
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf[4:8])
	require.Equal(t, []byte{0x88, 0x77, 0x66, 0x55}, buf[8:12])
	require.Equal(t, []byte{0x44, 0x33, 0x22, 0x11}, buf[12:16])
	require.Equal(t, byte(0x81), buf[16])
	require.Equal(t, h, UnmarshalHeader(buf[:]))
}

func TestHeaderTablePublish(t *testing.T) {
	ht := NewHeaderTable()
	require.Nil(t, ht.Get(5))

	ht.Publish(5000, Header{DataIndex: 9})
	got := ht.Get(5000)
	require.NotNil(t, got)
	require.Equal(t, uint32(9), got.DataIndex)

	ht.Clear(5000)
	require.Nil(t, ht.Get(5000))
	require.Nil(t, ht.Get(Empty))
}

func TestStoreAllAirIsEmpty(t *testing.T) {
	s := NewStore(Ceilings{})
	var v Voxels
	id, err := s.Allocate(&v, 1)
	require.NoError(t, err)
	require.Equal(t, Empty, id)
	require.Zero(t, s.Pool(Palette16).InUse())
}

func TestStoreAllocateAndRead(t *testing.T) {
	s := NewStore(Ceilings{})
	v := volumeWithDistinct(20)
	id, err := s.Allocate(v, 1)
	require.NoError(t, err)
	require.NotEqual(t, Empty, id)

	h, ok := s.Header(id)
	require.True(t, ok)
	require.Equal(t, Palette32, h.Encoding)
	for i := range v {
		require.Equal(t, v[i], s.VoxelAt(id, i))
	}
	require.Equal(t, *v, s.Decode(id))

	d := s.TakeDirty()
	require.Equal(t, []ID{id}, d.Headers)
	require.Equal(t, []uint32{h.DataIndex}, d.Entries[Palette32])
	require.True(t, s.TakeDirty().Empty())
}

func TestStoreRewriteKeepsID(t *testing.T) {
	s := NewStore(Ceilings{})
	var v Voxels
	v.Fill(voxel.Stone)
	id, err := s.Allocate(&v, 1)
	require.NoError(t, err)
	s.Retain(id, 1)
	before, _ := s.Header(id)

	v[0] = voxel.Glass
	got, err := s.Rewrite(id, &v, 2)
	require.NoError(t, err)
	require.Equal(t, id, got)
	require.Equal(t, voxel.Glass, s.VoxelAt(id, 0))

	after, _ := s.Header(id)
	require.NotEqual(t, before.DataIndex, after.DataIndex)
	require.True(t, after.Transparent())

	// the old payload slot comes back only after the retention window
	require.Equal(t, 2, s.Pool(Palette16).InUse())
	s.Evict(3, 3, false)
	require.Equal(t, 2, s.Pool(Palette16).InUse())
	s.Evict(5, 3, false)
	require.Equal(t, 1, s.Pool(Palette16).InUse())
}

func TestStoreEvictRespectsRefsAndRetention(t *testing.T) {
	s := NewStore(Ceilings{})
	var v Voxels
	v.Fill(voxel.Dirt)

	kept, _ := s.Allocate(&v, 1)
	s.Retain(kept, 1)
	dropped, _ := s.Allocate(&v, 1)
	s.Retain(dropped, 1)
	s.Drop(dropped, 10)

	require.Zero(t, s.Evict(11, 3, false))
	require.Equal(t, 1, s.Evict(13, 3, false))
	require.Equal(t, voxel.Air, s.VoxelAt(dropped, 0))
	require.Equal(t, voxel.Dirt, s.VoxelAt(kept, 0))

	// freed ids are recycled
	again, _ := s.Allocate(&v, 14)
	require.Equal(t, dropped, again)
}

func TestStoreForcedEviction(t *testing.T) {
	s := NewStore(Ceilings{Palette16: 2})
	var v Voxels
	v.Fill(voxel.Sand)

	first, err := s.Allocate(&v, 1)
	require.NoError(t, err)
	_, err = s.Allocate(&v, 1)
	require.ErrorIs(t, err, ErrPoolExhausted)

	require.Equal(t, 1, s.Evict(1, 100, true))
	second, err := s.Allocate(&v, 1)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
