package gpu

import (
	"encoding/binary"
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"clipvox/internal/brick"
	"clipvox/internal/clipmap"
	"clipvox/internal/voxel"
	"clipvox/internal/world"
)

func TestValidateLayout(t *testing.T) {
	require.NoError(t, ValidateLayout())
	require.Equal(t, DescriptorSize, descriptorEnd)
	require.Equal(t, 576, offFlags+4)
}

func TestDescriptorRoundTrip(t *testing.T) {
	var d Descriptor
	for i := range d.LODs {
		l := &d.LODs[i]
		l.PageBricks = uint64(0x1000 * (i + 1))
		l.PageOccupancy = uint64(0x2000 * (i + 1))
		l.PageTags = uint64(0x3000 * (i + 1))
		l.Origin = [4]int32{int32(-i), 2, int32(i * 3), 16}
		l.VoxelSize = [4]uint32{1 << uint(i), 32 << uint(i), 1, uint32(i)}
		l.BoundsMin = [4]float32{-float32(i) * 1.5, 0, 2, 0}
		l.BoundsMax = [4]float32{float32(i) * 1.5, 9, 3, 0}
	}
	d.Headers = 0xdead0000
	d.Pools = [3]uint64{1, 2, 3}
	d.LODCount = 6
	d.VisibleGrid = 16
	d.Frame = 77
	d.Flags = FlagBlend

	raw := d.Marshal()
	require.Len(t, raw, DescriptorSize)
	require.Equal(t, uint64(0x1000), binary.LittleEndian.Uint64(raw[offPageBricks:]))
	require.Equal(t, uint32(77), binary.LittleEndian.Uint32(raw[offFrame:]))

	got, err := UnmarshalDescriptor(raw)
	require.NoError(t, err)
	require.Equal(t, d, got)

	_, err = UnmarshalDescriptor(raw[:100])
	require.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestHostBufferResizeKeepsContents(t *testing.T) {
	dev := NewHostDevice()
	b, err := dev.CreateBuffer("x", 4)
	require.NoError(t, err)
	b.Write(0, []byte{1, 2, 3, 4})
	addr := b.Address()

	require.NoError(t, b.Resize(8))
	hb := dev.Buffer("x")
	require.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, hb.Data())
	require.NotEqual(t, addr, b.Address())
	require.Zero(t, b.Address()%256)

	_, err = dev.CreateBuffer("bad", 0)
	require.Error(t, err)
}

func settled(t *testing.T) *clipmap.Controller {
	t.Helper()
	opts := clipmap.DefaultOptions()
	opts.LODCount = 2
	opts.VisiblePageGrid = 4
	opts.Logger = log.New(io.Discard, "", 0)
	c := clipmap.New(world.NewFlatGenerator(0, voxel.Stone), opts)
	t.Cleanup(c.Close)

	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, c.Update(mgl64.Vec3{}))
		c.ApplyBudget(1 << 16)
		s := c.Stats()
		if s.Inflight == 0 && s.Ready[0] && s.Ready[1] && s.Rebuilding[0] == 0 && s.Rebuilding[1] == 0 {
			return c
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("clipmap did not settle")
	return nil
}

func TestMirrorSyncMatchesStructure(t *testing.T) {
	c := settled(t)
	dev := NewHostDevice()
	m, err := NewMirror(dev)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	view := c.View()
	st, err := m.Sync(view, c.TakeDirty())
	require.NoError(t, err)
	require.Greater(t, st.Writes, 0)

	// every resident page of LOD0 is mirrored byte for byte
	table := view.LODs[0].Table()
	bricks := dev.Buffer("lod0.bricks").Data()
	tags := dev.Buffer("lod0.tags").Data()
	headers := dev.Buffer("headers").Data()
	view.LODs[0].Window.ForEach(func(p clipmap.PageCoord) {
		slot, ok := view.LODs[0].Page(p)
		require.True(t, ok)
		for i, id := range table.Bricks(slot) {
			got := binary.LittleEndian.Uint32(bricks[slot*PageBrickStride+i*4:])
			require.Equal(t, uint32(id), got)
			if id != brick.Empty {
				want := view.Store.HeaderBytes(id)
				require.Equal(t, want[:], headers[int(id)*HeaderStride:int(id+1)*HeaderStride])
			}
		}
		require.Equal(t, int32(p.X), int32(binary.LittleEndian.Uint32(tags[slot*PageTagStride:])))
	})

	d, err := UnmarshalDescriptor(dev.Buffer("descriptor").Data())
	require.NoError(t, err)
	require.Equal(t, uint32(2), d.LODCount)
	require.Equal(t, uint32(4), d.VisibleGrid)
	require.Equal(t, dev.Buffer("lod1.bricks").Address(), d.LODs[1].PageBricks)
	require.Equal(t, uint32(2), d.LODs[1].VoxelSize[0])
	for lod, lv := range view.LODs {
		want := [4]int32{
			int32(lv.Window.Origin.X * lv.PageExtent),
			int32(lv.Window.Origin.Y * lv.PageExtent),
			int32(lv.Window.Origin.Z * lv.PageExtent),
			int32(lv.Window.Pages),
		}
		require.Equal(t, want, d.LODs[lod].Origin, "lod %d origin is in world voxels", lod)
		require.Equal(t, float32(want[0]), d.LODs[lod].BoundsMin[0])
	}
	require.Equal(t, m.Descriptor(), d)
}

func TestMirrorWritesOnlyDirtyRegions(t *testing.T) {
	c := settled(t)
	dev := NewHostDevice()
	m, err := NewMirror(dev)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	_, err = m.Sync(c.View(), c.TakeDirty())
	require.NoError(t, err)

	// nothing changed: nothing is written
	st, err := m.Sync(c.View(), c.TakeDirty())
	require.NoError(t, err)
	require.Zero(t, st.Writes)

	// one edit touches one page per synchronous level plus its bricks
	require.NoError(t, c.SetVoxel(clipmap.WorldCoord{X: 3, Y: 2, Z: 1}, voxel.Lava))
	dirty := c.TakeDirty()
	st, err = m.Sync(c.View(), dirty)
	require.NoError(t, err)
	require.Greater(t, st.Writes, 0)
	require.Less(t, st.Bytes, 16*1024)

	hb := view0Header(t, c, clipmap.WorldCoord{X: 3, Y: 2, Z: 1})
	require.Contains(t, dirty.Bricks.Headers, hb)
	got := brick.UnmarshalHeader(dev.Buffer("headers").Data()[int(hb)*HeaderStride:])
	require.NotZero(t, got.Flags&brick.FlagEmissive)
}

// view0Header returns the LOD0 brick id holding p.
func view0Header(t *testing.T, c *clipmap.Controller, p clipmap.WorldCoord) brick.ID {
	t.Helper()
	v := c.View()
	b, _ := clipmap.BrickAt(0, p)
	page, i := b.Page()
	slot, ok := v.LODs[0].Page(page)
	require.True(t, ok)
	return v.LODs[0].Table().Brick(slot, i)
}

func TestWriteRunsMergesConsecutive(t *testing.T) {
	dev := NewHostDevice()
	b, err := dev.CreateBuffer("runs", 64)
	require.NoError(t, err)
	m := &Mirror{}
	var st SyncStats
	m.writeRuns(b, "runs", []int{1, 2, 3, 7, 9, 10}, 4, &st, func(i int, dst []byte) {
		binary.LittleEndian.PutUint32(dst, uint32(i))
	})
	require.Equal(t, 3, st.Writes)
	require.Equal(t, 24, st.Bytes)
	data := dev.Buffer("runs").Data()
	require.Equal(t, uint32(7), binary.LittleEndian.Uint32(data[28:]))
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[32:]))
}
