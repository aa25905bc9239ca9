package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"clipvox/internal/clipmap"
)

// Descriptor offsets. Per-LOD arrays are struct-of-arrays, MaxLODCount
// entries each.
const (
	offPageBricks  = 0
	offPageOcc     = offPageBricks + clipmap.MaxLODCount*8
	offPageTags    = offPageOcc + clipmap.MaxLODCount*8
	offHeaders     = offPageTags + clipmap.MaxLODCount*8
	offPools       = offHeaders + 8
	offOrigins     = offPools + 3*8
	offVoxelSizes  = offOrigins + clipmap.MaxLODCount*16
	offBoundsMin   = offVoxelSizes + clipmap.MaxLODCount*16
	offBoundsMax   = offBoundsMin + clipmap.MaxLODCount*16
	offLODCount    = offBoundsMax + clipmap.MaxLODCount*16
	offVisibleGrid = offLODCount + 4
	offFrame       = offVisibleGrid + 4
	offFlags       = offFrame + 4
	descriptorEnd  = offFlags + 4
)

// Descriptor flags.
const (
	FlagBlend uint32 = 1 << iota
	FlagShowLOD
)

// LODDescriptor is the GPU view of one clipmap level.
type LODDescriptor struct {
	PageBricks    uint64
	PageOccupancy uint64
	PageTags      uint64
	// Origin is the window's minimum corner in world voxels, truncated to
	// int32; w is the visible page grid.
	Origin [4]int32
	// VoxelSize holds voxel size, page extent, ready flag and level index.
	VoxelSize [4]uint32
	BoundsMin [4]float32
	BoundsMax [4]float32
}

// Descriptor is read by the render collaborator every frame.
type Descriptor struct {
	LODs        [clipmap.MaxLODCount]LODDescriptor
	Headers     uint64
	Pools       [3]uint64
	LODCount    uint32
	VisibleGrid uint32
	Frame       uint32
	Flags       uint32
}

// Marshal returns the fixed little endian layout.
func (d *Descriptor) Marshal() []byte {
	b := make([]byte, descriptorEnd)
	le := binary.LittleEndian
	for i, l := range d.LODs {
		le.PutUint64(b[offPageBricks+i*8:], l.PageBricks)
		le.PutUint64(b[offPageOcc+i*8:], l.PageOccupancy)
		le.PutUint64(b[offPageTags+i*8:], l.PageTags)
		for c := 0; c < 4; c++ {
			le.PutUint32(b[offOrigins+i*16+c*4:], uint32(l.Origin[c]))
			le.PutUint32(b[offVoxelSizes+i*16+c*4:], l.VoxelSize[c])
			le.PutUint32(b[offBoundsMin+i*16+c*4:], math.Float32bits(l.BoundsMin[c]))
			le.PutUint32(b[offBoundsMax+i*16+c*4:], math.Float32bits(l.BoundsMax[c]))
		}
	}
	le.PutUint64(b[offHeaders:], d.Headers)
	for i, p := range d.Pools {
		le.PutUint64(b[offPools+i*8:], p)
	}
	le.PutUint32(b[offLODCount:], d.LODCount)
	le.PutUint32(b[offVisibleGrid:], d.VisibleGrid)
	le.PutUint32(b[offFrame:], d.Frame)
	le.PutUint32(b[offFlags:], d.Flags)
	return b
}

// UnmarshalDescriptor parses the output of Marshal.
func UnmarshalDescriptor(b []byte) (Descriptor, error) {
	var d Descriptor
	if len(b) != descriptorEnd {
		return d, fmt.Errorf("%w: descriptor is %d bytes", ErrLayoutMismatch, len(b))
	}
	le := binary.LittleEndian
	for i := range d.LODs {
		l := &d.LODs[i]
		l.PageBricks = le.Uint64(b[offPageBricks+i*8:])
		l.PageOccupancy = le.Uint64(b[offPageOcc+i*8:])
		l.PageTags = le.Uint64(b[offPageTags+i*8:])
		for c := 0; c < 4; c++ {
			l.Origin[c] = int32(le.Uint32(b[offOrigins+i*16+c*4:]))
			l.VoxelSize[c] = le.Uint32(b[offVoxelSizes+i*16+c*4:])
			l.BoundsMin[c] = math.Float32frombits(le.Uint32(b[offBoundsMin+i*16+c*4:]))
			l.BoundsMax[c] = math.Float32frombits(le.Uint32(b[offBoundsMax+i*16+c*4:]))
		}
	}
	d.Headers = le.Uint64(b[offHeaders:])
	for i := range d.Pools {
		d.Pools[i] = le.Uint64(b[offPools+i*8:])
	}
	d.LODCount = le.Uint32(b[offLODCount:])
	d.VisibleGrid = le.Uint32(b[offVisibleGrid:])
	d.Frame = le.Uint32(b[offFrame:])
	d.Flags = le.Uint32(b[offFlags:])
	return d, nil
}

// describeLOD fills the window part of a level descriptor from view.
func describeLOD(l *LODDescriptor, v *clipmap.LODView) {
	l.Origin = [4]int32{int32(v.Min.X), int32(v.Min.Y), int32(v.Min.Z), int32(v.Window.Pages)}
	ready := uint32(0)
	if v.Ready {
		ready = 1
	}
	l.VoxelSize = [4]uint32{uint32(v.VoxelSize), uint32(v.PageExtent), ready, uint32(v.Index)}
	l.BoundsMin = [4]float32{float32(v.Min.X), float32(v.Min.Y), float32(v.Min.Z), 0}
	l.BoundsMax = [4]float32{float32(v.Max.X), float32(v.Max.Y), float32(v.Max.Z), 0}
}
