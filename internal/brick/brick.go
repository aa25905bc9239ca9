package brick

import (
	"clipvox/internal/voxel"
)

const (
	// Size is the brick edge length in voxels.
	Size = 8
	// Volume is the number of voxels in one brick.
	Volume = Size * Size * Size

	// Payload strides in bytes. These are shared with the GPU mirror and must
	// not change without updating gpu.ValidateLayout.
	Palette16Stride = 288
	Palette32Stride = 384
	Raw16Stride     = 1024
)

// ID is a handle into the header table. Zero is the all-air sentinel and is
// never handed out by a Store.
type ID uint32

// Empty is the sentinel brick.
const Empty ID = 0

// Voxels is a dense brick volume indexed by Index.
type Voxels [Volume]voxel.Material

// Encoding selects the payload pool of a brick.
type Encoding uint8

const (
	Palette16 Encoding = iota
	Palette32
	Raw16
)

// Stride returns the payload size of e in bytes.
func (e Encoding) Stride() int {
	switch e {
	case Palette16:
		return Palette16Stride
	case Palette32:
		return Palette32Stride
	default:
		return Raw16Stride
	}
}

func (e Encoding) String() string {
	switch e {
	case Palette16:
		return "palette16"
	case Palette32:
		return "palette32"
	case Raw16:
		return "raw16"
	default:
		return "invalid"
	}
}

// Index converts local brick coordinates to a flat voxel index.
func Index(x, y, z int) int {
	return x + y*Size + z*Size*Size
}

// Coords is the inverse of Index.
func Coords(i int) (x, y, z int) {
	return i % Size, (i / Size) % Size, i / (Size * Size)
}

// IsAllAir reports whether v contains no solid voxel.
func (v *Voxels) IsAllAir() bool {
	for _, m := range v {
		if m.IsSolid() {
			return false
		}
	}
	return true
}

// Fill sets every voxel of v to m.
func (v *Voxels) Fill(m voxel.Material) {
	for i := range v {
		v[i] = m
	}
}
