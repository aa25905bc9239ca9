package brick

import (
	"clipvox/internal/voxel"
)

// Occupancy is the three level solid summary of a brick.
//
// L0 has one bit per 2x2x2 voxel cell (4x4x4 cells, bit x+4y+16z).
// L1 has one bit per 2x2x2 group of L0 cells (bit x+2y+4z).
// L2 is 1 when any voxel is solid.
type Occupancy struct {
	L0 uint64
	L1 uint8
	L2 uint8
}

// Empty reports whether the brick holds no solid voxel.
func (o Occupancy) Empty() bool {
	return o.L2 == 0
}

// CellIndex returns the L0 bit of the 2x2x2 cell containing local voxel (x,y,z).
func CellIndex(x, y, z int) int {
	return x>>1 + (y>>1)*4 + (z>>1)*16
}

// OctantIndex returns the L1 bit of the 4x4x4 octant containing local voxel (x,y,z).
func OctantIndex(x, y, z int) int {
	return x>>2 + (y>>2)*2 + (z>>2)*4
}

// CellSolid reports whether the L0 cell holding local voxel (x,y,z) contains
// anything, checking the coarser L1 octant first.
func (o Occupancy) CellSolid(x, y, z int) bool {
	if o.L1&(1<<uint(OctantIndex(x, y, z))) == 0 {
		return false
	}
	return o.L0&(1<<uint(CellIndex(x, y, z))) != 0
}

// ComputeOccupancy builds the summary from a dense volume.
func ComputeOccupancy(v *Voxels) Occupancy {
	var occ Occupancy
	for i, m := range v {
		if !m.IsSolid() {
			continue
		}
		x, y, z := Coords(i)
		occ.L0 |= 1 << uint(CellIndex(x, y, z))
	}
	for cz := 0; cz < 4; cz++ {
		for cy := 0; cy < 4; cy++ {
			for cx := 0; cx < 4; cx++ {
				if occ.L0&(1<<uint(cx+cy*4+cz*16)) != 0 {
					occ.L1 |= 1 << uint(cx>>1+(cy>>1)*2+(cz>>1)*4)
				}
			}
		}
	}
	if occ.L1 != 0 {
		occ.L2 = 1
	}
	return occ
}

// Header flag bits.
const (
	FlagAnyTransparent uint16 = 1 << 0
	FlagEmissive       uint16 = 1 << 1
)

// Summarize returns the header flags and the packed 0xAARRGGBB mean colour of
// the solid voxels of v.
func Summarize(v *Voxels) (flags uint16, avgColor uint32) {
	var r, g, b float32
	solid := 0
	for _, m := range v {
		if !m.IsSolid() {
			continue
		}
		if m.IsTransparent() {
			flags |= FlagAnyTransparent
		}
		if m.IsEmissive() {
			flags |= FlagEmissive
		}
		c := m.Color()
		r += c.X()
		g += c.Y()
		b += c.Z()
		solid++
	}
	if solid == 0 {
		return flags, 0
	}
	n := float32(solid)
	return flags, packColor(r/n, g/n, b/n)
}

func packColor(r, g, b float32) uint32 {
	return 0xFF000000 | uint32(unitByte(r))<<16 | uint32(unitByte(g))<<8 | uint32(unitByte(b))
}

func unitByte(f float32) uint8 {
	if f <= 0 {
		return 0
	}
	if f >= 1 {
		return 255
	}
	return uint8(f*255 + 0.5)
}

// materialAt is a small helper shared by downsampling.
func materialAt(v *Voxels, x, y, z int) voxel.Material {
	return v[Index(x, y, z)]
}
