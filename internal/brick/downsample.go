package brick

import (
	"clipvox/internal/voxel"
)

// MinSolidChildren is the number of solid children a coarse voxel needs to be
// solid. Keeping it below a plain majority keeps thin surfaces visible at
// distance.
const MinSolidChildren = 2

// Downsample reduces eight child voxels to one parent voxel. The parent is
// air unless at least MinSolidChildren children are solid; otherwise it takes
// the most common solid material, ties going to the lowest id.
func Downsample(children [8]voxel.Material) voxel.Material {
	var (
		ids    [8]voxel.Material
		counts [8]int
		used   int
		solid  int
	)
	for _, m := range children {
		if !m.IsSolid() {
			continue
		}
		solid++
		found := false
		for i := 0; i < used; i++ {
			if ids[i] == m {
				counts[i]++
				found = true
				break
			}
		}
		if !found {
			ids[used] = m
			counts[used] = 1
			used++
		}
	}
	if solid < MinSolidChildren {
		return voxel.Air
	}

	best := ids[0]
	bestCount := counts[0]
	for i := 1; i < used; i++ {
		if counts[i] > bestCount || (counts[i] == bestCount && ids[i] < best) {
			best = ids[i]
			bestCount = counts[i]
		}
	}
	return best
}

// ChildOffsets lists the 8 child offsets in the order Downsample expects them
// from the sampling code (x fastest).
var ChildOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

// DownsampleOctant reduces the 2x2x2 voxel groups of one source brick into a
// 4x4x4 octant of dst. ox, oy, oz select the octant (each 0 or 1).
func DownsampleOctant(dst *Voxels, src *Voxels, ox, oy, oz int) {
	half := Size / 2
	for z := 0; z < half; z++ {
		for y := 0; y < half; y++ {
			for x := 0; x < half; x++ {
				var children [8]voxel.Material
				for i, off := range ChildOffsets {
					children[i] = materialAt(src, x*2+off[0], y*2+off[1], z*2+off[2])
				}
				dst[Index(ox*half+x, oy*half+y, oz*half+z)] = Downsample(children)
			}
		}
	}
}

// DownsampleVolume2x builds one coarse brick from its 8 finer children,
// indexed like ChildOffsets.
func DownsampleVolume2x(children *[8]Voxels) Voxels {
	var out Voxels
	for i, off := range ChildOffsets {
		DownsampleOctant(&out, &children[i], off[0], off[1], off[2])
	}
	return out
}
