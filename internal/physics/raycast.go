package physics

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"clipvox/internal/clipmap"
	"clipvox/internal/profiling"
	"clipvox/internal/traversal"
	"clipvox/internal/voxel"
)

const (
	MinReachDistance = 0.1
	MaxReachDistance = 256.0
)

// RaycastResult stores the result of a raycast operation
type RaycastResult struct {
	HitPosition      clipmap.WorldCoord
	AdjacentPosition clipmap.WorldCoord
	Normal           [3]int
	Material         voxel.Material
	LOD              int
	VoxelSize        int64
	Distance         float32
	Hit              bool
}

// Raycast finds the first opaque voxel from start along direction between
// minDist and maxDist. Positions are voxel corners of the level that was
// hit; the finest ready level wins wherever it is resident.
func Raycast(start mgl32.Vec3, direction mgl32.Vec3, minDist, maxDist float32, view clipmap.View) RaycastResult {
	defer profiling.Track("physics.Raycast")()

	tracer := traversal.NewTracer(view, 0)
	ray := traversal.NewRay(
		mgl64.Vec3{float64(start[0]), float64(start[1]), float64(start[2])},
		mgl64.Vec3{float64(direction[0]), float64(direction[1]), float64(direction[2])},
	)
	h := tracer.Trace(ray, float64(minDist), float64(maxDist), 0)
	if !h.Hit {
		return RaycastResult{Hit: false}
	}
	return RaycastResult{
		HitPosition:      h.Voxel,
		AdjacentPosition: h.Adjacent(),
		Normal:           [3]int{int(h.Normal[0]), int(h.Normal[1]), int(h.Normal[2])},
		Material:         h.Material,
		LOD:              h.LOD,
		VoxelSize:        h.VoxelSize,
		Distance:         float32(h.T),
		Hit:              true,
	}
}
