package world

import (
	"clipvox/internal/clipmap"
	"clipvox/internal/voxel"
)

// DensitySampler is 3D terrain from a density field instead of a heightmap,
// which allows overhangs, floating formations and underground voids.
type DensitySampler struct {
	noise            fractal
	scale            float64 // noise frequency
	baseHeight       int64   // target surface level
	gradientStrength float64 // altitude density gradient
}

// NewDensitySampler creates a density sampler with default settings.
func NewDensitySampler(seed int64) *DensitySampler {
	return &DensitySampler{
		noise:            fractal{seed: seed, octaves: 4, persistence: 0.5, lacunarity: 2},
		scale:            1.0 / 64.0,
		gradientStrength: 32.0,
	}
}

// NewDensityGenerator returns the density terrain as a TerrainGenerator.
func NewDensityGenerator(seed int64) *BrickGenerator {
	return NewBrickGenerator(NewDensitySampler(seed))
}

// density is positive inside terrain.
func (g *DensitySampler) density(x, y, z int64) float64 {
	n := g.noise.at3(float64(x)*g.scale, float64(y)*g.scale, float64(z)*g.scale)*2 - 1

	// higher altitude = more negative
	return n + (float64(g.baseHeight)-float64(y))/g.gradientStrength
}

// Sample implements Sampler. The top voxel of a solid column is grass.
func (g *DensitySampler) Sample(x, y, z int64) voxel.Material {
	if g.density(x, y, z) <= 0 {
		return voxel.Air
	}
	if g.density(x, y+1, z) <= 0 {
		return voxel.Grass
	}
	return voxel.Stone
}

// Uniform implements BoundedSampler. With noise in [-1,1] the field is
// always empty from baseHeight+gradientStrength up and always solid below
// baseHeight-gradientStrength.
func (g *DensitySampler) Uniform(origin clipmap.WorldCoord, extent int64) (voxel.Material, bool) {
	g2 := int64(g.gradientStrength)
	switch {
	case origin.Y >= g.baseHeight+g2:
		return voxel.Air, true
	case origin.Y+extent < g.baseHeight-g2:
		return voxel.Stone, true
	default:
		return voxel.Air, false
	}
}
