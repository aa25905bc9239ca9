package world

import (
	"math"

	"clipvox/internal/clipmap"
	"clipvox/internal/voxel"
)

// HeightmapSampler is 2D octave noise terrain: grass over a few layers of
// dirt over stone, with water filling columns below sea level.
type HeightmapSampler struct {
	noise      fractal
	scale      float64
	baseHeight int64
	amp        float64
	seaLevel   int64
	snowLine   int64
	dirtDepth  int64
}

// NewHeightmapSampler creates a sampler with default shape settings.
func NewHeightmapSampler(seed int64) *HeightmapSampler {
	return &HeightmapSampler{
		noise:      fractal{seed: seed, octaves: 5, persistence: 0.5, lacunarity: 2},
		scale:      1.0 / 256.0,
		baseHeight: -16,
		amp:        96,
		seaLevel:   8,
		snowLine:   64,
		dirtDepth:  4,
	}
}

// NewHeightmapGenerator returns the heightmap terrain as a TerrainGenerator.
func NewHeightmapGenerator(seed int64) *BrickGenerator {
	return NewBrickGenerator(NewHeightmapSampler(seed))
}

// HeightAt computes the surface height at world X,Z. The surface voxel is
// the one at HeightAt; everything above it is air or water.
func (g *HeightmapSampler) HeightAt(worldX, worldZ int64) int64 {
	n := g.noise.at2(float64(worldX)*g.scale, float64(worldZ)*g.scale)
	return int64(math.Floor(float64(g.baseHeight) + n*g.amp))
}

// Sample implements Sampler.
func (g *HeightmapSampler) Sample(x, y, z int64) voxel.Material {
	h := g.HeightAt(x, z)
	switch {
	case y > h:
		if y <= g.seaLevel {
			return voxel.Water
		}
		return voxel.Air
	case y == h:
		if h >= g.snowLine {
			return voxel.Snow
		}
		if h <= g.seaLevel {
			return voxel.Sand
		}
		return voxel.Grass
	case y > h-g.dirtDepth:
		return voxel.Dirt
	default:
		return voxel.Stone
	}
}

// Uniform implements BoundedSampler using the noise range [0,1].
func (g *HeightmapSampler) Uniform(origin clipmap.WorldCoord, extent int64) (voxel.Material, bool) {
	lowest := g.baseHeight
	highest := g.baseHeight + int64(math.Ceil(g.amp))
	switch {
	case origin.Y > highest && origin.Y > g.seaLevel:
		return voxel.Air, true
	case origin.Y+extent <= lowest-g.dirtDepth:
		return voxel.Stone, true
	default:
		return voxel.Air, false
	}
}
