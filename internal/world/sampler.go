package world

import (
	"context"

	"clipvox/internal/brick"
	"clipvox/internal/clipmap"
	"clipvox/internal/voxel"
)

// Sampler is a pure point function from a finest voxel to its material.
type Sampler interface {
	Sample(x, y, z int64) voxel.Material
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(x, y, z int64) voxel.Material

// Sample calls f.
func (f SamplerFunc) Sample(x, y, z int64) voxel.Material { return f(x, y, z) }

// BoundedSampler is implemented by samplers that can tell when a whole box
// holds one material.
type BoundedSampler interface {
	Sampler
	Uniform(origin clipmap.WorldCoord, extent int64) (voxel.Material, bool)
}

// BrickGenerator turns a Sampler into a clipmap.TerrainGenerator. Coarse
// voxels are the downsampled value of their eight half-size children, each
// child taken as a point sample at its minimum corner.
type BrickGenerator struct {
	sampler Sampler
}

// NewBrickGenerator wraps s.
func NewBrickGenerator(s Sampler) *BrickGenerator {
	return &BrickGenerator{sampler: s}
}

// Sampler returns the wrapped point sampler.
func (g *BrickGenerator) Sampler() Sampler { return g.sampler }

// VoxelAt returns the voxel of size voxelSize whose minimum corner is p.
func (g *BrickGenerator) VoxelAt(p clipmap.WorldCoord, voxelSize int64) voxel.Material {
	if voxelSize <= 1 {
		return g.sampler.Sample(p.X, p.Y, p.Z)
	}
	half := voxelSize / 2
	var children [8]voxel.Material
	for i, off := range brick.ChildOffsets {
		children[i] = g.sampler.Sample(
			p.X+int64(off[0])*half,
			p.Y+int64(off[1])*half,
			p.Z+int64(off[2])*half,
		)
	}
	return brick.Downsample(children)
}

// Generate fills the brick at origin. It checks ctx once per z slice.
func (g *BrickGenerator) Generate(ctx context.Context, origin clipmap.WorldCoord, voxelSize int64) (brick.Voxels, error) {
	var v brick.Voxels
	for z := 0; z < brick.Size; z++ {
		if err := ctx.Err(); err != nil {
			return v, err
		}
		for y := 0; y < brick.Size; y++ {
			for x := 0; x < brick.Size; x++ {
				p := clipmap.WorldCoord{
					X: origin.X + int64(x)*voxelSize,
					Y: origin.Y + int64(y)*voxelSize,
					Z: origin.Z + int64(z)*voxelSize,
				}
				v[brick.Index(x, y, z)] = g.VoxelAt(p, voxelSize)
			}
		}
	}
	return v, nil
}

// Uniform forwards to the sampler when it can bound boxes.
func (g *BrickGenerator) Uniform(origin clipmap.WorldCoord, extent int64) (voxel.Material, bool) {
	if b, ok := g.sampler.(BoundedSampler); ok {
		return b.Uniform(origin, extent)
	}
	return voxel.Air, false
}

// FlatSampler is solid below Height and air from Height up.
type FlatSampler struct {
	Height   int64
	Material voxel.Material
}

// NewFlatGenerator returns a generator for a flat ground of m below height.
func NewFlatGenerator(height int64, m voxel.Material) *BrickGenerator {
	return NewBrickGenerator(&FlatSampler{Height: height, Material: m})
}

// Sample implements Sampler.
func (s *FlatSampler) Sample(_, y, _ int64) voxel.Material {
	if y < s.Height {
		return s.Material
	}
	return voxel.Air
}

// Uniform implements BoundedSampler.
func (s *FlatSampler) Uniform(origin clipmap.WorldCoord, extent int64) (voxel.Material, bool) {
	switch {
	case origin.Y >= s.Height:
		return voxel.Air, true
	case origin.Y+extent <= s.Height:
		return s.Material, true
	default:
		return voxel.Air, false
	}
}
