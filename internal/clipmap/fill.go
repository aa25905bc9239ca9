package clipmap

import (
	"context"
	"fmt"

	"clipvox/internal/brick"
	"clipvox/internal/voxel"
)

// TerrainGenerator produces the generated (unedited) content of the world.
// Both methods must be deterministic and safe for concurrent use.
type TerrainGenerator interface {
	// Generate returns the brick whose minimum corner is origin, sampled at
	// voxelSize world units per voxel.
	Generate(ctx context.Context, origin WorldCoord, voxelSize int64) (brick.Voxels, error)
	// VoxelAt returns the single voxel Generate would produce at p for the
	// given voxel size. p is aligned to voxelSize.
	VoxelAt(p WorldCoord, voxelSize int64) voxel.Material
}

// UniformClassifier is an optional TerrainGenerator extension that reports
// bricks made of a single material without sampling them.
type UniformClassifier interface {
	Uniform(origin WorldCoord, extent int64) (voxel.Material, bool)
}

// fill runs the generator for one job. A generator that overruns the timeout
// is abandoned; its goroutine finishes in the background and the result is
// dropped.
func (s *scheduler) fill(job fillJob) fillResult {
	origin := BrickOrigin(job.lod, job.coord)
	if u, ok := s.gen.(UniformClassifier); ok {
		if m, uniform := u.Uniform(origin, BrickExtent(job.lod)); uniform {
			r := fillResult{job: job}
			r.voxels.Fill(m)
			return r
		}
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	type generated struct {
		voxels brick.Voxels
		err    error
	}
	out := make(chan generated, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				out <- generated{err: fmt.Errorf("generator panic: %v", p)}
			}
		}()
		v, err := s.gen.Generate(ctx, origin, VoxelSize(job.lod))
		out <- generated{voxels: v, err: err}
	}()

	select {
	case g := <-out:
		if g.err != nil {
			return fillResult{job: job, err: fmt.Errorf("generate lod %d brick %v: %w", job.lod, job.coord, g.err)}
		}
		return fillResult{job: job, voxels: g.voxels}
	case <-ctx.Done():
		return fillResult{job: job, err: fmt.Errorf("generate lod %d brick %v: %w", job.lod, job.coord, ctx.Err())}
	}
}
