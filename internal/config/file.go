package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"clipvox/internal/brick"
	"clipvox/internal/clipmap"
	"clipvox/internal/voxel"
	"clipvox/internal/world"
)

// ErrInvalid wraps every rejected configuration value.
var ErrInvalid = errors.New("config: invalid")

// File is the on-disk configuration of the binaries.
type File struct {
	LODCount          int           `yaml:"lod_count"`
	VisiblePageGrid   int           `yaml:"visible_page_grid"`
	ApplyBudget       int           `yaml:"apply_budget"`
	MaxInflightBricks int           `yaml:"max_inflight_bricks"`
	Workers           int           `yaml:"workers"`
	RetentionFrames   uint64        `yaml:"retention_frames"`
	GenerateTimeout   time.Duration `yaml:"generate_timeout"`
	BlendBandPages    float64       `yaml:"blend_band_pages"`

	PoolCeiling PoolCeiling `yaml:"pool_ceiling"`
	Terrain     Terrain     `yaml:"terrain"`
	Render      Render      `yaml:"render"`
	Persistence Persistence `yaml:"persistence"`

	MetricsAddr  string `yaml:"metrics_addr"`
	ObserverAddr string `yaml:"observer_addr"`
}

type PoolCeiling struct {
	Palette16 int `yaml:"palette16"`
	Palette32 int `yaml:"palette32"`
	Raw16     int `yaml:"raw16"`
}

// Terrain selects the generation callback. Kind is flat, heightmap or density.
type Terrain struct {
	Kind       string `yaml:"kind"`
	Seed       int64  `yaml:"seed"`
	FlatHeight int64  `yaml:"flat_height"`
}

type Render struct {
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	FOV           float64 `yaml:"fov"`
	MaxDistance   float64 `yaml:"max_distance"`
	TemporalAlpha float32 `yaml:"temporal_alpha"`
}

// Persistence paths; empty disables the store.
type Persistence struct {
	JournalPath  string `yaml:"journal_path"`
	SnapshotPath string `yaml:"snapshot_path"`
}

// Default returns the reference configuration.
func Default() File {
	o := clipmap.DefaultOptions()
	return File{
		LODCount:          o.LODCount,
		VisiblePageGrid:   o.VisiblePageGrid,
		ApplyBudget:       4096,
		MaxInflightBricks: o.MaxInflight,
		Workers:           o.Workers,
		RetentionFrames:   o.RetentionFrames,
		GenerateTimeout:   o.GenerateTimeout,
		BlendBandPages:    0.5,
		Terrain:           Terrain{Kind: "heightmap", Seed: 1337},
		Render: Render{
			Width:         1280,
			Height:        720,
			FOV:           70,
			MaxDistance:   4096,
			TemporalAlpha: 0.2,
		},
		MetricsAddr: ":9102",
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (File, error) {
	f := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("%s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return f, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate clamps soft limits in place and rejects values nothing can run with.
func (f *File) Validate() error {
	if f.LODCount < 1 || f.LODCount > clipmap.MaxLODCount {
		return fmt.Errorf("%w: lod_count %d not in [1,%d]", ErrInvalid, f.LODCount, clipmap.MaxLODCount)
	}
	if f.VisiblePageGrid < clipmap.MinVisiblePageGrid || f.VisiblePageGrid > clipmap.PageGrid {
		return fmt.Errorf("%w: visible_page_grid %d not in [%d,%d]", ErrInvalid,
			f.VisiblePageGrid, clipmap.MinVisiblePageGrid, clipmap.PageGrid)
	}
	if f.ApplyBudget <= 0 {
		return fmt.Errorf("%w: apply_budget must be positive", ErrInvalid)
	}
	if f.MaxInflightBricks < clipmap.BricksPerPage {
		f.MaxInflightBricks = clipmap.BricksPerPage
	}
	if f.Workers < 0 {
		f.Workers = 0
	}
	if f.GenerateTimeout < 0 {
		return fmt.Errorf("%w: generate_timeout %s", ErrInvalid, f.GenerateTimeout)
	}
	if f.BlendBandPages < 0 {
		f.BlendBandPages = 0
	}
	if f.BlendBandPages > 2 {
		f.BlendBandPages = 2
	}
	if f.PoolCeiling.Palette16 < 0 || f.PoolCeiling.Palette32 < 0 || f.PoolCeiling.Raw16 < 0 {
		return fmt.Errorf("%w: negative pool_ceiling", ErrInvalid)
	}
	switch f.Terrain.Kind {
	case "flat", "heightmap", "density":
	default:
		return fmt.Errorf("%w: terrain kind %q", ErrInvalid, f.Terrain.Kind)
	}
	if f.Render.Width <= 0 || f.Render.Height <= 0 {
		return fmt.Errorf("%w: render size %dx%d", ErrInvalid, f.Render.Width, f.Render.Height)
	}
	if f.Render.FOV < 10 {
		f.Render.FOV = 10
	}
	if f.Render.FOV > 150 {
		f.Render.FOV = 150
	}
	if f.Render.MaxDistance <= 0 {
		f.Render.MaxDistance = Default().Render.MaxDistance
	}
	if f.Render.TemporalAlpha <= 0 || f.Render.TemporalAlpha > 1 {
		f.Render.TemporalAlpha = 1
	}
	return nil
}

// Options converts the file into controller options. Journal and Logger are
// left for the caller.
func (f File) Options() clipmap.Options {
	o := clipmap.DefaultOptions()
	o.LODCount = f.LODCount
	o.VisiblePageGrid = f.VisiblePageGrid
	o.Workers = f.Workers
	o.MaxInflight = f.MaxInflightBricks
	o.RetentionFrames = f.RetentionFrames
	o.GenerateTimeout = f.GenerateTimeout
	o.Ceilings = brick.Ceilings{
		Palette16: f.PoolCeiling.Palette16,
		Palette32: f.PoolCeiling.Palette32,
		Raw16:     f.PoolCeiling.Raw16,
	}
	return o
}

// Generator builds the terrain callback Terrain names.
func (t Terrain) Generator() (clipmap.TerrainGenerator, error) {
	switch t.Kind {
	case "flat":
		return world.NewFlatGenerator(t.FlatHeight, voxel.Stone), nil
	case "heightmap":
		return world.NewHeightmapGenerator(t.Seed), nil
	case "density":
		return world.NewDensityGenerator(t.Seed), nil
	}
	return nil, fmt.Errorf("%w: terrain kind %q", ErrInvalid, t.Kind)
}
