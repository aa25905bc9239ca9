package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clipvox/internal/world"
)

func TestRenderSettingsClamp(t *testing.T) {
	defer SetRenderScale(GetRenderScale())
	defer SetFPSLimit(GetFPSLimit())

	SetRenderScale(4)
	require.Equal(t, float32(1), GetRenderScale())
	SetRenderScale(0)
	require.Equal(t, float32(0.125), GetRenderScale())

	SetFPSLimit(10)
	require.Equal(t, 30, GetFPSLimit())
	SetFPSLimit(-5)
	require.Equal(t, 0, GetFPSLimit())
	SetFPSLimit(5000)
	require.Equal(t, 1000, GetFPSLimit())
}

func TestDefaultIsValid(t *testing.T) {
	f := Default()
	require.NoError(t, f.Validate())
	require.Equal(t, Default(), f)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clipvox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
lod_count: 3
visible_page_grid: 8
generate_timeout: 500ms
blend_band_pages: 7
pool_ceiling:
  raw16: 2048
terrain:
  kind: flat
  flat_height: 12
render:
  width: 320
  height: 200
  temporal_alpha: 0.5
persistence:
  journal_path: edits.db
`)
	f, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, f.LODCount)
	require.Equal(t, 8, f.VisiblePageGrid)
	require.Equal(t, 500*time.Millisecond, f.GenerateTimeout)
	require.Equal(t, 2.0, f.BlendBandPages)
	require.Equal(t, 2048, f.PoolCeiling.Raw16)
	require.Equal(t, "edits.db", f.Persistence.JournalPath)
	require.Equal(t, float32(0.5), f.Render.TemporalAlpha)
	// untouched keys keep their defaults
	require.Equal(t, Default().ApplyBudget, f.ApplyBudget)
	require.Equal(t, Default().Render.FOV, f.Render.FOV)

	o := f.Options()
	require.Equal(t, 3, o.LODCount)
	require.Equal(t, 2048, o.Ceilings.Raw16)
	require.Equal(t, 500*time.Millisecond, o.GenerateTimeout)

	gen, err := f.Terrain.Generator()
	require.NoError(t, err)
	require.IsType(t, &world.BrickGenerator{}, gen)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"lod count", "lod_count: 9\n"},
		{"grid", "visible_page_grid: 2\n"},
		{"budget", "apply_budget: 0\n"},
		{"terrain", "terrain:\n  kind: caves\n"},
		{"render", "render:\n  width: 0\n"},
		{"ceiling", "pool_ceiling:\n  palette16: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Load(writeConfig(t, "lod_count: [\n"))
	require.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
