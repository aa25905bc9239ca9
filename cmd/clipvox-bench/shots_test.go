package main

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFrameIndices(t *testing.T) {
	tests := []struct {
		in   string
		want []uint64
	}{
		{"0", []uint64{0}},
		{"0,10,20", []uint64{0, 10, 20}},
		{"3-5", []uint64{3, 4, 5}},
		{" 1 , 4-5 ,x, 9-7,", []uint64{1, 4, 5}},
		{"", nil},
	}
	for _, tt := range tests {
		got := parseFrameIndices(tt.in)
		require.Len(t, got, len(tt.want), tt.in)
		for _, f := range tt.want {
			require.True(t, got[f], "%q should include %d", tt.in, f)
		}
	}
	require.Equal(t, uint64(5), lastFrame(parseFrameIndices("2,5,3")))
	require.Equal(t, uint64(0), lastFrame(nil))
}

func TestOutputPath(t *testing.T) {
	require.Equal(t, "shot_12.png", outputPath("shot_{}.png", 12))
	require.Equal(t, "out/frame_0007.png", outputPath("out/frame_%04d.png", 7))
	require.Equal(t, "capture_3.png", outputPath("capture.png", 3))
}

func TestSaveShotScales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	img.Set(1, 0, color.RGBA{0, 0, 255, 255})

	path := filepath.Join(t.TempDir(), "nested", "shot.png")
	require.NoError(t, saveShot(path, img, 4, 2))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 4, 2), got.Bounds())
	r, _, b, _ := got.At(0, 1).RGBA()
	require.Equal(t, uint32(0xffff), r)
	require.Zero(t, b)
	r, _, b, _ = got.At(3, 0).RGBA()
	require.Zero(t, r)
	require.Equal(t, uint32(0xffff), b)
}
