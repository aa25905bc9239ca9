package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// parseFrameIndices reads "0,10,20-25" into a set of frame numbers.
// Malformed parts are skipped.
func parseFrameIndices(s string) map[uint64]bool {
	frames := make(map[uint64]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.ParseUint(strings.TrimSpace(lo), 10, 64)
			end, err2 := strconv.ParseUint(strings.TrimSpace(hi), 10, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			for i := start; i <= end; i++ {
				frames[i] = true
			}
			continue
		}
		if f, err := strconv.ParseUint(part, 10, 64); err == nil {
			frames[f] = true
		}
	}
	return frames
}

// lastFrame returns the largest index in frames, or 0.
func lastFrame(frames map[uint64]bool) uint64 {
	keys := make([]uint64, 0, len(frames))
	for f := range frames {
		keys = append(keys, f)
	}
	if len(keys) == 0 {
		return 0
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys[len(keys)-1]
}

// outputPath expands "{}" or a printf verb in pattern to frame.
func outputPath(pattern string, frame uint64) string {
	switch {
	case strings.Contains(pattern, "{}"):
		return strings.ReplaceAll(pattern, "{}", strconv.FormatUint(frame, 10))
	case strings.Contains(pattern, "%"):
		return fmt.Sprintf(pattern, frame)
	}
	ext := filepath.Ext(pattern)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(pattern, ext), frame, ext)
}

// saveShot writes img as a PNG, scaled to width x height when they differ
// from the traced size.
func saveShot(path string, img *image.RGBA, width, height int) error {
	out := image.Image(img)
	if b := img.Bounds(); width > 0 && height > 0 && (b.Dx() != width || b.Dy() != height) {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		out = dst
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, out); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
