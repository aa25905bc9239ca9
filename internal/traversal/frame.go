package traversal

import (
	"image"
	"math"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"clipvox/internal/clipmap"
	"clipvox/internal/profiling"
)

// Frame is one traced image plus the per-pixel world position of each hit,
// which the temporal pass reprojects.
type Frame struct {
	Width, Height int
	Image         *image.RGBA
	Color         []mgl32.Vec3
	// Hits holds the hit position with w=1, or w=0 for sky pixels.
	Hits     []mgl32.Vec4
	ViewProj mgl64.Mat4
	Stats    FrameStats
}

// FrameStats summarizes the rays of a frame.
type FrameStats struct {
	Rays    int
	Hits    int
	Steps   int
	LODHits [clipmap.MaxLODCount]int
}

func (s *FrameStats) add(o FrameStats) {
	s.Rays += o.Rays
	s.Hits += o.Hits
	s.Steps += o.Steps
	for i := range s.LODHits {
		s.LODHits[i] += o.LODHits[i]
	}
}

// NewFrame allocates a width x height frame.
func NewFrame(width, height int) *Frame {
	n := width * height
	return &Frame{
		Width:  width,
		Height: height,
		Image:  image.NewRGBA(image.Rect(0, 0, width, height)),
		Color:  make([]mgl32.Vec3, n),
		Hits:   make([]mgl32.Vec4, n),
	}
}

var lodTints = [clipmap.MaxLODCount]mgl32.Vec3{
	{1, 0.45, 0.45},
	{0.45, 1, 0.45},
	{0.45, 0.45, 1},
	{1, 1, 0.45},
	{1, 0.45, 1},
	{0.45, 1, 1},
}

// Renderer traces frames on the CPU, one row per task.
type Renderer struct {
	Workers        int
	MaxDistance    float64
	BlendBandPages float64
	Blend          bool
	ShowLOD        bool
	Sun            mgl64.Vec3
}

// NewRenderer returns a renderer using every CPU.
func NewRenderer() *Renderer {
	return &Renderer{
		Workers:        runtime.NumCPU(),
		MaxDistance:    4096,
		BlendBandPages: 0.5,
		Blend:          true,
		Sun:            mgl64.Vec3{0.4, 0.8, 0.3}.Normalize(),
	}
}

// Render traces view from cam into f.
func (r *Renderer) Render(view clipmap.View, cam *Camera, f *Frame) {
	defer profiling.Track("traversal.Render")()

	band := 0.0
	if r.Blend {
		band = r.BlendBandPages
	}
	tracer := NewTracer(view, band)
	f.ViewProj = cam.ViewProjection(float64(f.Width) / float64(f.Height))

	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	rows := make(chan int, f.Height)
	for y := 0; y < f.Height; y++ {
		rows <- y
	}
	close(rows)

	stats := make([]FrameStats, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(st *FrameStats) {
			defer wg.Done()
			for y := range rows {
				r.renderRow(tracer, cam, f, y, view.Frame, st)
			}
		}(&stats[w])
	}
	wg.Wait()

	f.Stats = FrameStats{}
	for _, st := range stats {
		f.Stats.add(st)
	}
}

func (r *Renderer) renderRow(t *Tracer, cam *Camera, f *Frame, y int, frame uint64, st *FrameStats) {
	for x := 0; x < f.Width; x++ {
		ray := cam.Ray(float64(x)+0.5, float64(y)+0.5, f.Width, f.Height)
		jitter := 0.0
		if r.Blend {
			jitter = pixelNoise(x, y, frame)
		}
		h := t.Trace(ray, 0, r.MaxDistance, jitter)

		i := y*f.Width + x
		st.Rays++
		st.Steps += h.Steps
		if h.Hit {
			st.Hits++
			st.LODHits[h.LOD]++
			f.Hits[i] = mgl32.Vec4{float32(h.Position[0]), float32(h.Position[1]), float32(h.Position[2]), 1}
		} else {
			f.Hits[i] = mgl32.Vec4{}
		}
		c := r.shade(&h, ray.Dir)
		f.Color[i] = c
		setPixel(f.Image, x, y, c)
	}
}

func (r *Renderer) shade(h *Hit, dir mgl64.Vec3) mgl32.Vec3 {
	sky := SkyColor(dir)
	if !h.Hit {
		return mulVec(sky, h.Tint)
	}
	base := h.Material.Color()
	if r.ShowLOD {
		base = mulVec(base, lodTints[h.LOD])
	}
	light := float32(1)
	if !h.Material.IsEmissive() {
		diffuse := math.Max(0, h.Normal.Dot(r.Sun))
		light = float32(0.35 + 0.65*diffuse)
	}
	c := mulVec(base.Mul(light), h.Tint)

	fog := clamp01(float32(h.T / r.MaxDistance))
	return lerp3(c, sky, fog*fog)
}

func mulVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func setPixel(img *image.RGBA, x, y int, c mgl32.Vec3) {
	o := img.PixOffset(x, y)
	img.Pix[o] = toByte(c[0])
	img.Pix[o+1] = toByte(c[1])
	img.Pix[o+2] = toByte(c[2])
	img.Pix[o+3] = 255
}

func toByte(v float32) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}

// pixelNoise is a stable per pixel, per frame value in [0,1).
func pixelNoise(x, y int, frame uint64) float64 {
	h := uint64(x)*0x9E3779B97F4A7C15 ^ uint64(y)*0xC2B2AE3D27D4EB4F ^ frame*0x165667B19E3779F9
	h ^= h >> 33
	h *= 0xFF51AFD7ED558CCD
	h ^= h >> 33
	return float64(h>>11) / float64(uint64(1)<<53)
}
