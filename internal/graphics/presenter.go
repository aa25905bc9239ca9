package graphics

import (
	"image"

	"github.com/go-gl/gl/v4.1-core/gl"

	"clipvox/internal/profiling"
)

// Presenter draws a traced frame over the whole viewport.
type Presenter struct {
	shader  *Shader
	vao     uint32
	texture uint32
	texW    int
	texH    int

	Crosshair bool
	Exposure  float32
}

// NewPresenter compiles the blit program. Call it after gl.Init.
func NewPresenter() (*Presenter, error) {
	shader, err := LoadShader("present")
	if err != nil {
		return nil, err
	}
	p := &Presenter{shader: shader, Crosshair: true, Exposure: 1}

	// attribute-less draw still needs a bound VAO in core profile
	gl.GenVertexArrays(1, &p.vao)

	gl.GenTextures(1, &p.texture)
	gl.BindTexture(gl.TEXTURE_2D, p.texture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return p, nil
}

// Draw uploads img and stretches it over a viewport of width x height.
func (p *Presenter) Draw(img *image.RGBA, width, height int) {
	defer profiling.Track("graphics.Present")()

	size := img.Rect.Size()
	gl.BindTexture(gl.TEXTURE_2D, p.texture)
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(img.Stride/4))
	if size.X != p.texW || size.Y != p.texH {
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(size.X), int32(size.Y), 0,
			gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
		p.texW, p.texH = size.X, size.Y
	} else {
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(size.X), int32(size.Y),
			gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	}
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)

	gl.Viewport(0, 0, int32(width), int32(height))
	gl.Disable(gl.DEPTH_TEST)
	p.shader.Use()
	gl.ActiveTexture(gl.TEXTURE0)
	p.shader.SetInt("frame", 0)
	p.shader.SetVector2("viewport", float32(width), float32(height))
	p.shader.SetBool("crosshair", p.Crosshair)
	p.shader.SetFloat("exposure", p.Exposure)

	gl.BindVertexArray(p.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

// Dispose cleans up OpenGL resources
func (p *Presenter) Dispose() {
	if p.vao != 0 {
		gl.DeleteVertexArrays(1, &p.vao)
	}
	if p.texture != 0 {
		gl.DeleteTextures(1, &p.texture)
	}
	p.shader.Delete()
}
