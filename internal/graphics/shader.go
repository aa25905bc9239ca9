package graphics

import (
	"embed"
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
)

//go:embed shaders
var shaderFS embed.FS

// Shader is a linked program with a cache of its uniform locations.
type Shader struct {
	ID       uint32
	name     string
	uniforms map[string]int32
}

// NewShader compiles and links a program from sources. name only labels errors.
func NewShader(name, vertexSource, fragmentSource string) (*Shader, error) {
	vs, err := compileStage(vertexSource, gl.VERTEX_SHADER)
	if err != nil {
		return nil, fmt.Errorf("shader %s: vertex: %w", name, err)
	}
	defer gl.DeleteShader(vs)
	fs, err := compileStage(fragmentSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return nil, fmt.Errorf("shader %s: fragment: %w", name, err)
	}
	defer gl.DeleteShader(fs)

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)
	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		msg := infoLog(program, gl.GetProgramiv, gl.GetProgramInfoLog)
		gl.DeleteProgram(program)
		return nil, fmt.Errorf("shader %s: link: %s", name, msg)
	}
	return &Shader{ID: program, name: name, uniforms: make(map[string]int32)}, nil
}

// LoadShader compiles shaders/<name>.vert and shaders/<name>.frag from the
// embedded directory.
func LoadShader(name string) (*Shader, error) {
	vert, err := shaderFS.ReadFile("shaders/" + name + ".vert")
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", name, err)
	}
	frag, err := shaderFS.ReadFile("shaders/" + name + ".frag")
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", name, err)
	}
	return NewShader(name, string(vert), string(frag))
}

func (s *Shader) Delete() {
	if s.ID != 0 {
		gl.DeleteProgram(s.ID)
		s.ID = 0
	}
}

func (s *Shader) Use() { gl.UseProgram(s.ID) }

// location looks a uniform up once. Unknown names resolve to -1, which GL
// ignores on upload.
func (s *Shader) location(name string) int32 {
	if loc, ok := s.uniforms[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(s.ID, gl.Str(name+"\x00"))
	s.uniforms[name] = loc
	return loc
}

func (s *Shader) SetBool(name string, value bool) {
	var v int32
	if value {
		v = 1
	}
	gl.Uniform1i(s.location(name), v)
}

func (s *Shader) SetInt(name string, value int32) { gl.Uniform1i(s.location(name), value) }

func (s *Shader) SetFloat(name string, value float32) { gl.Uniform1f(s.location(name), value) }

func (s *Shader) SetVector2(name string, x, y float32) { gl.Uniform2f(s.location(name), x, y) }

func compileStage(source string, stage uint32) (uint32, error) {
	shader := gl.CreateShader(stage)
	src, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, src, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		msg := infoLog(shader, gl.GetShaderiv, gl.GetShaderInfoLog)
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile: %s", msg)
	}
	return shader, nil
}

func infoLog(obj uint32, param func(uint32, uint32, *int32), read func(uint32, int32, *int32, *uint8)) string {
	var n int32
	param(obj, gl.INFO_LOG_LENGTH, &n)
	buf := strings.Repeat("\x00", int(n+1))
	read(obj, n, nil, gl.Str(buf))
	return strings.TrimRight(buf, "\x00\n")
}
