package graphics

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"clipvox/internal/gpu"
)

// Device allocates GL buffer objects for the clipmap mirror. GL 4.1 has no
// device addresses, so a buffer's address is its object name. Every method
// must run on the thread owning the context.
type Device struct{}

func NewDevice() *Device { return &Device{} }

// CreateBuffer implements gpu.Device.
func (d *Device) CreateBuffer(name string, size int) (gpu.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("graphics: buffer %q: invalid size %d", name, size)
	}
	b := &Buffer{name: name}
	b.id = allocBuffer(size)
	if b.id == 0 {
		return nil, fmt.Errorf("graphics: buffer %q: glGenBuffers failed", name)
	}
	b.size = size
	return b, nil
}

// Buffer is a gpu.Buffer backed by a GL buffer object.
type Buffer struct {
	name string
	id   uint32
	size int
}

func allocBuffer(size int) uint32 {
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, id)
	gl.BufferData(gl.COPY_WRITE_BUFFER, size, nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	return id
}

func (b *Buffer) Address() uint64 { return uint64(b.id) }
func (b *Buffer) Size() int       { return b.size }

func (b *Buffer) Write(offset int, data []byte) {
	if len(data) == 0 {
		return
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, b.id)
	gl.BufferSubData(gl.COPY_WRITE_BUFFER, offset, len(data), gl.Ptr(data))
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
}

// Resize allocates a larger object and copies the old contents across.
func (b *Buffer) Resize(size int) error {
	if size <= b.size {
		return nil
	}
	grown := allocBuffer(size)
	if grown == 0 {
		return fmt.Errorf("graphics: resize %q to %d bytes failed", b.name, size)
	}
	gl.BindBuffer(gl.COPY_READ_BUFFER, b.id)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, grown)
	gl.CopyBufferSubData(gl.COPY_READ_BUFFER, gl.COPY_WRITE_BUFFER, 0, 0, b.size)
	gl.BindBuffer(gl.COPY_READ_BUFFER, 0)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	gl.DeleteBuffers(1, &b.id)
	b.id = grown
	b.size = size
	return nil
}

func (b *Buffer) Release() {
	if b.id != 0 {
		gl.DeleteBuffers(1, &b.id)
		b.id = 0
	}
}
