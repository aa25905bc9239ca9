package gpu

import (
	"fmt"
	"sync"
)

// Buffer is a device allocation written in place.
type Buffer interface {
	// Address is the device address the shaders use for this buffer.
	Address() uint64
	Size() int
	// Write copies data to offset. The range must lie inside Size.
	Write(offset int, data []byte)
	// Resize grows the buffer, keeping its contents. The address may change.
	Resize(size int) error
	Release()
}

// Device creates buffers.
type Device interface {
	CreateBuffer(name string, size int) (Buffer, error)
}

// HostDevice keeps buffers in process memory. It backs the headless
// renderer and records every write for inspection.
type HostDevice struct {
	mu      sync.Mutex
	next    uint64
	buffers map[string]*HostBuffer
}

// NewHostDevice returns an empty host device.
func NewHostDevice() *HostDevice {
	return &HostDevice{next: 1 << 20, buffers: make(map[string]*HostBuffer)}
}

// CreateBuffer implements Device.
func (d *HostDevice) CreateBuffer(name string, size int) (Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("gpu: buffer %q: invalid size %d", name, size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b := &HostBuffer{dev: d, name: name, data: make([]byte, size), addr: d.alloc(size)}
	d.buffers[name] = b
	return b, nil
}

// Buffer returns the buffer created under name.
func (d *HostDevice) Buffer(name string) *HostBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffers[name]
}

// alloc hands out 256 byte aligned addresses. Callers hold mu.
func (d *HostDevice) alloc(size int) uint64 {
	addr := d.next
	d.next += (uint64(size) + 255) &^ 255
	return addr
}

// HostBuffer is a Buffer in process memory.
type HostBuffer struct {
	dev  *HostDevice
	name string
	addr uint64
	data []byte

	// WriteCount and WrittenBytes accumulate over the buffer's life.
	WriteCount   int
	WrittenBytes int
}

func (b *HostBuffer) Address() uint64 { return b.addr }
func (b *HostBuffer) Size() int       { return len(b.data) }
func (b *HostBuffer) Data() []byte    { return b.data }

func (b *HostBuffer) Write(offset int, data []byte) {
	copy(b.data[offset:offset+len(data)], data)
	b.WriteCount++
	b.WrittenBytes += len(data)
}

func (b *HostBuffer) Resize(size int) error {
	if size <= len(b.data) {
		return nil
	}
	grown := make([]byte, size)
	copy(grown, b.data)
	b.data = grown
	b.dev.mu.Lock()
	b.addr = b.dev.alloc(size)
	b.dev.mu.Unlock()
	return nil
}

func (b *HostBuffer) Release() {
	b.dev.mu.Lock()
	delete(b.dev.buffers, b.name)
	b.dev.mu.Unlock()
	b.data = nil
}
