package gpu

import (
	"errors"
	"fmt"

	"clipvox/internal/brick"
	"clipvox/internal/clipmap"
)

// Byte strides shared with the shaders.
const (
	HeaderStride        = 32
	Palette16Stride     = 288
	Palette32Stride     = 384
	Raw16Stride         = 1024
	PageBrickStride     = 256
	PageOccupancyStride = 8
	PageTagStride       = 16
	DescriptorSize      = 576
)

// ErrLayoutMismatch means the CPU structures no longer match the layout the
// GPU side was built against.
var ErrLayoutMismatch = errors.New("gpu: layout mismatch")

type layoutCheck struct {
	name      string
	got, want int
}

// ValidateLayout checks every stride and offset the mirror relies on.
// Call it once at startup; a failure is a build error, not a runtime one.
func ValidateLayout() error {
	checks := []layoutCheck{
		{"brick header", brick.HeaderSize, HeaderStride},
		{"palette16 entry", brick.Palette16.Stride(), Palette16Stride},
		{"palette16 parts", 16*2 + brick.Volume/2, Palette16Stride},
		{"palette32 entry", brick.Palette32.Stride(), Palette32Stride},
		{"palette32 parts", 32*2 + brick.Volume*5/8, Palette32Stride},
		{"raw16 entry", brick.Raw16.Stride(), Raw16Stride},
		{"raw16 parts", brick.Volume * 2, Raw16Stride},
		{"page bricks", clipmap.BricksPerPage * 4, PageBrickStride},
		{"page occupancy", clipmap.BricksPerPage / 8, PageOccupancyStride},
		{"descriptor", descriptorEnd, DescriptorSize},
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("%w: %s is %d bytes, want %d", ErrLayoutMismatch, c.name, c.got, c.want)
		}
	}

	var h brick.Header
	buf := make([]byte, HeaderStride)
	h.DataIndex = 0x01020304
	h.MarshalTo(buf)
	if buf[4] != 0x04 || buf[7] != 0x01 {
		return fmt.Errorf("%w: header data_index not at offset 4 little endian", ErrLayoutMismatch)
	}

	var d Descriptor
	if n := len(d.Marshal()); n != DescriptorSize {
		return fmt.Errorf("%w: descriptor marshals to %d bytes", ErrLayoutMismatch, n)
	}
	return nil
}
