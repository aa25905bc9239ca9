package brick

import (
	"encoding/binary"
	"sort"

	"clipvox/internal/voxel"
)

const (
	palette16Entries = 16
	palette32Entries = 32

	palette16IndexBase = palette16Entries * 2
	palette32IndexBase = palette32Entries * 2
)

// Encoded is a brick payload ready to be copied into the pool matching Encoding.
type Encoded struct {
	Encoding   Encoding
	PaletteLen uint8
	Data       []byte
}

// Encode picks the smallest encoding able to hold the distinct materials of v
// and packs it. The palette is ordered by frequency, then by material id, so
// equal volumes always produce identical payloads.
func Encode(v *Voxels) Encoded {
	palette := buildPalette(v)

	switch {
	case len(palette) <= palette16Entries:
		return Encoded{
			Encoding:   Palette16,
			PaletteLen: uint8(len(palette)),
			Data:       encodePalette16(v, palette),
		}
	case len(palette) <= palette32Entries:
		return Encoded{
			Encoding:   Palette32,
			PaletteLen: uint8(len(palette)),
			Data:       encodePalette32(v, palette),
		}
	default:
		return Encoded{
			Encoding: Raw16,
			Data:     encodeRaw16(v),
		}
	}
}

// Decode expands a payload back into a dense volume.
func Decode(enc Encoding, paletteLen uint8, data []byte) Voxels {
	var out Voxels
	for i := range out {
		out[i] = DecodeVoxel(enc, paletteLen, data, i)
	}
	return out
}

// DecodeVoxel reads a single voxel without expanding the whole payload. This is
// the traversal hot path.
func DecodeVoxel(enc Encoding, paletteLen uint8, data []byte, i int) voxel.Material {
	switch enc {
	case Palette16:
		b := data[palette16IndexBase+i/2]
		idx := int(b>>(uint(i&1)*4)) & 0x0F
		return paletteEntry(data, idx)
	case Palette32:
		bit := i * 5
		byteIdx := palette32IndexBase + bit>>3
		off := uint(bit & 7)
		raw := uint16(data[byteIdx])
		if byteIdx+1 < len(data) {
			raw |= uint16(data[byteIdx+1]) << 8
		}
		idx := int(raw>>off) & 0x1F
		if idx >= int(paletteLen) {
			idx = 0
		}
		return paletteEntry(data, idx)
	case Raw16:
		return voxel.Material(binary.LittleEndian.Uint16(data[i*2:]))
	default:
		return voxel.Air
	}
}

func paletteEntry(data []byte, idx int) voxel.Material {
	return voxel.Material(binary.LittleEndian.Uint16(data[idx*2:]))
}

type paletteCount struct {
	material voxel.Material
	count    int
}

func buildPalette(v *Voxels) []voxel.Material {
	counts := make(map[voxel.Material]int, 8)
	for _, m := range v {
		counts[m]++
	}
	entries := make([]paletteCount, 0, len(counts))
	for m, c := range counts {
		entries = append(entries, paletteCount{material: m, count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].material < entries[j].material
	})
	palette := make([]voxel.Material, len(entries))
	for i, e := range entries {
		palette[i] = e.material
	}
	return palette
}

func writePalette(data []byte, palette []voxel.Material) map[voxel.Material]uint8 {
	lookup := make(map[voxel.Material]uint8, len(palette))
	for i, m := range palette {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(m))
		lookup[m] = uint8(i)
	}
	return lookup
}

func encodePalette16(v *Voxels, palette []voxel.Material) []byte {
	data := make([]byte, Palette16Stride)
	lookup := writePalette(data, palette)
	for i := 0; i < Volume; i += 2 {
		lo := lookup[v[i]] & 0x0F
		hi := lookup[v[i+1]] & 0x0F
		data[palette16IndexBase+i/2] = lo | hi<<4
	}
	return data
}

func encodePalette32(v *Voxels, palette []voxel.Material) []byte {
	data := make([]byte, Palette32Stride)
	lookup := writePalette(data, palette)
	for i, m := range v {
		idx := uint16(lookup[m] & 0x1F)
		bit := i * 5
		byteIdx := palette32IndexBase + bit>>3
		off := uint(bit & 7)
		data[byteIdx] |= byte(idx << off)
		if off > 3 {
			data[byteIdx+1] |= byte(idx >> (8 - off))
		}
	}
	return data
}

func encodeRaw16(v *Voxels) []byte {
	data := make([]byte, Raw16Stride)
	for i, m := range v {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(m))
	}
	return data
}
