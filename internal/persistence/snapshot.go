package persistence

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"clipvox/internal/clipmap"
	"clipvox/internal/voxel"
)

const SnapshotVersion = 1

// ErrSnapshotVersion is returned for snapshots written by a newer layout.
var ErrSnapshotVersion = errors.New("persistence: unsupported snapshot version")

// Header is stored as a JSON line ahead of the gob body so tools can read it
// without decoding the edits.
type Header struct {
	Version int    `json:"version"`
	Frame   uint64 `json:"frame"`
	Edits   int    `json:"edits"`
	Terrain string `json:"terrain"`
	Seed    int64  `json:"seed"`
}

// SnapshotV1 holds the finest-level edit overlay.
type SnapshotV1 struct {
	Header Header
	Edits  []EditV1
}

type EditV1 struct {
	Pos      [3]int64
	Material uint16
}

// NewSnapshot captures edits under the given header fields.
func NewSnapshot(h Header, edits []clipmap.Edit) SnapshotV1 {
	h.Version = SnapshotVersion
	h.Edits = len(edits)
	s := SnapshotV1{Header: h, Edits: make([]EditV1, len(edits))}
	for i, e := range edits {
		s.Edits[i] = EditV1{Pos: [3]int64{e.Pos.X, e.Pos.Y, e.Pos.Z}, Material: uint16(e.Material)}
	}
	return s
}

// ClipmapEdits converts the snapshot back for Controller.RestoreEdits.
func (s SnapshotV1) ClipmapEdits() []clipmap.Edit {
	out := make([]clipmap.Edit, len(s.Edits))
	for i, e := range s.Edits {
		out[i] = clipmap.Edit{
			Pos:      clipmap.WorldCoord{X: e.Pos[0], Y: e.Pos[1], Z: e.Pos[2]},
			Material: voxel.Material(e.Material),
		}
	}
	return out
}

// WriteSnapshot writes snap to a temporary file and renames it over path.
func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadHeader returns only the JSON header line of the snapshot at path.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}

// ReadSnapshot decodes the snapshot at path.
func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// the gob body repeats the header
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("snapshot header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != SnapshotVersion {
		return snap, fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Header.Version)
	}
	return snap, nil
}
