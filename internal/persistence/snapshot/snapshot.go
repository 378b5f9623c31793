package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is a periodic read-only capture of the world, consumed by
// external storage/analytics. The engine stays authoritative; a snapshot is
// never loaded back into a running world.
type SnapshotV1 struct {
	Header  Header     `json:"header"`
	Regions []RegionV1 `json:"regions"`
}

type RegionV1 struct {
	Name    string     `json:"name"`
	Weather string     `json:"weather"`
	Agents  []AgentV1  `json:"agents,omitempty"`
	Objects []ObjectV1 `json:"objects,omitempty"`
}

type AgentV1 struct {
	ID     string         `json:"id"`
	Name   string         `json:"name,omitempty"`
	Pos    [3]float64     `json:"pos"`
	Status string         `json:"status"`
	Items  map[string]int `json:"items,omitempty"`
}

type ObjectV1 struct {
	ID    string         `json:"id"`
	Kind  string         `json:"kind"`
	Pos   [3]float64     `json:"pos"`
	State map[string]any `json:"state,omitempty"`
	Items map[string]int `json:"items,omitempty"`
	Owner string         `json:"owner,omitempty"`
}

func Filename(tick uint64) string {
	return fmt.Sprintf("snap-%012d.json.zst", tick)
}

// Write stores a snapshot as zstd-compressed JSON, atomically via rename.
func Write(dir string, snap SnapshotV1) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, Filename(snap.Header.Tick))
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return "", err
	}
	bw := bufio.NewWriterSize(enc, 128*1024)
	if err := json.NewEncoder(bw).Encode(snap); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return "", err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return "", err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

func Read(path string) (SnapshotV1, error) {
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
	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return snap, nil
}
