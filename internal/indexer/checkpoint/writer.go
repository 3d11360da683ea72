// Package checkpoint persists whole index states as durable checkpoint
// files. Each file is self-contained: a fixed binary header, a JSON payload
// holding the full index state, and a checksum footer. Files are written to
// a temp path and renamed, so a crash never leaves a partial checkpoint
// under a valid name.
package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/openfts/openfts/internal/indexer/index"
)

// MagicBytes identifies a valid .ofc checkpoint file ("OFTC").
const (
	MagicBytes    uint32 = 0x4F465443
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 16

	fileSuffix = ".ofc"
)

// Header is the fixed-size block at the start of every checkpoint file.
type Header struct {
	Magic           uint32
	Version         uint32
	TermCount       uint32
	DocCount        uint32
	CreatedAt       int64
	PayloadSize     int64
	LifetimeIndexed uint64
}

// Writer serialises index states into new checkpoint files, keeping at most
// a fixed number of generations per directory.
type Writer struct {
	dataDir string
	keep    int
}

// NewWriter creates a Writer for the given directory, retaining keep
// generations (minimum 1).
func NewWriter(dataDir string, keep int) *Writer {
	if keep < 1 {
		keep = 1
	}
	return &Writer{dataDir: dataDir, keep: keep}
}

// Write atomically creates a new checkpoint holding st and prunes old
// generations. It returns the file name of the checkpoint.
func (w *Writer) Write(st *index.State) (string, error) {
	name := fmt.Sprintf("ckpt_%020d%s", time.Now().UnixNano(), fileSuffix)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating checkpoint directory: %w", err)
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("marshaling index state: %w", err)
	}

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(st.Terms)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(st.Docs)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(header[24:32], uint64(len(payload)))
	binary.LittleEndian.PutUint64(header[32:40], st.LifetimeIndexed)

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.Checksum(payload, castagnoli))
	binary.LittleEndian.PutUint64(footer[4:12], uint64(len(payload)))

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp checkpoint file: %w", err)
	}
	// Any failure from here on must not leave the temp file behind.
	for _, block := range [][]byte{header, payload, footer} {
		if _, err := f.Write(block); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return "", fmt.Errorf("writing checkpoint: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("syncing checkpoint file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing checkpoint file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming checkpoint file: %w", err)
	}

	w.prune()
	return name, nil
}

// prune removes the oldest checkpoints beyond the retention count. Pruning
// failures are ignored: an extra old generation is harmless.
func (w *Writer) prune() {
	names, err := listCheckpoints(w.dataDir)
	if err != nil || len(names) <= w.keep {
		return
	}
	for _, name := range names[:len(names)-w.keep] {
		os.Remove(filepath.Join(w.dataDir, name))
	}
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// listCheckpoints returns checkpoint file names in a directory, oldest
// first. The zero-padded nanosecond timestamp in the name makes the
// lexicographic order chronological.
func listCheckpoints(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing checkpoint directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == fileSuffix {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
