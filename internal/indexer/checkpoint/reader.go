package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/openfts/openfts/internal/indexer/index"
)

// Load reads and verifies a single checkpoint file.
func Load(path string) (*index.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("invalid checkpoint file: %d bytes is too short", len(data))
	}

	header, err := parseHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}
	payloadEnd := HeaderSize + int(header.PayloadSize)
	if payloadEnd+FooterSize != len(data) {
		return nil, fmt.Errorf("invalid checkpoint file: payload size %d does not match file size %d",
			header.PayloadSize, len(data))
	}
	payload := data[HeaderSize:payloadEnd]
	footer := data[payloadEnd:]

	want := binary.LittleEndian.Uint32(footer[0:4])
	if got := crc32.Checksum(payload, castagnoli); got != want {
		return nil, fmt.Errorf("invalid checkpoint file: checksum %08x does not match footer %08x", got, want)
	}

	var st index.State
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("parsing checkpoint payload: %w", err)
	}
	return &st, nil
}

// LoadLatest finds the newest valid checkpoint in dir, skipping files that
// fail verification. It returns (nil, "", nil) when the directory holds no
// usable checkpoint.
func LoadLatest(dir string) (*index.State, string, error) {
	names, err := listCheckpoints(dir)
	if err != nil {
		return nil, "", err
	}
	for i := len(names) - 1; i >= 0; i-- {
		st, err := Load(filepath.Join(dir, names[i]))
		if err != nil {
			// A corrupt newest file usually means a crash mid-write
			// under an old format, or disk damage. Fall back one
			// generation rather than failing startup.
			continue
		}
		return st, names[i], nil
	}
	return nil, "", nil
}

func parseHeader(b []byte) (Header, error) {
	h := Header{
		Magic:           binary.LittleEndian.Uint32(b[0:4]),
		Version:         binary.LittleEndian.Uint32(b[4:8]),
		TermCount:       binary.LittleEndian.Uint32(b[8:12]),
		DocCount:        binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:       int64(binary.LittleEndian.Uint64(b[16:24])),
		PayloadSize:     int64(binary.LittleEndian.Uint64(b[24:32])),
		LifetimeIndexed: binary.LittleEndian.Uint64(b[32:40]),
	}
	if h.Magic != MagicBytes {
		return Header{}, fmt.Errorf("invalid checkpoint file: bad magic bytes %08x", h.Magic)
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("unsupported checkpoint format version %d", h.Version)
	}
	if h.PayloadSize < 0 {
		return Header{}, fmt.Errorf("invalid checkpoint file: negative payload size")
	}
	return h, nil
}
