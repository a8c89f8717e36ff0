package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// entry is one directory record. runLength >= 1 means the entry's content is
// the tile for ids [tileID, tileID+runLength); runLength == 0 marks a pointer
// to a leaf directory at offset/length within the leaf section.
type entry struct {
	tileID    uint64
	offset    uint64
	length    uint32
	runLength uint32
}

// serializeEntries encodes a directory in the column-oriented varint layout
// and compresses it with the given internal compression.
func serializeEntries(entries []entry, compression uint8) ([]byte, error) {
	buf := binary.AppendUvarint(nil, uint64(len(entries)))

	var last uint64
	for i, e := range entries {
		if i == 0 {
			buf = binary.AppendUvarint(buf, e.tileID)
		} else {
			buf = binary.AppendUvarint(buf, e.tileID-last)
		}
		last = e.tileID
	}
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, uint64(e.runLength))
	}
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, uint64(e.length))
	}
	for i, e := range entries {
		if i > 0 && e.offset == entries[i-1].offset+uint64(entries[i-1].length) {
			buf = binary.AppendUvarint(buf, 0)
		} else {
			buf = binary.AppendUvarint(buf, e.offset+1)
		}
	}

	switch compression {
	case CompressionNone:
		return buf, nil
	case CompressionGzip:
		var out bytes.Buffer
		zw := gzip.NewWriter(&out)
		if _, err := zw.Write(buf); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported internal compression: %d", compression)
	}
}

// deserializeEntries decodes a directory previously written by
// serializeEntries (or any conforming writer).
func deserializeEntries(data []byte, compression uint8) ([]entry, error) {
	var raw []byte
	switch compression {
	case CompressionNone:
		raw = data
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("directory gzip: %w", err)
		}
		raw, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("directory gzip: %w", err)
		}
		if err := zr.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported internal compression: %d", compression)
	}

	r := bytes.NewReader(raw)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("directory entry count: %w", err)
	}
	entries := make([]entry, count)

	var last uint64
	for i := range entries {
		delta, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("directory tile id: %w", err)
		}
		last += delta
		entries[i].tileID = last
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("directory run length: %w", err)
		}
		entries[i].runLength = uint32(v)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("directory length: %w", err)
		}
		entries[i].length = uint32(v)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("directory offset: %w", err)
		}
		if v == 0 && i > 0 {
			entries[i].offset = entries[i-1].offset + uint64(entries[i-1].length)
		} else {
			entries[i].offset = v - 1
		}
	}
	return entries, nil
}

// findTile locates the entry covering tileID. A leaf pointer (runLength 0) is
// returned when the id falls past it, so callers can descend one level.
func findTile(entries []entry, tileID uint64) (entry, bool) {
	m, n := 0, len(entries)-1
	for m <= n {
		k := (m + n) >> 1
		switch {
		case tileID > entries[k].tileID:
			m = k + 1
		case tileID < entries[k].tileID:
			n = k - 1
		default:
			return entries[k], true
		}
	}
	if n >= 0 {
		if entries[n].runLength == 0 {
			return entries[n], true
		}
		if tileID-entries[n].tileID < uint64(entries[n].runLength) {
			return entries[n], true
		}
	}
	return entry{}, false
}
