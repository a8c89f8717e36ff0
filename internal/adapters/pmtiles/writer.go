package pmtiles

import (
	"fmt"
	"io"
	"sort"

	"github.com/tilehaven/tilehaven/internal/domain"
)

// Writer assembles a small clustered archive from whole tiles held in memory.
// The remote extractor streams its own output; this is for bundling seed
// archives and building test fixtures.
type Writer struct {
	TileType        uint8
	TileCompression uint8
	Metadata        []byte // uncompressed JSON document; "{}" when nil

	tiles map[uint64][]byte
}

// NewWriter creates an empty archive writer for gzip-compressed MVT tiles.
func NewWriter() *Writer {
	return &Writer{
		TileType:        TileTypeMVT,
		TileCompression: CompressionGzip,
		tiles:           make(map[uint64][]byte),
	}
}

// AddTile stores data as the tile at (z, x, y). Later adds for the same
// coordinate replace earlier ones.
func (w *Writer) AddTile(z uint8, x, y uint32, data []byte) {
	w.tiles[CoordToID(z, x, y)] = data
}

// Finish writes the assembled archive to out with the given header bounds.
// The zoom range is derived from the added tiles.
func (w *Writer) Finish(out io.Writer, bounds domain.Bounds) error {
	ids := make([]uint64, 0, len(w.tiles))
	for id := range w.tiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var minZoom, maxZoom uint8
	if len(ids) > 0 {
		minZoom, _, _ = IDToCoord(ids[0])
		maxZoom, _, _ = IDToCoord(ids[len(ids)-1])
	}

	// Dedup identical contents; assign offsets in clustered (id) order.
	offsets := make(map[string]uint64)
	var body []byte
	entries := make([]entry, 0, len(ids))
	var addressed uint64
	for _, id := range ids {
		data := w.tiles[id]
		off, ok := offsets[string(data)]
		if !ok {
			off = uint64(len(body))
			offsets[string(data)] = off
			body = append(body, data...)
		}
		addressed++

		// Extend the previous entry's run when the id is consecutive and the
		// content identical.
		if n := len(entries); n > 0 {
			prev := &entries[n-1]
			if prev.tileID+uint64(prev.runLength) == id && prev.offset == off {
				prev.runLength++
				continue
			}
		}
		entries = append(entries, entry{
			tileID:    id,
			offset:    off,
			length:    uint32(len(data)),
			runLength: 1,
		})
	}

	rootBytes, err := serializeEntries(entries, CompressionGzip)
	if err != nil {
		return err
	}
	metaDoc := w.Metadata
	if metaDoc == nil {
		metaDoc = []byte("{}")
	}
	meta, err := gzipBytes(metaDoc)
	if err != nil {
		return err
	}

	dataOffset := uint64(HeaderSize) + uint64(len(rootBytes)) + uint64(len(meta))
	hdr := Header{
		RootOffset:          HeaderSize,
		RootLength:          uint64(len(rootBytes)),
		MetadataOffset:      uint64(HeaderSize) + uint64(len(rootBytes)),
		MetadataLength:      uint64(len(meta)),
		LeafDirectoryOffset: dataOffset,
		LeafDirectoryLength: 0,
		TileDataOffset:      dataOffset,
		TileDataLength:      uint64(len(body)),
		AddressedTilesCount: addressed,
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(offsets)),
		Clustered:           true,
		InternalCompression: CompressionGzip,
		TileCompression:     w.TileCompression,
		TileType:            w.TileType,
		MinZoom:             minZoom,
		MaxZoom:             maxZoom,
		CenterZoom:          minZoom,
	}
	hdr.setBounds(bounds)

	for _, chunk := range [][]byte{serializeHeader(hdr), rootBytes, meta, body} {
		if _, err := out.Write(chunk); err != nil {
			return fmt.Errorf("writing archive: %w", err)
		}
	}
	return nil
}
