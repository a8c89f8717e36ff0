package pmtiles

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/tilehaven/tilehaven/internal/domain"
	"github.com/tilehaven/tilehaven/internal/ports/output"
)

// Web-mercator latitude limit; tiles don't exist beyond it.
const mercatorMaxLat = 85.051128

// plan implements the output.ExtractionPlan port. Entries are ascending by
// tile id and their offsets still point into the source archive.
type plan struct {
	entries   []entry
	bounds    domain.Bounds
	addressed uint64
	tileBytes uint64
}

// TileDataLength returns the total unique tile-data byte size.
func (p *plan) TileDataLength() uint64 { return p.tileBytes }

// TileCount returns the number of addressed tiles in the plan.
func (p *plan) TileCount() uint64 { return p.addressed }

// tileWindow is the inclusive x/y rectangle a bounding box covers at one zoom.
type tileWindow struct {
	minX, maxX uint32
	minY, maxY uint32
}

func (w tileWindow) contains(x, y uint32) bool {
	return x >= w.minX && x <= w.maxX && y >= w.minY && y <= w.maxY
}

func windowFor(b domain.Bounds, z uint8) tileWindow {
	maxLat := min(b.MaxLat, mercatorMaxLat)
	minLat := max(b.MinLat, -mercatorMaxLat)
	maxLon := min(b.MaxLon, 180.0)
	minLon := max(b.MinLon, -180.0)

	// North-west corner has the smallest x and y in the XYZ scheme.
	nw := maptile.At(orb.Point{minLon, maxLat}, maptile.Zoom(z))
	se := maptile.At(orb.Point{maxLon, minLat}, maptile.Zoom(z))

	last := uint32((uint64(1) << uint(z)) - 1)
	return tileWindow{
		minX: min(nw.X, last),
		maxX: min(se.X, last),
		minY: min(nw.Y, last),
		maxY: min(se.Y, last),
	}
}

// Plan traverses the remote index restricted to bounds, selecting every tile
// entry whose coordinate intersects the box, without touching tile bodies.
func (r *Remote) Plan(ctx context.Context, bounds domain.Bounds, sink output.ProgressSink) (output.ExtractionPlan, error) {
	h := r.arch.header
	clamped := bounds.Clamp(h.bounds())

	windows := make([]tileWindow, int(h.MaxZoom)+1)
	for z := h.MinZoom; ; z++ {
		windows[z] = windowFor(clamped, z)
		if z == h.MaxZoom {
			break
		}
	}
	minID := zoomBase(h.MinZoom)
	maxID := zoomBase(h.MaxZoom+1) - 1

	root, err := r.arch.directory(ctx, h.RootOffset, h.RootLength)
	if err != nil {
		return nil, err
	}

	p := &plan{bounds: clamped}
	seen := make(map[uint64]struct{})
	for i, e := range root {
		if e.runLength == 0 {
			// Leaf pointer. Skip leaves that cannot hold ids in zoom range.
			if e.tileID > maxID {
				continue
			}
			if i+1 < len(root) && root[i+1].tileID <= minID {
				continue
			}
			leaf, err := r.arch.directory(ctx, h.LeafDirectoryOffset+e.offset, uint64(e.length))
			if err != nil {
				return nil, err
			}
			for _, le := range leaf {
				p.selectEntry(le, windows, h, seen)
			}
		} else {
			p.selectEntry(e, windows, h, seen)
		}
		if sink != nil {
			sink.OnProgress(float64(i+1) / float64(len(root)))
		}
	}
	if sink != nil {
		sink.OnProgress(1)
	}
	return p, nil
}

// selectEntry splits a source entry's run into the contiguous id stretches
// that fall inside the per-zoom windows and appends them to the plan.
func (p *plan) selectEntry(e entry, windows []tileWindow, h Header, seen map[uint64]struct{}) {
	var runStart uint64
	var runLen uint32

	flush := func() {
		if runLen == 0 {
			return
		}
		p.entries = append(p.entries, entry{
			tileID:    runStart,
			offset:    e.offset,
			length:    e.length,
			runLength: runLen,
		})
		p.addressed += uint64(runLen)
		if _, ok := seen[e.offset]; !ok {
			seen[e.offset] = struct{}{}
			p.tileBytes += uint64(e.length)
		}
		runLen = 0
	}

	for id := e.tileID; id < e.tileID+uint64(e.runLength); id++ {
		z, x, y := IDToCoord(id)
		if z >= h.MinZoom && z <= h.MaxZoom && windows[z].contains(x, y) {
			if runLen == 0 {
				runStart = id
			}
			runLen++
		} else {
			flush()
		}
	}
	flush()
}

// Extract streams the tile bytes named by plan into w as a complete archive:
// recomputed header and root directory, copied metadata, then the tile data
// blocks fetched by byte range in clustered order.
func (r *Remote) Extract(ctx context.Context, ep output.ExtractionPlan, w io.Writer, sink output.ProgressSink) error {
	p, ok := ep.(*plan)
	if !ok {
		return &domain.ValidationError{
			Field:      "plan",
			Value:      fmt.Sprintf("%T", ep),
			Constraint: "produced by a pmtiles remote backend",
			Message:    "extraction plan is of a foreign type",
		}
	}
	src := r.arch.header

	// Relocate unique tile contents into the output in first-use order.
	type content struct {
		srcOffset uint64
		length    uint32
	}
	newOffsets := make(map[uint64]uint64)
	var order []content
	var total uint64
	out := make([]entry, 0, len(p.entries))
	for _, e := range p.entries {
		off, ok := newOffsets[e.offset]
		if !ok {
			off = total
			newOffsets[e.offset] = off
			order = append(order, content{srcOffset: e.offset, length: e.length})
			total += uint64(e.length)
		}
		out = append(out, entry{tileID: e.tileID, offset: off, length: e.length, runLength: e.runLength})
	}

	rootBytes, err := serializeEntries(out, CompressionGzip)
	if err != nil {
		return &domain.FormatError{Path: r.arch.src.Name(), Err: err}
	}
	meta, err := r.metadataBytes(ctx)
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
		TileDataLength:      total,
		AddressedTilesCount: p.addressed,
		TileEntriesCount:    uint64(len(out)),
		TileContentsCount:   uint64(len(order)),
		Clustered:           true,
		InternalCompression: CompressionGzip,
		TileCompression:     src.TileCompression,
		TileType:            src.TileType,
		MinZoom:             src.MinZoom,
		MaxZoom:             src.MaxZoom,
		CenterZoom:          min(max(src.CenterZoom, src.MinZoom), src.MaxZoom),
	}
	hdr.setBounds(p.bounds)

	if _, err := w.Write(serializeHeader(hdr)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := w.Write(rootBytes); err != nil {
		return fmt.Errorf("writing root directory: %w", err)
	}
	if _, err := w.Write(meta); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}

	var written uint64
	for _, c := range order {
		data, err := r.arch.src.ReadRange(ctx, src.TileDataOffset+c.srcOffset, uint64(c.length))
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing tile data: %w", err)
		}
		written += uint64(c.length)
		if sink != nil && total > 0 {
			sink.OnProgress(float64(written) / float64(total))
		}
	}
	if sink != nil {
		sink.OnProgress(1)
	}
	return nil
}

// metadataBytes returns the source metadata document re-encoded for an output
// archive whose internal compression is gzip.
func (r *Remote) metadataBytes(ctx context.Context) ([]byte, error) {
	h := r.arch.header
	if h.MetadataLength == 0 {
		return gzipBytes([]byte("{}"))
	}
	raw, err := r.arch.src.ReadRange(ctx, h.MetadataOffset, h.MetadataLength)
	if err != nil {
		return nil, err
	}
	switch h.InternalCompression {
	case CompressionGzip:
		return raw, nil
	case CompressionNone:
		return gzipBytes(raw)
	default:
		return nil, &domain.FormatError{
			Path: r.arch.src.Name(),
			Err:  fmt.Errorf("unsupported internal compression: %d", h.InternalCompression),
		}
	}
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
