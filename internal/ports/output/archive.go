// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"io"

	"github.com/tilehaven/tilehaven/internal/domain"
)

// ArchiveReader defines the secondary port for reading a local tile archive.
// Tile bytes are returned exactly as stored; the service assumes a single
// fixed tile format and compression across all archives.
type ArchiveReader interface {
	// Header returns the archive's bounds and zoom range.
	Header() domain.ArchiveHeader

	// ReadTile returns the stored bytes for a coordinate. Absence is not an
	// error: found is false and err is nil when the archive has no such tile.
	ReadTile(ctx context.Context, coord domain.TileCoordinate) (data []byte, found bool, err error)

	// Close releases the underlying file handle.
	Close() error
}

// ArchiveOpener opens a local archive file and derives its header metadata.
type ArchiveOpener interface {
	Open(ctx context.Context, path string) (ArchiveReader, error)
}

// ExtractionPlan is an opaque, immutable description of the tiles a
// bounding-box extraction would include. It is produced by RemoteArchive.Plan
// and only meaningful to the backend that produced it.
type ExtractionPlan interface {
	// TileDataLength returns the total tile-data byte size the plan covers.
	TileDataLength() uint64

	// TileCount returns the number of addressed tiles in the plan.
	TileCount() uint64
}

// RemoteArchive defines the secondary port for a remote, byte-range
// addressable tile archive.
type RemoteArchive interface {
	// Header returns the remote archive's bounds and zoom range.
	Header() domain.ArchiveHeader

	// Plan traverses the remote index restricted to bounds without
	// downloading tile bodies. The sink, if non-nil, receives monotonically
	// non-decreasing ratios in [0,1].
	Plan(ctx context.Context, bounds domain.Bounds, sink ProgressSink) (ExtractionPlan, error)

	// Extract streams the tile bytes named by plan into w as a complete,
	// freshly indexed archive. Progress semantics mirror Plan.
	Extract(ctx context.Context, plan ExtractionPlan, w io.Writer, sink ProgressSink) error
}

// RemoteArchiveOpener opens a remote archive by URL.
type RemoteArchiveOpener interface {
	OpenRemote(ctx context.Context, url string) (RemoteArchive, error)
}

// ProgressSink receives extraction progress. Implementations must not block
// materially; they may be called from a background task zero or more times.
type ProgressSink interface {
	OnProgress(ratio float64)
}

// ProgressFunc adapts a plain function to the ProgressSink port.
type ProgressFunc func(ratio float64)

// OnProgress implements ProgressSink.
func (f ProgressFunc) OnProgress(ratio float64) { f(ratio) }
