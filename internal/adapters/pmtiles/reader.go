package pmtiles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tilehaven/tilehaven/internal/domain"
)

// rangeSource reads length bytes at offset from the underlying archive,
// whether that is a local file or a remote byte-range capable server.
type rangeSource interface {
	ReadRange(ctx context.Context, offset, length uint64) ([]byte, error)
	Name() string
}

// archive is the format traversal shared by local readers and the remote
// backend: header, cached directories, and tile lookup by hilbert id.
type archive struct {
	src    rangeSource
	header Header

	mu       sync.Mutex
	dirCache map[uint64][]entry // absolute byte offset -> parsed directory
}

func newArchive(ctx context.Context, src rangeSource) (*archive, error) {
	b, err := src.ReadRange(ctx, 0, HeaderSize)
	if err != nil {
		return nil, err
	}
	h, err := parseHeader(b)
	if err != nil {
		return nil, &domain.FormatError{Path: src.Name(), Err: err}
	}
	return &archive{
		src:      src,
		header:   h,
		dirCache: make(map[uint64][]entry),
	}, nil
}

// directory fetches and parses the directory at an absolute offset, caching
// the result. Directories are immutable for the life of the archive.
func (a *archive) directory(ctx context.Context, offset, length uint64) ([]entry, error) {
	a.mu.Lock()
	cached, ok := a.dirCache[offset]
	a.mu.Unlock()
	if ok {
		return cached, nil
	}

	raw, err := a.src.ReadRange(ctx, offset, length)
	if err != nil {
		return nil, err
	}
	entries, err := deserializeEntries(raw, a.header.InternalCompression)
	if err != nil {
		return nil, &domain.FormatError{Path: a.src.Name(), Err: err}
	}

	a.mu.Lock()
	a.dirCache[offset] = entries
	a.mu.Unlock()
	return entries, nil
}

// maxDirectoryDepth bounds root -> leaf traversal; the format allows a single
// leaf level but a corrupt archive must not loop us forever.
const maxDirectoryDepth = 3

func (a *archive) readTile(ctx context.Context, coord domain.TileCoordinate) ([]byte, bool, error) {
	h := a.header
	if coord.Z < h.MinZoom || coord.Z > h.MaxZoom {
		return nil, false, nil
	}
	if n := uint64(1) << uint(coord.Z); uint64(coord.X) >= n || uint64(coord.Y) >= n {
		return nil, false, nil
	}

	id := CoordToID(coord.Z, coord.X, coord.Y)
	dirOffset, dirLength := h.RootOffset, h.RootLength
	for depth := 0; depth < maxDirectoryDepth; depth++ {
		entries, err := a.directory(ctx, dirOffset, dirLength)
		if err != nil {
			return nil, false, err
		}
		e, ok := findTile(entries, id)
		if !ok {
			return nil, false, nil
		}
		if e.runLength > 0 {
			data, err := a.src.ReadRange(ctx, h.TileDataOffset+e.offset, uint64(e.length))
			if err != nil {
				return nil, false, err
			}
			return data, true, nil
		}
		dirOffset = h.LeafDirectoryOffset + e.offset
		dirLength = uint64(e.length)
	}
	return nil, false, &domain.FormatError{
		Path: a.src.Name(),
		Err:  errors.New("directory nesting exceeds leaf depth"),
	}
}

// fileRange adapts an *os.File to the rangeSource interface.
type fileRange struct {
	f    *os.File
	path string
}

func (r fileRange) ReadRange(_ context.Context, offset, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := r.f.ReadAt(buf, int64(offset)); err != nil {
		return nil, &domain.StorageError{Operation: "read", Path: r.path, Err: err}
	}
	return buf, nil
}

func (r fileRange) Name() string { return r.path }

// Reader is a local archive reader backed by a file. It implements the
// output.ArchiveReader port.
type Reader struct {
	f    *os.File
	arch *archive
}

// Open opens a local archive file and parses its header.
func Open(ctx context.Context, path string) (*Reader, error) {
	f, err := os.Open(path) //#nosec G304 -- path is confined to the managed tiles tree
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Path: path, Err: err}
	}
	arch, err := newArchive(ctx, fileRange{f: f, path: path})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Reader{f: f, arch: arch}, nil
}

// Header returns the archive's bounds and zoom range.
func (r *Reader) Header() domain.ArchiveHeader {
	return r.arch.header.archiveHeader()
}

// ReadTile returns the stored bytes for a coordinate, or found == false.
func (r *Reader) ReadTile(ctx context.Context, coord domain.TileCoordinate) ([]byte, bool, error) {
	return r.arch.readTile(ctx, coord)
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	return nil
}
