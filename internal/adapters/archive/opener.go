// Package archive dispatches local archive opens to the codec matching the
// file extension.
package archive

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/tilehaven/tilehaven/internal/adapters/mbtiles"
	"github.com/tilehaven/tilehaven/internal/adapters/pmtiles"
	"github.com/tilehaven/tilehaven/internal/domain"
	"github.com/tilehaven/tilehaven/internal/ports/output"
)

// Extensions recognized as servable tile archives.
const (
	ExtPMTiles = ".pmtiles"
	ExtMBTiles = ".mbtiles"
)

// IsArchivePath reports whether path has a recognized archive extension.
func IsArchivePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtPMTiles, ExtMBTiles:
		return true
	}
	return false
}

// Opener implements the output.ArchiveOpener port by extension dispatch.
type Opener struct{}

// Open opens the archive at path with the codec its extension names.
func (Opener) Open(ctx context.Context, path string) (output.ArchiveReader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtPMTiles:
		return pmtiles.Open(ctx, path)
	case ExtMBTiles:
		return mbtiles.Open(ctx, path)
	default:
		return nil, &domain.ValidationError{
			Field:      "path",
			Value:      path,
			Constraint: ExtPMTiles + " or " + ExtMBTiles,
			Message:    "not a recognized tile archive extension",
		}
	}
}
