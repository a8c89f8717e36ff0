// Package input defines the primary/driving ports of the application. A host
// application (or a cross-language binding layer) talks to the service
// exclusively through these contracts.
package input

import (
	"context"

	"github.com/tilehaven/tilehaven/internal/domain"
	"github.com/tilehaven/tilehaven/internal/ports/output"
)

// TileReader serves coordinate-addressed tile lookups.
type TileReader interface {
	// GetTile returns the tile bytes from the first registered source that
	// has the coordinate. found is false when no source has it.
	GetTile(ctx context.Context, coord domain.TileCoordinate) (data []byte, found bool, err error)
}

// TileService is the application-facing session contract: everything a
// hosting application may call on a running service.
type TileService interface {
	TileReader

	// PrepareExtract plans a bounded-region extraction from the configured
	// remote archive without downloading tile bodies.
	PrepareExtract(ctx context.Context, bounds domain.Bounds, sink output.ProgressSink) (output.ExtractionPlan, error)

	// ExecuteExtract downloads the planned region into the user extract
	// directory and registers it for serving.
	ExecuteExtract(ctx context.Context, plan output.ExtractionPlan, sink output.ProgressSink) (domain.RegionRecord, error)

	// RemoveExtract deletes a previously downloaded user extract by file name.
	RemoveExtract(fileName string) error

	// DownloadSystemIfAbsent installs a complete archive into the system
	// directory unless the destination file already exists.
	DownloadSystemIfAbsent(ctx context.Context, url, destinationFilename string) error

	// Sources lists the registered archives in registration order.
	Sources() []domain.RegionRecord
}
