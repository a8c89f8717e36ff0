package application

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tilehaven/tilehaven/internal/adapters/archive"
	"github.com/tilehaven/tilehaven/internal/domain"
	"github.com/tilehaven/tilehaven/internal/ports/input"
	"github.com/tilehaven/tilehaven/internal/ports/output"
)

// Service coordinates the tile collection, the region extractor, and the
// system-archive fetcher behind the input.TileService port. It holds no lock
// of its own; the collection and the extractor each guard their own state,
// and no operation here holds one while waiting on the other's I/O.
type Service struct {
	collection *TileCollection
	extractor  *Extractor
	fetcher    output.ObjectFetcher
	metrics    output.MetricsCollector
	logger     *slog.Logger
}

var _ input.TileService = (*Service)(nil)

// NewService wires a service from its collaborators.
func NewService(
	collection *TileCollection,
	extractor *Extractor,
	fetcher output.ObjectFetcher,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		collection: collection,
		extractor:  extractor,
		fetcher:    fetcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// GetTile serves a tile from the first registered source that has it.
func (s *Service) GetTile(ctx context.Context, coord domain.TileCoordinate) ([]byte, bool, error) {
	start := time.Now()
	data, found, err := s.collection.GetTile(ctx, coord)
	s.metrics.ObserveTileDuration(time.Since(start))

	switch {
	case err != nil:
		s.metrics.IncTileRequest("error")
	case found:
		s.metrics.IncTileRequest("hit")
	default:
		s.metrics.IncTileRequest("miss")
	}
	return data, found, err
}

// RemoteHeader returns the bounds and zoom range of the configured remote
// archive, opening the backend if necessary.
func (s *Service) RemoteHeader(ctx context.Context) (domain.ArchiveHeader, error) {
	return s.extractor.Header(ctx)
}

// PrepareExtract plans a bounded extraction from the configured remote
// archive without downloading tile bodies.
func (s *Service) PrepareExtract(ctx context.Context, bounds domain.Bounds, sink output.ProgressSink) (output.ExtractionPlan, error) {
	return s.extractor.Prepare(ctx, bounds, sink)
}

// ExecuteExtract downloads the planned region to a fresh file in the user
// extract directory and registers it for serving. The plan must come from a
// preceding PrepareExtract on this service.
func (s *Service) ExecuteExtract(ctx context.Context, plan output.ExtractionPlan, sink output.ProgressSink) (domain.RegionRecord, error) {
	outputPath := s.collection.GenerateUserPath()

	record, err := s.extractor.Extract(ctx, outputPath, plan, sink)
	if err != nil {
		return domain.RegionRecord{}, err
	}
	s.metrics.AddExtractedBytes(record.FileSize)

	registered, err := s.collection.AddSource(ctx, outputPath)
	if err != nil {
		// The file is complete but unservable; remove it rather than leaving
		// an orphan the next scan would trip over.
		if rmErr := os.Remove(outputPath); rmErr != nil {
			s.logger.Warn("failed to remove unregistrable extract", "path", outputPath, "error", rmErr)
		}
		return domain.RegionRecord{}, err
	}
	return registered, nil
}

// RemoveExtract deletes a previously downloaded user extract by file name.
func (s *Service) RemoveExtract(fileName string) error {
	return s.collection.RemoveExtract(fileName)
}

// DownloadSystemIfAbsent installs a complete archive into the system
// directory unless the destination file already exists. Existing files are
// trusted as-is; no checksum or revalidation happens.
func (s *Service) DownloadSystemIfAbsent(ctx context.Context, rawURL, destinationFilename string) error {
	if destinationFilename != filepath.Base(destinationFilename) || !archive.IsArchivePath(destinationFilename) {
		return &domain.ValidationError{
			Field:      "destination_filename",
			Value:      destinationFilename,
			Constraint: "bare file name with a tile archive extension",
			Message:    "invalid system archive destination",
		}
	}

	destPath := filepath.Join(s.collection.SystemRoot(), destinationFilename)
	if _, err := os.Stat(destPath); err == nil {
		s.logger.Info("system archive already present", "path", destPath)
		return nil
	} else if !os.IsNotExist(err) {
		return &domain.StorageError{Operation: "stat", Path: destPath, Err: err}
	}

	scheme := urlScheme(rawURL)
	data, err := s.fetcher.Fetch(ctx, rawURL)
	s.metrics.IncFetchOperations(scheme, err == nil)
	if err != nil {
		return err
	}

	tmpPath := destPath + ".download"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return &domain.StorageError{Operation: "write", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return &domain.StorageError{Operation: "rename", Path: destPath, Err: err}
	}
	s.logger.Info("installed system archive", "url", rawURL, "path", destPath, "size", len(data))

	if _, err := s.collection.AddSource(ctx, destPath); err != nil {
		return err
	}
	return nil
}

// Sources lists the registered archives in registration order.
func (s *Service) Sources() []domain.RegionRecord {
	return s.collection.Records()
}

// Collection exposes the underlying collection for adapters that register
// archives out of band, such as the storage watcher.
func (s *Service) Collection() *TileCollection {
	return s.collection
}

// Close releases the collection's open archive readers.
func (s *Service) Close() error {
	return s.collection.Close()
}

func urlScheme(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Scheme != "" {
		return strings.ToLower(u.Scheme)
	}
	return "unknown"
}
