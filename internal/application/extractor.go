package application

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tilehaven/tilehaven/internal/domain"
	"github.com/tilehaven/tilehaven/internal/ports/output"
)

// sessionPlan binds an extraction plan to the backend session that produced
// it, so a plan cannot be executed against a different backend instance.
type sessionPlan struct {
	output.ExtractionPlan
	session string
	bounds  domain.Bounds
}

// Extractor downloads bounded regions from a single remote archive. The
// backend connection is opened lazily on first use and reused for the
// lifetime of the extractor; extractions are serialized by an internal lock
// so concurrent callers queue rather than interleave range reads.
type Extractor struct {
	mu      sync.Mutex
	backend output.RemoteArchive
	session string

	sourceURL string
	opener    output.RemoteArchiveOpener
	logger    *slog.Logger
}

// NewExtractor creates an extractor for the remote archive at sourceURL.
// No network traffic happens until the first Prepare or Header call.
func NewExtractor(sourceURL string, opener output.RemoteArchiveOpener, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{sourceURL: sourceURL, opener: opener, logger: logger}
}

// SourceURL returns the configured remote archive URL.
func (e *Extractor) SourceURL() string { return e.sourceURL }

// ensureBackend opens the remote archive if it is not open yet. Caller must
// hold e.mu.
func (e *Extractor) ensureBackend(ctx context.Context) error {
	if e.backend != nil {
		return nil
	}
	if e.sourceURL == "" {
		return fmt.Errorf("no extract source configured: %w", domain.ErrBackendClosed)
	}
	backend, err := e.opener.OpenRemote(ctx, e.sourceURL)
	if err != nil {
		return err
	}
	e.backend = backend
	e.session = uuid.NewString()
	h := backend.Header()
	e.logger.Info("opened remote archive backend",
		"url", e.sourceURL,
		"bounds", h.Bounds.String(),
		"min_zoom", h.MinZoom,
		"max_zoom", h.MaxZoom,
	)
	return nil
}

// Header returns the remote archive's bounds and zoom range, opening the
// backend if necessary.
func (e *Extractor) Header(ctx context.Context) (domain.ArchiveHeader, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureBackend(ctx); err != nil {
		return domain.ArchiveHeader{}, err
	}
	return e.backend.Header(), nil
}

// Prepare plans an extraction of bounds without downloading tile bodies.
// The returned plan is only valid for this extractor instance.
func (e *Extractor) Prepare(ctx context.Context, bounds domain.Bounds, sink output.ProgressSink) (output.ExtractionPlan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureBackend(ctx); err != nil {
		return nil, err
	}
	inner, err := e.backend.Plan(ctx, bounds, sink)
	if err != nil {
		return nil, err
	}
	clamped := bounds.Clamp(e.backend.Header().Bounds)
	e.logger.Info("planned extraction",
		"bounds", clamped.String(),
		"tiles", inner.TileCount(),
		"tile_bytes", inner.TileDataLength(),
	)
	return &sessionPlan{ExtractionPlan: inner, session: e.session, bounds: clamped}, nil
}

// Extract downloads the planned region into outputPath. The archive is
// written to a sibling temporary file and renamed into place once complete,
// so outputPath either appears whole or not at all. On failure the temporary
// file is left behind for the startup sweep.
func (e *Extractor) Extract(ctx context.Context, outputPath string, plan output.ExtractionPlan, sink output.ProgressSink) (domain.RegionRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sp, ok := plan.(*sessionPlan)
	if !ok {
		return domain.RegionRecord{}, &domain.ValidationError{
			Field:      "plan",
			Value:      fmt.Sprintf("%T", plan),
			Constraint: "produced by Prepare on this extractor",
			Message:    "extraction plan is of a foreign type",
		}
	}
	if e.backend == nil || sp.session != e.session {
		return domain.RegionRecord{}, domain.ErrStalePlan
	}

	tmpPath := replaceExt(outputPath, ".tmp")
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return domain.RegionRecord{}, &domain.StorageError{Operation: "create", Path: tmpPath, Err: err}
	}

	w := bufio.NewWriter(f)
	if err := e.backend.Extract(ctx, sp.ExtractionPlan, w, sink); err != nil {
		_ = f.Close()
		return domain.RegionRecord{}, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return domain.RegionRecord{}, &domain.StorageError{Operation: "write", Path: tmpPath, Err: err}
	}
	if err := f.Close(); err != nil {
		return domain.RegionRecord{}, &domain.StorageError{Operation: "close", Path: tmpPath, Err: err}
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return domain.RegionRecord{}, &domain.StorageError{Operation: "stat", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return domain.RegionRecord{}, &domain.StorageError{Operation: "rename", Path: outputPath, Err: err}
	}

	record := domain.RegionRecord{
		Bounds:   sp.bounds,
		FileName: filepath.Base(outputPath),
		FileSize: uint64(info.Size()),
	}
	e.logger.Info("extracted region",
		"file", record.FileName,
		"size", record.FileSize,
		"bounds", record.Bounds.String(),
	)
	return record, nil
}

// replaceExt swaps path's extension for ext ("." included). A path with no
// extension gets ext appended.
func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
