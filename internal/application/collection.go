package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tilehaven/tilehaven/internal/adapters/archive"
	"github.com/tilehaven/tilehaven/internal/domain"
	"github.com/tilehaven/tilehaven/internal/ports/output"
)

// Subdirectories of the collection root. System archives are installed
// complete; user extracts are regions downloaded on demand.
const (
	systemDir      = "system"
	userDir        = "user"
	userExtractExt = ".pmtiles"
)

// archiveSource is one registered archive: its open reader, its descriptive
// record, and the path it was opened from.
type archiveSource struct {
	reader output.ArchiveReader
	record domain.RegionRecord
	path   string
}

// TileCollection is the ordered set of registered tile archives. Lookups
// consult sources in registration order and the first source that has the
// coordinate wins, so earlier sources shadow later ones.
//
// All methods are safe for concurrent use. The lock is never held across
// archive I/O on the read path beyond the winning source's tile read; writes
// (register, remove) are exclusive.
type TileCollection struct {
	mu      sync.RWMutex
	sources []*archiveSource

	fileRoot string
	opener   output.ArchiveOpener
	metrics  output.MetricsCollector
	logger   *slog.Logger
}

// NewTileCollection creates a collection rooted at fileRoot. Nothing is
// loaded until LoadFromStorage is called.
func NewTileCollection(fileRoot string, opener output.ArchiveOpener, metrics output.MetricsCollector, logger *slog.Logger) *TileCollection {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TileCollection{
		fileRoot: fileRoot,
		opener:   opener,
		metrics:  metrics,
		logger:   logger,
	}
}

// SystemRoot returns the directory holding complete system archives.
func (c *TileCollection) SystemRoot() string {
	return filepath.Join(c.fileRoot, systemDir)
}

// UserExtractsRoot returns the directory holding user-extracted regions.
func (c *TileCollection) UserExtractsRoot() string {
	return filepath.Join(c.fileRoot, userDir)
}

// LoadFromStorage creates the storage layout if missing, sweeps abandoned
// temporary files out of the user directory, and registers every readable
// archive found on disk: system archives first, then user extracts. A file
// that fails to open is logged and skipped; it does not abort the scan.
func (c *TileCollection) LoadFromStorage(ctx context.Context) error {
	for _, dir := range []string{c.SystemRoot(), c.UserExtractsRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &domain.StorageError{Operation: "mkdir", Path: dir, Err: err}
		}
	}
	c.sweepTemporaries()

	loaded := 0
	for _, dir := range []string{c.SystemRoot(), c.UserExtractsRoot()} {
		n, err := c.loadDirectory(ctx, dir)
		if err != nil {
			return err
		}
		loaded += n
	}
	if loaded == 0 {
		c.logger.Warn("no tile archives found in storage", "root", c.fileRoot)
	}
	c.metrics.SetSourcesLoaded(c.Len())
	return nil
}

// sweepTemporaries deletes *.tmp leftovers from interrupted extractions.
// Only the user directory can hold them; system archives are written whole.
func (c *TileCollection) sweepTemporaries() {
	entries, err := os.ReadDir(c.UserExtractsRoot())
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		path := filepath.Join(c.UserExtractsRoot(), e.Name())
		if err := os.Remove(path); err != nil {
			c.logger.Warn("failed to sweep temporary file", "path", path, "error", err)
			continue
		}
		c.logger.Info("swept abandoned temporary file", "path", path)
	}
}

func (c *TileCollection) loadDirectory(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, &domain.StorageError{Operation: "scan", Path: dir, Err: err}
	}

	loaded := 0
	for _, e := range entries {
		if e.IsDir() || !archive.IsArchivePath(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		record, err := c.AddSource(ctx, path)
		if err != nil {
			c.logger.Warn("skipping unreadable archive", "path", path, "error", err)
			continue
		}
		c.logger.Info("registered tile archive",
			"file", record.FileName,
			"size", record.FileSize,
			"bounds", record.Bounds.String(),
		)
		loaded++
	}
	return loaded, nil
}

// AddSource opens the archive at path and appends it to the collection.
// The base file name must be unique across the collection. On any failure
// the collection is left unchanged.
func (c *TileCollection) AddSource(ctx context.Context, path string) (domain.RegionRecord, error) {
	fileName := filepath.Base(path)
	if c.IsRegistered(fileName) {
		return domain.RegionRecord{}, fmt.Errorf("%q: %w", fileName, domain.ErrDuplicateSource)
	}

	reader, err := c.opener.Open(ctx, path)
	if err != nil {
		return domain.RegionRecord{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		_ = reader.Close()
		return domain.RegionRecord{}, &domain.StorageError{Operation: "stat", Path: path, Err: err}
	}

	record := domain.RegionRecord{
		Bounds:   reader.Header().Bounds,
		FileName: fileName,
		FileSize: uint64(info.Size()),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-check under the write lock; a concurrent add may have won the race.
	for _, s := range c.sources {
		if s.record.FileName == fileName {
			_ = reader.Close()
			return domain.RegionRecord{}, fmt.Errorf("%q: %w", fileName, domain.ErrDuplicateSource)
		}
	}
	c.sources = append(c.sources, &archiveSource{reader: reader, record: record, path: path})
	c.metrics.SetSourcesLoaded(len(c.sources))
	return record, nil
}

// GetTile returns the tile from the first registered source that has the
// coordinate. A read error from any source aborts the lookup; it is not
// treated as a miss.
func (c *TileCollection) GetTile(ctx context.Context, coord domain.TileCoordinate) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.sources {
		data, found, err := s.reader.ReadTile(ctx, coord)
		if err != nil {
			return nil, false, fmt.Errorf("reading tile %s from %s: %w", coord, s.record.FileName, err)
		}
		if found {
			return data, true, nil
		}
	}
	return nil, false, nil
}

// RemoveExtract deletes the named user extract from disk and deregisters it.
// Only files that resolve inside the user extract directory may be removed;
// a name escaping it is rejected before anything is touched.
func (c *TileCollection) RemoveExtract(fileName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i, s := range c.sources {
		if s.record.FileName == fileName {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%q: %w", fileName, domain.ErrExtractNotFound)
	}
	src := c.sources[idx]

	if err := c.ensureInUserDir(src.path); err != nil {
		return err
	}

	if err := os.Remove(src.path); err != nil {
		return &domain.StorageError{Operation: "delete", Path: src.path, Err: err}
	}
	if err := src.reader.Close(); err != nil {
		c.logger.Warn("failed to close removed archive", "file", fileName, "error", err)
	}
	c.sources = append(c.sources[:idx], c.sources[idx+1:]...)
	c.metrics.SetSourcesLoaded(len(c.sources))
	c.logger.Info("removed user extract", "file", fileName)
	return nil
}

// ensureInUserDir verifies path resolves to a file strictly inside the user
// extract directory, following symlinks on both sides where they exist.
func (c *TileCollection) ensureInUserDir(path string) error {
	root, err := filepath.Abs(c.UserExtractsRoot())
	if err != nil {
		return &domain.StorageError{Operation: "resolve", Path: c.UserExtractsRoot(), Err: err}
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return &domain.StorageError{Operation: "resolve", Path: path, Err: err}
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	if filepath.Dir(abs) != root {
		return &domain.ValidationError{
			Field:      "file_name",
			Value:      path,
			Constraint: "inside " + c.UserExtractsRoot(),
			Message:    "refusing to remove a file outside the user extract directory",
		}
	}
	return nil
}

// DropSource deregisters the named source without touching the file. Used
// when storage reports the file already gone.
func (c *TileCollection) DropSource(fileName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.sources {
		if s.record.FileName != fileName {
			continue
		}
		if err := s.reader.Close(); err != nil {
			c.logger.Warn("failed to close dropped archive", "file", fileName, "error", err)
		}
		c.sources = append(c.sources[:i], c.sources[i+1:]...)
		c.metrics.SetSourcesLoaded(len(c.sources))
		return true
	}
	return false
}

// GenerateUserPath returns a fresh collision-free destination path for a new
// user extract.
func (c *TileCollection) GenerateUserPath() string {
	return filepath.Join(c.UserExtractsRoot(), uuid.NewString()+userExtractExt)
}

// IsRegistered reports whether a source with the given base file name is
// currently registered.
func (c *TileCollection) IsRegistered(fileName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.sources {
		if s.record.FileName == fileName {
			return true
		}
	}
	return false
}

// Records returns the registered archive records in registration order.
func (c *TileCollection) Records() []domain.RegionRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.RegionRecord, len(c.sources))
	for i, s := range c.sources {
		out[i] = s.record
	}
	return out
}

// Len returns the number of registered sources.
func (c *TileCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sources)
}

// Close closes every registered reader and empties the collection.
func (c *TileCollection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, s := range c.sources {
		if err := s.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.sources = nil
	return firstErr
}
