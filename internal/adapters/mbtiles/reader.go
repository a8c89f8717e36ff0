// Package mbtiles provides a read-only MBTiles archive reader over SQLite.
package mbtiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	// Registers the "sqlite3" database/sql driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/tilehaven/tilehaven/internal/domain"
)

// Reader is a local MBTiles archive reader. It implements the
// output.ArchiveReader port.
type Reader struct {
	db     *sql.DB
	path   string
	header domain.ArchiveHeader
}

// Open opens an MBTiles file read-only and derives its header from the
// metadata table.
func Open(ctx context.Context, path string) (*Reader, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&immutable=1")
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Path: path, Err: err}
	}

	header, err := readHeader(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, &domain.FormatError{Path: path, Err: err}
	}

	return &Reader{db: db, path: path, header: header}, nil
}

// Header returns the archive's bounds and zoom range.
func (r *Reader) Header() domain.ArchiveHeader {
	return r.header
}

// ReadTile returns the stored bytes for a coordinate, or found == false.
// MBTiles rows are TMS-addressed, so y is flipped.
func (r *Reader) ReadTile(ctx context.Context, coord domain.TileCoordinate) ([]byte, bool, error) {
	n := uint64(1) << uint(coord.Z)
	if uint64(coord.X) >= n || uint64(coord.Y) >= n {
		return nil, false, nil
	}
	tmsY := uint32(n-1) - coord.Y

	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`,
		coord.Z, coord.X, tmsY,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &domain.StorageError{Operation: "read", Path: r.path, Err: err}
	}
	return data, true, nil
}

// Close releases the database handle.
func (r *Reader) Close() error {
	return r.db.Close()
}

// readHeader assembles bounds and zoom range from the metadata table.
func readHeader(ctx context.Context, db *sql.DB) (domain.ArchiveHeader, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, value FROM metadata`)
	if err != nil {
		return domain.ArchiveHeader{}, fmt.Errorf("metadata table: %w", err)
	}
	defer func() { _ = rows.Close() }()

	meta := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return domain.ArchiveHeader{}, fmt.Errorf("metadata row: %w", err)
		}
		meta[name] = value
	}
	if err := rows.Err(); err != nil {
		return domain.ArchiveHeader{}, fmt.Errorf("metadata rows: %w", err)
	}

	bounds, err := parseBounds(meta["bounds"])
	if err != nil {
		return domain.ArchiveHeader{}, err
	}
	minZoom, err := parseZoom(meta["minzoom"])
	if err != nil {
		return domain.ArchiveHeader{}, fmt.Errorf("minzoom: %w", err)
	}
	maxZoom, err := parseZoom(meta["maxzoom"])
	if err != nil {
		return domain.ArchiveHeader{}, fmt.Errorf("maxzoom: %w", err)
	}

	return domain.ArchiveHeader{Bounds: bounds, MinZoom: minZoom, MaxZoom: maxZoom}, nil
}

// parseBounds parses the MBTiles "left,bottom,right,top" bounds value.
func parseBounds(s string) (domain.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Bounds{}, fmt.Errorf("bounds %q: want 4 comma-separated values", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("bounds %q: %w", s, err)
		}
		vals[i] = v
	}
	return domain.NewBounds(vals[3], vals[2], vals[1], vals[0])
}

func parseZoom(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}
