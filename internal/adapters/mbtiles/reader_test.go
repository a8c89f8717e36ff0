package mbtiles

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tilehaven/tilehaven/internal/domain"
)

// createFixture writes a small MBTiles database to a temp file.
func createFixture(t *testing.T, metadata map[string]string, tiles map[[3]int][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.mbtiles")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("opening fixture db: %v", err)
	}
	defer func() { _ = db.Close() }()

	stmts := []string{
		`CREATE TABLE metadata (name TEXT, value TEXT)`,
		`CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("creating fixture schema: %v", err)
		}
	}
	for name, value := range metadata {
		if _, err := db.Exec(`INSERT INTO metadata VALUES (?, ?)`, name, value); err != nil {
			t.Fatalf("inserting metadata: %v", err)
		}
	}
	for zxy, data := range tiles {
		if _, err := db.Exec(`INSERT INTO tiles VALUES (?, ?, ?, ?)`, zxy[0], zxy[1], zxy[2], data); err != nil {
			t.Fatalf("inserting tile: %v", err)
		}
	}
	return path
}

func defaultMetadata() map[string]string {
	return map[string]string{
		"name":    "fixture",
		"bounds":  "11.0,47.0,12.0,48.0",
		"minzoom": "0",
		"maxzoom": "14",
	}
}

func TestOpenReadsHeader(t *testing.T) {
	path := createFixture(t, defaultMetadata(), nil)

	r, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	h := r.Header()
	want := domain.Bounds{MaxLat: 48, MaxLon: 12, MinLat: 47, MinLon: 11}
	if h.Bounds != want {
		t.Errorf("Bounds = %+v, want %+v", h.Bounds, want)
	}
	if h.MinZoom != 0 || h.MaxZoom != 14 {
		t.Errorf("zoom range = %d..%d, want 0..14", h.MinZoom, h.MaxZoom)
	}
}

func TestReadTileFlipsY(t *testing.T) {
	ctx := context.Background()
	// XYZ (z=2, x=1, y=1) is TMS row (1<<2)-1-1 = 2.
	tile := []byte("tile-content")
	path := createFixture(t, defaultMetadata(), map[[3]int][]byte{
		{2, 1, 2}: tile,
	})

	r, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	data, found, err := r.ReadTile(ctx, domain.TileCoordinate{Z: 2, X: 1, Y: 1})
	if err != nil {
		t.Fatalf("ReadTile: %v", err)
	}
	if !found {
		t.Fatal("ReadTile missed a stored tile")
	}
	if !bytes.Equal(data, tile) {
		t.Errorf("ReadTile = %q, want %q", data, tile)
	}

	// The un-flipped row must not resolve.
	_, found, err = r.ReadTile(ctx, domain.TileCoordinate{Z: 2, X: 1, Y: 2})
	if err != nil {
		t.Fatalf("ReadTile: %v", err)
	}
	if found {
		t.Error("ReadTile hit the TMS row through an XYZ coordinate")
	}
}

func TestReadTileMiss(t *testing.T) {
	ctx := context.Background()
	path := createFixture(t, defaultMetadata(), nil)

	r, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	tests := []domain.TileCoordinate{
		{Z: 2, X: 0, Y: 0},  // in range, absent
		{Z: 2, X: 4, Y: 0},  // x out of range
		{Z: 2, X: 0, Y: 4},  // y out of range
		{Z: 30, X: 0, Y: 0}, // far zoom
	}
	for _, coord := range tests {
		data, found, err := r.ReadTile(ctx, coord)
		if err != nil || found || data != nil {
			t.Errorf("ReadTile(%s) = (%q, %v, %v), want a clean miss", coord, data, found, err)
		}
	}
}

func TestOpenRejectsBadMetadata(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]string
	}{
		{"missing bounds", map[string]string{"minzoom": "0", "maxzoom": "14"}},
		{"malformed bounds", map[string]string{"bounds": "1,2,3", "minzoom": "0", "maxzoom": "14"}},
		{"inverted bounds", map[string]string{"bounds": "12.0,48.0,11.0,47.0", "minzoom": "0", "maxzoom": "14"}},
		{"missing zoom", map[string]string{"bounds": "11.0,47.0,12.0,48.0"}},
		{"non-numeric zoom", map[string]string{"bounds": "11.0,47.0,12.0,48.0", "minzoom": "x", "maxzoom": "14"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createFixture(t, tt.meta, nil)
			_, err := Open(context.Background(), path)
			if err == nil {
				t.Fatal("Open accepted broken metadata")
			}
			var ferr *domain.FormatError
			if !errors.As(err, &ferr) {
				t.Errorf("err = %v, want *domain.FormatError", err)
			}
		})
	}
}

func TestParseBounds(t *testing.T) {
	b, err := parseBounds(" -180 , -85.051128 , 180 , 85.051128 ")
	if err != nil {
		t.Fatalf("parseBounds: %v", err)
	}
	want := domain.Bounds{MaxLat: 85.051128, MaxLon: 180, MinLat: -85.051128, MinLon: -180}
	if b != want {
		t.Errorf("parseBounds = %+v, want %+v", b, want)
	}
}
