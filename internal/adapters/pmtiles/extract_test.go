package pmtiles

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tilehaven/tilehaven/internal/domain"
)

// rangeServer serves an in-memory archive with byte-range support.
func rangeServer(t *testing.T, archive []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "test.pmtiles", time.Time{}, bytes.NewReader(archive))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// buildWorldArchive assembles a source archive with one z0 tile and all four
// z1 tiles, where the two western z1 tiles share content.
func buildWorldArchive(t *testing.T) ([]byte, domain.Bounds, map[domain.TileCoordinate][]byte) {
	t.Helper()
	bounds, err := domain.NewBounds(85.0, 180.0, -85.0, -180.0)
	if err != nil {
		t.Fatal(err)
	}

	tiles := map[domain.TileCoordinate][]byte{
		{Z: 0, X: 0, Y: 0}: []byte("root-tile"),
		{Z: 1, X: 0, Y: 0}: []byte("west-tile"),
		{Z: 1, X: 0, Y: 1}: []byte("west-tile"),
		{Z: 1, X: 1, Y: 0}: []byte("north-east"),
		{Z: 1, X: 1, Y: 1}: []byte("south-east"),
	}

	w := NewWriter()
	for c, data := range tiles {
		w.AddTile(c.Z, c.X, c.Y, data)
	}

	var buf bytes.Buffer
	if err := w.Finish(&buf, bounds); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return buf.Bytes(), bounds, tiles
}

func TestOpenRemote(t *testing.T) {
	archive, bounds, _ := buildWorldArchive(t)
	srv := rangeServer(t, archive)

	remote, err := OpenRemote(context.Background(), srv.URL, RemoteConfig{})
	if err != nil {
		t.Fatalf("OpenRemote: %v", err)
	}

	h := remote.Header()
	if h.Bounds != bounds {
		t.Errorf("bounds = %+v, want %+v", h.Bounds, bounds)
	}
	if h.MinZoom != 0 || h.MaxZoom != 1 {
		t.Errorf("zoom range = %d..%d, want 0..1", h.MinZoom, h.MaxZoom)
	}
}

func TestOpenRemoteRejectsNonRangeServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK) // ignores Range, answers 200
	}))
	defer srv.Close()

	_, err := OpenRemote(context.Background(), srv.URL, RemoteConfig{})
	if err == nil {
		t.Fatal("OpenRemote accepted a server without byte-range support")
	}
}

func TestPlanSelectsIntersectingTiles(t *testing.T) {
	archive, _, tiles := buildWorldArchive(t)
	srv := rangeServer(t, archive)

	remote, err := OpenRemote(context.Background(), srv.URL, RemoteConfig{})
	if err != nil {
		t.Fatalf("OpenRemote: %v", err)
	}

	// North-west quadrant only: z0 root plus z1 (0,0).
	req, err := domain.NewBounds(80.0, -10.0, 10.0, -170.0)
	if err != nil {
		t.Fatal(err)
	}

	var ratios []float64
	plan, err := remote.Plan(context.Background(), req, progressRecorder(&ratios))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if got := plan.TileCount(); got != 2 {
		t.Errorf("TileCount() = %d, want 2", got)
	}
	wantBytes := uint64(len(tiles[domain.TileCoordinate{Z: 0, X: 0, Y: 0}]) +
		len(tiles[domain.TileCoordinate{Z: 1, X: 0, Y: 0}]))
	if got := plan.TileDataLength(); got != wantBytes {
		t.Errorf("TileDataLength() = %d, want %d", got, wantBytes)
	}

	if len(ratios) == 0 || ratios[len(ratios)-1] != 1 {
		t.Errorf("progress ratios = %v, want a trailing 1", ratios)
	}
	for i := 1; i < len(ratios); i++ {
		if ratios[i] < ratios[i-1] {
			t.Errorf("progress went backwards: %v", ratios)
		}
	}
}

func TestPlanCountsSharedContentOnce(t *testing.T) {
	archive, bounds, tiles := buildWorldArchive(t)
	srv := rangeServer(t, archive)

	remote, err := OpenRemote(context.Background(), srv.URL, RemoteConfig{})
	if err != nil {
		t.Fatalf("OpenRemote: %v", err)
	}

	plan, err := remote.Plan(context.Background(), bounds, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if got := plan.TileCount(); got != 5 {
		t.Errorf("TileCount() = %d, want 5", got)
	}
	// The two western z1 tiles share one content block.
	var wantBytes uint64
	seen := map[string]bool{}
	for _, data := range tiles {
		if !seen[string(data)] {
			seen[string(data)] = true
			wantBytes += uint64(len(data))
		}
	}
	if got := plan.TileDataLength(); got != wantBytes {
		t.Errorf("TileDataLength() = %d, want %d", got, wantBytes)
	}
}

func TestExtractProducesServableArchive(t *testing.T) {
	ctx := context.Background()
	archive, _, tiles := buildWorldArchive(t)
	srv := rangeServer(t, archive)

	remote, err := OpenRemote(ctx, srv.URL, RemoteConfig{})
	if err != nil {
		t.Fatalf("OpenRemote: %v", err)
	}

	req, err := domain.NewBounds(80.0, -10.0, 10.0, -170.0)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := remote.Plan(ctx, req, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	var out bytes.Buffer
	var ratios []float64
	if err := remote.Extract(ctx, plan, &out, progressRecorder(&ratios)); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(ratios) == 0 || ratios[len(ratios)-1] != 1 {
		t.Errorf("progress ratios = %v, want a trailing 1", ratios)
	}

	path := filepath.Join(t.TempDir(), "extract.pmtiles")
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open(extract): %v", err)
	}
	defer func() { _ = r.Close() }()

	// The extract's header carries the clamped request box.
	if got := r.Header().Bounds; got != req {
		t.Errorf("extract bounds = %+v, want %+v", got, req)
	}

	// Selected tiles are readable with their source bytes.
	for _, c := range []domain.TileCoordinate{{Z: 0, X: 0, Y: 0}, {Z: 1, X: 0, Y: 0}} {
		data, found, err := r.ReadTile(ctx, c)
		if err != nil || !found {
			t.Fatalf("ReadTile(%s) found=%v err=%v", c, found, err)
		}
		if !bytes.Equal(data, tiles[c]) {
			t.Errorf("ReadTile(%s) = %q, want %q", c, data, tiles[c])
		}
	}

	// Tiles outside the request box are absent.
	for _, c := range []domain.TileCoordinate{{Z: 1, X: 1, Y: 0}, {Z: 1, X: 1, Y: 1}} {
		_, found, err := r.ReadTile(ctx, c)
		if err != nil {
			t.Fatalf("ReadTile(%s): %v", c, err)
		}
		if found {
			t.Errorf("ReadTile(%s) found a tile outside the extract bounds", c)
		}
	}
}

func TestExtractRejectsForeignPlan(t *testing.T) {
	archive, _, _ := buildWorldArchive(t)
	srv := rangeServer(t, archive)

	remote, err := OpenRemote(context.Background(), srv.URL, RemoteConfig{})
	if err != nil {
		t.Fatalf("OpenRemote: %v", err)
	}

	err = remote.Extract(context.Background(), foreignPlan{}, &bytes.Buffer{}, nil)
	if err == nil {
		t.Fatal("Extract accepted a foreign plan")
	}
}

type foreignPlan struct{}

func (foreignPlan) TileDataLength() uint64 { return 0 }
func (foreignPlan) TileCount() uint64      { return 0 }

func progressRecorder(out *[]float64) progressFunc {
	return func(ratio float64) { *out = append(*out, ratio) }
}

type progressFunc func(float64)

func (f progressFunc) OnProgress(ratio float64) { f(ratio) }
