package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tilehaven/tilehaven/internal/domain"
)

func TestIsArchivePath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"base.pmtiles", true},
		{"base.PMTiles", true},
		{"region.mbtiles", true},
		{"/abs/path/region.MBTILES", true},
		{"region.pmtiles.tmp", false},
		{"region.tmp", false},
		{"style.json", false},
		{"pmtiles", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsArchivePath(tt.path); got != tt.want {
			t.Errorf("IsArchivePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestOpenRejectsUnknownExtension(t *testing.T) {
	_, err := Opener{}.Open(context.Background(), filepath.Join(t.TempDir(), "data.gpkg"))
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("err = %v, want *domain.ValidationError", err)
	}
}

func TestOpenDispatchesByExtension(t *testing.T) {
	// Both codecs reject a missing file with a StorageError, which proves
	// the dispatch reached the codec rather than the extension check.
	for _, name := range []string{"missing.pmtiles", "missing.mbtiles"} {
		_, err := Opener{}.Open(context.Background(), filepath.Join(t.TempDir(), name))
		if err == nil {
			t.Fatalf("Open(%s) succeeded on a missing file", name)
		}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			t.Errorf("Open(%s) failed extension validation instead of dispatching", name)
		}
	}
}
