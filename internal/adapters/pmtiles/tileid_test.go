package pmtiles

import "testing"

func TestCoordToIDKnownValues(t *testing.T) {
	tests := []struct {
		z    uint8
		x, y uint32
		id   uint64
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{1, 0, 1, 2},
		{1, 1, 1, 3},
		{1, 1, 0, 4},
		{2, 0, 0, 5},
	}

	for _, tt := range tests {
		if got := CoordToID(tt.z, tt.x, tt.y); got != tt.id {
			t.Errorf("CoordToID(%d, %d, %d) = %d, want %d", tt.z, tt.x, tt.y, got, tt.id)
		}
	}
}

func TestIDRoundTrip(t *testing.T) {
	coords := []struct {
		z    uint8
		x, y uint32
	}{
		{0, 0, 0},
		{1, 1, 0},
		{3, 7, 0},
		{3, 0, 7},
		{7, 100, 27},
		{12, 2048, 1365},
		{14, 8717, 5683},
		{14, 0, 16383},
		{14, 16383, 16383},
	}

	for _, c := range coords {
		id := CoordToID(c.z, c.x, c.y)
		z, x, y := IDToCoord(id)
		if z != c.z || x != c.x || y != c.y {
			t.Errorf("IDToCoord(CoordToID(%d, %d, %d)) = (%d, %d, %d)", c.z, c.x, c.y, z, x, y)
		}
	}
}

func TestZoomBoundaries(t *testing.T) {
	// The first id of each zoom follows the last id of the zoom above.
	for z := uint8(1); z <= 10; z++ {
		first := CoordToID(z, 0, 0)
		if first != zoomBase(z) {
			t.Errorf("CoordToID(%d, 0, 0) = %d, want zoom base %d", z, first, zoomBase(z))
		}
		if want := zoomBase(z-1) + (uint64(1) << (2 * uint(z-1))); first != want {
			t.Errorf("zoom %d starts at %d, want %d", z, first, want)
		}
	}
}

func TestIDsAreDenseWithinZoom(t *testing.T) {
	// Every id in [zoomBase(z), zoomBase(z+1)) maps to a distinct coordinate.
	const z = 3
	seen := make(map[[2]uint32]bool)
	for id := zoomBase(z); id < zoomBase(z+1); id++ {
		gz, x, y := IDToCoord(id)
		if gz != z {
			t.Fatalf("IDToCoord(%d) zoom = %d, want %d", id, gz, z)
		}
		key := [2]uint32{x, y}
		if seen[key] {
			t.Fatalf("IDToCoord(%d) = (%d, %d) already produced", id, x, y)
		}
		seen[key] = true
	}
	if len(seen) != 64 {
		t.Errorf("zoom %d covered %d tiles, want 64", z, len(seen))
	}
}
