// Package domain contains the core business entities and value objects.
package domain

import "fmt"

// Bounds represents a geographic bounding box in WGS84 degrees.
type Bounds struct {
	MaxLat float64
	MaxLon float64
	MinLat float64
	MinLon float64
}

// NewBounds creates a bounding box from its north/east/south/west edges.
// Construction is the only place the max >= min invariant is checked.
func NewBounds(maxLat, maxLon, minLat, minLon float64) (Bounds, error) {
	if maxLat < minLat {
		return Bounds{}, &ValidationError{
			Field:      "latitude",
			Value:      fmt.Sprintf("%f..%f", minLat, maxLat),
			Constraint: "max_lat >= min_lat",
			Message:    "max latitude must not be south of min latitude",
		}
	}
	if maxLon < minLon {
		return Bounds{}, &ValidationError{
			Field:      "longitude",
			Value:      fmt.Sprintf("%f..%f", minLon, maxLon),
			Constraint: "max_lon >= min_lon",
			Message:    "max longitude must not be west of min longitude",
		}
	}
	return Bounds{MaxLat: maxLat, MaxLon: maxLon, MinLat: minLat, MinLon: minLon}, nil
}

// Clamp returns the intersection of b with other. If the boxes are disjoint
// the result collapses to a zero-area box on the shared edge.
func (b Bounds) Clamp(other Bounds) Bounds {
	out := b
	if out.MaxLat > other.MaxLat {
		out.MaxLat = other.MaxLat
	}
	if out.MaxLon > other.MaxLon {
		out.MaxLon = other.MaxLon
	}
	if out.MinLat < other.MinLat {
		out.MinLat = other.MinLat
	}
	if out.MinLon < other.MinLon {
		out.MinLon = other.MinLon
	}
	if out.MaxLat < out.MinLat {
		out.MaxLat = out.MinLat
	}
	if out.MaxLon < out.MinLon {
		out.MaxLon = out.MinLon
	}
	return out
}

// String returns a compact representation for logs.
func (b Bounds) String() string {
	return fmt.Sprintf("[%f %f %f %f]", b.MaxLat, b.MaxLon, b.MinLat, b.MinLon)
}

// TileCoordinate is the (zoom, x, y) address of one tile.
type TileCoordinate struct {
	Z uint8
	X uint32
	Y uint32
}

// String returns the z/x/y form used in URLs and logs.
func (c TileCoordinate) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}
