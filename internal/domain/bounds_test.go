package domain

import (
	"errors"
	"testing"
)

func TestNewBounds(t *testing.T) {
	tests := []struct {
		name                           string
		maxLat, maxLon, minLat, minLon float64
		wantErr                        bool
	}{
		{"valid box", 48.0, 11.0, 47.0, 10.0, false},
		{"point box", 47.0, 10.0, 47.0, 10.0, false},
		{"whole world", 90.0, 180.0, -90.0, -180.0, false},
		{"inverted latitude", 10.0, 11.0, 47.0, 10.0, true},
		{"inverted longitude", 48.0, 10.0, 47.0, 11.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBounds(tt.maxLat, tt.maxLon, tt.minLat, tt.minLon)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewBounds() = %v, want error", b)
				}
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("error %v does not wrap ErrInvalidInput", err)
				}
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("error %v is not a *ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBounds() error: %v", err)
			}
			if b.MaxLat != tt.maxLat || b.MaxLon != tt.maxLon || b.MinLat != tt.minLat || b.MinLon != tt.minLon {
				t.Errorf("NewBounds() = %+v, want fields as given", b)
			}
		})
	}
}

func TestBoundsClamp(t *testing.T) {
	world := Bounds{MaxLat: 85, MaxLon: 180, MinLat: -85, MinLon: -180}
	alps := Bounds{MaxLat: 48, MaxLon: 14, MinLat: 45, MinLon: 6}

	t.Run("inside stays unchanged", func(t *testing.T) {
		if got := alps.Clamp(world); got != alps {
			t.Errorf("Clamp() = %+v, want %+v", got, alps)
		}
	})

	t.Run("overflow is cut to the other box", func(t *testing.T) {
		req := Bounds{MaxLat: 90, MaxLon: 200, MinLat: -90, MinLon: -200}
		if got := req.Clamp(world); got != world {
			t.Errorf("Clamp() = %+v, want %+v", got, world)
		}
	})

	t.Run("disjoint collapses to zero area", func(t *testing.T) {
		req := Bounds{MaxLat: 60, MaxLon: -100, MinLat: 50, MinLon: -120}
		got := req.Clamp(alps)
		if got.MaxLat != got.MinLat && got.MaxLon != got.MinLon {
			t.Errorf("Clamp() = %+v, want a collapsed box", got)
		}
		if got.MaxLat < got.MinLat || got.MaxLon < got.MinLon {
			t.Errorf("Clamp() = %+v violates max >= min", got)
		}
	})
}

func TestTileCoordinateString(t *testing.T) {
	c := TileCoordinate{Z: 14, X: 8717, Y: 5683}
	if got := c.String(); got != "14/8717/5683" {
		t.Errorf("String() = %q, want %q", got, "14/8717/5683")
	}
}
