// Package pmtiles implements a minimal PMTiles v3 codec: enough of the
// header, hilbert tile addressing and varint directory format to read local
// archives, traverse remote ones over byte ranges, and write new clustered
// archives for region extracts.
package pmtiles

// zoomBase returns the tile ID of the first tile at zoom z, i.e. the number
// of tiles in all zoom levels below z.
func zoomBase(z uint8) uint64 {
	// sum of 4^t for t < z == (4^z - 1) / 3
	return ((uint64(1) << (2 * uint(z))) - 1) / 3
}

// CoordToID maps a (z, x, y) tile coordinate to its position in the
// hilbert-ordered global tile sequence.
func CoordToID(z uint8, x, y uint32) uint64 {
	n := uint64(1) << uint(z)
	tx, ty := uint64(x), uint64(y)
	var d uint64
	for s := n / 2; s > 0; s /= 2 {
		var rx, ry uint64
		if tx&s > 0 {
			rx = 1
		}
		if ty&s > 0 {
			ry = 1
		}
		d += s * s * ((3 * rx) ^ ry)
		rotate(s, &tx, &ty, rx, ry)
	}
	return zoomBase(z) + d
}

// IDToCoord is the inverse of CoordToID.
func IDToCoord(id uint64) (z uint8, x, y uint32) {
	var acc uint64
	for t := uint8(0); t < 32; t++ {
		count := uint64(1) << (2 * uint(t))
		if acc+count > id {
			x, y = hilbertPosition(t, id-acc)
			return t, x, y
		}
		acc += count
	}
	// Unreachable for ids produced by CoordToID with z < 32.
	return 0, 0, 0
}

// hilbertPosition converts a distance along the hilbert curve of order z back
// to an (x, y) position.
func hilbertPosition(z uint8, d uint64) (uint32, uint32) {
	n := uint64(1) << uint(z)
	t := d
	var x, y uint64
	for s := uint64(1); s < n; s *= 2 {
		rx := 1 & (t / 2)
		ry := 1 & (t ^ rx)
		rotate(s, &x, &y, rx, ry)
		x += s * rx
		y += s * ry
		t /= 4
	}
	return uint32(x), uint32(y)
}

func rotate(n uint64, x, y *uint64, rx, ry uint64) {
	if ry == 0 {
		if rx == 1 {
			*x = n - 1 - *x
			*y = n - 1 - *y
		}
		*x, *y = *y, *x
	}
}
