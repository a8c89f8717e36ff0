package pmtiles

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tilehaven/tilehaven/internal/domain"
)

// HeaderSize is the fixed byte length of a v3 header.
const HeaderSize = 127

const (
	magic         = "PMTiles"
	formatVersion = 3
)

// Compression codes used for directories, metadata and tile data.
const (
	CompressionUnknown uint8 = 0
	CompressionNone    uint8 = 1
	CompressionGzip    uint8 = 2
	CompressionBrotli  uint8 = 3
	CompressionZstd    uint8 = 4
)

// Tile type codes.
const (
	TileTypeUnknown uint8 = 0
	TileTypeMVT     uint8 = 1
	TileTypePNG     uint8 = 2
	TileTypeJPEG    uint8 = 3
	TileTypeWebP    uint8 = 4
)

var (
	errBadMagic   = errors.New("missing PMTiles magic")
	errBadVersion = errors.New("unsupported format version")
)

// Header is the fixed-size archive preamble.
type Header struct {
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression uint8
	TileCompression     uint8
	TileType            uint8
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

// parseHeader decodes the first HeaderSize bytes of an archive.
func parseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("header truncated: %d bytes", len(b))
	}
	if string(b[0:7]) != magic {
		return Header{}, errBadMagic
	}
	if b[7] != formatVersion {
		return Header{}, fmt.Errorf("%w: %d", errBadVersion, b[7])
	}

	h := Header{
		RootOffset:          binary.LittleEndian.Uint64(b[8:16]),
		RootLength:          binary.LittleEndian.Uint64(b[16:24]),
		MetadataOffset:      binary.LittleEndian.Uint64(b[24:32]),
		MetadataLength:      binary.LittleEndian.Uint64(b[32:40]),
		LeafDirectoryOffset: binary.LittleEndian.Uint64(b[40:48]),
		LeafDirectoryLength: binary.LittleEndian.Uint64(b[48:56]),
		TileDataOffset:      binary.LittleEndian.Uint64(b[56:64]),
		TileDataLength:      binary.LittleEndian.Uint64(b[64:72]),
		AddressedTilesCount: binary.LittleEndian.Uint64(b[72:80]),
		TileEntriesCount:    binary.LittleEndian.Uint64(b[80:88]),
		TileContentsCount:   binary.LittleEndian.Uint64(b[88:96]),
		Clustered:           b[96] == 1,
		InternalCompression: b[97],
		TileCompression:     b[98],
		TileType:            b[99],
		MinZoom:             b[100],
		MaxZoom:             b[101],
		MinLonE7:            int32(binary.LittleEndian.Uint32(b[102:106])),
		MinLatE7:            int32(binary.LittleEndian.Uint32(b[106:110])),
		MaxLonE7:            int32(binary.LittleEndian.Uint32(b[110:114])),
		MaxLatE7:            int32(binary.LittleEndian.Uint32(b[114:118])),
		CenterZoom:          b[118],
		CenterLonE7:         int32(binary.LittleEndian.Uint32(b[119:123])),
		CenterLatE7:         int32(binary.LittleEndian.Uint32(b[123:127])),
	}
	return h, nil
}

// serializeHeader encodes h into its fixed 127-byte form.
func serializeHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:7], magic)
	b[7] = formatVersion
	binary.LittleEndian.PutUint64(b[8:16], h.RootOffset)
	binary.LittleEndian.PutUint64(b[16:24], h.RootLength)
	binary.LittleEndian.PutUint64(b[24:32], h.MetadataOffset)
	binary.LittleEndian.PutUint64(b[32:40], h.MetadataLength)
	binary.LittleEndian.PutUint64(b[40:48], h.LeafDirectoryOffset)
	binary.LittleEndian.PutUint64(b[48:56], h.LeafDirectoryLength)
	binary.LittleEndian.PutUint64(b[56:64], h.TileDataOffset)
	binary.LittleEndian.PutUint64(b[64:72], h.TileDataLength)
	binary.LittleEndian.PutUint64(b[72:80], h.AddressedTilesCount)
	binary.LittleEndian.PutUint64(b[80:88], h.TileEntriesCount)
	binary.LittleEndian.PutUint64(b[88:96], h.TileContentsCount)
	if h.Clustered {
		b[96] = 1
	}
	b[97] = h.InternalCompression
	b[98] = h.TileCompression
	b[99] = h.TileType
	b[100] = h.MinZoom
	b[101] = h.MaxZoom
	binary.LittleEndian.PutUint32(b[102:106], uint32(h.MinLonE7))
	binary.LittleEndian.PutUint32(b[106:110], uint32(h.MinLatE7))
	binary.LittleEndian.PutUint32(b[110:114], uint32(h.MaxLonE7))
	binary.LittleEndian.PutUint32(b[114:118], uint32(h.MaxLatE7))
	b[118] = h.CenterZoom
	binary.LittleEndian.PutUint32(b[119:123], uint32(h.CenterLonE7))
	binary.LittleEndian.PutUint32(b[123:127], uint32(h.CenterLatE7))
	return b
}

// bounds converts the E7-encoded header box to domain degrees.
func (h Header) bounds() domain.Bounds {
	return domain.Bounds{
		MaxLat: float64(h.MaxLatE7) / 1e7,
		MaxLon: float64(h.MaxLonE7) / 1e7,
		MinLat: float64(h.MinLatE7) / 1e7,
		MinLon: float64(h.MinLonE7) / 1e7,
	}
}

// archiveHeader maps the codec header onto the format-agnostic domain view.
func (h Header) archiveHeader() domain.ArchiveHeader {
	return domain.ArchiveHeader{
		Bounds:  h.bounds(),
		MinZoom: h.MinZoom,
		MaxZoom: h.MaxZoom,
	}
}

// setBounds stores a degree box in E7 form and recenters the header on it.
func (h *Header) setBounds(b domain.Bounds) {
	h.MinLonE7 = int32(b.MinLon * 1e7)
	h.MinLatE7 = int32(b.MinLat * 1e7)
	h.MaxLonE7 = int32(b.MaxLon * 1e7)
	h.MaxLatE7 = int32(b.MaxLat * 1e7)
	h.CenterLonE7 = int32((b.MinLon + b.MaxLon) / 2 * 1e7)
	h.CenterLatE7 = int32((b.MinLat + b.MaxLat) / 2 * 1e7)
}
