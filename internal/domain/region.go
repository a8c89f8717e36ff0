package domain

// RegionRecord is an immutable snapshot of a registered archive: its header
// bounds, its file name (unique among registered sources at any instant), and
// its size on disk at registration time. Records are never mutated after
// creation, only replaced by removal.
type RegionRecord struct {
	Bounds   Bounds
	FileName string
	FileSize uint64
}

// ArchiveHeader is the metadata every archive exposes, whatever its format.
type ArchiveHeader struct {
	Bounds  Bounds
	MinZoom uint8
	MaxZoom uint8
}
