package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tilehaven/tilehaven/internal/domain"
)

// handleTile serves one vector tile. The y path segment carries the ".pbf"
// extension; a request without it is malformed.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	coord, ok := parseTileCoordinate(vars["z"], vars["x"], vars["y"])
	if !ok {
		s.logger.Warn("malformed tile request", "path", r.URL.Path)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	data, found, err := s.tiles.GetTile(r.Context(), coord)
	if err != nil {
		s.logger.Error("tile lookup failed", "tile", coord.String(), "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	// Stored tiles are gzip-compressed MVT; they are passed through verbatim.
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parseTileCoordinate parses the z, x and y path segments. y must carry the
// ".pbf" extension.
func parseTileCoordinate(zStr, xStr, yStr string) (domain.TileCoordinate, bool) {
	z, err := strconv.ParseUint(zStr, 10, 8)
	if err != nil {
		return domain.TileCoordinate{}, false
	}
	x, err := strconv.ParseUint(xStr, 10, 32)
	if err != nil {
		return domain.TileCoordinate{}, false
	}

	yNum, ok := strings.CutSuffix(yStr, ".pbf")
	if !ok {
		return domain.TileCoordinate{}, false
	}
	y, err := strconv.ParseUint(yNum, 10, 32)
	if err != nil {
		return domain.TileCoordinate{}, false
	}

	return domain.TileCoordinate{Z: uint8(z), X: uint32(x), Y: uint32(y)}, true
}
