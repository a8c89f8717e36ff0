package http

import (
	_ "embed"
	"net/http"
)

// Fixed tileserver assets. The map frontend expects a style, a tile manifest,
// a sprite sheet and glyph ranges; until styles are served dynamically these
// canned responses keep it rendering.
var (
	//go:embed assets/style.json
	styleJSON []byte

	//go:embed assets/tile.json
	tileJSON []byte

	//go:embed assets/sprite@2x.json
	spriteJSON []byte

	//go:embed assets/sprite@2x.png
	spritePNG []byte

	//go:embed assets/glyphs.pbf
	glyphsPBF []byte
)

func (s *Server) handleStyle(w http.ResponseWriter, _ *http.Request) {
	serveAsset(w, "application/json", styleJSON)
}

func (s *Server) handleTileJSON(w http.ResponseWriter, _ *http.Request) {
	serveAsset(w, "application/json", tileJSON)
}

func (s *Server) handleSpriteJSON(w http.ResponseWriter, _ *http.Request) {
	serveAsset(w, "application/json", spriteJSON)
}

func (s *Server) handleSpritePNG(w http.ResponseWriter, _ *http.Request) {
	serveAsset(w, "image/png", spritePNG)
}

// handleFontRange serves the same empty glyph set for every font stack and
// range.
func (s *Server) handleFontRange(w http.ResponseWriter, _ *http.Request) {
	serveAsset(w, "application/x-protobuf", glyphsPBF)
}

func serveAsset(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
