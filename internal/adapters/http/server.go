// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tilehaven/tilehaven/internal/config"
	"github.com/tilehaven/tilehaven/internal/ports/input"
)

// Server wraps the HTTP server with tile-serving handlers.
type Server struct {
	server     *http.Server
	router     *mux.Router
	tiles      input.TileReader
	logger     *slog.Logger
	config     config.ServerConfig
	metrics    http.Handler // nil disables the metrics endpoint
	mpath      string
	metricsMid mux.MiddlewareFunc // nil disables request instrumentation
}

// NewServer creates a new HTTP server serving tiles from the given reader.
// metricsHandler may be nil to disable the metrics endpoint;
// metricsMiddleware may be nil to skip per-request instrumentation.
func NewServer(
	cfg config.ServerConfig,
	tiles input.TileReader,
	logger *slog.Logger,
	metricsHandler http.Handler,
	metricsPath string,
	metricsMiddleware mux.MiddlewareFunc,
) *Server {
	s := &Server{
		tiles:      tiles,
		logger:     logger,
		config:     cfg,
		metrics:    metricsHandler,
		mpath:      metricsPath,
		metricsMid: metricsMiddleware,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.metricsMid != nil {
		r.Use(s.metricsMid)
	}

	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	// Tile data
	r.HandleFunc("/tileserver/data/default/{z}/{x}/{y}", s.handleTile).Methods(http.MethodGet)

	// Fixed tileserver assets the map frontend expects
	r.HandleFunc("/tileserver/styles/basic/style.json", s.handleStyle).Methods(http.MethodGet)
	r.HandleFunc("/tileserver/data/default.json", s.handleTileJSON).Methods(http.MethodGet)
	r.HandleFunc("/tileserver/styles/basic/sprite@2x.json", s.handleSpriteJSON).Methods(http.MethodGet)
	r.HandleFunc("/tileserver/styles/basic/sprite@2x.png", s.handleSpritePNG).Methods(http.MethodGet)
	r.HandleFunc("/tileserver/fonts/{fontstack}/{range}", s.handleFontRange).Methods(http.MethodGet)

	if s.metrics != nil {
		path := s.mpath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, s.metrics).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleStatus reports liveness.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ok"))
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
