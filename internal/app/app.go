// Package app provides application initialization and wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/tilehaven/tilehaven/internal/adapters/archive"
	"github.com/tilehaven/tilehaven/internal/adapters/fetch"
	httpAdapter "github.com/tilehaven/tilehaven/internal/adapters/http"
	"github.com/tilehaven/tilehaven/internal/adapters/metrics"
	"github.com/tilehaven/tilehaven/internal/adapters/pmtiles"
	"github.com/tilehaven/tilehaven/internal/adapters/watcher"
	"github.com/tilehaven/tilehaven/internal/application"
	"github.com/tilehaven/tilehaven/internal/config"
	"github.com/tilehaven/tilehaven/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Collection *application.TileCollection
	Extractor  *application.Extractor
	Service    *application.Service
	HTTPServer *httpAdapter.Server
	Watcher    *watcher.Watcher
	Metrics    *metrics.Collector
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	var metricsHandler http.Handler
	var metricsMiddleware mux.MiddlewareFunc
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("tilehaven")
		metricsCollector = app.Metrics
		metricsHandler = metrics.Handler()
		metricsMiddleware = app.Metrics.Middleware
	}

	// Initialize the tile collection over local storage
	app.Collection = application.NewTileCollection(
		cfg.Storage.TilesRoot(),
		archive.Opener{},
		metricsCollector,
		logger,
	)

	// Initialize the region extractor against the configured remote archive
	app.Extractor = application.NewExtractor(
		cfg.Extract.SourceURL,
		&pmtiles.RemoteOpener{
			Config: pmtiles.RemoteConfig{
				Client:    &http.Client{Timeout: cfg.Extract.Timeout},
				UserAgent: cfg.Extract.UserAgent,
			},
		},
		logger,
	)

	// Initialize the system archive fetcher
	fetcher, err := initFetcher(ctx, cfg.Fetch, cfg.Extract.UserAgent, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing fetcher: %w", err)
	}

	app.Service = application.NewService(
		app.Collection,
		app.Extractor,
		fetcher,
		metricsCollector,
		logger,
	)

	// Initialize HTTP server
	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		app.Service,
		logger,
		metricsHandler,
		cfg.Metrics.Path,
		metricsMiddleware,
	)

	// Initialize file watcher for hot archive registration
	if cfg.Watcher.Enabled {
		w, err := watcher.New(
			watcher.Config{
				Paths: []string{
					app.Collection.SystemRoot(),
					app.Collection.UserExtractsRoot(),
				},
				Debounce: cfg.Watcher.Debounce,
			},
			app.handleFileEvent,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize file watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// Start loads the collection from storage and serves until the listener
// fails or Shutdown is called.
func (a *App) Start(ctx context.Context) error {
	if err := a.Collection.LoadFromStorage(ctx); err != nil {
		return fmt.Errorf("loading tile collection: %w", err)
	}

	// Start file watcher
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start file watcher", "error", err)
		}
	}

	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	// Stop watcher
	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	// Shutdown HTTP server
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}

	// Close registered archives
	if err := a.Service.Close(); err != nil {
		a.Logger.Error("failed to close tile collection", "error", err)
	}

	return nil
}

// handleFileEvent registers archives dropped into the storage directories
// and deregisters deleted ones. Files registered through the service are
// already known and skipped.
func (a *App) handleFileEvent(ctx context.Context, event watcher.Event) error {
	fileName := filepath.Base(event.Path)

	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		if a.Collection.IsRegistered(fileName) {
			return nil
		}
		_, err := a.Collection.AddSource(ctx, event.Path)
		return err

	case watcher.OpDelete:
		if a.Collection.DropSource(fileName) {
			a.Logger.Info("dropped deleted archive", "file", fileName)
		}
		return nil
	}

	return nil
}

// initFetcher builds the scheme-dispatched object fetcher. Cloud transports
// are only constructed when credentials are configured; HTTP always works.
func initFetcher(ctx context.Context, cfg config.FetchConfig, userAgent string, logger *slog.Logger) (output.ObjectFetcher, error) {
	d := &fetch.Dispatcher{
		HTTP: fetch.NewHTTPFetcher(cfg.Timeout, userAgent),
	}

	if cfg.S3.Region != "" {
		s3f, err := fetch.NewS3Fetcher(ctx, fetch.S3Config{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		d.S3 = s3f
	}

	if cfg.Azure.AccountName != "" || cfg.Azure.ConnectionString != "" {
		azf, err := fetch.NewAzureFetcher(fetch.AzureConfig{
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
		})
		if err != nil {
			return nil, err
		}
		d.Azure = azf
	}

	if d.S3 == nil && d.Azure == nil {
		logger.Debug("no cloud fetch transports configured")
	}
	return d, nil
}
